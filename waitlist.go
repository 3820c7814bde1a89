package asyncrt

// waiter is a node of a waitList, owned by the future that is waiting.
// All fields are guarded by the lock of the primitive holding the list.
type waiter[V any] struct {
	prev, next *waiter[V]
	waker      Waker
	// value travels with the waiter, such as a blocked send's payload
	value V
	// n is a request size, such as a semaphore permit count
	n      int
	queued bool
	// granted is set when the waiter is dequeued by a notifier rather
	// than by its own future
	granted bool
}

func (w *waiter[V]) setWaker(cx *Context) {
	if nw := cx.Waker(); !w.waker.WillWake(nw) {
		w.waker = nw
	}
}

// waitList is an intrusive FIFO of waiters.
type waitList[V any] struct {
	head, tail *waiter[V]
	len        int
}

func (l *waitList[V]) push(w *waiter[V]) {
	w.prev, w.next = l.tail, nil
	if l.tail != nil {
		l.tail.next = w
	} else {
		l.head = w
	}
	l.tail = w
	w.queued = true
	l.len++
}

// remove unlinks w, reporting false if it was not queued.
func (l *waitList[V]) remove(w *waiter[V]) bool {
	if !w.queued {
		return false
	}
	if w.prev != nil {
		w.prev.next = w.next
	} else {
		l.head = w.next
	}
	if w.next != nil {
		w.next.prev = w.prev
	} else {
		l.tail = w.prev
	}
	w.prev, w.next, w.queued = nil, nil, false
	l.len--
	return true
}

func (l *waitList[V]) front() *waiter[V] { return l.head }

func (l *waitList[V]) empty() bool { return l.head == nil }

// grant dequeues w, marks it granted and returns its waker, which the
// caller invokes once its lock is released.
func (l *waitList[V]) grant(w *waiter[V]) Waker {
	l.remove(w)
	w.granted = true
	waker := w.waker
	w.waker = Waker{}
	return waker
}

// drain dequeues every waiter without granting, returning their wakers.
func (l *waitList[V]) drain() []Waker {
	wakers := make([]Waker, 0, l.len)
	for w := l.head; w != nil; w = l.head {
		l.remove(w)
		wakers = append(wakers, w.waker)
		w.waker = Waker{}
	}
	return wakers
}

func wakeAll(wakers []Waker) {
	for _, w := range wakers {
		w.Wake()
	}
}
