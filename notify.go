package asyncrt

import (
	"sync"
)

// Notify wakes tasks waiting on it. NotifyOne stores a single permit when
// nobody is waiting, which the next Notified future consumes immediately;
// NotifyAll only reaches futures already waiting.
//
// The zero value is ready to use.
type Notify struct {
	mu      sync.Mutex
	permit  bool
	waiters waitList[struct{}]
}

// Notified returns a future that completes on the next notification.
func (n *Notify) Notified() *NotifiedFuture {
	return &NotifiedFuture{n: n}
}

// NotifyOne wakes the longest waiter, or stores a permit if there is none.
func (n *Notify) NotifyOne() {
	n.mu.Lock()
	w := n.waiters.front()
	if w == nil {
		n.permit = true
		n.mu.Unlock()
		return
	}
	// n == 1 marks a NotifyOne grant, which must be passed on if dropped
	w.n = 1
	waker := n.waiters.grant(w)
	n.mu.Unlock()
	waker.Wake()
}

// NotifyAll wakes every current waiter. It does not store a permit.
func (n *Notify) NotifyAll() {
	n.mu.Lock()
	var wakers []Waker
	for w := n.waiters.front(); w != nil; w = n.waiters.front() {
		wakers = append(wakers, n.waiters.grant(w))
	}
	n.mu.Unlock()
	wakeAll(wakers)
}

// NotifiedFuture is returned by Notify.Notified.
type NotifiedFuture struct {
	n    *Notify
	w    waiter[struct{}]
	done bool
}

// Poll implements Future.
func (f *NotifiedFuture) Poll(cx *Context) Poll[struct{}] {
	n := f.n
	n.mu.Lock()
	switch {
	case f.w.granted:
		f.done = true
	case f.w.queued:
		f.w.setWaker(cx)
	case n.permit:
		n.permit = false
		f.done = true
	default:
		f.w.setWaker(cx)
		n.waiters.push(&f.w)
	}
	n.mu.Unlock()
	if f.done {
		return Ready(struct{}{})
	}
	return Pending[struct{}]()
}

// Drop implements Dropper. A NotifyOne delivered to a future that is dropped
// before observing it moves on to the next waiter.
func (f *NotifiedFuture) Drop() {
	if f.done {
		return
	}
	f.done = true
	n := f.n
	n.mu.Lock()
	n.waiters.remove(&f.w)
	forward := f.w.granted && f.w.n == 1
	n.mu.Unlock()
	if forward {
		n.NotifyOne()
	}
}
