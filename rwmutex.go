package asyncrt

import (
	"sync"
)

// RWMutex is a fair asynchronous reader/writer lock. Requests are served in
// FIFO order: a queued writer blocks readers that arrive after it, and a
// run of queued readers at the head of the queue is admitted together.
//
// The zero value is an unlocked mutex.
type RWMutex struct {
	mu      sync.Mutex
	readers int
	writer  bool
	// waiters with n == 1 are writers, n == 0 readers
	waiters waitList[struct{}]
}

// TryRLock acquires a read lock without waiting.
func (rw *RWMutex) TryRLock() bool {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.writer || !rw.waiters.empty() {
		return false
	}
	rw.readers++
	return true
}

// TryLock acquires the write lock without waiting.
func (rw *RWMutex) TryLock() bool {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.writer || rw.readers > 0 || !rw.waiters.empty() {
		return false
	}
	rw.writer = true
	return true
}

// RLock returns a future that completes once a read lock is held.
func (rw *RWMutex) RLock() *RWLockFuture {
	return &RWLockFuture{rw: rw}
}

// Lock returns a future that completes once the write lock is held.
func (rw *RWMutex) Lock() *RWLockFuture {
	f := &RWLockFuture{rw: rw}
	f.w.n = 1
	return f
}

// RUnlock releases a read lock. It panics if no read lock is held.
func (rw *RWMutex) RUnlock() {
	rw.mu.Lock()
	if rw.readers == 0 {
		rw.mu.Unlock()
		panic("asyncrt: RUnlock of unlocked RWMutex")
	}
	rw.readers--
	wakers := rw.admit()
	rw.mu.Unlock()
	wakeAll(wakers)
}

// Unlock releases the write lock. It panics if the write lock is not held.
func (rw *RWMutex) Unlock() {
	rw.mu.Lock()
	if !rw.writer {
		rw.mu.Unlock()
		panic("asyncrt: Unlock of unlocked RWMutex")
	}
	rw.writer = false
	wakers := rw.admit()
	rw.mu.Unlock()
	wakeAll(wakers)
}

// admit grants queued requests from the head while they are compatible.
func (rw *RWMutex) admit() []Waker {
	var wakers []Waker
	for w := rw.waiters.front(); w != nil && !rw.writer; w = rw.waiters.front() {
		if w.n == 1 {
			if rw.readers > 0 {
				break
			}
			rw.writer = true
		} else {
			rw.readers++
		}
		wakers = append(wakers, rw.waiters.grant(w))
	}
	return wakers
}

// RWLockFuture is returned by RWMutex.RLock and RWMutex.Lock.
type RWLockFuture struct {
	rw       *RWMutex
	w        waiter[struct{}]
	acquired bool
}

func (f *RWLockFuture) write() bool { return f.w.n == 1 }

// Poll implements Future.
func (f *RWLockFuture) Poll(cx *Context) Poll[struct{}] {
	rw := f.rw
	rw.mu.Lock()
	switch {
	case f.w.granted:
		f.acquired = true
	case f.w.queued:
		f.w.setWaker(cx)
	case rw.waiters.empty() && !rw.writer && (!f.write() || rw.readers == 0):
		if !cx.proceed() {
			rw.mu.Unlock()
			return Pending[struct{}]()
		}
		if f.write() {
			rw.writer = true
		} else {
			rw.readers++
		}
		f.acquired = true
	default:
		f.w.setWaker(cx)
		rw.waiters.push(&f.w)
	}
	rw.mu.Unlock()
	if f.acquired {
		return Ready(struct{}{})
	}
	return Pending[struct{}]()
}

// Drop implements Dropper. A request dropped while queued leaves the queue,
// which may admit the requests behind it; one dropped after being granted
// releases the lock again.
func (f *RWLockFuture) Drop() {
	if f.acquired {
		return
	}
	rw := f.rw
	rw.mu.Lock()
	var wakers []Waker
	if rw.waiters.remove(&f.w) {
		wakers = rw.admit()
	}
	granted := f.w.granted
	f.w.granted = false
	rw.mu.Unlock()
	wakeAll(wakers)
	if granted {
		if f.write() {
			rw.Unlock()
		} else {
			rw.RUnlock()
		}
	}
}
