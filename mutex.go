package asyncrt

import (
	"sync"
)

// Mutex is an asynchronous mutual exclusion lock. Waiters acquire it in
// FIFO order: Unlock hands the lock directly to the longest waiter, so a
// newcomer can never barge ahead of a queued task.
//
// Unlike sync.Mutex it may be held across suspension points. The zero
// value is an unlocked mutex.
type Mutex struct {
	mu      sync.Mutex
	locked  bool
	waiters waitList[struct{}]
}

// TryLock acquires the lock if it is free and nobody is queued.
func (m *Mutex) TryLock() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked || !m.waiters.empty() {
		return false
	}
	m.locked = true
	return true
}

// Lock returns a future that completes once the lock is held. Dropping the
// future before it completes withdraws from the queue, passing the lock on
// if it had already been handed over.
func (m *Mutex) Lock() *LockFuture {
	return &LockFuture{m: m}
}

// Unlock releases the lock, handing it to the next waiter. It panics if the
// mutex is not locked.
func (m *Mutex) Unlock() {
	m.mu.Lock()
	if !m.locked {
		m.mu.Unlock()
		panic("asyncrt: unlock of unlocked Mutex")
	}
	var w Waker
	if next := m.waiters.front(); next != nil {
		// stays locked: ownership moves to next
		w = m.waiters.grant(next)
	} else {
		m.locked = false
	}
	m.mu.Unlock()
	w.Wake()
}

// LockFuture is the future returned by Mutex.Lock.
type LockFuture struct {
	m        *Mutex
	w        waiter[struct{}]
	acquired bool
}

// Poll implements Future.
func (f *LockFuture) Poll(cx *Context) Poll[struct{}] {
	m := f.m
	m.mu.Lock()
	switch {
	case f.w.granted:
		f.acquired = true
	case f.w.queued:
		f.w.setWaker(cx)
	case !m.locked && m.waiters.empty():
		if !cx.proceed() {
			m.mu.Unlock()
			return Pending[struct{}]()
		}
		m.locked = true
		f.acquired = true
	default:
		f.w.setWaker(cx)
		m.waiters.push(&f.w)
	}
	m.mu.Unlock()
	if f.acquired {
		return Ready(struct{}{})
	}
	return Pending[struct{}]()
}

// Drop implements Dropper.
func (f *LockFuture) Drop() {
	if f.acquired {
		return
	}
	m := f.m
	m.mu.Lock()
	m.waiters.remove(&f.w)
	granted := f.w.granted
	f.w.granted = false
	m.mu.Unlock()
	if granted {
		m.Unlock()
	}
}
