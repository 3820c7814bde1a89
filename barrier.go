package asyncrt

import (
	"sync"
)

// BarrierWaitResult is the output of Barrier.Wait.
type BarrierWaitResult struct {
	// IsLeader is true for exactly one waiter per generation: the last to
	// arrive.
	IsLeader bool
}

// Barrier lets a fixed number of tasks wait for each other. Once n tasks
// are waiting they are all released and the barrier resets for reuse.
type Barrier struct {
	mu         sync.Mutex
	n          int
	arrived    int
	generation uint64
	waiters    waitList[struct{}]
}

// NewBarrier returns a barrier for n tasks. A barrier of zero behaves like
// a barrier of one.
func NewBarrier(n int) *Barrier {
	if n < 1 {
		n = 1
	}
	return &Barrier{n: n}
}

// Wait returns a future completing once the whole group has arrived.
// Arrival happens on the first poll.
func (b *Barrier) Wait() *BarrierWaitFuture {
	return &BarrierWaitFuture{b: b}
}

// BarrierWaitFuture is returned by Barrier.Wait.
type BarrierWaitFuture struct {
	b          *Barrier
	w          waiter[struct{}]
	generation uint64
	arrived    bool
	done       bool
}

// Poll implements Future.
func (f *BarrierWaitFuture) Poll(cx *Context) Poll[BarrierWaitResult] {
	b := f.b
	b.mu.Lock()
	if f.arrived {
		if f.w.granted || b.generation != f.generation {
			b.mu.Unlock()
			f.done = true
			return Ready(BarrierWaitResult{})
		}
		f.w.setWaker(cx)
		b.mu.Unlock()
		return Pending[BarrierWaitResult]()
	}
	f.arrived = true
	b.arrived++
	if b.arrived < b.n {
		f.generation = b.generation
		f.w.setWaker(cx)
		b.waiters.push(&f.w)
		b.mu.Unlock()
		return Pending[BarrierWaitResult]()
	}
	b.arrived = 0
	b.generation++
	var wakers []Waker
	for w := b.waiters.front(); w != nil; w = b.waiters.front() {
		wakers = append(wakers, b.waiters.grant(w))
	}
	b.mu.Unlock()
	wakeAll(wakers)
	f.done = true
	return Ready(BarrierWaitResult{IsLeader: true})
}

// Drop implements Dropper. A waiter dropped before release withdraws its
// arrival.
func (f *BarrierWaitFuture) Drop() {
	if f.done || !f.arrived {
		return
	}
	f.done = true
	b := f.b
	b.mu.Lock()
	if b.waiters.remove(&f.w) && b.generation == f.generation {
		b.arrived--
	}
	b.mu.Unlock()
}
