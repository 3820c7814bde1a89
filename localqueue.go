package asyncrt

import (
	"sync"
	"sync/atomic"
)

const (
	// localQueueSize is the capacity of each worker's run queue.
	localQueueSize = 256
	// stealBatch is the most tasks moved by one steal or overflow.
	stealBatch = localQueueSize / 2
)

// localQueue is a worker's bounded FIFO ring. The owning worker pops; it
// and wakers of its tasks push, and other workers steal from the head. A
// steal never holds two queue locks at once.
type localQueue struct {
	mu   sync.Mutex
	buf  [localQueueSize]*task
	head uint32
	tail uint32
	n    atomic.Int32
}

// push appends t. If the ring is full, half of it plus t are removed and
// returned for the caller to move to the injector.
func (q *localQueue) push(t *task) (overflow []*task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.tail-q.head < localQueueSize {
		q.buf[q.tail%localQueueSize] = t
		q.tail++
		q.n.Add(1)
		return nil
	}
	overflow = make([]*task, 0, stealBatch+1)
	for range stealBatch {
		idx := q.head % localQueueSize
		overflow = append(overflow, q.buf[idx])
		q.buf[idx] = nil
		q.head++
	}
	q.n.Add(-stealBatch)
	return append(overflow, t)
}

func (q *localQueue) pop() *task {
	if q.n.Load() == 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == q.tail {
		return nil
	}
	idx := q.head % localQueueSize
	t := q.buf[idx]
	q.buf[idx] = nil
	q.head++
	q.n.Add(-1)
	return t
}

// steal moves the older half (rounded up) of q into dst, returning the
// count moved.
func (q *localQueue) steal(dst []*task) int {
	if q.n.Load() == 0 {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	avail := q.tail - q.head
	n := min(int(avail-avail/2), len(dst))
	for k := 0; k < n; k++ {
		idx := q.head % localQueueSize
		dst[k] = q.buf[idx]
		q.buf[idx] = nil
		q.head++
	}
	q.n.Add(int32(-n))
	return n
}

// drain empties q, for use once the owner has stopped.
func (q *localQueue) drain() []*task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*task, 0, q.tail-q.head)
	for ; q.head != q.tail; q.head++ {
		idx := q.head % localQueueSize
		out = append(out, q.buf[idx])
		q.buf[idx] = nil
	}
	q.n.Store(0)
	return out
}

func (q *localQueue) len() int { return int(q.n.Load()) }
