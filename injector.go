package asyncrt

import (
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
)

// injector is the multi-thread scheduler's global run queue. Tasks woken or
// spawned from outside a worker land here, as does local queue overflow.
type injector struct {
	mu sync.Mutex
	q  *queue.Queue
	// n mirrors q.Length() for lock-free emptiness checks
	n atomic.Int64
}

func newInjector() *injector {
	return &injector{q: queue.New()}
}

func (i *injector) push(t *task) {
	i.mu.Lock()
	i.q.Add(t)
	i.n.Add(1)
	i.mu.Unlock()
}

func (i *injector) pushBatch(tasks []*task) {
	if len(tasks) == 0 {
		return
	}
	i.mu.Lock()
	for _, t := range tasks {
		i.q.Add(t)
	}
	i.n.Add(int64(len(tasks)))
	i.mu.Unlock()
}

func (i *injector) pop() *task {
	if i.n.Load() == 0 {
		return nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.q.Length() == 0 {
		return nil
	}
	i.n.Add(-1)
	return i.q.Remove().(*task)
}

// popBatch moves up to len(dst) tasks into dst, returning the count.
func (i *injector) popBatch(dst []*task) int {
	if i.n.Load() == 0 {
		return 0
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	n := min(len(dst), i.q.Length())
	for k := 0; k < n; k++ {
		dst[k] = i.q.Remove().(*task)
	}
	i.n.Add(int64(-n))
	return n
}

func (i *injector) len() int { return int(i.n.Load()) }
