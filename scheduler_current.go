package asyncrt

import (
	"context"
	"sync"
	"sync/atomic"
)

// currentThread runs every task on the goroutine inside BlockOn. That
// goroutine also turns the driver whenever the run queue is empty.
type currentThread struct {
	rt *Runtime

	mu    sync.Mutex
	queue taskQueue

	// core is held by whichever goroutine is driving the runtime
	core chan struct{}
	// owner is the goroutine id of the core holder
	owner atomic.Uint64
	// parked is set while the core holder is blocked in the driver
	parked atomic.Bool
	// signal is nudged on every push, for drain
	signal chan struct{}
}

func newCurrentThread(rt *Runtime) *currentThread {
	s := &currentThread{
		rt:     rt,
		core:   make(chan struct{}, 1),
		signal: make(chan struct{}, 1),
	}
	s.core <- struct{}{}
	return s
}

func (s *currentThread) schedule(t *task) {
	s.mu.Lock()
	s.queue.push(t)
	s.mu.Unlock()
	s.unpark()
}

func (s *currentThread) spawn(t *task, _ *Context) { s.schedule(t) }

func (s *currentThread) unpark() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
	if s.parked.Load() {
		s.rt.driver.unpark()
	}
}

func (s *currentThread) pop() *task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.pop()
}

func (s *currentThread) queued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.len()
}

// acquire takes the core, failing if the caller already holds it.
func (s *currentThread) acquire(ctx context.Context) error {
	if s.onRuntimeGoroutine() {
		return ErrBlockOnReentrant
	}
	select {
	case <-s.core:
	case <-s.rt.closing:
		return ErrRuntimeShutdown
	case <-ctx.Done():
		return ctx.Err()
	}
	s.owner.Store(goroutineID())
	return nil
}

func (s *currentThread) onRuntimeGoroutine() bool {
	return s.owner.Load() == goroutineID()
}

func (s *currentThread) release() {
	s.owner.Store(0)
	s.core <- struct{}{}
}

func (s *currentThread) blockOn(root func(cx *Context) bool) error {
	if err := s.acquire(context.Background()); err != nil {
		return err
	}
	defer s.release()

	var woken atomic.Bool
	woken.Store(true)
	waker := NewWaker(func() {
		woken.Store(true)
		s.unpark()
	})

	var (
		rootCx Context
		taskCx Context
	)
	for {
		if woken.Swap(false) {
			rootCx.bind(s.rt, nil, nil, waker)
			if root(&rootCx) {
				return nil
			}
		}
		select {
		case <-s.rt.closing:
			return ErrRuntimeShutdown
		default:
		}

		ran := s.runBatch(&taskCx, s.rt.opts.eventInterval)
		if ran == s.rt.opts.eventInterval || woken.Load() || s.queued() > 0 {
			// more work: poll the driver without blocking
			s.rt.driver.turn(0)
			continue
		}

		s.parked.Store(true)
		if woken.Load() || s.queued() > 0 {
			s.parked.Store(false)
			continue
		}
		s.rt.driver.turn(-1)
		s.parked.Store(false)
	}
}

// runBatch polls up to n queued tasks.
func (s *currentThread) runBatch(cx *Context, n int) int {
	var ran int
	for ran < n {
		t := s.pop()
		if t == nil {
			break
		}
		ran++
		cx.bind(s.rt, t, nil, t.waker())
		if t.run(cx) {
			s.schedule(t)
		}
	}
	return ran
}

func (s *currentThread) drain(ctx context.Context) error {
	if err := s.acquireForShutdown(ctx); err != nil {
		return err
	}
	defer s.release()
	var cx Context
	for {
		for s.runBatch(&cx, s.rt.opts.eventInterval) > 0 {
		}
		if s.rt.tasks.len() == 0 {
			return nil
		}
		select {
		case <-s.signal:
		case <-s.rt.drained:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// acquireForShutdown takes the core once BlockOn callers have observed
// shutdown and released it.
func (s *currentThread) acquireForShutdown(ctx context.Context) error {
	if s.onRuntimeGoroutine() {
		return ErrBlockOnReentrant
	}
	select {
	case <-s.core:
		s.owner.Store(goroutineID())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *currentThread) stop(ctx context.Context) error {
	if err := s.acquireForShutdown(ctx); err != nil {
		return err
	}
	defer s.release()
	s.mu.Lock()
	var left []*task
	for t := s.queue.pop(); t != nil; t = s.queue.pop() {
		left = append(left, t)
	}
	s.mu.Unlock()
	finalise(s.rt, left)
	return nil
}

func (s *currentThread) numWorkers() int { return 1 }

func (s *currentThread) queueDepths() ([]int, int) {
	return nil, s.queued()
}
