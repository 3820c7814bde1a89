package asyncrt

import (
	"context"
	"sync"
	"sync/atomic"
)

// multiThread is the work-stealing scheduler.
//
// Each worker owns a LIFO slot and a bounded local queue. New children of a
// running task go to its worker's LIFO slot. A woken task goes back to the
// local queue of the worker that last polled it, unless that worker is
// parked; external spawns and the remaining wakes go to the shared
// injector. An idle worker steals half of a random victim's queue before
// parking.
type multiThread struct {
	rt            *Runtime
	workers       []*worker
	inject        *injector
	idle          idleSet
	eventInterval uint32
	stopping      atomic.Bool
	wg            sync.WaitGroup
}

func newMultiThread(rt *Runtime) *multiThread {
	s := &multiThread{
		rt:            rt,
		inject:        newInjector(),
		eventInterval: uint32(rt.opts.eventInterval),
	}
	s.workers = make([]*worker, rt.opts.workerThreads)
	for i := range s.workers {
		s.workers[i] = newWorker(s, i)
	}
	s.wg.Add(len(s.workers))
	for _, w := range s.workers {
		w.start()
	}
	return s
}

func (s *multiThread) schedule(t *task) {
	if w := t.worker.Load(); w != nil && w.s == s && !w.parked.Load() && !s.stopping.Load() {
		w.pushLocal(t)
		return
	}
	s.inject.push(t)
	s.rt.metrics.injectorPushes.Add(1)
	s.notifyParked()
}

func (s *multiThread) spawn(t *task, cx *Context) {
	if cx != nil && cx.worker != nil && cx.worker.s == s && cx.task != nil {
		cx.worker.pushLIFO(t)
		return
	}
	s.schedule(t)
}

func (s *multiThread) blockOn(root func(cx *Context) bool) error {
	if s.onRuntimeGoroutine() {
		return ErrBlockOnReentrant
	}
	waker, signal := blockOnSignal()
	var cx Context
	for {
		cx.bind(s.rt, nil, nil, waker)
		if root(&cx) {
			return nil
		}
		select {
		case <-signal:
		case <-s.rt.closing:
			return ErrRuntimeShutdown
		}
	}
}

// onRuntimeGoroutine reports whether the caller is one of the workers.
func (s *multiThread) onRuntimeGoroutine() bool {
	gid := goroutineID()
	for _, w := range s.workers {
		if w.gid.Load() == gid {
			return true
		}
	}
	return false
}

// notifyParked wakes one parked worker, if any.
func (s *multiThread) notifyParked() {
	if w := s.idle.pop(); w != nil {
		w.unpark()
	}
}

func (s *multiThread) hasWork() bool {
	if s.inject.len() > 0 {
		return true
	}
	for _, w := range s.workers {
		if w.local.len() > 0 {
			return true
		}
	}
	return false
}

func (s *multiThread) drain(ctx context.Context) error {
	for s.rt.tasks.len() > 0 {
		select {
		case <-s.rt.drained:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *multiThread) stop(ctx context.Context) error {
	s.stopping.Store(true)
	for _, w := range s.workers {
		w.unpark()
	}
	joined := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(joined)
	}()
	select {
	case <-joined:
	case <-ctx.Done():
		return ctx.Err()
	}
	var left []*task
	for _, w := range s.workers {
		left = append(left, w.lifo)
		w.lifo = nil
		left = append(left, w.local.drain()...)
	}
	for t := s.inject.pop(); t != nil; t = s.inject.pop() {
		left = append(left, t)
	}
	finalise(s.rt, left)
	return nil
}

func (s *multiThread) numWorkers() int { return len(s.workers) }

func (s *multiThread) queueDepths() ([]int, int) {
	local := make([]int, len(s.workers))
	for i, w := range s.workers {
		local[i] = w.local.len()
	}
	return local, s.inject.len()
}

// idleSet is a stack of parked workers.
type idleSet struct {
	mu      sync.Mutex
	workers []*worker
	n       atomic.Int32
}

func (s *idleSet) push(w *worker) {
	s.mu.Lock()
	s.workers = append(s.workers, w)
	s.n.Add(1)
	s.mu.Unlock()
}

func (s *idleSet) pop() *worker {
	if s.n.Load() == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.workers)
	if n == 0 {
		return nil
	}
	w := s.workers[n-1]
	s.workers[n-1] = nil
	s.workers = s.workers[:n-1]
	s.n.Add(-1)
	return w
}

// remove takes w out of the set, reporting false if a notifier got to it
// first.
func (s *idleSet) remove(w *worker) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, v := range s.workers {
		if v == w {
			last := len(s.workers) - 1
			s.workers[i] = s.workers[last]
			s.workers[last] = nil
			s.workers = s.workers[:last]
			s.n.Add(-1)
			return true
		}
	}
	return false
}
