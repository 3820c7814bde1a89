package asyncrt

import (
	"context"
	"sync"
)

// taskCore owns a spawned future and the slot its outcome is written to.
// The outcome fields are written only by the goroutine holding the task's
// running bit, and read only after publish.
type taskCore[T any] struct {
	fut   Future[T]
	done  chan struct{}
	value T
	err   error

	mu       sync.Mutex
	waker    Waker
	finished bool
}

func newTaskCore[T any](f Future[T]) *taskCore[T] {
	return &taskCore[T]{fut: f, done: make(chan struct{})}
}

func (c *taskCore[T]) poll(t *task, cx *Context) (done bool) {
	defer func() {
		if r := recover(); r != nil {
			pe := newPanicError(r)
			c.err = pe
			t.rt.metrics.panicked.Add(1)
			t.rt.log.taskPanicked(t, r, pe.Stack)
			c.release()
			done = true
		}
	}()
	v, ok := c.fut.Poll(cx).Value()
	if !ok {
		return false
	}
	c.value = v
	c.release()
	return true
}

func (c *taskCore[T]) cancel(*task) {
	c.err = ErrCancelled
	c.release()
}

func (c *taskCore[T]) publish() {
	c.mu.Lock()
	c.finished = true
	w := c.waker
	c.waker = Waker{}
	c.mu.Unlock()
	close(c.done)
	w.Wake()
}

// release drops the future. A panicking Drop is discarded.
func (c *taskCore[T]) release() {
	f := c.fut
	c.fut = nil
	if f == nil {
		return
	}
	defer func() { _ = recover() }()
	drop(f)
}

func (c *taskCore[T]) outcome() Result[T] {
	return Result[T]{Value: c.value, Err: c.err}
}

// blockingCore runs a function on the blocking pool in place of a future.
type blockingCore[T any] struct {
	*taskCore[T]
	fn func() (T, error)
}

func (c *blockingCore[T]) poll(t *task, _ *Context) (done bool) {
	fn := c.fn
	c.fn = nil
	defer func() {
		if r := recover(); r != nil {
			pe := newPanicError(r)
			c.err = pe
			t.rt.metrics.panicked.Add(1)
			t.rt.log.taskPanicked(t, r, pe.Stack)
			done = true
		}
	}()
	c.value, c.err = fn()
	return true
}

func (c *blockingCore[T]) cancel(*task) {
	c.fn = nil
	c.err = ErrCancelled
}

// JoinHandle retrieves the outcome of a spawned task.
//
// A JoinHandle is itself a Future and may be awaited by another task, or
// waited on from ordinary goroutines with Wait or Done. Only the most
// recently registered waker is woken on completion. Discarding a JoinHandle
// detaches the task, which keeps running; use Cancel to stop it.
type JoinHandle[T any] struct {
	t    *task
	core *taskCore[T]
}

// Poll implements Future. The result's Err is a *PanicError if the task
// panicked, or ErrCancelled if it was cancelled.
func (h *JoinHandle[T]) Poll(cx *Context) Poll[Result[T]] {
	c := h.core
	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		return Ready(c.outcome())
	}
	if w := cx.Waker(); !c.waker.WillWake(w) {
		c.waker = w
	}
	c.mu.Unlock()
	return Pending[Result[T]]()
}

// Wait blocks until the task finishes or ctx is done. Inside a task of the
// same runtime, blocking would stall the goroutine the runtime polls on, so
// Wait on an unfinished task returns ErrBlockOnReentrant there; await the
// handle instead.
func (h *JoinHandle[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-h.core.done:
		return h.core.outcome().Get()
	default:
	}
	if h.t.rt.sched.onRuntimeGoroutine() {
		var zero T
		return zero, ErrBlockOnReentrant
	}
	select {
	case <-h.core.done:
		return h.core.outcome().Get()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done returns a channel closed once the outcome is available.
func (h *JoinHandle[T]) Done() <-chan struct{} { return h.core.done }

// Cancel requests cancellation. The task is not polled again, and its
// future is dropped by whichever goroutine finalises it. It returns false if
// the task had already finished or been cancelled. A blocking job that has
// already started runs to completion regardless.
//
// A poll already in progress is not interrupted. If that poll completes the
// task, Cancel still returns true but the outcome is the task's value, not
// ErrCancelled.
func (h *JoinHandle[T]) Cancel() bool { return h.t.cancel() }

// ID returns the task's id.
func (h *JoinHandle[T]) ID() TaskID { return h.t.id }

// Name returns the name given with [TaskName].
func (h *JoinHandle[T]) Name() string { return h.t.name }

// State returns a snapshot of the task's state.
func (h *JoinHandle[T]) State() TaskState { return stateOf(h.t.state.Load()) }

// IsFinished reports whether the outcome is available.
func (h *JoinHandle[T]) IsFinished() bool {
	select {
	case <-h.core.done:
		return true
	default:
		return false
	}
}
