package asyncrt

import (
	"time"

	"github.com/joeycumines/go-asyncrt/internal/wheel"
)

// SleepFuture completes once its deadline has passed. It never completes
// early; it may complete up to about a millisecond late, plus scheduling
// delay.
//
// The timer is registered with the polling runtime's driver on first poll,
// and cancelled by Drop.
type SleepFuture struct {
	deadline time.Time
	entry    wheel.Entry[Waker]
	// rt is the runtime the entry is registered with, nil if unregistered
	rt    *Runtime
	fired bool
}

// Sleep returns a future completing d from now.
func Sleep(d time.Duration) *SleepFuture {
	return SleepUntil(time.Now().Add(d))
}

// SleepUntil returns a future completing at deadline.
func SleepUntil(deadline time.Time) *SleepFuture {
	return &SleepFuture{deadline: deadline}
}

// Deadline returns the instant the future completes at.
func (s *SleepFuture) Deadline() time.Time { return s.deadline }

// IsElapsed reports whether the future has completed.
func (s *SleepFuture) IsElapsed() bool { return s.fired }

// Poll implements Future.
func (s *SleepFuture) Poll(cx *Context) Poll[struct{}] {
	if s.fired {
		return Ready(struct{}{})
	}
	if !time.Now().Before(s.deadline) {
		s.complete()
		return Ready(struct{}{})
	}
	if s.rt == nil {
		rt := cx.Runtime()
		if rt == nil {
			panic("asyncrt: timer polled outside a runtime")
		}
		if !rt.driver.timers.register(&s.entry, s.deadline, cx.Waker()) {
			s.fired = true
			return Ready(struct{}{})
		}
		s.rt = rt
		return Pending[struct{}]()
	}
	if !s.rt.driver.timers.refresh(&s.entry, cx.Waker()) {
		// unlinked by the wheel, so the deadline tick has been reached
		s.fired = true
		s.rt = nil
		return Ready(struct{}{})
	}
	return Pending[struct{}]()
}

func (s *SleepFuture) complete() {
	s.fired = true
	s.deregister()
}

func (s *SleepFuture) deregister() {
	if s.rt != nil {
		s.rt.driver.timers.cancel(&s.entry)
		s.rt = nil
	}
}

// Reset moves the deadline, re-arming a completed future.
func (s *SleepFuture) Reset(deadline time.Time) {
	s.deregister()
	s.deadline = deadline
	s.fired = false
}

// Drop implements Dropper, cancelling the timer. It is idempotent.
func (s *SleepFuture) Drop() { s.deregister() }

// Timeout races f against a timer. If d elapses first, f is dropped and
// the result is ErrTimeout.
func Timeout[T any](d time.Duration, f Future[T]) Future[Result[T]] {
	return &timeoutFuture[T]{fut: f, sleep: Sleep(d)}
}

// TimeoutAt is Timeout with an absolute deadline.
func TimeoutAt[T any](deadline time.Time, f Future[T]) Future[Result[T]] {
	return &timeoutFuture[T]{fut: f, sleep: SleepUntil(deadline)}
}

type timeoutFuture[T any] struct {
	fut   Future[T]
	sleep *SleepFuture
}

func (t *timeoutFuture[T]) Poll(cx *Context) Poll[Result[T]] {
	if v, ok := t.fut.Poll(cx).Value(); ok {
		t.Drop()
		return Ready(Ok(v))
	}
	if t.sleep.Poll(cx).IsReady() {
		t.Drop()
		return Ready(Err[T](ErrTimeout))
	}
	return Pending[Result[T]]()
}

func (t *timeoutFuture[T]) Drop() {
	if t.fut != nil {
		drop(t.fut)
		t.fut = nil
	}
	t.sleep.Drop()
}
