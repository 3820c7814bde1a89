//go:build !linux && !darwin

package poller

import (
	"sync"
	"sync/atomic"
	"time"
)

// Supported reports whether Register is available.
const Supported = false

// Poller is the portable fallback: it supports timed waits and wakeups but
// no descriptor registration.
type Poller struct {
	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
}

// New returns a fallback poller.
func New() (*Poller, error) {
	return &Poller{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}, nil
}

// Close marks the poller closed, releasing a blocked PollIO. It is
// idempotent.
func (p *Poller) Close() error {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.done)
	})
	return nil
}

// Register always fails with ErrUnsupported.
func (p *Poller) Register(fd int, events Events, cb Callback) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	return ErrUnsupported
}

// Unregister always fails with ErrFDNotRegistered.
func (p *Poller) Unregister(fd int) error { return ErrFDNotRegistered }

// Modify always fails with ErrFDNotRegistered.
func (p *Poller) Modify(fd int, events Events) error { return ErrFDNotRegistered }

// Wakeup interrupts a blocked PollIO.
func (p *Poller) Wakeup() error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

// PollIO blocks until woken or timeoutMs elapses (negative blocks
// indefinitely). It never dispatches descriptor events.
func (p *Poller) PollIO(timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, ErrPollerClosed
	}
	var timeout <-chan time.Time
	switch {
	case timeoutMs == 0:
		select {
		case <-p.wake:
		default:
		}
		return 0, nil
	case timeoutMs > 0:
		timer := time.NewTimer(time.Duration(timeoutMs) * time.Millisecond)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-p.wake:
	case <-p.done:
	case <-timeout:
	}
	return 0, nil
}
