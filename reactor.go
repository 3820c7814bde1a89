package asyncrt

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/go-asyncrt/internal/poller"
)

// Interest is the set of readiness kinds a Registration watches.
type Interest uint8

const (
	InterestRead Interest = 1 << iota
	InterestWrite
)

func (i Interest) events() poller.Events {
	var ev poller.Events
	if i&InterestRead != 0 {
		ev |= poller.EventRead
	}
	if i&InterestWrite != 0 {
		ev |= poller.EventWrite
	}
	return ev
}

// mask is the readiness that satisfies a wait for i.
func (i Interest) mask() Readiness {
	var r Readiness
	if i&InterestRead != 0 {
		r |= ReadReady | ReadClosed | ErrorReady
	}
	if i&InterestWrite != 0 {
		r |= WriteReady | WriteClosed | ErrorReady
	}
	return r
}

// Readiness is a set of observed readiness conditions.
type Readiness uint32

const (
	ReadReady Readiness = 1 << iota
	WriteReady
	ReadClosed
	WriteClosed
	ErrorReady
)

// IsReadable reports whether a read would make progress.
func (r Readiness) IsReadable() bool { return r&(ReadReady|ReadClosed) != 0 }

// IsWritable reports whether a write would make progress.
func (r Readiness) IsWritable() bool { return r&(WriteReady|WriteClosed) != 0 }

// IsError reports an error condition on the descriptor.
func (r Readiness) IsError() bool { return r&ErrorReady != 0 }

func readinessOf(ev poller.Events) Readiness {
	var r Readiness
	if ev&poller.EventRead != 0 {
		r |= ReadReady
	}
	if ev&poller.EventWrite != 0 {
		r |= WriteReady
	}
	if ev&poller.EventReadHangup != 0 {
		r |= ReadClosed
	}
	if ev&poller.EventHangup != 0 {
		r |= ReadClosed | WriteClosed
	}
	if ev&poller.EventError != 0 {
		r |= ErrorReady
	}
	return r
}

// ReadyEvent is readiness observed by PollReady. Pass it back to
// ClearReadiness once the descriptor reports it would block.
type ReadyEvent struct {
	Ready Readiness
	tick  uint32
}

// Registration is a descriptor registered with a runtime's reactor.
//
// Readiness is edge triggered: it is cached until cleared with
// ClearReadiness, which a caller does after an operation fails with EAGAIN.
// Each notification bumps a tick, so clearing a stale event never discards
// readiness that arrived later.
type Registration struct {
	rt       *Runtime
	fd       int
	interest Interest
	// readiness packs tick<<32 | Readiness
	readiness atomic.Uint64

	mu         sync.Mutex
	readWaker  Waker
	writeWaker Waker
	closed     bool
}

// Register adds fd to the reactor. The descriptor must be non-blocking and
// stays owned by the caller, who must Close the registration before closing
// fd.
func (rt *Runtime) Register(fd int, interest Interest) (*Registration, error) {
	if !rt.state.CanAcceptWork() {
		return nil, ErrRuntimeShutdown
	}
	r := &Registration{rt: rt, fd: fd, interest: interest}
	if err := rt.driver.poller.Register(fd, interest.events(), r.notify); err != nil {
		return nil, err
	}
	rt.driver.track(r)
	return r, nil
}

// Fd returns the registered descriptor.
func (r *Registration) Fd() int { return r.fd }

// notify runs on the driver when the poller reports readiness.
func (r *Registration) notify(ev poller.Events) {
	ready := readinessOf(ev)
	for {
		cur := r.readiness.Load()
		next := (cur>>32+1)<<32 | uint64(Readiness(cur)|ready)
		if r.readiness.CompareAndSwap(cur, next) {
			break
		}
	}
	var wake [2]Waker
	r.mu.Lock()
	if ready&InterestRead.mask() != 0 {
		wake[0], r.readWaker = r.readWaker, Waker{}
	}
	if ready&InterestWrite.mask() != 0 {
		wake[1], r.writeWaker = r.writeWaker, Waker{}
	}
	r.mu.Unlock()
	wake[0].Wake()
	wake[1].Wake()
}

// PollReady reports readiness matching interest, registering cx's waker
// otherwise. It fails with ErrRegistrationClosed once closed.
func (r *Registration) PollReady(cx *Context, interest Interest) Poll[Result[ReadyEvent]] {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return Ready(Err[ReadyEvent](ErrRegistrationClosed))
	}
	// notify stores readiness before taking mu, so either it is visible
	// here or notify will see the stored waker
	if ev, ok := r.ready(interest); ok {
		return Ready(Ok(ev))
	}
	w := cx.Waker()
	if interest&InterestRead != 0 && !r.readWaker.WillWake(w) {
		r.readWaker = w
	}
	if interest&InterestWrite != 0 && !r.writeWaker.WillWake(w) {
		r.writeWaker = w
	}
	return Pending[Result[ReadyEvent]]()
}

// PollReadReady is PollReady(cx, InterestRead).
func (r *Registration) PollReadReady(cx *Context) Poll[Result[ReadyEvent]] {
	return r.PollReady(cx, InterestRead)
}

// PollWriteReady is PollReady(cx, InterestWrite).
func (r *Registration) PollWriteReady(cx *Context) Poll[Result[ReadyEvent]] {
	return r.PollReady(cx, InterestWrite)
}

func (r *Registration) ready(interest Interest) (ReadyEvent, bool) {
	cur := r.readiness.Load()
	if got := Readiness(cur) & interest.mask(); got != 0 {
		return ReadyEvent{Ready: got, tick: uint32(cur >> 32)}, true
	}
	return ReadyEvent{}, false
}

// ClearReadiness forgets the readiness in ev, unless a newer notification
// has arrived since ev was observed. Closed conditions are never cleared.
func (r *Registration) ClearReadiness(ev ReadyEvent) {
	clearMask := uint64(ev.Ready &^ (ReadClosed | WriteClosed))
	for {
		cur := r.readiness.Load()
		if uint32(cur>>32) != ev.tick {
			return
		}
		if r.readiness.CompareAndSwap(cur, cur&^clearMask) {
			return
		}
	}
}

// TryIO runs fn once the registration is ready for interest. If fn fails
// because the descriptor would block, readiness is cleared and the wait
// resumes, so TryIO tolerates spurious notifications.
func (r *Registration) TryIO(cx *Context, interest Interest, fn func() (int, error)) Poll[Result[int]] {
	for {
		p := r.PollReady(cx, interest)
		res, ok := p.Value()
		if !ok {
			return Pending[Result[int]]()
		}
		if res.Err != nil {
			return Ready(Err[int](res.Err))
		}
		n, err := fn()
		if isWouldBlock(err) {
			r.ClearReadiness(res.Value)
			continue
		}
		return Ready(Result[int]{Value: n, Err: err})
	}
}

// SetInterest changes the watched readiness kinds.
func (r *Registration) SetInterest(interest Interest) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRegistrationClosed
	}
	r.interest = interest
	r.mu.Unlock()
	return r.rt.driver.poller.Modify(r.fd, interest.events())
}

// Close deregisters the descriptor and wakes any waiters, which then see
// ErrRegistrationClosed. It does not close the descriptor. Close is
// idempotent.
func (r *Registration) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	rw, ww := r.readWaker, r.writeWaker
	r.readWaker, r.writeWaker = Waker{}, Waker{}
	r.mu.Unlock()

	err := r.rt.driver.poller.Unregister(r.fd)
	if errors.Is(err, poller.ErrPollerClosed) || errors.Is(err, poller.ErrFDNotRegistered) {
		err = nil
	}
	r.rt.driver.untrack(r)
	rw.Wake()
	ww.Wake()
	return err
}
