//go:build darwin

package poller

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Supported reports whether Register is available.
const Supported = true

// Poller multiplexes descriptor readiness using kqueue. Read and write
// filters are registered with EV_CLEAR, giving edge-triggered semantics.
//
// PollIO must only be called from one goroutine at a time. Register, Modify,
// Unregister and Wakeup are safe for concurrent use.
type Poller struct { // betteralign:ignore
	eventBuf    [256]unix.Kevent_t
	fds         []fdInfo
	fdMu        sync.RWMutex
	kq          int
	wakeRead    int
	wakeWrite   int
	wakeBuf     [64]byte
	wakePending atomic.Bool
	closed      atomic.Bool
}

// New creates a kqueue with a self-pipe registered for wakeups.
func New() (*Poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(kq)

	var pipe [2]int
	if err := unix.Pipe(pipe[:]); err != nil {
		_ = unix.Close(kq)
		return nil, err
	}
	cleanup := func() {
		_ = unix.Close(pipe[0])
		_ = unix.Close(pipe[1])
		_ = unix.Close(kq)
	}
	for _, fd := range pipe {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			cleanup()
			return nil, err
		}
	}

	p := &Poller{
		kq:        kq,
		wakeRead:  pipe[0],
		wakeWrite: pipe[1],
		fds:       make([]fdInfo, maxFDs),
	}
	var kev unix.Kevent_t
	unix.SetKevent(&kev, p.wakeRead, unix.EVFILT_READ, unix.EV_ADD|unix.EV_ENABLE)
	if _, err := unix.Kevent(kq, []unix.Kevent_t{kev}, nil, nil); err != nil {
		cleanup()
		return nil, err
	}
	return p, nil
}

// Close releases the kqueue and the wakeup pipe. It is idempotent.
func (p *Poller) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	err := unix.Close(p.kq)
	_ = unix.Close(p.wakeRead)
	_ = unix.Close(p.wakeWrite)
	return err
}

// Register starts edge-triggered monitoring of fd.
func (p *Poller) Register(fd int, events Events, cb Callback) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	if fd < 0 || fd >= MaxFDLimit || fd == p.wakeRead || fd == p.wakeWrite {
		return ErrFDOutOfRange
	}

	p.fdMu.Lock()
	defer p.fdMu.Unlock()
	p.fds = grow(p.fds, fd)
	if p.fds[fd].active {
		return ErrFDAlreadyRegistered
	}
	p.fds[fd] = fdInfo{callback: cb, events: events, active: true}

	// kevent under the lock to order against a concurrent Unregister
	if kevents := toKevents(fd, events, unix.EV_ADD|unix.EV_ENABLE|unix.EV_CLEAR); len(kevents) > 0 {
		if _, err := unix.Kevent(p.kq, kevents, nil, nil); err != nil {
			p.fds[fd] = fdInfo{}
			return err
		}
	}
	return nil
}

// Unregister stops monitoring fd.
func (p *Poller) Unregister(fd int) error {
	if fd < 0 {
		return ErrFDOutOfRange
	}
	p.fdMu.Lock()
	defer p.fdMu.Unlock()
	if fd >= len(p.fds) || !p.fds[fd].active {
		return ErrFDNotRegistered
	}
	if kevents := toKevents(fd, p.fds[fd].events, unix.EV_DELETE); len(kevents) > 0 && !p.closed.Load() {
		_, _ = unix.Kevent(p.kq, kevents, nil, nil)
	}
	p.fds[fd] = fdInfo{}
	return nil
}

// Modify replaces the monitored events for fd. Filters that stay enabled
// are re-added, which re-arms them.
func (p *Poller) Modify(fd int, events Events) error {
	if fd < 0 {
		return ErrFDOutOfRange
	}
	p.fdMu.Lock()
	defer p.fdMu.Unlock()
	if fd >= len(p.fds) || !p.fds[fd].active {
		return ErrFDNotRegistered
	}
	old := p.fds[fd].events
	p.fds[fd].events = events

	if removed := old &^ events; removed != 0 {
		if kevents := toKevents(fd, removed, unix.EV_DELETE); len(kevents) > 0 {
			_, _ = unix.Kevent(p.kq, kevents, nil, nil)
		}
	}
	if kevents := toKevents(fd, events, unix.EV_ADD|unix.EV_ENABLE|unix.EV_CLEAR); len(kevents) > 0 {
		if _, err := unix.Kevent(p.kq, kevents, nil, nil); err != nil {
			return err
		}
	}
	return nil
}

// Wakeup interrupts a blocked PollIO. Concurrent calls between two polls
// coalesce into a single write.
func (p *Poller) Wakeup() error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	if p.wakePending.Swap(true) {
		return nil
	}
	_, err := unix.Write(p.wakeWrite, []byte{1})
	if err == unix.EAGAIN {
		err = nil
	}
	return err
}

// PollIO waits up to timeoutMs milliseconds (negative blocks indefinitely)
// and dispatches callbacks for ready descriptors. It returns the number of
// descriptor events dispatched, excluding wakeups.
func (p *Poller) PollIO(timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, ErrPollerClosed
	}
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMs) * 1e6)
		ts = &t
	}
	n, err := unix.Kevent(p.kq, nil, p.eventBuf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	return p.dispatch(n), nil
}

func (p *Poller) dispatch(n int) int {
	var dispatched int
	for i := 0; i < n; i++ {
		kev := &p.eventBuf[i]
		fd := int(kev.Ident)
		if fd == p.wakeRead {
			p.drainWakeup()
			continue
		}

		p.fdMu.RLock()
		var info fdInfo
		if fd >= 0 && fd < len(p.fds) {
			info = p.fds[fd]
		}
		p.fdMu.RUnlock()

		if info.active && info.callback != nil {
			info.callback(keventToEvents(kev))
			dispatched++
		}
	}
	return dispatched
}

func (p *Poller) drainWakeup() {
	p.wakePending.Store(false)
	for {
		if _, err := unix.Read(p.wakeRead, p.wakeBuf[:]); err != nil {
			return
		}
	}
}

func toKevents(fd int, events Events, flags int) []unix.Kevent_t {
	var kevents []unix.Kevent_t
	if events&EventRead != 0 {
		var kev unix.Kevent_t
		unix.SetKevent(&kev, fd, unix.EVFILT_READ, flags)
		kevents = append(kevents, kev)
	}
	if events&EventWrite != 0 {
		var kev unix.Kevent_t
		unix.SetKevent(&kev, fd, unix.EVFILT_WRITE, flags)
		kevents = append(kevents, kev)
	}
	return kevents
}

func keventToEvents(kev *unix.Kevent_t) Events {
	var events Events
	switch kev.Filter {
	case unix.EVFILT_READ:
		events |= EventRead
		if kev.Flags&unix.EV_EOF != 0 {
			events |= EventReadHangup
		}
	case unix.EVFILT_WRITE:
		events |= EventWrite
		if kev.Flags&unix.EV_EOF != 0 {
			events |= EventHangup
		}
	}
	if kev.Flags&unix.EV_ERROR != 0 {
		events |= EventError
	}
	return events
}
