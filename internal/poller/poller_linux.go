//go:build linux

package poller

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Supported reports whether Register is available.
const Supported = true

// Poller multiplexes descriptor readiness using epoll.
//
// PollIO must only be called from one goroutine at a time. Register, Modify,
// Unregister and Wakeup are safe for concurrent use.
type Poller struct { // betteralign:ignore
	eventBuf    [256]unix.EpollEvent
	fds         []fdInfo
	fdMu        sync.RWMutex
	epfd        int
	wakeFd      int
	wakeBuf     [8]byte
	wakePending atomic.Bool
	closed      atomic.Bool
}

// New creates an epoll instance with an eventfd registered for wakeups.
func New() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, err
	}
	p := &Poller{
		epfd:   epfd,
		wakeFd: wakeFd,
		fds:    make([]fdInfo, maxFDs),
	}
	// level triggered: drained fully on every notification
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, &ev); err != nil {
		_ = unix.Close(wakeFd)
		_ = unix.Close(epfd)
		return nil, err
	}
	return p, nil
}

// Close releases the epoll instance and the wakeup descriptor. It is
// idempotent.
func (p *Poller) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	err := unix.Close(p.epfd)
	if err2 := unix.Close(p.wakeFd); err == nil {
		err = err2
	}
	return err
}

// Register starts edge-triggered monitoring of fd.
func (p *Poller) Register(fd int, events Events, cb Callback) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	if fd < 0 || fd >= MaxFDLimit || fd == p.wakeFd {
		return ErrFDOutOfRange
	}

	p.fdMu.Lock()
	p.fds = grow(p.fds, fd)
	if p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDAlreadyRegistered
	}
	p.fds[fd] = fdInfo{callback: cb, events: events, active: true}
	p.fdMu.Unlock()

	ev := unix.EpollEvent{Events: eventsToEpoll(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		p.fdMu.Lock()
		p.fds[fd] = fdInfo{}
		p.fdMu.Unlock()
		return err
	}
	return nil
}

// Unregister stops monitoring fd. A callback copied by an in-flight PollIO
// may still run once after Unregister returns.
func (p *Poller) Unregister(fd int) error {
	if fd < 0 {
		return ErrFDOutOfRange
	}
	p.fdMu.Lock()
	if fd >= len(p.fds) || !p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	p.fds[fd] = fdInfo{}
	p.fdMu.Unlock()

	if p.closed.Load() {
		return nil
	}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Modify replaces the monitored events for fd. With edge triggering this
// also re-arms the registration, so current readiness is reported again.
func (p *Poller) Modify(fd int, events Events) error {
	if fd < 0 {
		return ErrFDOutOfRange
	}
	p.fdMu.Lock()
	if fd >= len(p.fds) || !p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	p.fds[fd].events = events
	p.fdMu.Unlock()

	ev := unix.EpollEvent{Events: eventsToEpoll(events), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
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
	var one uint64 = 1
	_, err := unix.Write(p.wakeFd, (*[8]byte)(unsafe.Pointer(&one))[:])
	if err == unix.EAGAIN {
		// counter saturated, a wakeup is already observable
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
	n, err := unix.EpollWait(p.epfd, p.eventBuf[:], timeoutMs)
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
		fd := int(p.eventBuf[i].Fd)
		if fd == p.wakeFd {
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
			info.callback(epollToEvents(p.eventBuf[i].Events))
			dispatched++
		}
	}
	return dispatched
}

func (p *Poller) drainWakeup() {
	p.wakePending.Store(false)
	for {
		if _, err := unix.Read(p.wakeFd, p.wakeBuf[:]); err != nil {
			return
		}
	}
}

func eventsToEpoll(events Events) uint32 {
	flags := uint32(unix.EPOLLET) | unix.EPOLLRDHUP
	if events&EventRead != 0 {
		flags |= unix.EPOLLIN
	}
	if events&EventWrite != 0 {
		flags |= unix.EPOLLOUT
	}
	return flags
}

func epollToEvents(flags uint32) Events {
	var events Events
	if flags&unix.EPOLLIN != 0 {
		events |= EventRead
	}
	if flags&unix.EPOLLOUT != 0 {
		events |= EventWrite
	}
	if flags&unix.EPOLLERR != 0 {
		events |= EventError
	}
	if flags&unix.EPOLLHUP != 0 {
		events |= EventHangup
	}
	if flags&unix.EPOLLRDHUP != 0 {
		events |= EventReadHangup
	}
	return events
}
