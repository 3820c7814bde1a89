// Package poller wraps the operating system readiness notification facility
// (epoll on Linux, kqueue on Darwin) behind a single callback-dispatching
// type, together with a wakeup channel that interrupts a blocked PollIO.
//
// Registrations are edge triggered: a callback fires when readiness changes,
// and the owner must drain the descriptor (until EAGAIN) before expecting
// another notification.
//
// On other platforms a portable [Poller] is provided that supports only
// timeouts and wakeups; Register reports [ErrUnsupported].
package poller

import (
	"errors"
)

// Events is a set of readiness conditions.
type Events uint32

const (
	// EventRead indicates the descriptor is readable.
	EventRead Events = 1 << iota
	// EventWrite indicates the descriptor is writable.
	EventWrite
	// EventError indicates an error condition on the descriptor.
	EventError
	// EventHangup indicates the peer closed its end.
	EventHangup
	// EventReadHangup indicates the peer shut down its write side.
	EventReadHangup
)

// maxFDs is the initial size of the descriptor table.
const maxFDs = 1024

// MaxFDLimit is the largest descriptor value accepted by Register.
const MaxFDLimit = 100000000

var (
	ErrFDOutOfRange        = errors.New("poller: fd out of range (max 100000000)")
	ErrFDAlreadyRegistered = errors.New("poller: fd already registered")
	ErrFDNotRegistered     = errors.New("poller: fd not registered")
	ErrPollerClosed        = errors.New("poller: poller closed")
	ErrUnsupported         = errors.New("poller: readiness registration unsupported on this platform")
)

// Callback receives the readiness observed for a registered descriptor. It
// runs on the goroutine calling PollIO and must not block.
type Callback func(Events)

// fdInfo is one slot of the descriptor table.
type fdInfo struct {
	callback Callback
	events   Events
	active   bool
}

// grow returns fds extended to hold fd.
func grow(fds []fdInfo, fd int) []fdInfo {
	if fd < len(fds) {
		return fds
	}
	size := fd*2 + 1
	if size > MaxFDLimit {
		size = MaxFDLimit + 1
	}
	out := make([]fdInfo, size)
	copy(out, fds)
	return out
}
