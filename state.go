package asyncrt

import (
	"sync/atomic"
)

// RuntimeState is the lifecycle state of a Runtime.
//
//	StateRunning → StateShuttingDown   [Shutdown()]
//	StateShuttingDown → StateTerminated [shutdown complete]
//	StateTerminated → (terminal)
type RuntimeState uint32

const (
	// StateRunning indicates the runtime accepts and executes tasks.
	StateRunning RuntimeState = iota
	// StateShuttingDown indicates Shutdown has begun; new work is rejected.
	StateShuttingDown
	// StateTerminated indicates shutdown has completed.
	StateTerminated
)

// String returns a human-readable representation of the state.
func (s RuntimeState) String() string {
	switch s {
	case StateRunning:
		return "Running"
	case StateShuttingDown:
		return "ShuttingDown"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

const sizeOfCacheLine = 128

// runtimeState is the runtime's lifecycle flag, padded against false
// sharing with the hot counters next to it.
type runtimeState struct { // betteralign:ignore
	_ [sizeOfCacheLine]byte //nolint:unused
	v atomic.Uint32
	_ [sizeOfCacheLine - 4]byte //nolint:unused
}

func (s *runtimeState) Load() RuntimeState { return RuntimeState(s.v.Load()) }

func (s *runtimeState) Store(state RuntimeState) { s.v.Store(uint32(state)) }

// TryTransition moves from one state to another, returning false if the
// current state is not from.
func (s *runtimeState) TryTransition(from, to RuntimeState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}

// CanAcceptWork reports whether new tasks may be submitted.
func (s *runtimeState) CanAcceptWork() bool {
	return s.Load() == StateRunning
}
