package asyncrt

import (
	"fmt"
	"sync/atomic"
)

// TaskID identifies a task within a runtime. It packs the task's arena slot
// with the slot's generation, so identifiers are never reused while a waker
// might still hold them. The zero TaskID is never assigned.
type TaskID uint64

func newTaskID(gen, slot uint32) TaskID { return TaskID(uint64(gen)<<32 | uint64(slot)) }

func (id TaskID) slot() uint32       { return uint32(id) }
func (id TaskID) generation() uint32 { return uint32(id >> 32) }

// String formats the id as generation.slot.
func (id TaskID) String() string {
	return fmt.Sprintf("%d.%d", id.generation(), id.slot())
}

// TaskState is the externally observable lifecycle state of a task.
type TaskState uint8

const (
	// TaskIdle is a task that has not yet been scheduled.
	TaskIdle TaskState = iota
	// TaskScheduled is a task sitting in a run queue.
	TaskScheduled
	// TaskRunning is a task being polled.
	TaskRunning
	// TaskSuspended is a task that returned Pending and awaits a wake.
	TaskSuspended
	// TaskCompleted is a task that produced a result (or panicked).
	TaskCompleted
	// TaskCancelled is a task that was cancelled before completing.
	TaskCancelled
)

// String returns a human-readable representation of the state.
func (s TaskState) String() string {
	switch s {
	case TaskIdle:
		return "Idle"
	case TaskScheduled:
		return "Scheduled"
	case TaskRunning:
		return "Running"
	case TaskSuspended:
		return "Suspended"
	case TaskCompleted:
		return "Completed"
	case TaskCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Task state bits.
//
// A task is enqueued only by whoever moves stScheduled from 0 to 1 while
// stRunning is clear, or by the runner after a poll that observed
// stScheduled being set concurrently. Hence at most one queue holds it.
const (
	stScheduled uint32 = 1 << iota
	stRunning
	stComplete
	stCancelled
	stPolled
)

func stateOf(s uint32) TaskState {
	switch {
	case s&stComplete != 0 && s&stCancelled != 0:
		return TaskCancelled
	case s&stComplete != 0:
		return TaskCompleted
	case s&stRunning != 0:
		return TaskRunning
	case s&stScheduled != 0:
		return TaskScheduled
	case s&stPolled != 0:
		return TaskSuspended
	default:
		return TaskIdle
	}
}

// taskCoreOps is the type-erased half of a task: its future and the slot
// its result is delivered to.
type taskCoreOps interface {
	// poll steps the future, reporting true once a result (or panic) has
	// been recorded and the future released.
	poll(t *task, cx *Context) bool
	// cancel releases the future and records ErrCancelled.
	cancel(t *task)
	// publish makes the recorded outcome visible to join handles.
	publish()
}

type task struct {
	rt       *Runtime
	core     taskCoreOps
	name     string
	id       TaskID
	state    atomic.Uint32
	priority Priority
	// worker last polled t; multi-thread only
	worker atomic.Pointer[worker]
}

func (t *task) waker() Waker {
	return Waker{target: t.rt.tasks, id: t.id}
}

// wake schedules t unless it is already scheduled or finished.
func (t *task) wake() {
	for {
		s := t.state.Load()
		if s&(stComplete|stScheduled) != 0 {
			if s&stScheduled != 0 {
				t.rt.metrics.wakesCoalesced.Add(1)
			}
			return
		}
		if t.state.CompareAndSwap(s, s|stScheduled) {
			if s&stRunning == 0 {
				t.rt.sched.schedule(t)
			}
			return
		}
	}
}

// cancel marks t cancelled. An idle task is finalised on the calling
// goroutine; a queued or running task is finalised by its runner. It returns
// false if t had already finished or been cancelled.
func (t *task) cancel() bool {
	for {
		s := t.state.Load()
		if s&(stComplete|stCancelled) != 0 {
			return false
		}
		if s&(stRunning|stScheduled) == 0 {
			// idle: take the run lock ourselves
			if t.state.CompareAndSwap(s, s|stRunning|stCancelled) {
				t.finishCancelled()
				return true
			}
			continue
		}
		if t.state.CompareAndSwap(s, s|stCancelled) {
			return true
		}
	}
}

// run polls t once on the current goroutine, reporting whether t must be
// queued again. cx must already be bound to t.
func (t *task) run(cx *Context) (requeue bool) {
	var prev uint32
	for {
		prev = t.state.Load()
		if prev&stComplete != 0 || prev&stRunning != 0 {
			// stale queue entry; cannot happen while the invariants hold
			return false
		}
		if t.state.CompareAndSwap(prev, (prev&^stScheduled)|stRunning|stPolled) {
			break
		}
	}
	if prev&stCancelled != 0 {
		t.finishCancelled()
		return false
	}

	t.rt.metrics.polls.Add(1)
	start := t.rt.metrics.pollStart()
	done := t.core.poll(t, cx)
	t.rt.metrics.pollDone(start)
	if done {
		t.state.Store(stComplete | stPolled)
		t.core.publish()
		t.rt.taskFinished(t, false)
		return false
	}

	for {
		s := t.state.Load()
		if s&stCancelled != 0 {
			t.finishCancelled()
			return false
		}
		next := s &^ stRunning
		if cx.yielded {
			next |= stScheduled
		}
		if t.state.CompareAndSwap(s, next) {
			return next&stScheduled != 0
		}
	}
}

// finishCancelled must be called by the goroutine holding stRunning.
func (t *task) finishCancelled() {
	t.core.cancel(t)
	t.state.Store(stComplete | stCancelled | (t.state.Load() & stPolled))
	t.core.publish()
	t.rt.taskFinished(t, true)
}

// Priority is advisory task metadata.
type Priority uint8

const (
	PriorityAbsHigh Priority = iota
	PriorityHigh
	PriorityLow
	PriorityAbsLow
)

// String returns a human-readable representation of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityAbsHigh:
		return "AbsHigh"
	case PriorityHigh:
		return "High"
	case PriorityLow:
		return "Low"
	case PriorityAbsLow:
		return "AbsLow"
	default:
		return "Unknown"
	}
}
