package asyncrt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTask_WakesCoalesce(t *testing.T) {
	rt := newTestCurrentThread(t)
	p := newProbe()
	h, err := Spawn[int](rt, p)
	require.NoError(t, err)

	runPending(t, rt)
	require.Equal(t, int32(1), p.polls.Load())
	assert.Equal(t, TaskSuspended, h.State())

	p.release.Store(true)
	p.wake()
	p.wake()
	p.wake()
	assert.Equal(t, TaskScheduled, h.State())

	runPending(t, rt)
	assert.Equal(t, int32(2), p.polls.Load())
	assert.Equal(t, uint64(2), rt.Metrics().WakesCoalesced)

	v, err := h.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, int32(1), p.drops.Load())
}

func TestTask_WakeWhileRunningRequeuesOnce(t *testing.T) {
	rt := newTestCurrentThread(t)
	p := newProbe()
	p.onPoll = func(cx *Context) {
		if p.polls.Load() == 1 {
			cx.Waker().Wake()
			cx.Waker().Wake()
		}
	}
	p.release.Store(false)
	h, err := Spawn[int](rt, p)
	require.NoError(t, err)

	runPending(t, rt)
	// the wakes during the first poll produce exactly one more poll
	assert.Equal(t, int32(2), p.polls.Load())
	assert.Equal(t, TaskSuspended, h.State())
	h.Cancel()
}

func TestTask_CancelIdle(t *testing.T) {
	rt := newTestCurrentThread(t)
	p := newProbe()
	h, err := Spawn[int](rt, p)
	require.NoError(t, err)
	runPending(t, rt)
	require.Equal(t, int32(1), p.polls.Load())

	assert.True(t, h.Cancel())
	assert.False(t, h.Cancel())
	assert.True(t, h.IsFinished())
	assert.Equal(t, TaskCancelled, h.State())
	assert.Equal(t, int32(1), p.drops.Load())

	// the cancelled task's waker is stale
	p.wake()
	runPending(t, rt)
	assert.Equal(t, int32(1), p.polls.Load())
	assert.Equal(t, int32(1), p.drops.Load())

	_, err = h.Wait(waitCtx(t))
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 0, rt.Metrics().LiveTasks)
}

func TestTask_CancelQueued(t *testing.T) {
	rt := newTestCurrentThread(t)
	p := newProbe()
	h, err := Spawn[int](rt, p)
	require.NoError(t, err)
	require.Equal(t, TaskScheduled, h.State())

	assert.True(t, h.Cancel())
	assert.False(t, h.IsFinished(), "queued task is finalised by its runner")

	runPending(t, rt)
	assert.Equal(t, int32(0), p.polls.Load())
	assert.Equal(t, int32(1), p.drops.Load())
	_, err = h.Wait(waitCtx(t))
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestTask_CancelFromOwnPoll(t *testing.T) {
	rt := newTestCurrentThread(t)
	p := newProbe()
	var h *JoinHandle[int]
	p.onPoll = func(*Context) { h.Cancel() }
	h, err := Spawn[int](rt, p)
	require.NoError(t, err)

	runPending(t, rt)
	assert.Equal(t, int32(1), p.polls.Load())
	assert.Equal(t, int32(1), p.drops.Load())
	assert.Equal(t, TaskCancelled, h.State())
}

// A cancel that lands during the poll which completes the task does not
// discard the value.
func TestTask_CancelDuringFinalPoll(t *testing.T) {
	rt := newTestCurrentThread(t)
	p := newProbe()
	p.release.Store(true)
	var (
		h         *JoinHandle[int]
		cancelled bool
	)
	p.onPoll = func(*Context) { cancelled = h.Cancel() }
	h, err := Spawn[int](rt, p)
	require.NoError(t, err)

	runPending(t, rt)
	assert.True(t, cancelled)
	v, err := h.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, TaskCompleted, h.State())
	assert.False(t, h.Cancel())
}

func TestTask_CancelMultiThread(t *testing.T) {
	rt := newTestMultiThread(t)
	p := newProbe()
	h, err := Spawn[int](rt, p)
	require.NoError(t, err)
	<-p.polled

	h.Cancel()
	_, err = h.Wait(waitCtx(t))
	require.ErrorIs(t, err, ErrCancelled)
	polls := p.polls.Load()
	p.wake()
	assert.Equal(t, int32(1), p.drops.Load())
	assert.Equal(t, polls, p.polls.Load())
}

func TestTask_PanicBecomesError(t *testing.T) {
	rt := newTestMultiThread(t)
	boom := errors.New("boom")
	h, err := Spawn[int](rt, FutureFunc[int](func(*Context) Poll[int] {
		panic(boom)
	}), TaskName("panicky"))
	require.NoError(t, err)

	_, err = h.Wait(waitCtx(t))
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, boom, pe.Value)
	assert.ErrorIs(t, err, boom)
	assert.NotEmpty(t, pe.Stack)
	assert.Equal(t, TaskCompleted, h.State())
	assert.Equal(t, "panicky", h.Name())
	assert.Equal(t, uint64(1), rt.Metrics().PanickedTasks)
}

func TestTask_PanicDropsFuture(t *testing.T) {
	rt := newTestCurrentThread(t)
	p := newProbe()
	p.onPoll = func(*Context) { panic("nope") }
	h, err := Spawn[int](rt, p)
	require.NoError(t, err)
	runPending(t, rt)

	_, err = h.Wait(waitCtx(t))
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "nope", pe.Value)
	assert.Equal(t, int32(1), p.drops.Load())
}

func TestTaskState_String(t *testing.T) {
	for state, want := range map[TaskState]string{
		TaskIdle:       "Idle",
		TaskScheduled:  "Scheduled",
		TaskRunning:    "Running",
		TaskSuspended:  "Suspended",
		TaskCompleted:  "Completed",
		TaskCancelled:  "Cancelled",
		TaskState(200): "Unknown",
	} {
		assert.Equal(t, want, state.String())
	}
}

func TestTaskID_Packing(t *testing.T) {
	id := newTaskID(7, 42)
	assert.Equal(t, uint32(7), id.generation())
	assert.Equal(t, uint32(42), id.slot())
	assert.Equal(t, "7.42", id.String())
}
