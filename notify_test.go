package asyncrt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotify_StoredPermit(t *testing.T) {
	var n Notify
	n.NotifyOne()
	n.NotifyOne()
	f := n.Notified()
	assert.True(t, f.Poll(manualContext(NoopWaker())).IsReady())
	// only one permit is stored however many NotifyOne calls there were
	assert.True(t, n.Notified().Poll(manualContext(NoopWaker())).IsPending())
}

func TestNotify_NotifyOneFIFO(t *testing.T) {
	var n Notify
	a, b := n.Notified(), n.Notified()
	wa, wb := &wakeCounter{}, &wakeCounter{}
	require.True(t, a.Poll(manualContext(wa.waker())).IsPending())
	require.True(t, b.Poll(manualContext(wb.waker())).IsPending())

	n.NotifyOne()
	assert.Equal(t, 1, wa.count())
	assert.Zero(t, wb.count())
	assert.True(t, a.Poll(manualContext(wa.waker())).IsReady())
	assert.True(t, b.Poll(manualContext(wb.waker())).IsPending())
}

func TestNotify_NotifyAllDoesNotStore(t *testing.T) {
	var n Notify
	futs := []*NotifiedFuture{n.Notified(), n.Notified(), n.Notified()}
	for _, f := range futs {
		require.True(t, f.Poll(manualContext(NoopWaker())).IsPending())
	}
	n.NotifyAll()
	for _, f := range futs {
		assert.True(t, f.Poll(manualContext(NoopWaker())).IsReady())
	}
	assert.True(t, n.Notified().Poll(manualContext(NoopWaker())).IsPending())
}

func TestNotify_DroppedGrantForwards(t *testing.T) {
	var n Notify
	a, b := n.Notified(), n.Notified()
	wb := &wakeCounter{}
	require.True(t, a.Poll(manualContext(NoopWaker())).IsPending())
	require.True(t, b.Poll(manualContext(wb.waker())).IsPending())
	n.NotifyOne()
	a.Drop()
	assert.Equal(t, 1, wb.count())
	assert.True(t, b.Poll(manualContext(wb.waker())).IsReady())
}

func TestNotify_Runtime(t *testing.T) {
	rt := newTestMultiThread(t)
	var n Notify
	h, err := Spawn[string](rt, Map[struct{}, string](n.Notified(), func(struct{}) string {
		return "notified"
	}))
	require.NoError(t, err)
	n.NotifyOne()
	v, err := h.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, "notified", v)
}

func TestBarrier_ReleasesGroupAndResets(t *testing.T) {
	b := NewBarrier(3)
	var wakes [2]wakeCounter
	f1, f2 := b.Wait(), b.Wait()
	require.True(t, f1.Poll(manualContext(wakes[0].waker())).IsPending())
	require.True(t, f2.Poll(manualContext(wakes[1].waker())).IsPending())

	r, ok := b.Wait().Poll(manualContext(NoopWaker())).Value()
	require.True(t, ok)
	assert.True(t, r.IsLeader)
	assert.Equal(t, 1, wakes[0].count())
	assert.Equal(t, 1, wakes[1].count())

	r, ok = f1.Poll(manualContext(NoopWaker())).Value()
	require.True(t, ok)
	assert.False(t, r.IsLeader)
	r, ok = f2.Poll(manualContext(NoopWaker())).Value()
	require.True(t, ok)
	assert.False(t, r.IsLeader)

	// next generation
	assert.True(t, b.Wait().Poll(manualContext(NoopWaker())).IsPending())
}

func TestBarrier_ZeroActsAsOne(t *testing.T) {
	r, ok := NewBarrier(0).Wait().Poll(manualContext(NoopWaker())).Value()
	require.True(t, ok)
	assert.True(t, r.IsLeader)
}

func TestBarrier_DropWithdraws(t *testing.T) {
	b := NewBarrier(2)
	f := b.Wait()
	require.True(t, f.Poll(manualContext(NoopWaker())).IsPending())
	f.Drop()
	assert.True(t, b.Wait().Poll(manualContext(NoopWaker())).IsPending())
}

func TestBarrier_Runtime(t *testing.T) {
	rt := newTestMultiThread(t)
	const n = 16
	b := NewBarrier(n)
	handles := make([]*JoinHandle[BarrierWaitResult], n)
	for i := range handles {
		h, err := Spawn[BarrierWaitResult](rt, b.Wait())
		require.NoError(t, err)
		handles[i] = h
	}
	var leaders int
	for _, h := range handles {
		r, err := h.Wait(waitCtx(t))
		require.NoError(t, err)
		if r.IsLeader {
			leaders++
		}
	}
	assert.Equal(t, 1, leaders)
}
