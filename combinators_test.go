package asyncrt

import (
	"strconv"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestYieldNow(t *testing.T) {
	w := &wakeCounter{}
	cx := manualContext(w.waker())
	f := YieldNow()
	assert.True(t, f.Poll(cx).IsPending())
	assert.Equal(t, 1, w.count(), "outside a task yielding wakes the caller")
	assert.True(t, f.Poll(manualContext(w.waker())).IsReady())
}

func TestMapThen(t *testing.T) {
	rt := newTestCurrentThread(t)
	f := Then(Map(ReadyFuture(4), strconv.Itoa), func(s string) Future[string] {
		return Map[struct{}, string](Sleep(time.Millisecond), func(struct{}) string { return s + "!" })
	})
	v, err := BlockOn(rt, f)
	require.NoError(t, err)
	assert.Equal(t, "4!", v)
}

func TestThen_DropsBothStages(t *testing.T) {
	first, second := newProbe(), newProbe()
	first.release.Store(true)
	f := Then[int, int](first, func(int) Future[int] { return second })
	assert.True(t, f.Poll(manualContext(NoopWaker())).IsPending())
	assert.Equal(t, int32(1), first.drops.Load())
	drop(f)
	drop(f)
	assert.Equal(t, int32(1), second.drops.Load())
}

func TestJoinAll(t *testing.T) {
	rt := newTestMultiThread(t)
	var fs []Future[int]
	for i := range 5 {
		fs = append(fs, Map[struct{}, int](Sleep(time.Duration(5-i)*time.Millisecond), func(struct{}) int { return i }))
	}
	got, err := BlockOn(rt, JoinAll(fs...))
	require.NoError(t, err)
	if diff := cmp.Diff([]int{0, 1, 2, 3, 4}, got); diff != "" {
		t.Errorf("outputs out of order (-want +got):\n%s", diff)
	}

	empty, err := BlockOn(rt, JoinAll[int]())
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestJoinAll_DropReleasesPending(t *testing.T) {
	a, b := newProbe(), newProbe()
	a.release.Store(true)
	f := JoinAll[int](a, b)
	assert.True(t, f.Poll(manualContext(NoopWaker())).IsPending())
	drop(f)
	assert.Equal(t, int32(1), a.drops.Load())
	assert.Equal(t, int32(1), b.drops.Load())
}

func TestRace_DropsLosers(t *testing.T) {
	rt := newTestCurrentThread(t)
	slow := newProbe()
	v, err := BlockOn(rt, Race[int](slow, Map[struct{}, int](Sleep(2*time.Millisecond), func(struct{}) int { return 9 })))
	require.NoError(t, err)
	assert.Equal(t, 9, v)
	assert.Equal(t, int32(1), slow.drops.Load())
}

func TestReadyFuture(t *testing.T) {
	v, ok := ReadyFuture("x").Poll(manualContext(NoopWaker())).Value()
	assert.True(t, ok)
	assert.Equal(t, "x", v)
}
