package asyncrt

import (
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// The producer of a capacity-one channel suspends on its second send until
// the consumer makes room.
func TestChannel_CapacityOneBackpressure(t *testing.T) {
	tx, rx := NewChannel[int](1)
	w := &wakeCounter{}
	cx := manualContext(w.waker())

	first := tx.Send(1)
	err, ok := first.Poll(cx).Value()
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, 0, tx.Capacity())

	second := tx.Send(2)
	require.True(t, second.Poll(cx).IsPending())
	require.True(t, second.Poll(cx).IsPending())
	assert.Zero(t, w.count())

	v, err := rx.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, w.count(), "receiving wakes the suspended sender")
	assert.Equal(t, 1, rx.Len(), "the waiting value moves into the freed slot")

	err, ok = second.Poll(cx).Value()
	require.True(t, ok)
	require.NoError(t, err)
	v, err = rx.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	_, err = rx.TryRecv()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestChannel_CapacityOneOrdering(t *testing.T) {
	rt := newTestCurrentThread(t)
	tx, rx := NewChannel[int](1)
	var events []string

	var (
		i       int
		send    *SendFuture[int]
		blocked bool
	)
	_, err := Spawn[struct{}](rt, FutureFunc[struct{}](func(cx *Context) Poll[struct{}] {
		for i < 3 {
			if send == nil {
				send = tx.Send(i)
			}
			p := send.Poll(cx)
			if p.IsPending() {
				if !blocked {
					events = append(events, fmt.Sprintf("blocked %d", i))
					blocked = true
				}
				return Pending[struct{}]()
			}
			events = append(events, fmt.Sprintf("sent %d", i))
			send, blocked = nil, false
			i++
		}
		tx.Close()
		return Ready(struct{}{})
	}))
	require.NoError(t, err)

	_, err = BlockOn[struct{}](rt, FutureFunc[struct{}](func(cx *Context) Poll[struct{}] {
		for {
			r, ok := rx.PollRecv(cx).Value()
			if !ok {
				return Pending[struct{}]()
			}
			if r.Err != nil {
				events = append(events, "closed")
				return Ready(struct{}{})
			}
			events = append(events, fmt.Sprintf("recv %d", r.Value))
		}
	}))
	require.NoError(t, err)

	want := []string{
		"sent 0",
		"blocked 1",
		"recv 0",
		"recv 1",
		"sent 1",
		"sent 2",
		"recv 2",
		"closed",
	}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("unexpected event order (-want +got):\n%s", diff)
	}
}

func TestChannel_TrySend(t *testing.T) {
	tx, rx := NewChannel[string](1)
	assert.Equal(t, 1, tx.MaxCapacity())
	require.NoError(t, tx.TrySend("a"))
	err := tx.TrySend("b")
	var se *SendError[string]
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, ErrFull)
	assert.Equal(t, "b", se.Value)

	rx.Close()
	assert.True(t, tx.IsClosed())
	err = tx.TrySend("c")
	assert.ErrorIs(t, err, ErrClosed)

	v, err := rx.TryRecv()
	require.NoError(t, err, "buffered values survive receiver close")
	assert.Equal(t, "a", v)
	_, err = rx.TryRecv()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestChannel_ReceiverCloseFailsWaitingSenders(t *testing.T) {
	tx, rx := NewChannel[int](1)
	require.NoError(t, tx.TrySend(1))
	w := &wakeCounter{}
	f := tx.Send(2)
	require.True(t, f.Poll(manualContext(w.waker())).IsPending())

	rx.Close()
	assert.Equal(t, 1, w.count())
	err, ok := f.Poll(manualContext(w.waker())).Value()
	require.True(t, ok)
	var se *SendError[int]
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 2, se.Value)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestChannel_SendersCloseEndsStream(t *testing.T) {
	tx, rx := NewChannel[int](4)
	tx2 := tx.Clone()
	assert.True(t, tx.SameChannel(tx2))
	other, _ := NewChannel[int](1)
	assert.False(t, tx.SameChannel(other))

	require.NoError(t, tx.TrySend(1))
	tx.Close()
	tx.Close()
	w := &wakeCounter{}
	cx := manualContext(w.waker())
	r, ok := rx.PollRecv(cx).Value()
	require.True(t, ok)
	assert.Equal(t, 1, r.Value)
	require.True(t, rx.PollRecv(cx).IsPending(), "a clone is still open")

	assert.ErrorIs(t, tx.TrySend(2), ErrClosed, "closed handle rejects sends")
	tx2.Close()
	assert.Equal(t, 1, w.count())
	r, ok = rx.PollRecv(cx).Value()
	require.True(t, ok)
	assert.ErrorIs(t, r.Err, ErrClosed)
}

func TestChannel_DropWithdrawsValue(t *testing.T) {
	tx, rx := NewChannel[int](1)
	require.NoError(t, tx.TrySend(1))
	f := tx.Send(2)
	require.True(t, f.Poll(manualContext(NoopWaker())).IsPending())
	f.Drop()
	v, err := rx.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	_, err = rx.TryRecv()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestChannel_Timeouts(t *testing.T) {
	rt := newTestMultiThread(t)
	tx, rx := NewChannel[int](1)
	require.NoError(t, tx.TrySend(1))

	err, berr := BlockOn(rt, tx.SendTimeout(2, 20*time.Millisecond))
	require.NoError(t, berr)
	var se *SendError[int]
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 2, se.Value)
	assert.Equal(t, 1, rx.Len(), "a timed out send is withdrawn")

	_, err = rx.TryRecv()
	require.NoError(t, err)
	r, err := BlockOn(rt, rx.RecvTimeout(20*time.Millisecond))
	require.NoError(t, err)
	assert.ErrorIs(t, r.Err, ErrTimeout)
}

func TestChannel_ManyProducers(t *testing.T) {
	rt := newTestMultiThread(t)
	tx, rx := NewChannel[int](8)
	const producers, per = 8, 250

	var g errgroup.Group
	for p := range producers {
		ptx := tx.Clone()
		g.Go(func() error {
			defer ptx.Close()
			for i := range per {
				if err, berr := BlockOn(rt, Future[error](ptx.Send(p*per+i))); err != nil || berr != nil {
					return errors.Join(err, berr)
				}
			}
			return nil
		})
	}
	tx.Close()

	var got []int
	_, err := BlockOn[struct{}](rt, FutureFunc[struct{}](func(cx *Context) Poll[struct{}] {
		for {
			r, ok := rx.PollRecv(cx).Value()
			if !ok {
				return Pending[struct{}]()
			}
			if r.Err != nil {
				return Ready(struct{}{})
			}
			got = append(got, r.Value)
		}
	}))
	require.NoError(t, err)
	require.NoError(t, g.Wait())

	require.Len(t, got, producers*per)
	sort.Ints(got)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestChannel_InvalidCapacity(t *testing.T) {
	assert.Panics(t, func() { NewChannel[int](0) })
}

func TestUnboundedChannel(t *testing.T) {
	tx, rx := NewUnboundedChannel[int]()
	for i := range 1000 {
		require.NoError(t, tx.Send(i))
	}
	assert.Equal(t, 1000, rx.Len())
	tx2 := tx.Clone()
	assert.True(t, tx.SameChannel(tx2))
	tx.Close()
	tx2.Close()
	for i := range 1000 {
		v, err := rx.TryRecv()
		require.NoError(t, err)
		require.Equal(t, i, v)
	}
	_, err := rx.TryRecv()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, tx.Send(1), ErrClosed)
}

func TestUnboundedChannel_ReceiverClose(t *testing.T) {
	tx, rx := NewUnboundedChannel[int]()
	rx.Close()
	assert.True(t, tx.IsClosed())
	err := tx.Send(1)
	var se *SendError[int]
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 1, se.Value)
}
