package asyncio_test

import (
	"bytes"
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joeycumines/go-asyncrt"
	"github.com/joeycumines/go-asyncrt/asyncio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRuntime(t *testing.T) *asyncrt.Runtime {
	t.Helper()
	rt, err := asyncrt.NewMultiThread(asyncrt.WithWorkerThreads(2))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		assert.NoError(t, rt.Shutdown(ctx))
	})
	return rt
}

func TestDuplex_ReadWakesOnWrite(t *testing.T) {
	a, b := asyncio.Duplex(8)
	var wakes atomic.Int32
	cx := asyncrt.ContextFromWaker(asyncrt.NewWaker(func() { wakes.Add(1) }))
	buf := make([]byte, 4)
	require.True(t, b.PollRead(cx, buf).IsPending())

	r, ok := a.PollWrite(cx, []byte("hi")).Value()
	require.True(t, ok)
	require.NoError(t, r.Err)
	assert.Equal(t, 2, r.Value)
	assert.Equal(t, int32(1), wakes.Load())

	r, ok = b.PollRead(cx, buf).Value()
	require.True(t, ok)
	assert.Equal(t, "hi", string(buf[:r.Value]))
}

func TestDuplex_Backpressure(t *testing.T) {
	a, b := asyncio.Duplex(4)
	cx := asyncrt.ContextFromWaker(asyncrt.NoopWaker())
	r, _ := a.PollWrite(cx, []byte("abcdef")).Value()
	assert.Equal(t, 4, r.Value, "a write is cut short at the buffer limit")
	assert.True(t, a.PollWrite(cx, []byte("ef")).IsPending())

	buf := make([]byte, 3)
	r, _ = b.PollRead(cx, buf).Value()
	assert.Equal(t, 3, r.Value)
	r, ok := a.PollWrite(cx, []byte("ef")).Value()
	require.True(t, ok)
	assert.Equal(t, 2, r.Value)
}

func TestWriteAllReadAll(t *testing.T) {
	rt := newRuntime(t)
	a, b := asyncio.Duplex(16)
	payload := bytes.Repeat([]byte("0123456789"), 100)

	w, err := asyncrt.Spawn(rt, asyncrt.Then(asyncio.WriteAll(a, payload), func(r asyncrt.Result[int]) asyncrt.Future[asyncrt.Result[int]] {
		return asyncrt.Map(asyncio.Shutdown(a), func(err error) asyncrt.Result[int] {
			if r.Err == nil {
				r.Err = err
			}
			return r
		})
	}))
	require.NoError(t, err)

	got, err := asyncrt.BlockOn(rt, asyncio.ReadAll(b))
	require.NoError(t, err)
	require.NoError(t, got.Err)
	assert.Equal(t, payload, got.Value)

	n, err := w.Wait(context.Background())
	require.NoError(t, err)
	require.NoError(t, n.Err)
	assert.Equal(t, len(payload), n.Value)
}

func TestReadFull(t *testing.T) {
	rt := newRuntime(t)
	a, b := asyncio.Duplex(64)
	cx := asyncrt.ContextFromWaker(asyncrt.NoopWaker())
	a.PollWrite(cx, []byte("abcdefg"))
	a.PollShutdown(cx)

	buf := make([]byte, 4)
	r, err := asyncrt.BlockOn(rt, asyncio.ReadFull(b, buf))
	require.NoError(t, err)
	require.NoError(t, r.Err)
	assert.Equal(t, "abcd", string(buf))

	r, err = asyncrt.BlockOn(rt, asyncio.ReadFull(b, buf))
	require.NoError(t, err)
	assert.ErrorIs(t, r.Err, io.ErrUnexpectedEOF)
	assert.Equal(t, 3, r.Value)

	r, err = asyncrt.BlockOn(rt, asyncio.ReadFull(b, buf))
	require.NoError(t, err)
	assert.ErrorIs(t, r.Err, io.EOF)
	assert.Zero(t, r.Value)
}

func TestCopy(t *testing.T) {
	rt := newRuntime(t)
	srcW, srcR := asyncio.Duplex(7)
	dstW, dstR := asyncio.Duplex(5)
	payload := bytes.Repeat([]byte("xyz"), 333)

	_, err := asyncrt.Spawn(rt, asyncrt.Map(asyncio.WriteAll(srcW, payload), func(asyncrt.Result[int]) struct{} {
		srcW.Close()
		return struct{}{}
	}))
	require.NoError(t, err)
	copied, err := asyncrt.Spawn(rt, asyncrt.Map(asyncio.Copy(dstW, srcR), func(r asyncrt.Result[int64]) asyncrt.Result[int64] {
		dstW.Close()
		return r
	}))
	require.NoError(t, err)

	got, err := asyncrt.BlockOn(rt, asyncio.ReadAll(dstR))
	require.NoError(t, err)
	require.NoError(t, got.Err)
	assert.Equal(t, payload, got.Value)

	r, err := copied.Wait(context.Background())
	require.NoError(t, err)
	require.NoError(t, r.Err)
	assert.Equal(t, int64(len(payload)), r.Value)
}

func TestDuplex_CloseBreaksPeerWrites(t *testing.T) {
	rt := newRuntime(t)
	a, b := asyncio.Duplex(2)
	cx := asyncrt.ContextFromWaker(asyncrt.NoopWaker())
	a.PollWrite(cx, []byte("ab"))

	done := make(chan asyncrt.Result[int], 1)
	go func() {
		r, _ := asyncrt.BlockOn(rt, asyncio.WriteAll(a, []byte("cd")))
		done <- r
	}()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, b.Close())

	select {
	case r := <-done:
		assert.ErrorIs(t, r.Err, io.ErrClosedPipe)
	case <-time.After(5 * time.Second):
		t.Fatal("writer was not woken by close")
	}

	r, ok := a.PollRead(cx, make([]byte, 1)).Value()
	require.True(t, ok)
	assert.ErrorIs(t, r.Err, io.EOF)

	err, ok := asyncio.Flush(a).Poll(cx).Value()
	require.True(t, ok)
	assert.NoError(t, err)
}

func TestRead_Write(t *testing.T) {
	rt := newRuntime(t)
	a, b := asyncio.Duplex(8)
	n, err := asyncrt.BlockOn(rt, asyncio.Write(a, []byte("ping")))
	require.NoError(t, err)
	assert.Equal(t, 4, n.Value)
	buf := make([]byte, 8)
	n, err = asyncrt.BlockOn(rt, asyncio.Read(b, buf))
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n.Value]))
}
