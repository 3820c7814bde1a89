//go:build linux || darwin

package asyncrt

import (
	"testing"
	"time"

	"github.com/joeycumines/go-asyncrt/internal/poller"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newPipe(t *testing.T) (r, w int) {
	t.Helper()
	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	for _, fd := range fds {
		require.NoError(t, unix.SetNonblock(fd, true))
	}
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func readFuture(reg *Registration, buf []byte) Future[Result[int]] {
	return FutureFunc[Result[int]](func(cx *Context) Poll[Result[int]] {
		return reg.TryIO(cx, InterestRead, func() (int, error) {
			return unix.Read(reg.Fd(), buf)
		})
	})
}

func TestRegistration_PipeReadiness(t *testing.T) {
	for _, tc := range []struct {
		name string
		new  func(*testing.T, ...Option) *Runtime
	}{
		{"MultiThread", newTestMultiThread},
		{"CurrentThread", newTestCurrentThread},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rt := tc.new(t)
			rfd, wfd := newPipe(t)
			reg, err := rt.Register(rfd, InterestRead)
			require.NoError(t, err)
			defer reg.Close()
			assert.Equal(t, 1, rt.Metrics().Registrations)

			go func() {
				time.Sleep(10 * time.Millisecond)
				_, _ = unix.Write(wfd, []byte("ping"))
			}()
			buf := make([]byte, 16)
			r, err := BlockOn(rt, readFuture(reg, buf))
			require.NoError(t, err)
			require.NoError(t, r.Err)
			assert.Equal(t, "ping", string(buf[:r.Value]))

			// the pipe is drained; the next read waits for more data
			go func() {
				time.Sleep(10 * time.Millisecond)
				_, _ = unix.Write(wfd, []byte("pong"))
			}()
			r, err = BlockOn(rt, readFuture(reg, buf))
			require.NoError(t, err)
			require.NoError(t, r.Err)
			assert.Equal(t, "pong", string(buf[:r.Value]))
		})
	}
}

func TestRegistration_WriterHangup(t *testing.T) {
	rt := newTestMultiThread(t)
	rfd, wfd := newPipe(t)
	reg, err := rt.Register(rfd, InterestRead)
	require.NoError(t, err)
	defer reg.Close()
	require.NoError(t, unix.Close(wfd))

	ev, err := BlockOn[Result[ReadyEvent]](rt, FutureFunc[Result[ReadyEvent]](reg.PollReadReady))
	require.NoError(t, err)
	require.NoError(t, ev.Err)
	assert.True(t, ev.Value.Ready.IsReadable())

	// closed conditions survive clearing
	reg.ClearReadiness(ev.Value)
	again, ok := reg.ready(InterestRead)
	require.True(t, ok)
	assert.NotZero(t, again.Ready&ReadClosed)
}

func TestRegistration_StaleClearKeepsNewerReadiness(t *testing.T) {
	rt := newTestCurrentThread(t)
	rfd, _ := newPipe(t)
	reg, err := rt.Register(rfd, InterestRead)
	require.NoError(t, err)
	defer reg.Close()

	reg.notify(poller.EventRead)
	first, ok := reg.ready(InterestRead)
	require.True(t, ok)
	reg.notify(poller.EventRead)
	reg.ClearReadiness(first)
	_, ok = reg.ready(InterestRead)
	assert.True(t, ok, "readiness newer than the cleared event is kept")

	latest, _ := reg.ready(InterestRead)
	reg.ClearReadiness(latest)
	_, ok = reg.ready(InterestRead)
	assert.False(t, ok)
}

func TestRegistration_CloseWakesWaiters(t *testing.T) {
	rt := newTestCurrentThread(t)
	rfd, _ := newPipe(t)
	reg, err := rt.Register(rfd, InterestRead)
	require.NoError(t, err)

	w := &wakeCounter{}
	require.True(t, reg.PollReadReady(manualContext(w.waker())).IsPending())
	require.NoError(t, reg.Close())
	require.NoError(t, reg.Close())
	assert.Equal(t, 1, w.count())
	assert.Zero(t, rt.Metrics().Registrations)

	r, ok := reg.PollReadReady(manualContext(NoopWaker())).Value()
	require.True(t, ok)
	assert.ErrorIs(t, r.Err, ErrRegistrationClosed)
	assert.ErrorIs(t, reg.SetInterest(InterestWrite), ErrRegistrationClosed)
}

func TestRegister_AfterShutdown(t *testing.T) {
	rt, err := NewCurrentThread()
	require.NoError(t, err)
	require.NoError(t, rt.Shutdown(waitCtx(t)))
	rfd, _ := newPipe(t)
	_, err = rt.Register(rfd, InterestRead)
	assert.ErrorIs(t, err, ErrRuntimeShutdown)
}
