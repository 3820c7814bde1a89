package global_test

import (
	"context"
	"testing"
	"time"

	"github.com/joeycumines/go-asyncrt"
	"github.com/joeycumines/go-asyncrt/global"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shutdown(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, global.Shutdown(ctx))
}

func TestLazyInit(t *testing.T) {
	t.Cleanup(func() { shutdown(t) })

	h, err := global.Spawn(asyncrt.ReadyFuture(7), asyncrt.TaskName("seven"))
	require.NoError(t, err)
	assert.Equal(t, "seven", h.Name())
	v, err := global.BlockOn[asyncrt.Result[int]](h)
	require.NoError(t, err)
	require.NoError(t, v.Err)
	assert.Equal(t, 7, v.Value)

	rt, err := global.Runtime()
	require.NoError(t, err)
	again, err := global.Runtime()
	require.NoError(t, err)
	assert.Same(t, rt, again)
	assert.Equal(t, asyncrt.FlavorMultiThread, rt.Flavor())

	assert.ErrorIs(t, global.Init(), global.ErrAlreadyInitialized)
}

func TestInitThenReinit(t *testing.T) {
	t.Cleanup(func() { shutdown(t) })

	require.NoError(t, global.Init(asyncrt.WithWorkerThreads(2), asyncrt.WithThreadName("global")))
	first, err := global.Runtime()
	require.NoError(t, err)
	assert.Equal(t, 2, first.NumWorkers())

	h, err := global.SpawnBlocking(func() (string, error) { return "blocking", nil })
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := h.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "blocking", s)

	shutdown(t)
	assert.Equal(t, asyncrt.StateTerminated, first.State())
	_, err = asyncrt.Spawn(first, asyncrt.YieldNow())
	assert.ErrorIs(t, err, asyncrt.ErrRuntimeShutdown)

	require.NoError(t, global.Init(asyncrt.WithWorkerThreads(1)))
	second, err := global.Runtime()
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.NotEqual(t, first.ID(), second.ID())
	assert.Equal(t, 1, second.NumWorkers())
}

func TestInitInvalidOptions(t *testing.T) {
	t.Cleanup(func() { shutdown(t) })
	assert.Error(t, global.Init(asyncrt.WithThreadName("")))
	// a failed Init leaves the package uninitialised
	require.NoError(t, global.Init())
}

func TestShutdownWithoutRuntime(t *testing.T) {
	shutdown(t)
	shutdown(t)
}
