package asyncrt

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestMultiThread(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	rt, err := NewMultiThread(append([]Option{WithWorkerThreads(4)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { shutdownTest(t, rt) })
	return rt
}

func newTestCurrentThread(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	rt, err := NewCurrentThread(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { shutdownTest(t, rt) })
	return rt
}

func shutdownTest(t *testing.T, rt *Runtime) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rt.Shutdown(ctx); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func waitCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// manualContext returns a Context for polling futures directly, outside a
// runtime.
func manualContext(w Waker) *Context {
	return ContextFromWaker(w)
}

// wakeCounter is a Waker that counts invocations.
type wakeCounter struct {
	n atomic.Int32
}

func (c *wakeCounter) waker() Waker { return NewWaker(func() { c.n.Add(1) }) }

func (c *wakeCounter) count() int { return int(c.n.Load()) }

// probe is a future that parks on every poll until released, recording
// polls and drops.
type probe struct {
	polls    atomic.Int32
	drops    atomic.Int32
	release  atomic.Bool
	mu       sync.Mutex
	waker    Waker
	polled   chan struct{}
	onPoll   func(cx *Context)
	pollOnce sync.Once
}

func newProbe() *probe {
	return &probe{polled: make(chan struct{})}
}

func (p *probe) Poll(cx *Context) Poll[int] {
	n := p.polls.Add(1)
	if p.onPoll != nil {
		p.onPoll(cx)
	}
	p.pollOnce.Do(func() { close(p.polled) })
	if p.release.Load() {
		return Ready(int(n))
	}
	p.mu.Lock()
	p.waker = cx.Waker()
	p.mu.Unlock()
	return Pending[int]()
}

func (p *probe) Drop() { p.drops.Add(1) }

func (p *probe) wake() {
	p.mu.Lock()
	w := p.waker
	p.mu.Unlock()
	w.Wake()
}

// finish lets the probe complete on its next poll, and wakes it.
func (p *probe) finish() {
	p.release.Store(true)
	p.wake()
}

// runPending drives a current-thread runtime until its queue is empty.
func runPending(t *testing.T, rt *Runtime) {
	t.Helper()
	_, err := BlockOn[struct{}](rt, YieldNow())
	require.NoError(t, err)
}
