package asyncrt

import (
	"context"
	"runtime"
)

// scheduler is implemented by the multi-thread and current-thread
// schedulers.
type scheduler interface {
	// schedule queues a woken task. It may be called from any goroutine.
	schedule(t *task)
	// spawn queues a newly spawned task. cx is the spawning task's context,
	// or nil when spawning from outside the runtime.
	spawn(t *task, cx *Context)
	// blockOn drives root on the calling goroutine until it reports done.
	blockOn(root func(cx *Context) bool) error
	// drain runs or waits for cancelled tasks until none are live.
	drain(ctx context.Context) error
	// stop releases scheduler threads and finalises anything still queued.
	stop(ctx context.Context) error
	// onRuntimeGoroutine reports whether the caller is a goroutine that
	// polls this runtime's tasks.
	onRuntimeGoroutine() bool
	numWorkers() int
	queueDepths() (local []int, global int)
}

// blockOnSignal returns a waker for a root future, along with the channel
// it signals.
func blockOnSignal() (Waker, chan struct{}) {
	signal := make(chan struct{}, 1)
	return NewWaker(func() {
		select {
		case signal <- struct{}{}:
		default:
		}
	}), signal
}

// goroutineID returns the current goroutine's id, parsed from its stack
// header. It is only used off the hot path.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for _, c := range buf[len("goroutine "):n] {
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + uint64(c-'0')
	}
	return id
}

// finalise cancels and retires tasks left in a queue after its scheduler
// has stopped.
func finalise(rt *Runtime, tasks []*task) {
	var cx Context
	for _, t := range tasks {
		if t == nil {
			continue
		}
		t.cancel()
		cx.bind(rt, t, nil, t.waker())
		t.run(&cx)
	}
}
