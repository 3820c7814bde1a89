package asyncrt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Flavor selects the scheduler a Runtime uses.
type Flavor uint8

const (
	// FlavorMultiThread runs tasks on a pool of work-stealing workers.
	FlavorMultiThread Flavor = iota
	// FlavorCurrentThread runs tasks only on goroutines inside BlockOn.
	FlavorCurrentThread
)

// String returns a human-readable representation of the flavor.
func (f Flavor) String() string {
	switch f {
	case FlavorMultiThread:
		return "MultiThread"
	case FlavorCurrentThread:
		return "CurrentThread"
	default:
		return "Unknown"
	}
}

// Runtime executes futures. It owns a scheduler, an I/O and timer driver,
// and a blocking pool.
//
// A Runtime is safe for concurrent use. It must be stopped with Shutdown to
// release its threads.
type Runtime struct {
	id     ulid.ULID
	flavor Flavor
	opts   *runtimeOptions

	state    runtimeState
	tasks    *taskTable
	sched    scheduler
	driver   *driver
	blocking *blockingPool
	metrics  *metrics
	log      *runtimeLogger
	started  time.Time

	// closing is closed when shutdown begins
	closing chan struct{}
	// drained is nudged whenever the live task count reaches zero
	drained chan struct{}

	shutdownDone chan struct{}
	shutdownErr  error
}

// NewMultiThread creates a runtime backed by the work-stealing scheduler.
func NewMultiThread(opts ...Option) (*Runtime, error) {
	return newRuntime(FlavorMultiThread, opts)
}

// NewCurrentThread creates a runtime that runs tasks only while some
// goroutine is inside BlockOn.
func NewCurrentThread(opts ...Option) (*Runtime, error) {
	return newRuntime(FlavorCurrentThread, opts)
}

func newRuntime(flavor Flavor, opts []Option) (*Runtime, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{
		id:           ulid.Make(),
		flavor:       flavor,
		opts:         cfg,
		tasks:        newTaskTable(),
		metrics:      newMetrics(cfg.metricsEnabled),
		started:      time.Now(),
		closing:      make(chan struct{}),
		drained:      make(chan struct{}, 1),
		shutdownDone: make(chan struct{}),
	}
	rt.log = newRuntimeLogger(rt.id.String(), cfg)
	if rt.driver, err = newDriver(rt); err != nil {
		return nil, fmt.Errorf("asyncrt: create driver: %w", err)
	}
	rt.blocking = newBlockingPool(rt)
	switch flavor {
	case FlavorCurrentThread:
		rt.sched = newCurrentThread(rt)
	default:
		rt.sched = newMultiThread(rt)
		rt.driver.startThread()
	}
	rt.log.started(flavor, rt.sched.numWorkers())
	return rt, nil
}

// ID returns the runtime's unique identifier.
func (rt *Runtime) ID() ulid.ULID { return rt.id }

// Flavor returns the scheduler flavor.
func (rt *Runtime) Flavor() Flavor { return rt.flavor }

// State returns the lifecycle state.
func (rt *Runtime) State() RuntimeState { return rt.state.Load() }

// NumWorkers returns the number of scheduler threads.
func (rt *Runtime) NumWorkers() int { return rt.sched.numWorkers() }

// Metrics returns a snapshot of runtime statistics.
func (rt *Runtime) Metrics() Metrics {
	m := Metrics{
		Workers:       rt.sched.numWorkers(),
		LiveTasks:     rt.tasks.len(),
		Registrations: rt.driver.registrations(),
		PendingTimers: rt.driver.timers.len(),
	}
	rt.metrics.snapshot(&m)
	m.LocalQueueDepth, m.GlobalQueueDepth = rt.sched.queueDepths()
	m.BlockingThreads, m.BlockingIdle, m.BlockingQueued = rt.blocking.stats()
	return m
}

// newTask allocates a task and inserts it into the arena.
func (rt *Runtime) newTask(core taskCoreOps, opts []TaskOption) (*task, error) {
	cfg, err := resolveTaskOptions(opts)
	if err != nil {
		return nil, err
	}
	if !rt.state.CanAcceptWork() {
		return nil, ErrRuntimeShutdown
	}
	t := &task{rt: rt, core: core, name: cfg.name, priority: cfg.priority}
	// scheduled from birth: the spawner enqueues it
	t.state.Store(stScheduled)
	if !rt.tasks.insert(t) {
		return nil, ErrRuntimeShutdown
	}
	rt.metrics.spawned.Add(1)
	return t, nil
}

// taskFinished retires t from the arena after its outcome is published.
func (rt *Runtime) taskFinished(t *task, cancelled bool) {
	if cancelled {
		rt.metrics.cancelled.Add(1)
	} else {
		rt.metrics.completed.Add(1)
	}
	if rt.tasks.remove(t.id) == 0 {
		select {
		case rt.drained <- struct{}{}:
		default:
		}
	}
}

// Spawn starts f as a new task and returns its handle.
func Spawn[T any](rt *Runtime, f Future[T], opts ...TaskOption) (*JoinHandle[T], error) {
	return spawn(rt, nil, f, opts)
}

// SpawnChild spawns f from within a running task. On a multi-thread
// runtime the child is placed in the spawning worker's LIFO slot, so it is
// likely the next task polled there.
func SpawnChild[T any](cx *Context, f Future[T], opts ...TaskOption) (*JoinHandle[T], error) {
	return spawn(cx.rt, cx, f, opts)
}

func spawn[T any](rt *Runtime, cx *Context, f Future[T], opts []TaskOption) (*JoinHandle[T], error) {
	if f == nil {
		return nil, ErrNilFuture
	}
	core := newTaskCore(f)
	t, err := rt.newTask(core, opts)
	if err != nil {
		return nil, err
	}
	rt.sched.spawn(t, cx)
	return &JoinHandle[T]{t: t, core: core}, nil
}

// SpawnBlocking runs fn on the blocking pool. Once started, fn runs to
// completion even if the handle is cancelled or the runtime shuts down.
func SpawnBlocking[T any](rt *Runtime, fn func() (T, error), opts ...TaskOption) (*JoinHandle[T], error) {
	if fn == nil {
		return nil, ErrNilFuture
	}
	core := &blockingCore[T]{taskCore: newTaskCore[T](nil), fn: fn}
	t, err := rt.newTask(core, opts)
	if err != nil {
		return nil, err
	}
	if err := rt.blocking.submit(t); err != nil {
		// the pool refused; retire the task so the handle resolves
		finalise(rt, []*task{t})
	}
	return &JoinHandle[T]{t: t, core: core.taskCore}, nil
}

// BlockOn drives f to completion on the calling goroutine. Called from one
// of the runtime's own goroutines, it returns ErrBlockOnReentrant. A panic in
// f is returned as a *PanicError.
//
// On a current-thread runtime, BlockOn also runs every spawned task; calls
// from several goroutines take turns. BlockOn returns ErrRuntimeShutdown if
// the runtime begins shutting down first.
func BlockOn[T any](rt *Runtime, f Future[T]) (value T, err error) {
	if f == nil {
		return value, ErrNilFuture
	}
	if !rt.state.CanAcceptWork() {
		return value, ErrRuntimeShutdown
	}
	defer drop(f)
	var (
		done     bool
		panicked error
	)
	err = rt.sched.blockOn(func(cx *Context) (finished bool) {
		if done {
			return true
		}
		defer func() {
			if r := recover(); r != nil {
				panicked = newPanicError(r)
				done, finished = true, true
			}
		}()
		if v, ok := f.Poll(cx).Value(); ok {
			value = v
			done = true
		}
		return done
	})
	if err == nil {
		err = panicked
	}
	return value, err
}

// Shutdown stops the runtime: new work is rejected, live tasks are
// cancelled and finalised, the blocking pool's queued jobs are cancelled
// while running ones finish, and the driver is closed. Each phase is bounded
// by ctx; when ctx ends early the remaining phases still run without
// waiting, and ctx's error is returned. Shutdown is idempotent; later calls
// wait for the first to finish.
//
// Called from inside a task of the same runtime, Shutdown returns
// ErrBlockOnReentrant and does nothing.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	if rt.sched.onRuntimeGoroutine() {
		return ErrBlockOnReentrant
	}
	if !rt.state.TryTransition(StateRunning, StateShuttingDown) {
		select {
		case <-rt.shutdownDone:
			return rt.shutdownErr
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	rt.shutdownErr = rt.shutdown(ctx)
	rt.state.Store(StateTerminated)
	close(rt.shutdownDone)
	return rt.shutdownErr
}

func (rt *Runtime) shutdown(ctx context.Context) error {
	close(rt.closing)
	// a current-thread BlockOn may be parked in the driver with nothing
	// left to wake it
	rt.driver.unpark()
	for _, t := range rt.tasks.close() {
		t.cancel()
	}
	rt.blocking.close()

	var errs []error
	if err := rt.sched.drain(ctx); err != nil {
		rt.log.shutdownTimeout(rt.tasks.len(), err)
		errs = append(errs, err)
	}
	if err := rt.sched.stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("asyncrt: stop scheduler: %w", err))
	}
	if err := rt.blocking.wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("asyncrt: stop blocking pool: %w", err))
	}
	if err := rt.driver.close(); err != nil {
		errs = append(errs, fmt.Errorf("asyncrt: close driver: %w", err))
	}
	err := errors.Join(errs...)
	rt.log.stopped(time.Since(rt.started), err)
	return err
}
