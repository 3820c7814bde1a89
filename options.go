package asyncrt

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/joeycumines/logiface"
)

const (
	// MinWorkerThreads and MaxWorkerThreads bound WithWorkerThreads.
	MinWorkerThreads = 1
	MaxWorkerThreads = 64

	// EnvWorkerThreads names the environment variable consulted for the
	// worker count when WithWorkerThreads is not given.
	EnvWorkerThreads = "ASYNCRT_WORKER_THREADS"

	defaultKeepAlive          = 10 * time.Second
	defaultMaxBlockingThreads = 512
	defaultEventInterval      = 61
	defaultThreadName         = "asyncrt-worker"
)

// runtimeOptions holds configuration options for Runtime creation.
type runtimeOptions struct {
	logger             *logiface.Logger[logiface.Event]
	panicLogRates      map[time.Duration]int
	threadName         string
	workerThreads      int
	maxBlockingThreads int
	eventInterval      int
	keepAlive          time.Duration
	metricsEnabled     bool
}

// --- Runtime Options ---

// Option configures a Runtime instance.
type Option interface {
	applyRuntime(*runtimeOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyRuntimeFunc func(*runtimeOptions) error
}

func (o *optionImpl) applyRuntime(opts *runtimeOptions) error {
	return o.applyRuntimeFunc(opts)
}

// WithWorkerThreads sets the number of multi-thread workers, clamped to
// [MinWorkerThreads, MaxWorkerThreads]. It has no effect on a
// current-thread runtime.
func WithWorkerThreads(n int) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		opts.workerThreads = clampWorkers(n)
		return nil
	}}
}

// WithThreadName sets the name prefix of worker and blocking-pool threads,
// surfaced as the "asyncrt.thread" pprof label and in logs.
func WithThreadName(name string) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		if name == "" {
			return fmt.Errorf("asyncrt: thread name must not be empty")
		}
		opts.threadName = name
		return nil
	}}
}

// WithKeepAlive sets how long an idle blocking-pool thread is kept before
// it exits. Zero reclaims threads as soon as the queue is empty.
func WithKeepAlive(d time.Duration) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		if d < 0 {
			return fmt.Errorf("asyncrt: keep alive must not be negative: %v", d)
		}
		opts.keepAlive = d
		return nil
	}}
}

// WithMaxBlockingThreads caps the blocking pool size.
func WithMaxBlockingThreads(n int) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		if n < 1 {
			return fmt.Errorf("asyncrt: max blocking threads must be positive: %d", n)
		}
		opts.maxBlockingThreads = n
		return nil
	}}
}

// WithEventInterval sets how many scheduler ticks pass between forced
// checks of the global queue (multi-thread) or of the driver
// (current-thread), bounding starvation of externally submitted work.
func WithEventInterval(n int) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		if n < 1 {
			return fmt.Errorf("asyncrt: event interval must be positive: %d", n)
		}
		opts.eventInterval = n
		return nil
	}}
}

// WithLogger sets the structured logger. A nil logger disables structured
// logging; critical conditions then go to the standard log package.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithMetrics enables poll latency and throughput tracking, reported by
// Runtime.Metrics. Counters are always maintained.
func WithMetrics(enabled bool) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

// WithPanicLogRate limits how often task panics are logged, per task name.
// The map gives the maximum number of events per window, as accepted by
// catrate.NewLimiter. A nil or empty map disables limiting.
func WithPanicLogRate(rates map[time.Duration]int) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		for window, n := range rates {
			if window <= 0 || n <= 0 {
				return fmt.Errorf("asyncrt: invalid panic log rate %d per %v", n, window)
			}
		}
		opts.panicLogRates = rates
		return nil
	}}
}

// resolveOptions applies Option instances to runtimeOptions.
func resolveOptions(opts []Option) (*runtimeOptions, error) {
	cfg := &runtimeOptions{
		workerThreads:      defaultWorkerThreads(),
		threadName:         defaultThreadName,
		keepAlive:          defaultKeepAlive,
		maxBlockingThreads: defaultMaxBlockingThreads,
		eventInterval:      defaultEventInterval,
		panicLogRates: map[time.Duration]int{
			time.Second: 5,
			time.Minute: 60,
		},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyRuntime(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func defaultWorkerThreads() int {
	if v := os.Getenv(EnvWorkerThreads); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return clampWorkers(n)
		}
	}
	return clampWorkers(runtime.GOMAXPROCS(0))
}

func clampWorkers(n int) int {
	return min(max(n, MinWorkerThreads), MaxWorkerThreads)
}

// --- Task Options ---

// taskOptions holds per-task metadata.
type taskOptions struct {
	name     string
	priority Priority
}

// TaskOption configures a spawned task.
type TaskOption interface {
	applyTask(*taskOptions) error
}

type taskOptionImpl struct {
	applyTaskFunc func(*taskOptions) error
}

func (o *taskOptionImpl) applyTask(opts *taskOptions) error {
	return o.applyTaskFunc(opts)
}

// TaskName names the task, for logs, metrics and Context.TaskName.
func TaskName(name string) TaskOption {
	return &taskOptionImpl{func(opts *taskOptions) error {
		opts.name = name
		return nil
	}}
}

// TaskPriority sets the task's advisory priority.
func TaskPriority(p Priority) TaskOption {
	return &taskOptionImpl{func(opts *taskOptions) error {
		if p > PriorityAbsLow {
			return fmt.Errorf("asyncrt: invalid priority %d", p)
		}
		opts.priority = p
		return nil
	}}
}

func resolveTaskOptions(opts []TaskOption) (*taskOptions, error) {
	cfg := &taskOptions{priority: PriorityHigh}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyTask(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
