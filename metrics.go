package asyncrt

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics is a point-in-time snapshot of runtime statistics, returned by
// Runtime.Metrics. Counters are cumulative since the runtime was created.
//
// Example:
//
//	rt, _ := asyncrt.NewMultiThread(asyncrt.WithMetrics(true))
//	m := rt.Metrics()
//	fmt.Printf("live=%d p99=%v tps=%.1f\n", m.LiveTasks, m.PollLatency.P99, m.PollsPerSecond)
type Metrics struct {
	// Workers is the number of scheduler threads (1 for current-thread).
	Workers int

	SpawnedTasks   uint64
	CompletedTasks uint64
	CancelledTasks uint64
	PanickedTasks  uint64
	LiveTasks      int

	Polls          uint64
	WakesCoalesced uint64
	BudgetYields   uint64
	LIFOPolls      uint64

	// Steals counts successful steal operations and StolenTasks the tasks
	// they moved.
	Steals           uint64
	StolenTasks      uint64
	InjectorPushes   uint64
	Parks            uint64
	LocalQueueDepth  []int
	GlobalQueueDepth int

	BlockingThreads   int
	BlockingIdle      int
	BlockingQueued    int
	BlockingCompleted uint64

	Registrations int
	PendingTimers int

	// PollLatency and PollsPerSecond are only populated with WithMetrics.
	PollLatency    LatencyMetrics
	PollsPerSecond float64
}

// LatencyMetrics summarises the distribution of task poll durations.
type LatencyMetrics struct {
	P50   time.Duration
	P90   time.Duration
	P99   time.Duration
	Max   time.Duration
	Mean  time.Duration
	Count int
}

// metrics holds the live counters behind a Metrics snapshot.
type metrics struct {
	spawned           atomic.Uint64
	completed         atomic.Uint64
	cancelled         atomic.Uint64
	panicked          atomic.Uint64
	polls             atomic.Uint64
	wakesCoalesced    atomic.Uint64
	budgetYields      atomic.Uint64
	lifoPolls         atomic.Uint64
	steals            atomic.Uint64
	stolenTasks       atomic.Uint64
	injectorPushes    atomic.Uint64
	parks             atomic.Uint64
	blockingCompleted atomic.Uint64

	// nil unless enabled
	latency *latencyTracker
	rate    *rateCounter
}

func newMetrics(enabled bool) *metrics {
	m := &metrics{}
	if enabled {
		m.latency = newLatencyTracker()
		m.rate = newRateCounter(10*time.Second, 100*time.Millisecond)
	}
	return m
}

// pollStart returns the time to pass to pollDone, or the zero time if
// latency tracking is off.
func (m *metrics) pollStart() time.Time {
	if m.latency == nil {
		return time.Time{}
	}
	return time.Now()
}

func (m *metrics) pollDone(start time.Time) {
	if start.IsZero() {
		return
	}
	m.latency.record(time.Since(start))
	m.rate.increment()
}

func (m *metrics) snapshot(out *Metrics) {
	out.SpawnedTasks = m.spawned.Load()
	out.CompletedTasks = m.completed.Load()
	out.CancelledTasks = m.cancelled.Load()
	out.PanickedTasks = m.panicked.Load()
	out.Polls = m.polls.Load()
	out.WakesCoalesced = m.wakesCoalesced.Load()
	out.BudgetYields = m.budgetYields.Load()
	out.LIFOPolls = m.lifoPolls.Load()
	out.Steals = m.steals.Load()
	out.StolenTasks = m.stolenTasks.Load()
	out.InjectorPushes = m.injectorPushes.Load()
	out.Parks = m.parks.Load()
	out.BlockingCompleted = m.blockingCompleted.Load()
	if m.latency != nil {
		out.PollLatency = m.latency.snapshot()
		out.PollsPerSecond = m.rate.perSecond()
	}
}

// latencyTracker keeps streaming quantile estimates of poll latency.
type latencyTracker struct {
	mu            sync.Mutex
	p50, p90, p99 quantile
	max, sum      time.Duration
	count         int
}

func newLatencyTracker() *latencyTracker {
	return &latencyTracker{
		p50: newQuantile(0.50),
		p90: newQuantile(0.90),
		p99: newQuantile(0.99),
	}
}

func (l *latencyTracker) record(d time.Duration) {
	x := float64(d)
	l.mu.Lock()
	l.p50.observe(x)
	l.p90.observe(x)
	l.p99.observe(x)
	l.count++
	l.sum += d
	l.max = max(l.max, d)
	l.mu.Unlock()
}

func (l *latencyTracker) snapshot() LatencyMetrics {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.count == 0 {
		return LatencyMetrics{}
	}
	return LatencyMetrics{
		P50:   time.Duration(l.p50.value()),
		P90:   time.Duration(l.p90.value()),
		P99:   time.Duration(l.p99.value()),
		Max:   l.max,
		Mean:  l.sum / time.Duration(l.count),
		Count: l.count,
	}
}

// rateCounter counts events over a rolling window split into buckets.
type rateCounter struct {
	mu      sync.Mutex
	buckets []int64
	// head is the start time of the newest bucket
	head   time.Time
	bucket time.Duration
	window time.Duration
}

func newRateCounter(window, bucket time.Duration) *rateCounter {
	n := max(int(window/bucket), 1)
	return &rateCounter{
		buckets: make([]int64, n),
		head:    time.Now(),
		bucket:  bucket,
		window:  window,
	}
}

func (r *rateCounter) increment() {
	r.mu.Lock()
	r.advance(time.Now())
	r.buckets[len(r.buckets)-1]++
	r.mu.Unlock()
}

func (r *rateCounter) perSecond() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advance(time.Now())
	var sum int64
	for _, c := range r.buckets {
		sum += c
	}
	return float64(sum) / r.window.Seconds()
}

// advance shifts the buckets so the newest one covers now.
func (r *rateCounter) advance(now time.Time) {
	steps := int(now.Sub(r.head) / r.bucket)
	switch {
	case steps <= 0:
		return
	case steps >= len(r.buckets):
		clear(r.buckets)
	default:
		copy(r.buckets, r.buckets[steps:])
		clear(r.buckets[len(r.buckets)-steps:])
	}
	r.head = r.head.Add(time.Duration(steps) * r.bucket)
}
