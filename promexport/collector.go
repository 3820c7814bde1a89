// Package promexport exposes asyncrt runtime metrics to Prometheus.
//
//	reg := prometheus.NewRegistry()
//	reg.MustRegister(promexport.NewCollector(rt))
//
// Values are read from Runtime.Metrics at scrape time. Every series carries
// runtime_id and flavor labels, so several runtimes may share a registry.
package promexport

import (
	"strconv"

	"github.com/joeycumines/go-asyncrt"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "asyncrt"

// Collector is a prometheus.Collector over one runtime's metrics.
type Collector struct {
	rt     *asyncrt.Runtime
	labels prometheus.Labels

	counters []counterDesc
	gauges   []gaugeDesc

	localQueue  *prometheus.Desc
	pollLatency *prometheus.Desc
	pollRate    *prometheus.Desc
}

type counterDesc struct {
	desc  *prometheus.Desc
	value func(*asyncrt.Metrics) uint64
}

type gaugeDesc struct {
	desc  *prometheus.Desc
	value func(*asyncrt.Metrics) float64
}

// NewCollector returns a collector for rt.
func NewCollector(rt *asyncrt.Runtime) *Collector {
	c := &Collector{
		rt: rt,
		labels: prometheus.Labels{
			"runtime_id": rt.ID().String(),
			"flavor":     rt.Flavor().String(),
		},
	}
	counter := func(name, help string, value func(*asyncrt.Metrics) uint64) {
		c.counters = append(c.counters, counterDesc{c.desc(name+"_total", help), value})
	}
	gauge := func(name, help string, value func(*asyncrt.Metrics) float64) {
		c.gauges = append(c.gauges, gaugeDesc{c.desc(name, help), value})
	}

	counter("tasks_spawned", "Tasks spawned, including blocking jobs.", func(m *asyncrt.Metrics) uint64 { return m.SpawnedTasks })
	counter("tasks_completed", "Tasks that ran to completion.", func(m *asyncrt.Metrics) uint64 { return m.CompletedTasks })
	counter("tasks_cancelled", "Tasks cancelled before completing.", func(m *asyncrt.Metrics) uint64 { return m.CancelledTasks })
	counter("tasks_panicked", "Tasks whose poll panicked.", func(m *asyncrt.Metrics) uint64 { return m.PanickedTasks })
	counter("polls", "Task polls.", func(m *asyncrt.Metrics) uint64 { return m.Polls })
	counter("wakes_coalesced", "Wakes absorbed because the task was already scheduled.", func(m *asyncrt.Metrics) uint64 { return m.WakesCoalesced })
	counter("budget_yields", "Forced yields after exhausting the cooperative budget.", func(m *asyncrt.Metrics) uint64 { return m.BudgetYields })
	counter("lifo_polls", "Polls taken from a worker's LIFO slot.", func(m *asyncrt.Metrics) uint64 { return m.LIFOPolls })
	counter("steals", "Successful steal operations.", func(m *asyncrt.Metrics) uint64 { return m.Steals })
	counter("stolen_tasks", "Tasks moved by stealing.", func(m *asyncrt.Metrics) uint64 { return m.StolenTasks })
	counter("injector_pushes", "Tasks pushed to the global queue.", func(m *asyncrt.Metrics) uint64 { return m.InjectorPushes })
	counter("worker_parks", "Times a worker parked.", func(m *asyncrt.Metrics) uint64 { return m.Parks })
	counter("blocking_completed", "Blocking jobs finished.", func(m *asyncrt.Metrics) uint64 { return m.BlockingCompleted })

	gauge("workers", "Scheduler threads.", func(m *asyncrt.Metrics) float64 { return float64(m.Workers) })
	gauge("tasks_live", "Tasks neither completed nor cancelled.", func(m *asyncrt.Metrics) float64 { return float64(m.LiveTasks) })
	gauge("global_queue_depth", "Tasks in the global queue.", func(m *asyncrt.Metrics) float64 { return float64(m.GlobalQueueDepth) })
	gauge("blocking_threads", "Blocking pool threads.", func(m *asyncrt.Metrics) float64 { return float64(m.BlockingThreads) })
	gauge("blocking_idle_threads", "Idle blocking pool threads.", func(m *asyncrt.Metrics) float64 { return float64(m.BlockingIdle) })
	gauge("blocking_queued", "Blocking jobs waiting for a thread.", func(m *asyncrt.Metrics) float64 { return float64(m.BlockingQueued) })
	gauge("registrations", "Live reactor registrations.", func(m *asyncrt.Metrics) float64 { return float64(m.Registrations) })
	gauge("timers_pending", "Timers in the wheel.", func(m *asyncrt.Metrics) float64 { return float64(m.PendingTimers) })

	c.localQueue = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "local_queue_depth"),
		"Tasks in a worker's local queue.",
		[]string{"worker"}, c.labels,
	)
	c.pollLatency = c.desc("poll_duration_seconds", "Task poll duration quantiles, when latency tracking is on.")
	c.pollRate = c.desc("polls_per_second", "Recent poll rate, when latency tracking is on.")
	return c
}

func (c *Collector) desc(name, help string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, c.labels)
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.counters {
		ch <- d.desc
	}
	for _, d := range c.gauges {
		ch <- d.desc
	}
	ch <- c.localQueue
	ch <- c.pollLatency
	ch <- c.pollRate
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	m := c.rt.Metrics()
	for _, d := range c.counters {
		ch <- prometheus.MustNewConstMetric(d.desc, prometheus.CounterValue, float64(d.value(&m)))
	}
	for _, d := range c.gauges {
		ch <- prometheus.MustNewConstMetric(d.desc, prometheus.GaugeValue, d.value(&m))
	}
	for i, n := range m.LocalQueueDepth {
		ch <- prometheus.MustNewConstMetric(c.localQueue, prometheus.GaugeValue, float64(n), strconv.Itoa(i))
	}
	if lat := m.PollLatency; lat.Count > 0 {
		ch <- prometheus.MustNewConstSummary(
			c.pollLatency,
			uint64(lat.Count),
			lat.Mean.Seconds()*float64(lat.Count),
			map[float64]float64{
				0.5:  lat.P50.Seconds(),
				0.9:  lat.P90.Seconds(),
				0.99: lat.P99.Seconds(),
			},
		)
		ch <- prometheus.MustNewConstMetric(c.pollRate, prometheus.GaugeValue, m.PollsPerSecond)
	}
}
