// Package metrics provides Prometheus metrics for go-suite-swarm.
//
// The dispatch-loop heartbeat drives the gauges; protocol handlers drive
// the counters. Everything is aggregate and low cardinality.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// --- Run overview ---
var (
	swarmInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "suite_swarm_info",
			Help: "Information about the run (value always 1)",
		},
		[]string{"version", "adapter"},
	)

	swarmQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "suite_swarm_queue_depth",
			Help: "Suites currently queued for dispatch",
		},
	)

	swarmAwaitedSuites = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "suite_swarm_awaited_suites",
			Help: "Whitelisted suites not yet reported by discovery",
		},
	)

	swarmLocalWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "suite_swarm_local_workers",
			Help: "Live worker processes on this host",
		},
	)

	swarmRemoteWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "suite_swarm_remote_workers",
			Help: "Worker records still owed by remote masters",
		},
	)

	swarmRunElapsedSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "suite_swarm_run_elapsed_seconds",
			Help: "Seconds since the run started",
		},
	)
)

// --- Dispatch and completion ---
var (
	swarmSuitesDispatchedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "suite_swarm_suites_dispatched_total",
			Help: "Suites handed to workers via POP",
		},
	)

	swarmSuitesCompletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "suite_swarm_suites_completed_total",
			Help: "Suite results received from workers",
		},
	)

	swarmSuiteFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "suite_swarm_suite_failures_total",
			Help: "Suite results that did not pass",
		},
	)

	swarmWrongTokenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "suite_swarm_wrong_token_total",
			Help: "Connections rejected for carrying a foreign run token",
		},
	)

	swarmWorkerExitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "suite_swarm_worker_exits_total",
			Help: "Worker exits by category",
		},
		[]string{"category"}, // "success", "error", "signal"
	)

	swarmSuiteDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "suite_swarm_suite_duration_seconds",
			Help:    "Suite wall-clock duration distribution",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
	)
)

// Collector manages the run's Prometheus metrics.
type Collector struct {
	startTime time.Time

	mu            sync.Mutex
	wrongTokens   int64
	workerExits   map[int]int64
	peakQueueLen  int
	suitesFailed  int64
	suitesDone    int64
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version string
	Adapter string
}

// NewCollector creates a collector registered on the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		startTime:   time.Now(),
		workerExits: make(map[int]int64),
	}

	registry.MustRegister(
		swarmInfo,
		swarmQueueDepth,
		swarmAwaitedSuites,
		swarmLocalWorkers,
		swarmRemoteWorkers,
		swarmRunElapsedSeconds,

		swarmSuitesDispatchedTotal,
		swarmSuitesCompletedTotal,
		swarmSuiteFailuresTotal,
		swarmWrongTokenTotal,
		swarmWorkerExitsTotal,
		swarmSuiteDurationSeconds,
	)

	swarmInfo.WithLabelValues(cfg.Version, cfg.Adapter).Set(1)
	return c
}

// HeartbeatUpdate is the gauge snapshot pushed on every dispatch-loop
// heartbeat.
type HeartbeatUpdate struct {
	QueueDepth    int
	AwaitedSuites int
	LocalWorkers  int
	RemoteWorkers int
}

// RecordHeartbeat refreshes the gauges from one heartbeat snapshot.
func (c *Collector) RecordHeartbeat(u HeartbeatUpdate) {
	swarmQueueDepth.Set(float64(u.QueueDepth))
	swarmAwaitedSuites.Set(float64(u.AwaitedSuites))
	swarmLocalWorkers.Set(float64(u.LocalWorkers))
	swarmRemoteWorkers.Set(float64(u.RemoteWorkers))
	swarmRunElapsedSeconds.Set(time.Since(c.startTime).Seconds())

	c.mu.Lock()
	if u.QueueDepth > c.peakQueueLen {
		c.peakQueueLen = u.QueueDepth
	}
	c.mu.Unlock()
}

// SuiteDispatched records one POP answered with a suite.
func (c *Collector) SuiteDispatched() {
	swarmSuitesDispatchedTotal.Inc()
}

// SuiteCompleted records one suite result and its duration.
func (c *Collector) SuiteCompleted(durationSeconds float64, failed bool) {
	swarmSuitesCompletedTotal.Inc()
	swarmSuiteDurationSeconds.Observe(durationSeconds)

	c.mu.Lock()
	c.suitesDone++
	if failed {
		c.suitesFailed++
	}
	c.mu.Unlock()

	if failed {
		swarmSuiteFailuresTotal.Inc()
	}
}

// WrongToken records one rejected foreign-token connection.
func (c *Collector) WrongToken() {
	swarmWrongTokenTotal.Inc()

	c.mu.Lock()
	c.wrongTokens++
	c.mu.Unlock()
}

// WorkerExited records one reaped worker by exit category.
func (c *Collector) WorkerExited(exitStatus int) {
	category := "error"
	switch {
	case exitStatus == 0:
		category = "success"
	case exitStatus > 128:
		category = "signal"
	}
	swarmWorkerExitsTotal.WithLabelValues(category).Inc()

	c.mu.Lock()
	c.workerExits[exitStatus]++
	c.mu.Unlock()
}

// PeakQueueDepth returns the deepest queue observed at a heartbeat.
func (c *Collector) PeakQueueDepth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peakQueueLen
}

// SuitesCompleted returns how many suite results have been recorded.
func (c *Collector) SuitesCompleted() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suitesDone
}

// SuitesFailed returns how many recorded suite results did not pass.
func (c *Collector) SuitesFailed() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suitesFailed
}

// WrongTokenCount returns how many foreign-token connections were rejected.
func (c *Collector) WrongTokenCount() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wrongTokens
}

// WorkerExits returns a copy of the exit-status histogram.
func (c *Collector) WorkerExits() map[int]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int]int64, len(c.workerExits))
	for k, v := range c.workerExits {
		out[k] = v
	}
	return out
}

// StartTime returns when the collector was created.
func (c *Collector) StartTime() time.Time {
	return c.startTime
}
