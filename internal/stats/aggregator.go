// Package stats tracks suite durations across runs and aggregates the
// current run's worker records into an exit summary.
//
// This file implements Aggregator, which collects finalized worker records
// (local and forwarded) and answers snapshot queries for the heartbeat, the
// dashboard, and the exit summary.
package stats

import (
	"sync"
	"time"

	"github.com/influxdata/tdigest"

	"github.com/randomizedcoder/go-suite-swarm/internal/protocol"
)

// RunSnapshot holds run-wide totals at one instant. Values are computed at
// Snapshot time; the returned struct is safe to retain.
type RunSnapshot struct {
	Timestamp time.Time
	Elapsed   time.Duration

	WorkersReported int
	SuitesCompleted int
	SuitesFailed    int

	// Duration percentiles over all completed suites, in seconds.
	DurationP50 float64
	DurationP95 float64
	DurationP99 float64

	// ExitStatusSum is the saturating sum of worker exit statuses.
	ExitStatusSum int
}

// Aggregator accumulates worker records for one run.
//
// Thread-safe: the dispatch loop writes while the heartbeat and dashboard
// read.
type Aggregator struct {
	mu        sync.RWMutex
	records   []*protocol.WorkerRecord
	digest    *tdigest.TDigest
	startTime time.Time

	suitesCompleted int
	suitesFailed    int
	exitStatusSum   int
}

// NewAggregator creates an aggregator anchored at the current time.
func NewAggregator() *Aggregator {
	return &Aggregator{
		digest:    tdigest.NewWithCompression(100),
		startTime: time.Now(),
	}
}

// AddRecord folds one finalized worker record into the run totals.
func (a *Aggregator) AddRecord(rec *protocol.WorkerRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.records = append(a.records, rec)
	a.exitStatusSum += rec.ExitStatus
	if a.exitStatusSum > 255 {
		a.exitStatusSum = 255
	}
	for _, r := range rec.SuitesRun {
		a.suitesCompleted++
		if r.Failed() {
			a.suitesFailed++
		}
		a.digest.Add(r.DurationSeconds, 1)
	}
}

// Records returns the worker records collected so far, in arrival order.
func (a *Aggregator) Records() []*protocol.WorkerRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]*protocol.WorkerRecord(nil), a.records...)
}

// ExitStatus returns the saturating sum of worker exit statuses, clamped
// to 255.
func (a *Aggregator) ExitStatus() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.exitStatusSum
}

// ObservedDurations merges this run's suite durations into the history.
func (a *Aggregator) ObservedDurations(h *History) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, rec := range a.records {
		for _, r := range rec.SuitesRun {
			h.Observe(r.Pair(), r.DurationSeconds)
		}
	}
}

// FailedSuites returns every non-passing suite result across all workers.
func (a *Aggregator) FailedSuites() []protocol.SuiteResult {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var failed []protocol.SuiteResult
	for _, rec := range a.records {
		for _, r := range rec.SuitesRun {
			if r.Failed() {
				failed = append(failed, r)
			}
		}
	}
	return failed
}

// StartTime returns when the aggregator was created.
func (a *Aggregator) StartTime() time.Time {
	return a.startTime
}

// Snapshot computes the current run totals.
func (a *Aggregator) Snapshot() *RunSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	now := time.Now()
	snap := &RunSnapshot{
		Timestamp:       now,
		Elapsed:         now.Sub(a.startTime),
		WorkersReported: len(a.records),
		SuitesCompleted: a.suitesCompleted,
		SuitesFailed:    a.suitesFailed,
		ExitStatusSum:   a.exitStatusSum,
	}
	if a.suitesCompleted > 0 {
		snap.DurationP50 = a.digest.Quantile(0.50)
		snap.DurationP95 = a.digest.Quantile(0.95)
		snap.DurationP99 = a.digest.Quantile(0.99)
	}
	return snap
}
