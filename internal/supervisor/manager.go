package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/randomizedcoder/go-suite-swarm/internal/process"
	"github.com/randomizedcoder/go-suite-swarm/internal/protocol"
)

// Config holds configuration for creating a Manager.
type Config struct {
	Builder    process.Builder
	ScratchDir string
	Host       string // defaults to os.Hostname
	Logger     *slog.Logger

	// OnReap is called with each finalized record. Relay mode uses it to
	// forward records to the primary. Optional.
	OnReap func(*protocol.WorkerRecord)
}

type tracked struct {
	num    int
	pid    int
	record *protocol.WorkerRecord
	state  State
}

type exitEvent struct {
	pid     int
	waitErr error
}

// Manager forks worker processes, remembers pid to record, reaps exits,
// and enforces a hard kill on abort. Workers are never restarted; a dead
// worker's exit status is simply part of the run result.
type Manager struct {
	cfg  Config
	host string

	mu       sync.Mutex
	workers  map[int]*tracked
	live     int
	aborting bool

	completed []*protocol.WorkerRecord
	exits     chan exitEvent
}

// NewManager creates a worker manager.
func NewManager(cfg Config) *Manager {
	host := cfg.Host
	if host == "" {
		host, _ = os.Hostname()
	}
	return &Manager{
		cfg:     cfg,
		host:    host,
		workers: make(map[int]*tracked),
		exits:   make(chan exitEvent, 64),
	}
}

// StartWorkers forks n workers numbered 0..n-1.
func (m *Manager) StartWorkers(ctx context.Context, n int) error {
	for num := 0; num < n; num++ {
		if err := m.startOne(ctx, num); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) startOne(ctx context.Context, num int) error {
	cmd, err := m.cfg.Builder.BuildCommand(ctx, num)
	if err != nil {
		return fmt.Errorf("supervisor: build worker %d: %w", num, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("supervisor: start worker %d: %w", num, err)
	}

	pid := cmd.Process.Pid
	t := &tracked{
		num: num,
		pid: pid,
		record: &protocol.WorkerRecord{
			Num:       num,
			PID:       pid,
			Host:      m.host,
			StartTime: time.Now(),
		},
		state: StateRunning,
	}

	m.mu.Lock()
	m.workers[pid] = t
	m.live++
	m.mu.Unlock()

	m.cfg.Logger.Info("worker_started", "worker_num", num, "pid", pid)

	go func() {
		m.exits <- exitEvent{pid: pid, waitErr: cmd.Wait()}
	}()

	return nil
}

// ReapAny finalizes any workers that have already exited, without
// blocking. Called from the dispatch loop on every poll timeout.
func (m *Manager) ReapAny() []*protocol.WorkerRecord {
	var reaped []*protocol.WorkerRecord
	for {
		select {
		case ev := <-m.exits:
			if rec := m.finalize(ev); rec != nil {
				reaped = append(reaped, rec)
			}
		default:
			return reaped
		}
	}
}

// ReapAll blocks until every live worker has been reaped.
func (m *Manager) ReapAll() []*protocol.WorkerRecord {
	var reaped []*protocol.WorkerRecord
	for m.LiveCount() > 0 {
		ev := <-m.exits
		if rec := m.finalize(ev); rec != nil {
			reaped = append(reaped, rec)
		}
	}
	return reaped
}

// finalize harvests the exited worker's scratch files, stamps its record,
// and appends it to the completed list. Returns nil while aborting.
func (m *Manager) finalize(ev exitEvent) *protocol.WorkerRecord {
	m.mu.Lock()
	t, ok := m.workers[ev.pid]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	t.state = StateReaped
	m.live--
	aborting := m.aborting
	m.mu.Unlock()

	rec := t.record
	rec.EndTime = time.Now()
	rec.ExitStatus = process.ExitCode(ev.waitErr)

	m.harvest(rec)

	m.cfg.Logger.Info("worker_reaped",
		"worker_num", rec.Num,
		"pid", rec.PID,
		"exit_status", rec.ExitStatus,
		"suites_run", len(rec.SuitesRun),
	)

	if aborting {
		return nil
	}

	m.mu.Lock()
	m.completed = append(m.completed, rec)
	m.mu.Unlock()

	if m.cfg.OnReap != nil {
		m.cfg.OnReap(rec)
	}
	return rec
}

// harvest reads and deletes the worker's scratch handoff files. A missing
// or garbled file leaves the record partially filled; the exit status
// still counts.
func (m *Manager) harvest(rec *protocol.WorkerRecord) {
	outPath := process.WorkerOutputPath(m.cfg.ScratchDir, rec.PID)
	if b, err := os.ReadFile(outPath); err == nil {
		rec.Stdout = string(b)
		os.Remove(outPath)
	}

	suitesPath := process.WorkerSuitesPath(m.cfg.ScratchDir, rec.PID)
	b, err := os.ReadFile(suitesPath)
	if err != nil {
		m.cfg.Logger.Warn("worker_suites_file_missing", "pid", rec.PID, "error", err)
		return
	}
	os.Remove(suitesPath)

	results, err := protocol.DecodeSuiteResults(b)
	if err != nil {
		m.cfg.Logger.Warn("worker_suites_file_garbled", "pid", rec.PID, "error", err)
		return
	}
	rec.SuitesRun = results

	failures := 0
	var failTexts []string
	for _, r := range results {
		if r.Failed() {
			failures++
			if len(r.Detail) > 0 {
				failTexts = append(failTexts, fmt.Sprintf("%s: %s", r.Name, r.Detail))
			}
		}
	}
	rec.Summary = fmt.Sprintf("%d suites, %d failures", len(results), failures)
	rec.Failure = strings.Join(failTexts, "\n")
}

// SetAborting marks the run as aborting. Exits reaped afterwards clean up
// scratch files but are not recorded as completions.
func (m *Manager) SetAborting() {
	m.mu.Lock()
	m.aborting = true
	m.mu.Unlock()
}

// KillAll sends SIGKILL to every live worker's process group.
func (m *Manager) KillAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for pid, t := range m.workers {
		if !t.state.IsLive() {
			continue
		}
		t.state = StateKilled
		if err := process.KillGroup(pid, syscall.SIGKILL); err != nil {
			m.cfg.Logger.Debug("worker_kill_failed", "pid", pid, "error", err)
		}
	}
}

// LiveCount returns the number of workers not yet reaped.
func (m *Manager) LiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}

// Completed returns the finalized records collected so far.
func (m *Manager) Completed() []*protocol.WorkerRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*protocol.WorkerRecord, len(m.completed))
	copy(out, m.completed)
	return out
}
