// Package worker implements the child process side of a run: request one
// suite at a time, execute it through the framework adapter, and leave the
// results behind in scratch files for the master to harvest.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/randomizedcoder/go-suite-swarm/internal/adapter"
	"github.com/randomizedcoder/go-suite-swarm/internal/logging"
	"github.com/randomizedcoder/go-suite-swarm/internal/process"
	"github.com/randomizedcoder/go-suite-swarm/internal/protocol"
)

// DefaultWaitDelay is the pause after a WAIT reply before the next POP.
const DefaultWaitDelay = 100 * time.Millisecond

// Config holds configuration for a worker.
type Config struct {
	Num        int
	Client     *protocol.Client
	Adapter    adapter.Adapter
	Hooks      *adapter.Hooks
	ScratchDir string

	// EarlyFailureLimit, when positive, makes the worker send KABOOM once
	// its failure count reaches the limit.
	EarlyFailureLimit int

	// WaitDelay overrides DefaultWaitDelay. Mostly for tests.
	WaitDelay time.Duration

	Logger  *slog.Logger
	Verbose bool
}

// Worker runs the POP/execute loop and records results.
type Worker struct {
	cfg    Config
	logger *slog.Logger
	output *logging.SuiteOutput

	results  []protocol.SuiteResult
	failures int
	captured strings.Builder
}

// New creates a worker.
func New(cfg Config) *Worker {
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = DefaultWaitDelay
	}
	logger := logging.ForWorker(cfg.Logger, cfg.Num)
	return &Worker{
		cfg:    cfg,
		logger: logger,
		output: logging.NewSuiteOutput(logger, cfg.Verbose),
	}
}

// Run executes the worker lifecycle and returns the process exit status:
// the number of failed suites, clamped to 255. Scratch files are written
// on every exit path so the master can always harvest.
func (w *Worker) Run(ctx context.Context) int {
	w.cfg.Hooks.InvokeAfterFork()

	status := w.cfg.Hooks.InvokeRunWorker(func() int {
		return w.loop(ctx)
	})

	w.writeScratchFiles()

	lines, flagged := w.output.Stats()
	w.logger.Debug("worker_finished",
		"exit_status", status,
		"output_lines", lines,
		"flagged_lines", flagged,
	)
	return status
}

func (w *Worker) loop(ctx context.Context) int {
	for {
		select {
		case <-ctx.Done():
			return w.exitStatus()
		default:
		}

		reply, err := w.cfg.Client.PopSuite()
		if err != nil {
			if errors.Is(err, protocol.ErrWrongRun) {
				w.logger.Info("worker_run_over", "reason", "wrong run token")
			} else {
				w.logger.Warn("worker_pop_failed", "error", err)
			}
			return w.exitStatus()
		}

		switch {
		case reply.Done:
			w.logger.Debug("worker_queue_drained")
			return w.exitStatus()

		case reply.Wait:
			select {
			case <-ctx.Done():
				return w.exitStatus()
			case <-time.After(w.cfg.WaitDelay):
			}

		case reply.Suite != nil:
			if done := w.runSuite(ctx, *reply.Suite); done {
				return w.exitStatus()
			}
		}
	}
}

// runSuite executes one suite and records its result. Returns true when
// the early-failure limit has been crossed and the run should stop.
func (w *Worker) runSuite(ctx context.Context, pair protocol.SuitePair) bool {
	w.logger.Debug("suite_starting", "suite", pair.Name, "path", pair.Path)

	result := w.cfg.Adapter.RunSuite(ctx, pair)
	w.results = append(w.results, result)
	w.capture(result)

	if result.Failed() {
		w.failures++
		w.logger.Warn("suite_failed",
			"suite", result.Name,
			"status", string(result.Status),
			"duration_seconds", result.DurationSeconds,
		)
		if w.cfg.EarlyFailureLimit > 0 && w.failures >= w.cfg.EarlyFailureLimit {
			w.logger.Warn("early_failure_limit_reached",
				"failures", w.failures,
				"limit", w.cfg.EarlyFailureLimit,
			)
			if err := w.cfg.Client.SendKaboom(); err != nil {
				w.logger.Warn("kaboom_send_failed", "error", err)
			}
			return true
		}
	} else {
		w.logger.Debug("suite_passed",
			"suite", result.Name,
			"duration_seconds", result.DurationSeconds,
		)
	}
	return false
}

// capture appends one suite's output to the stdout capture buffer and
// streams it through the output router.
func (w *Worker) capture(result protocol.SuiteResult) {
	header := fmt.Sprintf("=== %s (%s) %s in %.2fs",
		result.Name, result.Path, result.Status, result.DurationSeconds)
	w.captured.WriteString(header)
	w.captured.WriteByte('\n')
	w.output.Line(header)

	if len(result.Detail) > 0 {
		detail := string(result.Detail)
		w.captured.WriteString(detail)
		if !strings.HasSuffix(detail, "\n") {
			w.captured.WriteByte('\n')
		}
		for _, line := range strings.Split(strings.TrimRight(detail, "\n"), "\n") {
			w.output.Line(line)
		}
	}
}

func (w *Worker) exitStatus() int {
	if w.failures > 255 {
		return 255
	}
	return w.failures
}

// writeScratchFiles leaves the stdout capture and serialized results where
// the master's reap step expects them, named by this process's PID.
func (w *Worker) writeScratchFiles() {
	pid := os.Getpid()

	outPath := process.WorkerOutputPath(w.cfg.ScratchDir, pid)
	if err := os.WriteFile(outPath, []byte(w.captured.String()), 0o644); err != nil {
		w.logger.Warn("worker_output_write_failed", "error", err)
	}

	b, err := protocol.EncodeSuiteResults(w.results)
	if err != nil {
		w.logger.Error("worker_results_encode_failed", "error", err)
		return
	}
	suitesPath := process.WorkerSuitesPath(w.cfg.ScratchDir, pid)
	if err := os.WriteFile(suitesPath, b, 0o644); err != nil {
		w.logger.Warn("worker_results_write_failed", "error", err)
	}
}

// Results returns the suite results recorded so far.
func (w *Worker) Results() []protocol.SuiteResult {
	return w.results
}
