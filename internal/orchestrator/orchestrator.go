// Package orchestrator drives a run end to end: preflight, listener,
// children, dispatch, harvest, summary. The `run` and `relay` CLI commands
// are thin wrappers around it.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-suite-swarm/internal/adapter"
	"github.com/randomizedcoder/go-suite-swarm/internal/config"
	"github.com/randomizedcoder/go-suite-swarm/internal/master"
	"github.com/randomizedcoder/go-suite-swarm/internal/metrics"
	"github.com/randomizedcoder/go-suite-swarm/internal/preflight"
	"github.com/randomizedcoder/go-suite-swarm/internal/process"
	"github.com/randomizedcoder/go-suite-swarm/internal/protocol"
	"github.com/randomizedcoder/go-suite-swarm/internal/queue"
	"github.com/randomizedcoder/go-suite-swarm/internal/runid"
	"github.com/randomizedcoder/go-suite-swarm/internal/stats"
	"github.com/randomizedcoder/go-suite-swarm/internal/supervisor"
)

// Orchestrator owns one run on this host, primary or relay.
type Orchestrator struct {
	cfg       *config.Config
	adapter   adapter.Adapter
	hooks     *adapter.Hooks
	collector *metrics.Collector
	logger    *slog.Logger
	version   string

	// Summary receives the formatted exit summary. Defaults to stdout.
	Summary func(string)
}

// Config holds everything an Orchestrator needs beyond the run config.
type Config struct {
	Run     *config.Config
	Adapter adapter.Adapter
	Hooks   *adapter.Hooks
	Logger  *slog.Logger
	Version string

	// Collector, when set, is used instead of a freshly registered one.
	// Callers that read counters while the run is live pass their own.
	Collector *metrics.Collector
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg.Run,
		adapter:   cfg.Adapter,
		hooks:     cfg.Hooks,
		collector: cfg.Collector,
		logger:    cfg.Logger,
		version:   cfg.Version,
		Summary:   func(s string) { fmt.Print(s) },
	}
}

// RunPrimary executes a primary-master run and returns the process exit
// status: the saturating sum of worker failure counts, or at least 1 when
// the run aborted.
func (o *Orchestrator) RunPrimary(ctx context.Context) (int, error) {
	if !o.cfg.SkipPreflight {
		result := preflight.RunAll(preflight.Input{
			Workers:    o.cfg.Concurrency,
			ScratchDir: o.cfg.ScratchDir,
			SuiteDir:   o.cfg.SuiteDir,
			Socket:     o.cfg.Socket,
		})
		fmt.Print(result.Report())
		if !result.Passed {
			return 1, errors.New("preflight checks failed (use -skip-preflight to override)")
		}
	}

	token := o.cfg.RelayToken
	if token == "" {
		var err error
		token, err = runid.NewToken()
		if err != nil {
			return 1, err
		}
	}

	gen, err := runid.NewGenerator()
	if err != nil {
		return 1, err
	}
	runID, err := gen.Next()
	if err != nil {
		return 1, err
	}

	endpoint, err := o.endpoint(runID)
	if err != nil {
		return 1, err
	}
	o.logger.Info("run_starting",
		"run_id", runID,
		"endpoint", endpoint.String(),
		"concurrency", o.cfg.Concurrency,
		"adapter", o.adapter.Name(),
	)

	history, err := stats.LoadHistory(o.cfg.StatsFile)
	if err != nil {
		o.logger.Warn("stats_history_unreadable", "path", o.cfg.StatsFile, "error", err)
		history = stats.NewHistory()
	}

	q := queue.New(history.Durations())
	whitelist, err := parseWhitelist(o.cfg.Whitelist)
	if err != nil {
		return 1, err
	}
	if len(whitelist) > 0 {
		q.SetWhitelist(whitelist)
		o.logger.Info("whitelist_set", "suites", len(whitelist))
	}

	collector := o.collector
	if collector == nil {
		collector = metrics.NewCollector(metrics.CollectorConfig{
			Version: o.version,
			Adapter: o.adapter.Name(),
		})
	}
	metricsServer := metrics.NewServer(o.cfg.MetricsAddr, prometheus.DefaultGatherer, o.logger)
	if err := metricsServer.Start(); err != nil {
		return 1, err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		metricsServer.Shutdown(shutdownCtx)
	}()

	if err := o.hooks.InvokePrepare(o.cfg.Concurrency); err != nil {
		return 1, fmt.Errorf("prepare hook: %w", err)
	}

	builder, err := process.NewSelfExec(o.childConfig(endpoint, token))
	if err != nil {
		return 1, err
	}
	manager := supervisor.NewManager(supervisor.Config{
		Builder:    builder,
		ScratchDir: o.cfg.ScratchDir,
		Logger:     o.logger,
	})

	agg := stats.NewAggregator()

	diagPath := filepath.Join(o.cfg.ScratchDir,
		fmt.Sprintf("suite_swarm_%d_%s_diagnostics.log", os.Getpid(), runID))
	m := master.New(master.Config{
		Endpoint:        endpoint,
		Token:           token,
		Queue:           q,
		Manager:         manager,
		OnWorkerRecord:  agg.AddRecord,
		DiagnosticsPath: diagPath,
		Collector:       collector,
		Hooks:           o.hooks,
		Logger:          o.logger,
	})
	if err := m.Listen(); err != nil {
		return 1, err
	}
	defer m.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	discoveryCmd, err := builder.BuildDiscoveryCommand(ctx)
	if err != nil {
		return 1, err
	}
	discovery, err := supervisor.StartDiscovery(discoveryCmd, o.logger)
	if err != nil {
		return 1, err
	}
	m.SetDiscovery(discovery)

	if err := manager.StartWorkers(ctx, o.cfg.Concurrency); err != nil {
		o.abort(manager, discovery)
		return 1, err
	}

	serveErr := m.Serve(ctx)
	m.Close()

	switch {
	case serveErr == nil:
		// Workers notice the closed socket on their next POP and drain.
		for _, rec := range manager.ReapAll() {
			collector.WorkerExited(rec.ExitStatus)
			for _, r := range rec.SuitesRun {
				collector.SuiteCompleted(r.DurationSeconds, r.Failed())
			}
			agg.AddRecord(rec)
		}

		agg.ObservedDurations(history)
		if err := history.Save(o.cfg.StatsFile); err != nil {
			o.logger.Warn("stats_history_save_failed", "path", o.cfg.StatsFile, "error", err)
		}

		o.summarize(agg, m.RemoteWorkersAnnounced())
		return agg.ExitStatus(), nil

	case errors.Is(serveErr, master.ErrKaboom):
		o.logger.Error("run_aborted", "reason", "kaboom")
		o.abort(manager, discovery)
		o.summarize(agg, m.RemoteWorkersAnnounced())
		return failStatus(agg), nil

	case errors.Is(serveErr, context.Canceled):
		o.logger.Info("run_aborted", "reason", "signal")
		o.abort(manager, discovery)
		return failStatus(agg), nil

	default:
		o.abort(manager, discovery)
		return failStatus(agg), serveErr
	}
}

// abort tears the run down hard: completions stop being recorded, every
// child's process group is killed, and the corpses are reaped so scratch
// files are cleaned up.
func (o *Orchestrator) abort(manager *supervisor.Manager, discovery *supervisor.Discovery) {
	manager.SetAborting()
	if discovery != nil {
		discovery.Kill()
	}
	manager.KillAll()
	manager.ReapAll()
	if discovery != nil {
		discovery.Wait()
	}
}

func (o *Orchestrator) summarize(agg *stats.Aggregator, remoteWorkers int) {
	out := stats.FormatExitSummary(agg, stats.SummaryConfig{
		LocalWorkers:  o.cfg.Concurrency,
		RemoteWorkers: remoteWorkers,
		MetricsAddr:   o.cfg.MetricsAddr,
	})
	if extra := o.hooks.InvokeSummarize(); extra != "" {
		out += extra
		if !strings.HasSuffix(extra, "\n") {
			out += "\n"
		}
	}
	o.Summary(out)
}

// endpoint resolves where the run socket lives: the configured endpoint,
// or a per-run unix socket in the scratch directory.
func (o *Orchestrator) endpoint(runID string) (protocol.Endpoint, error) {
	if o.cfg.Socket != "" {
		return protocol.ParseEndpoint(o.cfg.Socket)
	}
	return protocol.Endpoint{
		Network: "unix",
		Addr:    process.SocketPath(o.cfg.ScratchDir, os.Getpid(), runID),
	}, nil
}

func (o *Orchestrator) childConfig(endpoint protocol.Endpoint, token string) process.ChildConfig {
	return process.ChildConfig{
		Endpoint:          endpoint.Addr,
		Token:             token,
		ScratchDir:        o.cfg.ScratchDir,
		SuiteDir:          o.cfg.SuiteDir,
		SuitePattern:      o.cfg.SuitePattern,
		EarlyFailureLimit: o.cfg.EarlyFailureLimit,
		LogFormat:         o.cfg.LogFormat,
		LogLevel:          o.cfg.LogLevel,
		Verbose:           o.cfg.Verbose,
	}
}

// failStatus is the exit status for an aborted run: the failures seen so
// far, and never zero.
func failStatus(agg *stats.Aggregator) int {
	if s := agg.ExitStatus(); s > 0 {
		return s
	}
	return 1
}

// parseWhitelist turns "name=path" entries into suite pairs.
func parseWhitelist(entries []string) ([]protocol.SuitePair, error) {
	var pairs []protocol.SuitePair
	for _, entry := range entries {
		name, path, ok := strings.Cut(entry, "=")
		if !ok || name == "" || path == "" {
			return nil, fmt.Errorf("orchestrator: whitelist entry %q must be name=path", entry)
		}
		pairs = append(pairs, protocol.SuitePair{Name: name, Path: path})
	}
	return pairs, nil
}
