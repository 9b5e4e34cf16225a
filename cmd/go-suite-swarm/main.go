// Package main provides the go-suite-swarm CLI entry point.
//
// go-suite-swarm distributes a queue of test suites across worker
// processes on one or more hosts and aggregates the results.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v2"

	"github.com/randomizedcoder/go-suite-swarm/internal/adapter"
	"github.com/randomizedcoder/go-suite-swarm/internal/config"
	"github.com/randomizedcoder/go-suite-swarm/internal/logging"
	"github.com/randomizedcoder/go-suite-swarm/internal/metrics"
	"github.com/randomizedcoder/go-suite-swarm/internal/orchestrator"
	"github.com/randomizedcoder/go-suite-swarm/internal/tui"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-suite-swarm
var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	cli.VersionFlag = &cli.BoolFlag{
		Name:  "version",
		Usage: "print the version",
	}
	return &cli.App{
		Name:    "go-suite-swarm",
		Usage:   "distribute test suites across worker processes and hosts",
		Version: version,
		Commands: []*cli.Command{
			runCommand(),
			relayCommand(),
			statusCommand(),
			workerCommand(),
			discoverCommand(),
		},
	}
}

// commonFlags are shared by the run and relay commands. None carry
// defaults here; DefaultConfig supplies them so a config file can sit in
// between.
func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "TOML config file (flags override file values)",
		},
		&cli.IntFlag{
			Name:    "concurrency",
			Aliases: []string{"c"},
			Usage:   "worker processes to fork (default: logical CPU count)",
		},
		&cli.StringFlag{
			Name:  "suite-dir",
			Usage: "directory walked for suite files",
		},
		&cli.StringFlag{
			Name:  "suite-pattern",
			Usage: "file-name glob matched during discovery",
		},
		&cli.StringFlag{
			Name:  "scratch-dir",
			Usage: "directory for sockets and worker result files",
		},
		&cli.IntFlag{
			Name:  "early-failure-limit",
			Usage: "abort the run once any worker accumulates this many failures (0 = unlimited)",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "log output format: json or text",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "log level: debug, info, warn, error",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "stream suite output and enable debug logging",
		},
		&cli.BoolFlag{
			Name:  "skip-preflight",
			Usage: "skip host capability checks",
		},
	}
}

func runCommand() *cli.Command {
	flags := append(commonFlags(),
		&cli.StringFlag{
			Name:  "socket",
			Usage: "listen endpoint: port, host:port, or unix socket path (default: per-run unix socket in scratch-dir)",
		},
		&cli.StringFlag{
			Name:  "token",
			Usage: "run token (default: random; set explicitly when relays will join)",
		},
		&cli.StringSliceFlag{
			Name:    "whitelist",
			Aliases: []string{"w"},
			Usage:   "run only this suite, given as name=path (repeatable, order preserved)",
		},
		&cli.StringFlag{
			Name:  "stats-file",
			Usage: "suite duration history file",
		},
		&cli.StringFlag{
			Name:  "metrics-addr",
			Usage: "Prometheus metrics listen address",
		},
		&cli.BoolFlag{
			Name:  "tui",
			Usage: "show a live dashboard instead of log output",
		},
	)
	return &cli.Command{
		Name:   "run",
		Usage:  "start a primary master on this host",
		Flags:  flags,
		Action: runAction,
	}
}

func relayCommand() *cli.Command {
	flags := append(commonFlags(),
		&cli.StringFlag{
			Name:     "token",
			Usage:    "run token shared with the primary",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "slave-name",
			Usage: "host name announced to the primary (default: hostname)",
		},
		&cli.StringFlag{
			Name:  "slave-message",
			Usage: "free-form note announced to the primary",
		},
		&cli.DurationFlag{
			Name:  "retry-window",
			Usage: "how long to retry the handshake before giving up",
		},
		&cli.DurationFlag{
			Name:  "retry-backoff",
			Usage: "pause between handshake attempts",
		},
	)
	return &cli.Command{
		Name:      "relay",
		Usage:     "join a primary run from this host",
		ArgsUsage: "<primary endpoint>",
		Flags:     flags,
		Action:    relayAction,
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "print a snapshot of a running master from its metrics endpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "metrics address of the master to query",
				Value: config.DefaultConfig().MetricsAddr,
			},
		},
		Action: statusAction,
	}
}

// buildConfig layers defaults, then the config file, then explicit flags.
func buildConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path := c.String("config"); path != "" {
		if err := config.LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if c.IsSet("concurrency") {
		cfg.Concurrency = c.Int("concurrency")
	}
	if c.IsSet("socket") {
		cfg.Socket = c.String("socket")
	}
	if c.IsSet("token") {
		cfg.RelayToken = c.String("token")
	}
	if c.IsSet("slave-name") {
		cfg.SlaveName = c.String("slave-name")
	}
	if c.IsSet("slave-message") {
		cfg.SlaveMessage = c.String("slave-message")
	}
	if c.IsSet("retry-window") {
		cfg.RelayRetryWindow = c.Duration("retry-window")
	}
	if c.IsSet("retry-backoff") {
		cfg.RelayRetryBackoff = c.Duration("retry-backoff")
	}
	if c.IsSet("suite-dir") {
		cfg.SuiteDir = c.String("suite-dir")
	}
	if c.IsSet("suite-pattern") {
		cfg.SuitePattern = c.String("suite-pattern")
	}
	if c.IsSet("whitelist") {
		cfg.Whitelist = c.StringSlice("whitelist")
	}
	if c.IsSet("scratch-dir") {
		cfg.ScratchDir = c.String("scratch-dir")
	}
	if c.IsSet("stats-file") {
		cfg.StatsFile = c.String("stats-file")
	}
	if c.IsSet("early-failure-limit") {
		cfg.EarlyFailureLimit = c.Int("early-failure-limit")
	}
	if c.IsSet("metrics-addr") {
		cfg.MetricsAddr = c.String("metrics-addr")
	}
	if c.IsSet("log-format") {
		cfg.LogFormat = c.String("log-format")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("verbose") {
		cfg.Verbose = c.Bool("verbose")
	}
	if c.IsSet("tui") {
		cfg.TUIEnabled = c.Bool("tui")
	}
	if c.IsSet("skip-preflight") {
		cfg.SkipPreflight = c.Bool("skip-preflight")
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	var logger *slog.Logger
	if cfg.TUIEnabled {
		// Logs would tear the dashboard; discard them while the TUI owns
		// the terminal.
		logger = logging.Discard()
	} else {
		logger = logging.New(logging.Options{
			Format:  cfg.LogFormat,
			Level:   cfg.LogLevel,
			Verbose: cfg.Verbose,
		})
	}
	slog.SetDefault(logger)
	return logger
}

func runAction(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if err := config.Validate(cfg); err != nil {
		return cli.Exit(fmt.Sprintf("configuration error: %v", err), 1)
	}

	logger := newLogger(cfg)
	logger.Info("starting",
		"version", version,
		"concurrency", cfg.Concurrency,
		"suite_dir", cfg.SuiteDir,
		"metrics_addr", cfg.MetricsAddr,
	)

	ad := &adapter.ScriptAdapter{Root: cfg.SuiteDir, Pattern: cfg.SuitePattern}
	hooks := &adapter.Hooks{}
	orchCfg := orchestrator.Config{
		Run:     cfg,
		Adapter: ad,
		Hooks:   hooks,
		Logger:  logger,
		Version: version,
	}

	if cfg.TUIEnabled {
		return runWithTUI(c.Context, orchCfg)
	}

	orch := orchestrator.New(orchCfg)
	status, err := orch.RunPrimary(c.Context)
	if err != nil {
		logger.Error("run_failed", "error", err)
		return cli.Exit(err.Error(), exitCode(status))
	}
	if status != 0 {
		return cli.Exit("", status)
	}
	return nil
}

// runWithTUI drives a primary run under the dashboard. The heartbeat hook
// feeds snapshots to the TUI; quitting the TUI cancels the run.
func runWithTUI(ctx context.Context, orchCfg orchestrator.Config) error {
	cfg := orchCfg.Run

	collector := metrics.NewCollector(metrics.CollectorConfig{
		Version: version,
		Adapter: orchCfg.Adapter.Name(),
	})
	orchCfg.Collector = collector

	program := tea.NewProgram(tui.New(tui.Config{
		TargetWorkers: cfg.Concurrency,
		AdapterName:   orchCfg.Adapter.Name(),
		MetricsAddr:   cfg.MetricsAddr,
	}), tea.WithAltScreen())

	orchCfg.Hooks.QueueStatus = func(s adapter.QueueStatus) {
		tui.SendSnapshot(program, tui.Snapshot{
			QueueDepth:    s.Depth,
			Awaited:       s.Awaited,
			LocalWorkers:  s.LocalWorkers,
			RemoteWorkers: s.RemoteWorkers,
			Completed:     collector.SuitesCompleted(),
			Failed:        collector.SuitesFailed(),
			WrongTokens:   collector.WrongTokenCount(),
		})
	}

	orch := orchestrator.New(orchCfg)
	var summary string
	orch.Summary = func(s string) { summary = s }

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type runResult struct {
		status int
		err    error
	}
	done := make(chan runResult, 1)
	go func() {
		status, err := orch.RunPrimary(runCtx)
		done <- runResult{status: status, err: err}
		tui.SendQuit(program)
	}()

	_, tuiErr := program.Run()
	cancel()
	res := <-done

	if summary != "" {
		fmt.Print(summary)
	}
	if tuiErr != nil {
		return cli.Exit(fmt.Sprintf("tui: %v", tuiErr), 1)
	}
	if res.err != nil {
		return cli.Exit(res.err.Error(), exitCode(res.status))
	}
	if res.status != 0 {
		return cli.Exit("", res.status)
	}
	return nil
}

func relayAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("relay requires exactly one argument: the primary endpoint", 1)
	}

	cfg, err := buildConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	cfg.Relay = c.Args().First()
	if err := config.Validate(cfg); err != nil {
		return cli.Exit(fmt.Sprintf("configuration error: %v", err), 1)
	}

	logger := newLogger(cfg)
	logger.Info("starting_relay",
		"version", version,
		"primary", cfg.Relay,
		"concurrency", cfg.Concurrency,
	)

	orch := orchestrator.New(orchestrator.Config{
		Run:     cfg,
		Adapter: &adapter.ScriptAdapter{Root: cfg.SuiteDir, Pattern: cfg.SuitePattern},
		Hooks:   &adapter.Hooks{},
		Logger:  logger,
		Version: version,
	})
	status, err := orch.RunRelay(c.Context)
	if err != nil {
		logger.Error("relay_failed", "error", err)
		return cli.Exit(err.Error(), exitCode(status))
	}
	if status != 0 {
		return cli.Exit("", status)
	}
	return nil
}

func statusAction(c *cli.Context) error {
	scraper := metrics.NewStatusScraper(c.String("metrics-addr"))
	st, err := scraper.Scrape()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	fmt.Print(st.Format())
	return nil
}

// exitCode clamps an exit status for error paths, which must never report
// success.
func exitCode(status int) int {
	if status > 0 {
		return status
	}
	return 1
}
