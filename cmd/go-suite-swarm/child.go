package main

import (
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/randomizedcoder/go-suite-swarm/internal/adapter"
	"github.com/randomizedcoder/go-suite-swarm/internal/discovery"
	"github.com/randomizedcoder/go-suite-swarm/internal/logging"
	"github.com/randomizedcoder/go-suite-swarm/internal/protocol"
	"github.com/randomizedcoder/go-suite-swarm/internal/worker"
)

const childDialTimeout = 5 * time.Second

// childFlags are the flags SelfExec puts on every forked child's command
// line. Names must stay in sync with process.SelfExec.
func childFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "endpoint",
			Usage:    "master endpoint: unix socket path or host:port",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "token",
			Usage:    "run token",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "scratch-dir",
			Value: "/tmp",
		},
		&cli.StringFlag{
			Name:  "suite-dir",
			Value: ".",
		},
		&cli.StringFlag{
			Name:  "suite-pattern",
			Value: "*_test.sh",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Value: "json",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Value: "info",
		},
		&cli.BoolFlag{
			Name:  "v",
			Usage: "stream suite output",
		},
	}
}

func workerCommand() *cli.Command {
	flags := append([]cli.Flag{
		&cli.IntFlag{
			Name:     "num",
			Usage:    "worker number within the run",
			Required: true,
		},
		&cli.IntFlag{
			Name:  "early-failure-limit",
			Usage: "send KABOOM once this many suites have failed (0 = never)",
		},
	}, childFlags()...)
	return &cli.Command{
		Name:   "worker",
		Usage:  "suite-executing child, forked by run and relay",
		Hidden: true,
		Flags:  flags,
		Action: workerAction,
	}
}

func discoverCommand() *cli.Command {
	return &cli.Command{
		Name:   "discover",
		Usage:  "suite-enumerating child, forked by run",
		Hidden: true,
		Flags:  childFlags(),
		Action: discoverAction,
	}
}

func childClient(c *cli.Context) (*protocol.Client, error) {
	endpoint, err := protocol.ParseEndpoint(c.String("endpoint"))
	if err != nil {
		return nil, err
	}
	return &protocol.Client{
		Endpoint:    endpoint,
		Token:       c.String("token"),
		DialTimeout: childDialTimeout,
	}, nil
}

func childLogger(c *cli.Context) *slog.Logger {
	return logging.New(logging.Options{
		Format:  c.String("log-format"),
		Level:   c.String("log-level"),
		Verbose: c.Bool("v"),
	})
}

func workerAction(c *cli.Context) error {
	logger := childLogger(c)
	slog.SetDefault(logger)

	client, err := childClient(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w := worker.New(worker.Config{
		Num:               c.Int("num"),
		Client:            client,
		Adapter:           &adapter.ScriptAdapter{Root: c.String("suite-dir"), Pattern: c.String("suite-pattern")},
		Hooks:             &adapter.Hooks{},
		ScratchDir:        c.String("scratch-dir"),
		EarlyFailureLimit: c.Int("early-failure-limit"),
		Logger:            logger,
		Verbose:           c.Bool("v"),
	})
	if status := w.Run(ctx); status != 0 {
		return cli.Exit("", status)
	}
	return nil
}

func discoverAction(c *cli.Context) error {
	logger := childLogger(c)
	slog.SetDefault(logger)

	client, err := childClient(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	err = discovery.Run(c.Context, discovery.Config{
		Client:  client,
		Adapter: &adapter.ScriptAdapter{Root: c.String("suite-dir"), Pattern: c.String("suite-pattern")},
		Hooks:   &adapter.Hooks{},
		Logger:  logger,
	})
	if err != nil {
		logger.Error("discovery_failed", "error", err)
		return cli.Exit(err.Error(), 1)
	}
	return nil
}
