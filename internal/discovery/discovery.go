// Package discovery implements the child process that enumerates suites
// from disk and streams them to the master as NEW SUITE messages.
//
// The master interrupts discovery with SIGINT once a whitelist is fully
// satisfied; an interrupt is a normal, successful exit.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/randomizedcoder/go-suite-swarm/internal/adapter"
	"github.com/randomizedcoder/go-suite-swarm/internal/protocol"
)

// Config holds configuration for a discovery run.
type Config struct {
	Client  *protocol.Client
	Adapter adapter.Adapter
	Hooks   *adapter.Hooks
	Logger  *slog.Logger
}

// Run walks every candidate file and reports each suite it finds on a
// fresh connection. Returns nil on completion or interrupt; any other
// error makes the child exit non-zero, which aborts the run.
func Run(ctx context.Context, cfg Config) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)

	interrupted := func() bool {
		select {
		case <-sigCh:
			cfg.Logger.Info("discovery_interrupted")
			return true
		case <-ctx.Done():
			return true
		default:
			return false
		}
	}

	files, err := cfg.Adapter.EnumerateSuiteFiles(ctx)
	if err != nil {
		return fmt.Errorf("discovery: enumerate files: %w", err)
	}
	files = cfg.Hooks.ApplyAroundFilter(files)
	cfg.Logger.Info("discovery_walking", "files", len(files))

	reported := 0
	for _, path := range files {
		if interrupted() {
			return nil
		}

		names, err := cfg.Adapter.EnumerateSuites(ctx, path)
		if err != nil {
			return fmt.Errorf("discovery: enumerate %s: %w", path, err)
		}

		for _, name := range names {
			if interrupted() {
				return nil
			}
			pair := protocol.SuitePair{Name: name, Path: path}
			if err := cfg.Client.SendNewSuite(pair); err != nil {
				if errors.Is(err, protocol.ErrWrongRun) {
					cfg.Logger.Info("discovery_run_over", "reason", "wrong run token")
					return nil
				}
				return fmt.Errorf("discovery: report %s: %w", pair, err)
			}
			reported++
			cfg.Logger.Debug("suite_reported", "suite", name, "path", path)
		}
	}

	cfg.Logger.Info("discovery_complete", "suites_reported", reported)
	return nil
}
