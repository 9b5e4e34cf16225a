package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/randomizedcoder/go-suite-swarm/internal/preflight"
	"github.com/randomizedcoder/go-suite-swarm/internal/process"
	"github.com/randomizedcoder/go-suite-swarm/internal/protocol"
	"github.com/randomizedcoder/go-suite-swarm/internal/relay"
	"github.com/randomizedcoder/go-suite-swarm/internal/stats"
	"github.com/randomizedcoder/go-suite-swarm/internal/supervisor"
)

// RunRelay executes a remote-master run: announce this host's workers to
// the primary, fork them against the primary's endpoint, forward each
// finalized record, and exit with the local failure count.
func (o *Orchestrator) RunRelay(ctx context.Context) (int, error) {
	if o.cfg.Socket != "" && o.cfg.Socket == o.cfg.Relay {
		o.logger.Warn("relay_endpoint_is_own_listener",
			"endpoint", o.cfg.Relay,
			"action", "running as primary instead",
		)
		return o.RunPrimary(ctx)
	}

	if !o.cfg.SkipPreflight {
		result := preflight.RunAll(preflight.Input{
			Workers:    o.cfg.Concurrency,
			ScratchDir: o.cfg.ScratchDir,
			SuiteDir:   o.cfg.SuiteDir,
			Socket:     o.cfg.Relay,
		})
		fmt.Print(result.Report())
		if !result.Passed {
			return 1, errors.New("preflight checks failed (use -skip-preflight to override)")
		}
	}

	endpoint, err := protocol.ParseEndpoint(o.cfg.Relay)
	if err != nil {
		return 1, err
	}
	client := &protocol.Client{
		Endpoint:    endpoint,
		Token:       o.cfg.RelayToken,
		DialTimeout: 5 * time.Second,
	}

	r := relay.New(relay.Config{
		Client:       client,
		WorkerCount:  o.cfg.Concurrency,
		Host:         o.cfg.SlaveName,
		Message:      o.cfg.SlaveMessage,
		RetryWindow:  o.cfg.RelayRetryWindow,
		RetryBackoff: o.cfg.RelayRetryBackoff,
		Logger:       o.logger,
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := r.Handshake(ctx); err != nil {
		return 1, err
	}

	if err := o.hooks.InvokePrepare(o.cfg.Concurrency); err != nil {
		return 1, err
	}

	builder, err := process.NewSelfExec(o.childConfig(endpoint, o.cfg.RelayToken))
	if err != nil {
		return 1, err
	}

	agg := stats.NewAggregator()
	manager := supervisor.NewManager(supervisor.Config{
		Builder:    builder,
		ScratchDir: o.cfg.ScratchDir,
		Logger:     o.logger,
		OnReap: func(rec *protocol.WorkerRecord) {
			agg.AddRecord(rec)
			r.Forward(rec)
		},
	})

	if err := manager.StartWorkers(ctx, o.cfg.Concurrency); err != nil {
		o.abort(manager, nil)
		return 1, err
	}

	// The workers drain the primary's queue and exit on their own; reap
	// them as they go, and kill everything if a signal lands first.
	reaped := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(reaped)
		manager.ReapAll()
		return nil
	})
	g.Go(func() error {
		select {
		case <-reaped:
			return nil
		case <-gctx.Done():
			o.logger.Info("relay_aborting", "reason", "signal")
			o.abort(manager, nil)
			return gctx.Err()
		}
	})
	if err := g.Wait(); err != nil {
		return failStatus(agg), nil
	}

	o.summarize(agg, 0)
	return agg.ExitStatus(), nil
}
