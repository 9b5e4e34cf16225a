// Package relay implements the secondary-master side of a multi-host run.
//
// A relay announces its workers to the primary with a SLAVE handshake, lets
// the workers POP suites from the primary directly, and forwards each
// finalized worker record back as a WORKER message. The primary counts the
// handshake's workers as owed records and holds the run open until every
// one has been forwarded.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/randomizedcoder/go-suite-swarm/internal/protocol"
	"github.com/randomizedcoder/go-suite-swarm/internal/supervisor"
)

const (
	// DefaultRetryWindow is how long the handshake keeps retrying before
	// giving up on the primary.
	DefaultRetryWindow = 30 * time.Second

	// DefaultRetryBackoff is the pause between handshake attempts.
	DefaultRetryBackoff = 500 * time.Millisecond
)

// Config holds configuration for a relay.
type Config struct {
	// Client talks to the primary master.
	Client *protocol.Client

	// WorkerCount is how many workers this host contributes; the primary
	// expects exactly this many WORKER records.
	WorkerCount int

	// Host identifies this machine in the handshake. Defaults to
	// os.Hostname.
	Host string

	// Message is an optional free-form note shown in the primary's log.
	Message string

	// RetryWindow overrides DefaultRetryWindow.
	RetryWindow time.Duration

	// RetryBackoff overrides DefaultRetryBackoff.
	RetryBackoff time.Duration

	Logger *slog.Logger
}

// Relay connects a secondary master to the primary.
type Relay struct {
	cfg Config
}

// New creates a relay.
func New(cfg Config) *Relay {
	if cfg.Host == "" {
		cfg.Host, _ = os.Hostname()
	}
	if cfg.RetryWindow <= 0 {
		cfg.RetryWindow = DefaultRetryWindow
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	return &Relay{cfg: cfg}
}

// Handshake announces this host's workers to the primary, retrying dial
// failures until the retry window closes. The primary is usually still
// booting when a relay first calls, so connection refusals are expected.
// A WRONG RUN reply is final: retrying with the same token cannot succeed.
func (r *Relay) Handshake(ctx context.Context) error {
	deadline := time.Now().Add(r.cfg.RetryWindow)
	backoff := supervisor.NewBackoff(r.cfg.RetryBackoff, r.cfg.RetryBackoff/4, int64(os.Getpid()))

	var lastErr error
	for {
		err := r.cfg.Client.Slave(r.cfg.WorkerCount, r.cfg.Host, r.cfg.Message)
		if err == nil {
			r.cfg.Logger.Info("relay_connected",
				"primary", r.cfg.Client.Endpoint.String(),
				"workers", r.cfg.WorkerCount,
				"attempts", backoff.Attempts()+1,
			)
			return nil
		}
		if errors.Is(err, protocol.ErrWrongRun) {
			return fmt.Errorf("relay: handshake rejected: %w", err)
		}
		lastErr = err

		if time.Now().After(deadline) {
			return fmt.Errorf("relay: primary unreachable after %s: %w", r.cfg.RetryWindow, lastErr)
		}
		r.cfg.Logger.Debug("relay_handshake_retry", "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff.Next()):
		}
	}
}

// Forward sends one finalized worker record to the primary. Suited as a
// supervisor Manager's OnReap callback: the record's host is overwritten
// with this relay's, so the primary attributes it correctly.
func (r *Relay) Forward(rec *protocol.WorkerRecord) {
	rec.Host = r.cfg.Host
	if err := r.cfg.Client.SendWorkerRecord(rec); err != nil {
		r.cfg.Logger.Error("relay_forward_failed",
			"worker_num", rec.Num,
			"pid", rec.PID,
			"error", err,
		)
		return
	}
	r.cfg.Logger.Debug("relay_forwarded",
		"worker_num", rec.Num,
		"exit_status", rec.ExitStatus,
		"suites_run", len(rec.SuitesRun),
	)
}
