// Package master implements the run coordinator: the socket server that
// feeds suites to workers, admits remote masters, and decides when the run
// is over.
//
// The dispatch loop is single threaded. Each connection carries exactly one
// request; the master answers and closes. Closing the connection is the end
// of every response, so replies never need their own framing.
package master

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/randomizedcoder/go-suite-swarm/internal/adapter"
	"github.com/randomizedcoder/go-suite-swarm/internal/metrics"
	"github.com/randomizedcoder/go-suite-swarm/internal/protocol"
	"github.com/randomizedcoder/go-suite-swarm/internal/queue"
	"github.com/randomizedcoder/go-suite-swarm/internal/supervisor"
)

// DefaultPollInterval is how long one accept wait lasts before the loop
// reaps exited workers and re-checks termination.
const DefaultPollInterval = 100 * time.Millisecond

// connReadTimeout bounds how long a single accepted connection may take to
// deliver its request line and payload.
const connReadTimeout = 5 * time.Second

// ErrKaboom reports that a client asked for the run to be aborted.
var ErrKaboom = errors.New("master: kaboom received")

// Config holds configuration for a Master.
type Config struct {
	Endpoint protocol.Endpoint
	Token    string

	Queue   *queue.Queue
	Manager *supervisor.Manager

	// Discovery is the suite-discovery child, nil when suites are enqueued
	// up front.
	Discovery *supervisor.Discovery

	// OnWorkerRecord is called with every finalized worker record, local
	// reaps and remote WORKER messages alike. Optional.
	OnWorkerRecord func(*protocol.WorkerRecord)

	// DiagnosticsPath, when set, is a file that collects malformed request
	// lines for postmortem. Optional.
	DiagnosticsPath string

	// PollInterval overrides DefaultPollInterval. Mostly for tests.
	PollInterval time.Duration

	Collector *metrics.Collector
	Hooks     *adapter.Hooks
	Logger    *slog.Logger
}

// Master owns the run socket and the dispatch loop.
type Master struct {
	cfg Config
	ln  net.Listener

	// remoteWorkers is the number of worker records still owed by remote
	// masters. Only the Serve goroutine touches it.
	remoteWorkers int

	// remoteAnnounced is the total worker count ever announced by SLAVE
	// handshakes, for the exit summary.
	remoteAnnounced int
}

// SetDiscovery attaches the discovery child. Called between Listen and
// Serve, once the child has been started against the bound socket.
func (m *Master) SetDiscovery(d *supervisor.Discovery) {
	m.cfg.Discovery = d
}

// RemoteWorkersAnnounced returns the total workers announced by relays
// over the run's lifetime.
func (m *Master) RemoteWorkersAnnounced() int {
	return m.remoteAnnounced
}

// New creates a master. Call Listen before Serve.
func New(cfg Config) *Master {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Master{cfg: cfg}
}

// Listen opens the run socket.
func (m *Master) Listen() error {
	ln, err := net.Listen(m.cfg.Endpoint.Network, m.cfg.Endpoint.Addr)
	if err != nil {
		return fmt.Errorf("master: listen %s: %w", m.cfg.Endpoint, err)
	}
	m.ln = ln
	m.cfg.Logger.Info("master_listening",
		"network", m.cfg.Endpoint.Network,
		"addr", ln.Addr().String(),
	)
	return nil
}

// Addr returns the bound address, useful when listening on port 0.
func (m *Master) Addr() string {
	if m.ln == nil {
		return ""
	}
	return m.ln.Addr().String()
}

// Close shuts the socket and removes a unix socket file.
func (m *Master) Close() {
	if m.ln == nil {
		return
	}
	m.ln.Close()
	if m.cfg.Endpoint.Network == "unix" {
		os.Remove(m.cfg.Endpoint.Addr)
	}
}

// Serve runs the dispatch loop until the run completes, a client sends
// KABOOM, discovery fails, or the context is cancelled.
//
// Each iteration refreshes the heartbeat, polls discovery, then waits up
// to PollInterval for a connection. An accept timeout reaps exited workers
// and checks the termination condition, so worker exits are noticed even
// when no client is talking, and a POP that arrives just after the queue
// drains still gets the empty done reply. The listener is closed on return.
func (m *Master) Serve(ctx context.Context) error {
	defer m.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		m.heartbeat()

		if err := m.checkDiscovery(); err != nil {
			return err
		}

		conn, err := m.acceptOne()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				m.reapWorkers()
				if m.runComplete() {
					m.cfg.Logger.Info("master_run_complete")
					return nil
				}
				continue
			}
			return fmt.Errorf("master: accept: %w", err)
		}

		if err := m.handleConn(conn); err != nil {
			return err
		}
	}
}

func (m *Master) acceptOne() (net.Conn, error) {
	type deadliner interface {
		SetDeadline(time.Time) error
	}
	if d, ok := m.ln.(deadliner); ok {
		d.SetDeadline(time.Now().Add(m.cfg.PollInterval))
	}
	return m.ln.Accept()
}

func (m *Master) heartbeat() {
	depth := m.cfg.Queue.Len()
	awaited := m.cfg.Queue.AwaitedCount()
	local := m.cfg.Manager.LiveCount()

	if m.cfg.Collector != nil {
		m.cfg.Collector.RecordHeartbeat(metrics.HeartbeatUpdate{
			QueueDepth:    depth,
			AwaitedSuites: awaited,
			LocalWorkers:  local,
			RemoteWorkers: m.remoteWorkers,
		})
	}
	m.cfg.Hooks.InvokeQueueStatus(adapter.QueueStatus{
		Depth:         depth,
		Awaited:       awaited,
		LocalWorkers:  local,
		RemoteWorkers: m.remoteWorkers,
	})
}

// checkDiscovery inspects the discovery child. A non-zero exit aborts the
// run; a clean exit that left whitelisted suites unreported aborts too,
// since those suites can never arrive.
func (m *Master) checkDiscovery() error {
	if m.cfg.Discovery == nil {
		return nil
	}
	running, code := m.cfg.Discovery.Poll()
	if running {
		return nil
	}
	if code != 0 {
		return fmt.Errorf("master: discovery exited with status %d", code)
	}
	if missing := m.cfg.Queue.AwaitedPairs(); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, p := range missing {
			names[i] = p.Name
		}
		return fmt.Errorf("master: discovery finished without reporting forced suites: %s",
			strings.Join(names, ", "))
	}
	return nil
}

func (m *Master) discoveryRunning() bool {
	if m.cfg.Discovery == nil {
		return false
	}
	running, _ := m.cfg.Discovery.Poll()
	return running
}

// runComplete reports whether nothing is left to dispatch or collect.
// Local workers are not consulted; once the socket closes their next POP
// fails and they drain on their own.
func (m *Master) runComplete() bool {
	return !m.awaitingSuites() && m.cfg.Queue.Len() == 0 && m.remoteWorkers == 0
}

// awaitingSuites reports whether more suites may still arrive: forced
// suites are outstanding, or the queue is empty while discovery walks.
func (m *Master) awaitingSuites() bool {
	if m.cfg.Queue.AwaitedCount() > 0 {
		return true
	}
	return m.cfg.Queue.Len() == 0 && m.discoveryRunning()
}

func (m *Master) reapWorkers() {
	for _, rec := range m.cfg.Manager.ReapAny() {
		m.recordWorker(rec)
	}
}

// recordWorker accounts one finalized worker record, whether reaped
// locally or forwarded by a remote master.
func (m *Master) recordWorker(rec *protocol.WorkerRecord) {
	if m.cfg.Collector != nil {
		m.cfg.Collector.WorkerExited(rec.ExitStatus)
		for _, r := range rec.SuitesRun {
			m.cfg.Collector.SuiteCompleted(r.DurationSeconds, r.Failed())
		}
	}
	if m.cfg.OnWorkerRecord != nil {
		m.cfg.OnWorkerRecord(rec)
	}
}

// handleConn services one request. Only KABOOM surfaces an error; protocol
// garbage and foreign tokens are contained per connection.
func (m *Master) handleConn(conn net.Conn) error {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(connReadTimeout))

	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	if err != nil {
		m.diagnose(fmt.Sprintf("short read: %v (line %q)", err, line))
		return nil
	}

	req, err := protocol.ParseRequest(line)
	if err != nil {
		m.diagnose(err.Error())
		return nil
	}

	if req.Token != m.cfg.Token {
		if m.cfg.Collector != nil {
			m.cfg.Collector.WrongToken()
		}
		m.cfg.Logger.Warn("wrong_run_token", "command", string(req.Command))
		m.write(conn, []byte(protocol.WrongRunLine))
		return nil
	}

	switch req.Command {
	case protocol.CmdPop:
		m.handlePop(conn)

	case protocol.CmdSlave:
		m.remoteWorkers += req.SlaveCount
		m.remoteAnnounced += req.SlaveCount
		m.cfg.Logger.Info("slave_connected",
			"host", req.SlaveHost,
			"workers", req.SlaveCount,
			"message", req.SlaveMessage,
			"remote_workers", m.remoteWorkers,
		)
		m.write(conn, []byte(protocol.OKLine))

	case protocol.CmdWorker:
		m.handleWorker(conn, r, req.PayloadSize)

	case protocol.CmdNewSuite:
		m.handleNewSuite(*req.Suite)

	case protocol.CmdKaboom:
		m.cfg.Logger.Error("kaboom_received")
		return ErrKaboom
	}
	return nil
}

// handlePop answers one POP: a suite when one is queued, WAIT when more
// may still arrive, and an empty body when the run is over.
func (m *Master) handlePop(conn net.Conn) {
	if m.awaitingSuites() {
		m.write(conn, protocol.EncodePopWait())
		return
	}
	pair, ok := m.cfg.Queue.Pop()
	if !ok {
		return
	}
	b, err := protocol.EncodePopSuite(pair)
	if err != nil {
		m.cfg.Logger.Error("pop_encode_failed", "suite", pair.Name, "error", err)
		return
	}
	if m.cfg.Collector != nil {
		m.cfg.Collector.SuiteDispatched()
	}
	m.cfg.Logger.Debug("suite_dispatched", "suite", pair.Name, "path", pair.Path)
	m.write(conn, b)
}

func (m *Master) handleWorker(conn net.Conn, r *bufio.Reader, size int) {
	payload, err := protocol.ReadPayload(r, size)
	if err != nil {
		m.diagnose(fmt.Sprintf("WORKER payload: %v", err))
		return
	}
	rec, err := protocol.DecodeWorkerRecord(payload)
	if err != nil {
		m.diagnose(fmt.Sprintf("WORKER record: %v", err))
		return
	}
	if m.remoteWorkers > 0 {
		m.remoteWorkers--
	}
	m.cfg.Logger.Info("remote_worker_record",
		"host", rec.Host,
		"worker_num", rec.Num,
		"exit_status", rec.ExitStatus,
		"suites_run", len(rec.SuitesRun),
		"remote_workers", m.remoteWorkers,
	)
	m.recordWorker(rec)
}

func (m *Master) handleNewSuite(pair protocol.SuitePair) {
	added := m.cfg.Queue.Add(pair)
	m.cfg.Logger.Debug("suite_reported", "suite", pair.Name, "path", pair.Path, "added", added)

	if m.cfg.Queue.WhitelistSatisfied() && m.discoveryRunning() {
		m.cfg.Logger.Info("whitelist_satisfied")
		m.cfg.Discovery.Interrupt()
	}
}

func (m *Master) write(conn net.Conn, b []byte) {
	if _, err := conn.Write(b); err != nil {
		m.cfg.Logger.Debug("reply_write_failed", "error", err)
	}
}

// diagnose appends one malformed-request note to the diagnostics file.
func (m *Master) diagnose(msg string) {
	m.cfg.Logger.Warn("bad_request", "detail", msg)
	if m.cfg.DiagnosticsPath == "" {
		return
	}
	f, err := os.OpenFile(m.cfg.DiagnosticsPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "%s %s\n", time.Now().Format(time.RFC3339), msg)
}
