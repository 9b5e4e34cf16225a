package relay

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/randomizedcoder/go-suite-swarm/internal/logging"
	"github.com/randomizedcoder/go-suite-swarm/internal/protocol"
)

const testToken = "c0ffeec0ffee0000"

func quietLogger() *slog.Logger {
	return logging.Discard()
}

// fakePrimary accepts SLAVE and WORKER messages on a unix socket.
type fakePrimary struct {
	t  *testing.T
	ln net.Listener

	mu       sync.Mutex
	slaves   []protocol.Request
	records  []*protocol.WorkerRecord
	wrongRun bool
}

func newFakePrimary(t *testing.T) *fakePrimary {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "primary.sock")
	ln, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	p := &fakePrimary{t: t, ln: ln}
	t.Cleanup(func() { ln.Close() })
	go p.serve()
	return p
}

func (p *fakePrimary) serve() {
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			return
		}
		p.handle(conn)
		conn.Close()
	}
}

func (p *fakePrimary) handle(conn net.Conn) {
	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	if err != nil {
		return
	}
	req, err := protocol.ParseRequest(line)
	if err != nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.wrongRun || req.Token != testToken {
		io.WriteString(conn, protocol.WrongRunLine)
		return
	}
	switch req.Command {
	case protocol.CmdSlave:
		p.slaves = append(p.slaves, *req)
		io.WriteString(conn, protocol.OKLine)
	case protocol.CmdWorker:
		payload, err := protocol.ReadPayload(r, req.PayloadSize)
		if err != nil {
			return
		}
		rec, err := protocol.DecodeWorkerRecord(payload)
		if err != nil {
			return
		}
		p.records = append(p.records, rec)
	}
}

func (p *fakePrimary) client() *protocol.Client {
	return &protocol.Client{
		Endpoint:    protocol.Endpoint{Network: "unix", Addr: p.ln.Addr().String()},
		Token:       testToken,
		DialTimeout: time.Second,
	}
}

func TestRelayHandshake(t *testing.T) {
	p := newFakePrimary(t)
	r := New(Config{
		Client:      p.client(),
		WorkerCount: 4,
		Host:        "node-3",
		Message:     "arm64 runner",
		Logger:      quietLogger(),
	})

	if err := r.Handshake(context.Background()); err != nil {
		t.Fatalf("Handshake: %v", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.slaves) != 1 {
		t.Fatalf("primary saw %d handshakes, want 1", len(p.slaves))
	}
	got := p.slaves[0]
	if got.SlaveCount != 4 || got.SlaveHost != "node-3" || got.SlaveMessage != "arm64 runner" {
		t.Errorf("handshake = %+v", got)
	}
}

func TestRelayHandshakeRetriesUntilPrimaryListens(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "late.sock")
	r := New(Config{
		Client: &protocol.Client{
			Endpoint:    protocol.Endpoint{Network: "unix", Addr: sock},
			Token:       testToken,
			DialTimeout: time.Second,
		},
		WorkerCount:  1,
		Host:         "node-1",
		RetryWindow:  5 * time.Second,
		RetryBackoff: 10 * time.Millisecond,
		Logger:       quietLogger(),
	})

	// Bring the primary up only after the relay has started dialing.
	go func() {
		time.Sleep(100 * time.Millisecond)
		ln, err := net.Listen("unix", sock)
		if err != nil {
			return
		}
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		bufio.NewReader(conn).ReadString('\n')
		io.WriteString(conn, protocol.OKLine)
		conn.Close()
		ln.Close()
	}()

	if err := r.Handshake(context.Background()); err != nil {
		t.Fatalf("Handshake: %v", err)
	}
}

func TestRelayHandshakeGivesUpAfterWindow(t *testing.T) {
	r := New(Config{
		Client: &protocol.Client{
			Endpoint:    protocol.Endpoint{Network: "unix", Addr: filepath.Join(t.TempDir(), "nobody.sock")},
			Token:       testToken,
			DialTimeout: 100 * time.Millisecond,
		},
		WorkerCount:  1,
		Host:         "node-1",
		RetryWindow:  50 * time.Millisecond,
		RetryBackoff: 10 * time.Millisecond,
		Logger:       quietLogger(),
	})

	if err := r.Handshake(context.Background()); err == nil {
		t.Fatal("Handshake succeeded against nothing")
	}
}

func TestRelayHandshakeWrongRunIsFinal(t *testing.T) {
	p := newFakePrimary(t)
	p.mu.Lock()
	p.wrongRun = true
	p.mu.Unlock()

	r := New(Config{
		Client:       p.client(),
		WorkerCount:  1,
		Host:         "node-1",
		RetryWindow:  5 * time.Second,
		RetryBackoff: 10 * time.Millisecond,
		Logger:       quietLogger(),
	})

	start := time.Now()
	err := r.Handshake(context.Background())
	if err == nil {
		t.Fatal("Handshake accepted by foreign run")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("rejection took %s; foreign-token failure must not retry", elapsed)
	}
}

func TestRelayForwardStampsHost(t *testing.T) {
	p := newFakePrimary(t)
	r := New(Config{
		Client:      p.client(),
		WorkerCount: 1,
		Host:        "node-9",
		Logger:      quietLogger(),
	})

	rec := &protocol.WorkerRecord{
		V: protocol.SchemaVersion, Num: 0, PID: 4242, Host: "localhost",
		StartTime: time.Now().Add(-time.Minute), EndTime: time.Now(),
		ExitStatus: 1,
		SuitesRun: []protocol.SuiteResult{{
			V: protocol.SchemaVersion, Name: "alpha", Path: "alpha.sh",
			DurationSeconds: 2.5, Status: protocol.SuiteFailed,
		}},
	}
	r.Forward(rec)

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.records) != 1 {
		t.Fatalf("primary saw %d records, want 1", len(p.records))
	}
	got := p.records[0]
	if got.Host != "node-9" {
		t.Errorf("record host = %q, want node-9", got.Host)
	}
	if got.ExitStatus != 1 || len(got.SuitesRun) != 1 || got.SuitesRun[0].Name != "alpha" {
		t.Errorf("record = %+v", got)
	}
}
