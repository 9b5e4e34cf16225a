package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"testing"
	"time"

	"github.com/randomizedcoder/go-suite-swarm/internal/logging"
	"github.com/randomizedcoder/go-suite-swarm/internal/process"
	"github.com/randomizedcoder/go-suite-swarm/internal/protocol"
)

// scriptBuilder runs a shell snippet as the worker body. The snippet sees
// SCRATCH and NUM in its environment and $$ as its own PID.
type scriptBuilder struct {
	scratch string
	script  string
}

func (b *scriptBuilder) Name() string { return "script" }

func (b *scriptBuilder) BuildCommand(ctx context.Context, workerNum int) (*exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", b.script)
	cmd.Env = append(cmd.Environ(),
		"SCRATCH="+b.scratch,
		fmt.Sprintf("NUM=%d", workerNum),
	)
	process.SetProcessGroup(cmd)
	return cmd, nil
}

func testLogger() *slog.Logger {
	return logging.Discard()
}

const workerBody = `
echo "worker output" > "$SCRATCH/test_queue_worker_$$_output"
printf '[{"v":1,"name":"alpha","path":"alpha.sh","duration_seconds":1.5,"status":"passed"}]' \
  > "$SCRATCH/test_queue_worker_$$_suites"
exit 0
`

func TestManagerStartAndReapAll(t *testing.T) {
	scratch := t.TempDir()
	m := NewManager(Config{
		Builder:    &scriptBuilder{scratch: scratch, script: workerBody},
		ScratchDir: scratch,
		Host:       "testhost",
		Logger:     testLogger(),
	})

	if err := m.StartWorkers(context.Background(), 2); err != nil {
		t.Fatalf("StartWorkers: %v", err)
	}
	if m.LiveCount() != 2 {
		t.Errorf("LiveCount = %d, want 2", m.LiveCount())
	}

	reaped := m.ReapAll()
	if len(reaped) != 2 {
		t.Fatalf("ReapAll returned %d records, want 2", len(reaped))
	}
	if m.LiveCount() != 0 {
		t.Errorf("LiveCount after ReapAll = %d, want 0", m.LiveCount())
	}

	for _, rec := range reaped {
		if rec.Host != "testhost" {
			t.Errorf("Host = %q, want testhost", rec.Host)
		}
		if rec.ExitStatus != 0 {
			t.Errorf("ExitStatus = %d, want 0", rec.ExitStatus)
		}
		if len(rec.SuitesRun) != 1 || rec.SuitesRun[0].Name != "alpha" {
			t.Errorf("SuitesRun = %+v", rec.SuitesRun)
		}
		if rec.Stdout != "worker output\n" {
			t.Errorf("Stdout = %q", rec.Stdout)
		}
		if rec.Summary != "1 suites, 0 failures" {
			t.Errorf("Summary = %q", rec.Summary)
		}
		if rec.EndTime.Before(rec.StartTime) {
			t.Error("EndTime before StartTime")
		}
	}

	if got := len(m.Completed()); got != 2 {
		t.Errorf("Completed = %d records, want 2", got)
	}
}

func TestManagerRecordsFailureExit(t *testing.T) {
	scratch := t.TempDir()
	body := `
printf '[{"v":1,"name":"beta","path":"beta.sh","duration_seconds":0.1,"status":"failed","detail":"Ym9vbQ=="}]' \
  > "$SCRATCH/test_queue_worker_$$_suites"
exit 2
`
	m := NewManager(Config{
		Builder:    &scriptBuilder{scratch: scratch, script: body},
		ScratchDir: scratch,
		Host:       "testhost",
		Logger:     testLogger(),
	})

	if err := m.StartWorkers(context.Background(), 1); err != nil {
		t.Fatalf("StartWorkers: %v", err)
	}
	reaped := m.ReapAll()
	if len(reaped) != 1 {
		t.Fatalf("ReapAll returned %d records, want 1", len(reaped))
	}

	rec := reaped[0]
	if rec.ExitStatus != 2 {
		t.Errorf("ExitStatus = %d, want 2", rec.ExitStatus)
	}
	if rec.Summary != "1 suites, 1 failures" {
		t.Errorf("Summary = %q", rec.Summary)
	}
	if rec.Failure == "" {
		t.Error("Failure text empty for failed suite")
	}
}

func TestManagerToleratesMissingScratchFiles(t *testing.T) {
	scratch := t.TempDir()
	m := NewManager(Config{
		Builder:    &scriptBuilder{scratch: scratch, script: "exit 1"},
		ScratchDir: scratch,
		Host:       "testhost",
		Logger:     testLogger(),
	})

	if err := m.StartWorkers(context.Background(), 1); err != nil {
		t.Fatalf("StartWorkers: %v", err)
	}
	reaped := m.ReapAll()
	if len(reaped) != 1 {
		t.Fatalf("ReapAll returned %d records, want 1", len(reaped))
	}
	if reaped[0].ExitStatus != 1 {
		t.Errorf("ExitStatus = %d, want 1", reaped[0].ExitStatus)
	}
	if len(reaped[0].SuitesRun) != 0 {
		t.Errorf("SuitesRun = %+v, want empty", reaped[0].SuitesRun)
	}
}

func TestManagerOnReapCallback(t *testing.T) {
	scratch := t.TempDir()
	var forwarded []*protocol.WorkerRecord
	m := NewManager(Config{
		Builder:    &scriptBuilder{scratch: scratch, script: "exit 0"},
		ScratchDir: scratch,
		Host:       "testhost",
		Logger:     testLogger(),
		OnReap:     func(rec *protocol.WorkerRecord) { forwarded = append(forwarded, rec) },
	})

	if err := m.StartWorkers(context.Background(), 1); err != nil {
		t.Fatalf("StartWorkers: %v", err)
	}
	m.ReapAll()
	if len(forwarded) != 1 {
		t.Errorf("OnReap called %d times, want 1", len(forwarded))
	}
}

func TestManagerAbortDropsCompletions(t *testing.T) {
	scratch := t.TempDir()
	m := NewManager(Config{
		Builder:    &scriptBuilder{scratch: scratch, script: "sleep 5"},
		ScratchDir: scratch,
		Host:       "testhost",
		Logger:     testLogger(),
	})

	if err := m.StartWorkers(context.Background(), 1); err != nil {
		t.Fatalf("StartWorkers: %v", err)
	}

	m.SetAborting()
	m.KillAll()
	reaped := m.ReapAll()

	if len(reaped) != 0 {
		t.Errorf("ReapAll during abort returned %d records, want 0", len(reaped))
	}
	if got := len(m.Completed()); got != 0 {
		t.Errorf("Completed during abort = %d records, want 0", got)
	}
}

func TestManagerReapAnyNonBlocking(t *testing.T) {
	scratch := t.TempDir()
	m := NewManager(Config{
		Builder:    &scriptBuilder{scratch: scratch, script: "sleep 2"},
		ScratchDir: scratch,
		Host:       "testhost",
		Logger:     testLogger(),
	})

	if err := m.StartWorkers(context.Background(), 1); err != nil {
		t.Fatalf("StartWorkers: %v", err)
	}
	defer func() {
		m.KillAll()
		m.ReapAll()
	}()

	start := time.Now()
	reaped := m.ReapAny()
	if time.Since(start) > 500*time.Millisecond {
		t.Error("ReapAny blocked")
	}
	if len(reaped) != 0 {
		t.Errorf("ReapAny returned %d records for a live worker, want 0", len(reaped))
	}
}
