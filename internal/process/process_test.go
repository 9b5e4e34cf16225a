package process

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
)

func TestWorkerPaths(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"output", WorkerOutputPath("/tmp", 4242), "/tmp/test_queue_worker_4242_output"},
		{"suites", WorkerSuitesPath("/tmp", 4242), "/tmp/test_queue_worker_4242_suites"},
		{"socket", SocketPath("/tmp", 99, "ab12Cd"), "/tmp/suite_swarm_99_ab12Cd.sock"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func testChildConfig() ChildConfig {
	return ChildConfig{
		Endpoint:     "/tmp/run.sock",
		Token:        "deadbeef",
		ScratchDir:   "/tmp",
		SuiteDir:     "./suites",
		SuitePattern: "*_test.sh",
		LogFormat:    "json",
		LogLevel:     "info",
	}
}

func TestSelfExecWorkerCommand(t *testing.T) {
	se, err := NewSelfExec(testChildConfig())
	if err != nil {
		t.Fatalf("NewSelfExec: %v", err)
	}
	if se.Name() != "worker" {
		t.Errorf("Name = %q, want worker", se.Name())
	}

	cmd, err := se.BuildCommand(context.Background(), 3)
	if err != nil {
		t.Fatalf("BuildCommand: %v", err)
	}

	joined := strings.Join(cmd.Args, " ")
	for _, want := range []string{
		"worker",
		"-num 3",
		"-endpoint /tmp/run.sock",
		"-token deadbeef",
		"-suite-pattern *_test.sh",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %v", want, cmd.Args)
		}
	}
	if strings.Contains(joined, "early-failure-limit") {
		t.Error("zero limit should not be forwarded")
	}
	if cmd.SysProcAttr == nil || !cmd.SysProcAttr.Setpgid {
		t.Error("worker command should run in its own process group")
	}
}

func TestSelfExecForwardsEarlyFailureLimit(t *testing.T) {
	cfg := testChildConfig()
	cfg.EarlyFailureLimit = 7
	se, err := NewSelfExec(cfg)
	if err != nil {
		t.Fatalf("NewSelfExec: %v", err)
	}

	cmd, err := se.BuildCommand(context.Background(), 0)
	if err != nil {
		t.Fatalf("BuildCommand: %v", err)
	}
	if !strings.Contains(strings.Join(cmd.Args, " "), "-early-failure-limit 7") {
		t.Errorf("args missing early failure limit: %v", cmd.Args)
	}
}

func TestSelfExecDiscoveryCommand(t *testing.T) {
	se, err := NewSelfExec(testChildConfig())
	if err != nil {
		t.Fatalf("NewSelfExec: %v", err)
	}

	cmd, err := se.BuildDiscoveryCommand(context.Background())
	if err != nil {
		t.Fatalf("BuildDiscoveryCommand: %v", err)
	}
	if cmd.Args[1] != "discover" {
		t.Errorf("subcommand = %q, want discover", cmd.Args[1])
	}
	if strings.Contains(strings.Join(cmd.Args, " "), "-num") {
		t.Error("discovery command should not carry a worker number")
	}
}

func TestExitCode(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		if got := ExitCode(nil); got != 0 {
			t.Errorf("ExitCode(nil) = %d, want 0", got)
		}
	})

	t.Run("plain error", func(t *testing.T) {
		if got := ExitCode(errors.New("boom")); got != 1 {
			t.Errorf("ExitCode = %d, want 1", got)
		}
	})

	t.Run("nonzero exit", func(t *testing.T) {
		err := exec.Command("sh", "-c", "exit 3").Run()
		if got := ExitCode(err); got != 3 {
			t.Errorf("ExitCode = %d, want 3", got)
		}
	})

	t.Run("signal death", func(t *testing.T) {
		err := exec.Command("sh", "-c", "kill -TERM $$").Run()
		if got := ExitCode(err); got != 128+15 {
			t.Errorf("ExitCode = %d, want 143", got)
		}
	})
}
