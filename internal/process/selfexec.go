package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// ChildConfig carries the settings every child process needs on its
// command line. The values mirror the parent's run configuration.
type ChildConfig struct {
	Endpoint          string
	Token             string
	ScratchDir        string
	SuiteDir          string
	SuitePattern      string
	EarlyFailureLimit int
	LogFormat         string
	LogLevel          string
	Verbose           bool
}

// SelfExec builds worker and discovery commands by re-executing the
// current binary with hidden subcommands.
type SelfExec struct {
	executable string
	cfg        ChildConfig
}

// NewSelfExec resolves the running executable and returns a builder for
// child commands.
func NewSelfExec(cfg ChildConfig) (*SelfExec, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("process: resolve executable: %w", err)
	}
	return &SelfExec{executable: exe, cfg: cfg}, nil
}

// Name returns "worker".
func (s *SelfExec) Name() string {
	return "worker"
}

// BuildCommand returns a worker child command.
func (s *SelfExec) BuildCommand(ctx context.Context, workerNum int) (*exec.Cmd, error) {
	args := append([]string{"worker", "-num", strconv.Itoa(workerNum)}, s.commonArgs()...)
	if s.cfg.EarlyFailureLimit > 0 {
		args = append(args, "-early-failure-limit", strconv.Itoa(s.cfg.EarlyFailureLimit))
	}
	cmd := exec.CommandContext(ctx, s.executable, args...)
	cmd.Env = os.Environ()
	SetProcessGroup(cmd)
	return cmd, nil
}

// BuildDiscoveryCommand returns the discovery child command.
func (s *SelfExec) BuildDiscoveryCommand(ctx context.Context) (*exec.Cmd, error) {
	args := append([]string{"discover"}, s.commonArgs()...)
	cmd := exec.CommandContext(ctx, s.executable, args...)
	cmd.Env = os.Environ()
	SetProcessGroup(cmd)
	return cmd, nil
}

func (s *SelfExec) commonArgs() []string {
	args := []string{
		"-endpoint", s.cfg.Endpoint,
		"-token", s.cfg.Token,
		"-scratch-dir", s.cfg.ScratchDir,
		"-suite-dir", s.cfg.SuiteDir,
		"-suite-pattern", s.cfg.SuitePattern,
		"-log-format", s.cfg.LogFormat,
		"-log-level", s.cfg.LogLevel,
	}
	if s.cfg.Verbose {
		args = append(args, "-v")
	}
	return args
}
