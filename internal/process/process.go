// Package process builds and controls the run's child processes.
//
// Workers and the discovery child are re-executions of the running binary
// with hidden subcommands, so a single deployed executable serves every
// role.
package process

import (
	"context"
	"os/exec"
)

// Builder creates executable commands for child processes.
// The command is returned ready to start but not started.
type Builder interface {
	BuildCommand(ctx context.Context, workerNum int) (*exec.Cmd, error)

	// Name returns a human-readable name for this process type.
	Name() string
}
