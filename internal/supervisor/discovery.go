package supervisor

import (
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"

	"github.com/randomizedcoder/go-suite-swarm/internal/process"
)

// Discovery tracks the suite-discovery child process. The dispatch loop
// polls it non-blockingly on every tick.
type Discovery struct {
	pid    int
	logger *slog.Logger
	done   chan error

	mu       sync.Mutex
	exited   bool
	exitCode int
}

// StartDiscovery starts the discovery command and begins waiting on it.
func StartDiscovery(cmd *exec.Cmd, logger *slog.Logger) (*Discovery, error) {
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("supervisor: start discovery: %w", err)
	}

	d := &Discovery{
		pid:    cmd.Process.Pid,
		logger: logger,
		done:   make(chan error, 1),
	}
	logger.Info("discovery_started", "pid", d.pid)

	go func() {
		d.done <- cmd.Wait()
	}()

	return d, nil
}

// Poll checks whether discovery has exited, without blocking. Once it has,
// Poll keeps reporting the same exit code.
func (d *Discovery) Poll() (running bool, exitCode int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.exited {
		return false, d.exitCode
	}

	select {
	case err := <-d.done:
		d.exited = true
		d.exitCode = process.ExitCode(err)
		d.logger.Info("discovery_exited", "pid", d.pid, "exit_code", d.exitCode)
		return false, d.exitCode
	default:
		return true, 0
	}
}

// Interrupt asks discovery to finish early. Used once a whitelist is
// fully satisfied.
func (d *Discovery) Interrupt() {
	d.mu.Lock()
	exited := d.exited
	d.mu.Unlock()
	if exited {
		return
	}
	d.logger.Debug("discovery_interrupting", "pid", d.pid)
	if err := process.Interrupt(d.pid); err != nil {
		d.logger.Debug("discovery_interrupt_failed", "pid", d.pid, "error", err)
	}
}

// Kill hard-kills discovery during abort.
func (d *Discovery) Kill() {
	d.mu.Lock()
	exited := d.exited
	d.mu.Unlock()
	if exited {
		return
	}
	if err := process.KillGroup(d.pid, syscall.SIGKILL); err != nil {
		d.logger.Debug("discovery_kill_failed", "pid", d.pid, "error", err)
	}
}

// Wait blocks until discovery exits and returns its exit code.
func (d *Discovery) Wait() int {
	d.mu.Lock()
	if d.exited {
		code := d.exitCode
		d.mu.Unlock()
		return code
	}
	d.mu.Unlock()

	err := <-d.done
	d.mu.Lock()
	d.exited = true
	d.exitCode = process.ExitCode(err)
	code := d.exitCode
	d.mu.Unlock()
	return code
}

// PID returns the discovery child's process ID.
func (d *Discovery) PID() int {
	return d.pid
}
