package process

import (
	"fmt"
	"path/filepath"
)

// Scratch-file naming. Workers write their captured output and serialized
// results under names derived from their own PID; the master derives the
// same names from the reaped PID, consumes the files, and deletes them.

// WorkerOutputPath returns the stdout capture file for a worker PID.
func WorkerOutputPath(scratchDir string, pid int) string {
	return filepath.Join(scratchDir, fmt.Sprintf("test_queue_worker_%d_output", pid))
}

// WorkerSuitesPath returns the serialized suite-results file for a worker PID.
func WorkerSuitesPath(scratchDir string, pid int) string {
	return filepath.Join(scratchDir, fmt.Sprintf("test_queue_worker_%d_suites", pid))
}

// SocketPath returns the default listener socket path for a run.
func SocketPath(scratchDir string, pid int, runID string) string {
	return filepath.Join(scratchDir, fmt.Sprintf("suite_swarm_%d_%s.sock", pid, runID))
}
