// Package preflight provides startup validation checks. They run before
// any child process is forked so a misconfigured host fails in
// milliseconds, not halfway through a run.
package preflight

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/randomizedcoder/go-suite-swarm/internal/protocol"
)

// Check is the outcome of a single preflight check. Required and Actual
// are filled by the resource-limit checks only.
type Check struct {
	Name     string
	Required int
	Actual   int
	Passed   bool
	Warning  bool   // passed, but worth a look
	Message  string
	Fix      string // how to clear a failure; empty when passed
}

// String renders the check as one report line.
func (c Check) String() string {
	mark := "✓"
	if c.Warning {
		mark = "⚠"
	}
	if !c.Passed {
		mark = "✗"
	}
	return fmt.Sprintf("  %s %s: %s", mark, c.Name, c.Message)
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// Report renders every check as one line, with the fix suggestion shown
// under each failure.
func (r *Result) Report() string {
	var b strings.Builder
	b.WriteString("Preflight checks:\n")
	for _, c := range r.Checks {
		b.WriteString(c.String())
		b.WriteByte('\n')
		if !c.Passed && c.Fix != "" {
			fmt.Fprintf(&b, "    fix: %s\n", c.Fix)
		}
	}
	return b.String()
}

// Input carries the run parameters the checks size themselves against.
type Input struct {
	Workers    int
	ScratchDir string
	SuiteDir   string
	Socket     string // endpoint string; empty means a per-run unix socket
}

// RunAll executes all preflight checks.
func RunAll(in Input) *Result {
	result := &Result{
		Checks: make([]Check, 0, 5),
		Passed: true,
	}

	add := func(c Check) {
		result.Checks = append(result.Checks, c)
		if !c.Passed {
			result.Passed = false
		}
	}

	add(checkFileDescriptors(in.Workers))
	add(checkProcessLimit(in.Workers))
	add(checkScratchDir(in.ScratchDir))
	add(checkSuiteDir(in.SuiteDir))
	if in.Socket != "" {
		add(checkEndpoint(in.Socket))
	}

	return result
}

// checkFileDescriptors verifies sufficient file descriptors are available.
// Each worker holds a handful of descriptors for its suite processes and
// protocol dials; the master adds the listener, metrics server, and
// scratch files.
func checkFileDescriptors(workers int) Check {
	var limit syscall.Rlimit
	syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit)

	need := workers*10 + 64
	have := int(limit.Cur)

	return Check{
		Name:     "file_descriptors",
		Required: need,
		Actual:   have,
		Passed:   have >= need,
		Message:  fmt.Sprintf("%d open files allowed, %d needed for %d workers", have, need, workers),
		Fix:      "raise the limit: ulimit -n 8192",
	}
}

// checkProcessLimit verifies the process ulimit leaves room for the
// workers, the discovery child, and the suite processes the workers spawn.
// RLIMIT_NPROC has no constant in Go's syscall package, so the soft limit
// comes from /proc/self/limits.
func checkProcessLimit(workers int) Check {
	need := workers*2 + 20

	have, err := readProcSoftLimit("Max processes")
	if err != nil {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("not checked: %v", err),
		}
	}
	if have < 0 {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Message: "unlimited",
		}
	}

	return Check{
		Name:     "process_limit",
		Required: need,
		Actual:   have,
		Passed:   have >= need,
		Message:  fmt.Sprintf("%d process slots, %d needed for %d workers", have, need, workers),
		Fix:      "raise the limit: ulimit -u 4096",
	}
}

// readProcSoftLimit pulls one soft limit out of /proc/self/limits.
// Returns -1 for unlimited.
func readProcSoftLimit(row string) (int, error) {
	f, err := os.Open("/proc/self/limits")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, row) {
			continue
		}
		fields := strings.Fields(strings.TrimPrefix(line, row))
		if len(fields) == 0 {
			break
		}
		if fields[0] == "unlimited" {
			return -1, nil
		}
		return strconv.Atoi(fields[0])
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("no %q row in /proc/self/limits", row)
}

// checkScratchDir verifies the scratch directory exists and is writable.
// Workers hand their results to the master through files in it.
func checkScratchDir(dir string) Check {
	fail := func(msg string) Check {
		return Check{
			Name:    "scratch_dir",
			Passed:  false,
			Message: msg,
			Fix:     "point -scratch-dir at a writable directory",
		}
	}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return fail(fmt.Sprintf("%s is not a directory", dir))
	}

	probe := filepath.Join(dir, fmt.Sprintf(".suite_swarm_preflight_%d", os.Getpid()))
	f, err := os.Create(probe)
	if err != nil {
		return fail(fmt.Sprintf("%s is not writable: %v", dir, err))
	}
	f.Close()
	os.Remove(probe)

	return Check{
		Name:    "scratch_dir",
		Passed:  true,
		Message: fmt.Sprintf("%s is writable", dir),
	}
}

// checkSuiteDir verifies the suite directory exists. An empty directory is
// a warning, not a failure; discovery may still find nothing and the run
// ends cleanly with zero suites.
func checkSuiteDir(dir string) Check {
	fail := func(msg string) Check {
		return Check{
			Name:    "suite_dir",
			Passed:  false,
			Message: msg,
			Fix:     "point -suite-dir at the directory holding your suite files",
		}
	}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return fail(fmt.Sprintf("%s is not a directory", dir))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fail(fmt.Sprintf("%s is not readable: %v", dir, err))
	}

	return Check{
		Name:    "suite_dir",
		Passed:  true,
		Warning: len(entries) == 0,
		Message: fmt.Sprintf("%s (%d entries)", dir, len(entries)),
	}
}

// checkEndpoint verifies an explicit socket setting parses.
func checkEndpoint(socket string) Check {
	ep, err := protocol.ParseEndpoint(socket)
	if err != nil {
		return Check{
			Name:    "endpoint",
			Passed:  false,
			Message: err.Error(),
			Fix:     "use <port>, <host>:<port>, or a unix socket path",
		}
	}
	return Check{
		Name:    "endpoint",
		Passed:  true,
		Message: ep.String(),
	}
}
