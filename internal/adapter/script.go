package adapter

import (
	"bytes"
	"context"
	"io/fs"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/randomizedcoder/go-suite-swarm/internal/protocol"
)

// ScriptAdapter treats every matching file under Root as one executable
// suite. The suite name is the file base name without extension; execution
// runs the file as a subprocess and maps exit status zero to passed.
type ScriptAdapter struct {
	// Root is the directory walked for suite files.
	Root string

	// Pattern is the file-name glob matched during the walk.
	// Defaults to "*_test.sh".
	Pattern string

	// Env is appended to each suite subprocess environment, entries in
	// "KEY=value" form.
	Env []string
}

// NewScriptAdapter returns a ScriptAdapter over root with the default
// pattern.
func NewScriptAdapter(root string) *ScriptAdapter {
	return &ScriptAdapter{Root: root, Pattern: "*_test.sh"}
}

func (a *ScriptAdapter) Name() string { return "script" }

func (a *ScriptAdapter) pattern() string {
	if a.Pattern == "" {
		return "*_test.sh"
	}
	return a.Pattern
}

// EnumerateSuiteFiles walks Root and returns matching files sorted by path.
func (a *ScriptAdapter) EnumerateSuiteFiles(ctx context.Context) ([]string, error) {
	var files []string
	err := filepath.WalkDir(a.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		ok, err := filepath.Match(a.pattern(), d.Name())
		if err != nil {
			return err
		}
		if ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// EnumerateSuites reports the single suite a script file defines: its base
// name without extension.
func (a *ScriptAdapter) EnumerateSuites(ctx context.Context, path string) ([]string, error) {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return []string{name}, nil
}

// RunSuite executes the script and converts the outcome into a result.
// A non-zero exit is a failure; failing to start at all is an error.
func (a *ScriptAdapter) RunSuite(ctx context.Context, pair protocol.SuitePair) protocol.SuiteResult {
	result := protocol.SuiteResult{Name: pair.Name, Path: pair.Path}

	cmd := exec.CommandContext(ctx, pair.Path)
	cmd.Env = append(cmd.Environ(), a.Env...)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	start := time.Now()
	err := cmd.Run()
	result.DurationSeconds = time.Since(start).Seconds()

	switch {
	case err == nil:
		result.Status = protocol.SuitePassed
	case cmd.ProcessState != nil:
		result.Status = protocol.SuiteFailed
		result.Detail = output.Bytes()
	default:
		result.Status = protocol.SuiteErrored
		result.Detail = []byte(err.Error())
	}
	return result
}
