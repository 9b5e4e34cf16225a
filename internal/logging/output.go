package logging

import (
	"context"
	"log/slog"
	"strings"
)

// maxOutputLine caps how much of a single suite-output line is logged.
const maxOutputLine = 4096

// SuiteOutput routes the lines a worker captures from its suites into the
// run log. Passing suites produce debug noise only; lines that read like
// failures are raised to warn so they surface at the default level. The
// full capture always lands in the worker's scratch file, so nothing is
// buffered here.
type SuiteOutput struct {
	logger  *slog.Logger
	verbose bool

	lines   int
	flagged int
}

// NewSuiteOutput creates a router writing to logger. With verbose set,
// every line is logged regardless of classification.
func NewSuiteOutput(logger *slog.Logger, verbose bool) *SuiteOutput {
	return &SuiteOutput{logger: logger, verbose: verbose}
}

// Line routes one line of suite output.
func (s *SuiteOutput) Line(line string) {
	if len(line) > maxOutputLine {
		line = line[:maxOutputLine] + " [truncated]"
	}
	s.lines++

	level := slog.LevelDebug
	if looksLikeFailure(line) {
		level = slog.LevelWarn
		s.flagged++
	}
	if level == slog.LevelDebug && !s.verbose {
		return
	}
	s.logger.Log(context.Background(), level, "suite_output", "line", line)
}

// Stats reports how many lines were routed and how many were flagged as
// failure-looking.
func (s *SuiteOutput) Stats() (lines, flagged int) {
	return s.lines, s.flagged
}

var failureMarkers = []string{"fail", "error", "panic", "fatal", "assert"}

// looksLikeFailure reports whether a line of suite output reads like a
// test failure.
func looksLikeFailure(line string) bool {
	lower := strings.ToLower(line)
	for _, marker := range failureMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
