// Package config provides configuration management for go-suite-swarm.
package config

import (
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
)

// Config holds all configuration options for a run.
type Config struct {
	// Run topology
	Concurrency int    `json:"concurrency" toml:"concurrency"`
	Socket      string `json:"socket" toml:"socket"` // empty = per-run unix socket in ScratchDir
	Relay       string `json:"relay" toml:"relay"`   // primary endpoint; set on remote masters only
	RelayToken  string `json:"relay_token" toml:"relay_token"`

	// Relay handshake retry
	SlaveName         string        `json:"slave_name" toml:"slave_name"`
	SlaveMessage      string        `json:"slave_message" toml:"slave_message"`
	RelayRetryWindow  time.Duration `json:"relay_retry_window" toml:"relay_retry_window"`
	RelayRetryBackoff time.Duration `json:"relay_retry_backoff" toml:"relay_retry_backoff"`

	// Suites
	SuiteDir     string `json:"suite_dir" toml:"suite_dir"`
	SuitePattern string `json:"suite_pattern" toml:"suite_pattern"`

	// Whitelist restricts the run to exactly these suites, each given as
	// "name=path". Order is preserved and becomes dispatch order.
	Whitelist []string `json:"whitelist" toml:"whitelist"`

	// Files
	ScratchDir string `json:"scratch_dir" toml:"scratch_dir"`
	StatsFile  string `json:"stats_file" toml:"stats_file"`

	// Failure policy
	EarlyFailureLimit int `json:"early_failure_limit" toml:"early_failure_limit"` // 0 = unlimited

	// Observability
	MetricsAddr string `json:"metrics_addr" toml:"metrics_addr"`
	Verbose     bool   `json:"verbose" toml:"verbose"`
	LogFormat   string `json:"log_format" toml:"log_format"` // json, text
	LogLevel    string `json:"log_level" toml:"log_level"`
	TUIEnabled  bool   `json:"tui" toml:"tui"`

	// Diagnostic modes
	SkipPreflight bool `json:"skip_preflight" toml:"skip_preflight"`
}

// DefaultConfig returns a Config with sensible defaults. Concurrency
// defaults to the host's logical CPU count.
func DefaultConfig() *Config {
	return &Config{
		Concurrency: defaultConcurrency(),

		RelayRetryWindow:  30 * time.Second,
		RelayRetryBackoff: 500 * time.Millisecond,

		SuiteDir:     ".",
		SuitePattern: "*_test.sh",

		ScratchDir: "/tmp",
		StatsFile:  ".test_queue_stats",

		MetricsAddr: "0.0.0.0:17092",
		Verbose:     false,
		LogFormat:   "json",
		LogLevel:    "info",
		TUIEnabled:  false,
	}
}

// defaultConcurrency asks the host for its logical CPU count, falling back
// to 2 when the probe fails.
func defaultConcurrency() int {
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		return 2
	}
	return n
}
