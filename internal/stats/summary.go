// Package stats tracks suite durations across runs and aggregates the
// current run's worker records into an exit summary.
//
// This file implements the exit summary formatter displayed when the run
// finishes.
package stats

import (
	"fmt"
	"strings"
	"time"
)

// SummaryConfig holds configuration for summary formatting.
type SummaryConfig struct {
	// LocalWorkers is the number of workers forked on this host.
	LocalWorkers int

	// RemoteWorkers is the number of workers announced by relays.
	RemoteWorkers int

	// MetricsAddr is the Prometheus metrics endpoint address, if served.
	MetricsAddr string

	// FailureExcerptLimit caps how many failing suites are excerpted.
	// Zero means the default of 10.
	FailureExcerptLimit int
}

const rule = "═══════════════════════════════════════════════════════════════════════════════\n"
const thinRule = "───────────────────────────────────────────────────────────────────────────────\n"

// FormatExitSummary formats the run totals for display at exit.
//
// The summary includes:
// - Run duration and worker counts
// - Per-worker lines (host, pid, exit status, suites run)
// - Suite duration percentiles
// - Excerpts from failing suites
func FormatExitSummary(agg *Aggregator, cfg SummaryConfig) string {
	snap := agg.Snapshot()

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(rule)
	b.WriteString("                         go-suite-swarm Exit Summary\n")
	b.WriteString(rule)
	b.WriteString("\n")

	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(snap.Elapsed))
	fmt.Fprintf(&b, "Local Workers:          %d\n", cfg.LocalWorkers)
	if cfg.RemoteWorkers > 0 {
		fmt.Fprintf(&b, "Remote Workers:         %d\n", cfg.RemoteWorkers)
	}
	fmt.Fprintf(&b, "Suites Completed:       %d\n", snap.SuitesCompleted)
	fmt.Fprintf(&b, "Suites Failed:          %d\n\n", snap.SuitesFailed)

	records := agg.Records()
	if len(records) > 0 {
		b.WriteString(thinRule)
		b.WriteString("                                  Workers\n")
		b.WriteString(thinRule)
		b.WriteString("\n")
		fmt.Fprintf(&b, "  %-4s %-20s %8s %6s %8s %10s\n",
			"Num", "Host", "PID", "Exit", "Suites", "Wall")
		b.WriteString("  " + strings.Repeat("─", 62) + "\n")
		for _, rec := range records {
			wall := rec.EndTime.Sub(rec.StartTime)
			fmt.Fprintf(&b, "  %-4d %-20s %8d %6d %8d %10s\n",
				rec.Num, rec.Host, rec.PID, rec.ExitStatus,
				len(rec.SuitesRun), FormatDuration(wall))
		}
		b.WriteString("\n")
	}

	if snap.SuitesCompleted > 0 {
		b.WriteString(thinRule)
		b.WriteString("                           Suite Duration Percentiles\n")
		b.WriteString(thinRule)
		b.WriteString("\n")
		fmt.Fprintf(&b, "  P50 (median):         %s\n", FormatSeconds(snap.DurationP50))
		fmt.Fprintf(&b, "  P95:                  %s\n", FormatSeconds(snap.DurationP95))
		fmt.Fprintf(&b, "  P99:                  %s\n\n", FormatSeconds(snap.DurationP99))
	}

	failed := agg.FailedSuites()
	if len(failed) > 0 {
		b.WriteString(thinRule)
		b.WriteString("                               Failing Suites\n")
		b.WriteString(thinRule)
		b.WriteString("\n")

		limit := cfg.FailureExcerptLimit
		if limit <= 0 {
			limit = 10
		}
		shown := failed
		if len(shown) > limit {
			shown = shown[:limit]
		}
		for _, r := range shown {
			fmt.Fprintf(&b, "  %s %s (%s)\n", r.Status, r.Name, r.Path)
			if len(r.Detail) > 0 {
				excerpt := string(r.Detail)
				if len(excerpt) > 400 {
					excerpt = excerpt[:400] + "..."
				}
				for _, line := range strings.Split(strings.TrimRight(excerpt, "\n"), "\n") {
					fmt.Fprintf(&b, "      %s\n", line)
				}
			}
		}
		if len(failed) > len(shown) {
			fmt.Fprintf(&b, "  ... and %d more\n", len(failed)-len(shown))
		}
		b.WriteString("\n")
	}

	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}
	fmt.Fprintf(&b, "Exit Status:            %d\n", snap.ExitStatusSum)
	b.WriteString(rule)

	return b.String()
}

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatSeconds formats a second count with millisecond precision below
// ten seconds and tenth-of-a-second precision from ten seconds up.
func FormatSeconds(s float64) string {
	if s < 10 {
		return fmt.Sprintf("%.3fs", s)
	}
	return fmt.Sprintf("%.1fs", s)
}
