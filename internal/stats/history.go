// Package stats tracks suite durations across runs and aggregates the
// current run's worker records into an exit summary.
//
// This file implements the duration history store: a JSON file mapping suite
// identities to their last observed runtimes. It is read once at startup to
// order the queue and written once at shutdown with the durations just
// observed.
package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/randomizedcoder/go-suite-swarm/internal/protocol"
)

// SuiteDuration is one history entry.
type SuiteDuration struct {
	Name            string  `json:"name"`
	Path            string  `json:"path"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// History is the on-disk duration store, keyed by SuitePair.Key.
type History struct {
	durations map[string]float64
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{durations: map[string]float64{}}
}

// LoadHistory reads the history file at path. A missing file is not an
// error; the run simply starts with no known durations.
func LoadHistory(path string) (*History, error) {
	h := NewHistory()
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return h, nil
		}
		return nil, fmt.Errorf("stats: read history %s: %w", path, err)
	}
	var entries []SuiteDuration
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("stats: parse history %s: %w", path, err)
	}
	for _, e := range entries {
		h.durations[protocol.SuitePair{Name: e.Name, Path: e.Path}.Key()] = e.DurationSeconds
	}
	return h, nil
}

// Durations returns the key to duration map used for queue ordering.
func (h *History) Durations() map[string]float64 {
	out := make(map[string]float64, len(h.durations))
	for k, v := range h.durations {
		out[k] = v
	}
	return out
}

// Duration looks up one suite's recorded runtime.
func (h *History) Duration(pair protocol.SuitePair) (float64, bool) {
	d, ok := h.durations[pair.Key()]
	return d, ok
}

// Observe records a runtime observed this run, replacing any prior entry.
func (h *History) Observe(pair protocol.SuitePair, seconds float64) {
	h.durations[pair.Key()] = seconds
}

// Len reports the number of known suites.
func (h *History) Len() int {
	return len(h.durations)
}

// Save writes the history to path, sorted for stable diffs.
func (h *History) Save(path string) error {
	entries := make([]SuiteDuration, 0, len(h.durations))
	for key, d := range h.durations {
		pair := pairFromKey(key)
		entries = append(entries, SuiteDuration{
			Name:            pair.Name,
			Path:            pair.Path,
			DurationSeconds: d,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Path != entries[j].Path {
			return entries[i].Path < entries[j].Path
		}
		return entries[i].Name < entries[j].Name
	})

	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("stats: encode history: %w", err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("stats: write history %s: %w", path, err)
	}
	return nil
}

func pairFromKey(key string) protocol.SuitePair {
	for i := 0; i < len(key); i++ {
		if key[i] == 0 {
			return protocol.SuitePair{Name: key[:i], Path: key[i+1:]}
		}
	}
	return protocol.SuitePair{Name: key}
}
