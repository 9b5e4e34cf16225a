package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// SchemaVersion is the version stamped into serialized records. Both ends of
// a run must agree; decode rejects anything else.
const SchemaVersion = 1

// SuitePair identifies one test suite: a name unique within the file at Path.
// It is the queue element and the unit of dispatch.
type SuitePair struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Key returns a map key unique per (name, path).
func (p SuitePair) Key() string {
	return p.Name + "\x00" + p.Path
}

func (p SuitePair) String() string {
	return p.Name + " (" + p.Path + ")"
}

// SuiteStatus is the outcome of one executed suite.
type SuiteStatus string

const (
	SuitePassed  SuiteStatus = "passed"
	SuiteFailed  SuiteStatus = "failed"
	SuiteErrored SuiteStatus = "errored"
)

// SuiteResult records one executed suite. Detail carries framework-specific
// failure output as an opaque byte blob.
type SuiteResult struct {
	V               int         `json:"v"`
	Name            string      `json:"name"`
	Path            string      `json:"path"`
	DurationSeconds float64     `json:"duration_seconds"`
	Status          SuiteStatus `json:"status"`
	Detail          []byte      `json:"detail,omitempty"`
}

// Failed reports whether the suite did not pass.
func (r SuiteResult) Failed() bool {
	return r.Status != SuitePassed
}

// Pair returns the suite identity of this result.
func (r SuiteResult) Pair() SuitePair {
	return SuitePair{Name: r.Name, Path: r.Path}
}

// WorkerRecord is the finalized record of one worker process. Created at
// fork, populated at reap, and forwarded over the wire by remote masters.
type WorkerRecord struct {
	V          int           `json:"v"`
	Num        int           `json:"num"`
	PID        int           `json:"pid"`
	Host       string        `json:"host"`
	StartTime  time.Time     `json:"start_time"`
	EndTime    time.Time     `json:"end_time"`
	ExitStatus int           `json:"exit_status"`
	Stdout     string        `json:"stdout,omitempty"`
	Summary    string        `json:"summary,omitempty"`
	Failure    string        `json:"failure,omitempty"`
	SuitesRun  []SuiteResult `json:"suites_run"`
}

// EncodeWorkerRecord serializes a worker record for a WORKER message payload.
func EncodeWorkerRecord(rec *WorkerRecord) ([]byte, error) {
	rec.V = SchemaVersion
	for i := range rec.SuitesRun {
		rec.SuitesRun[i].V = SchemaVersion
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode worker record: %w", err)
	}
	return b, nil
}

// DecodeWorkerRecord parses a WORKER message payload, rejecting records from
// an incompatible schema.
func DecodeWorkerRecord(b []byte) (*WorkerRecord, error) {
	var rec WorkerRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("protocol: decode worker record: %w", err)
	}
	if rec.V != SchemaVersion {
		return nil, fmt.Errorf("protocol: worker record schema v%d, want v%d", rec.V, SchemaVersion)
	}
	return &rec, nil
}

// EncodeSuiteResults serializes a worker's per-suite results for its
// scratch handoff file.
func EncodeSuiteResults(results []SuiteResult) ([]byte, error) {
	for i := range results {
		results[i].V = SchemaVersion
	}
	b, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode suite results: %w", err)
	}
	return b, nil
}

// DecodeSuiteResults parses a worker's suite-results file.
func DecodeSuiteResults(b []byte) ([]SuiteResult, error) {
	var results []SuiteResult
	if err := json.Unmarshal(b, &results); err != nil {
		return nil, fmt.Errorf("protocol: decode suite results: %w", err)
	}
	for _, r := range results {
		if r.V != SchemaVersion {
			return nil, fmt.Errorf("protocol: suite result schema v%d, want v%d", r.V, SchemaVersion)
		}
	}
	return results, nil
}

// waitSentinel is the serialized POP reply telling a worker to stand by.
const waitSentinel = `"WAIT"`

// EncodePopSuite serializes a POP reply carrying a suite.
func EncodePopSuite(pair SuitePair) ([]byte, error) {
	b, err := json.Marshal(pair)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode pop suite: %w", err)
	}
	return b, nil
}

// EncodePopWait returns the serialized WAIT sentinel.
func EncodePopWait() []byte {
	return []byte(waitSentinel)
}

// PopReply is the decoded outcome of a POP request.
type PopReply struct {
	Suite *SuitePair // non-nil when a suite was served
	Wait  bool       // master is awaiting suites; retry shortly
	Done  bool       // run is over; exit cleanly
}

// DecodePopReply parses a POP response body.
func DecodePopReply(b []byte) (PopReply, error) {
	if len(b) == 0 {
		return PopReply{Done: true}, nil
	}
	if string(b) == waitSentinel {
		return PopReply{Wait: true}, nil
	}
	var pair SuitePair
	if err := json.Unmarshal(b, &pair); err != nil {
		return PopReply{}, fmt.Errorf("protocol: decode pop reply: %w", err)
	}
	return PopReply{Suite: &pair}, nil
}
