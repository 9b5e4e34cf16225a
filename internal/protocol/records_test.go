package protocol

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestWorkerRecordEncodeDecode(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := &WorkerRecord{
		Num:        3,
		PID:        4242,
		Host:       "build-7",
		StartTime:  start,
		EndTime:    start.Add(90 * time.Second),
		ExitStatus: 2,
		Stdout:     "ran 5 suites",
		SuitesRun: []SuiteResult{
			{Name: "TestAuth", Path: "auth_test.rb", DurationSeconds: 12.5, Status: SuitePassed},
			{Name: "TestBilling", Path: "billing_test.rb", DurationSeconds: 44.1, Status: SuiteFailed, Detail: []byte("assertion failed")},
		},
	}

	b, err := EncodeWorkerRecord(rec)
	if err != nil {
		t.Fatalf("EncodeWorkerRecord: %v", err)
	}
	got, err := DecodeWorkerRecord(b)
	if err != nil {
		t.Fatalf("DecodeWorkerRecord: %v", err)
	}
	if got.V != SchemaVersion {
		t.Errorf("V = %d, want %d", got.V, SchemaVersion)
	}
	if diff := cmp.Diff(rec, got); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeWorkerRecordRejectsForeignSchema(t *testing.T) {
	b := []byte(`{"v":99,"num":1,"pid":2,"host":"h","suites_run":[]}`)
	if _, err := DecodeWorkerRecord(b); err == nil {
		t.Fatal("DecodeWorkerRecord accepted schema v99")
	}
}

func TestSuiteResultsEncodeDecode(t *testing.T) {
	results := []SuiteResult{
		{Name: "TestA", Path: "a_test.rb", DurationSeconds: 1.5, Status: SuitePassed},
		{Name: "TestB", Path: "b_test.rb", DurationSeconds: 2.5, Status: SuiteErrored, Detail: []byte("boom")},
	}
	b, err := EncodeSuiteResults(results)
	if err != nil {
		t.Fatalf("EncodeSuiteResults: %v", err)
	}
	got, err := DecodeSuiteResults(b)
	if err != nil {
		t.Fatalf("DecodeSuiteResults: %v", err)
	}
	if diff := cmp.Diff(results, got); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeSuiteResultsRejectsForeignSchema(t *testing.T) {
	b := []byte(`[{"v":7,"name":"TestA","path":"a","status":"passed"}]`)
	if _, err := DecodeSuiteResults(b); err == nil {
		t.Fatal("DecodeSuiteResults accepted schema v7")
	}
}

func TestSuiteResultFailed(t *testing.T) {
	tests := []struct {
		status SuiteStatus
		want   bool
	}{
		{SuitePassed, false},
		{SuiteFailed, true},
		{SuiteErrored, true},
	}
	for _, tt := range tests {
		r := SuiteResult{Status: tt.status}
		if got := r.Failed(); got != tt.want {
			t.Errorf("Failed() with status %q = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestDecodePopReply(t *testing.T) {
	tests := []struct {
		name string
		body []byte
		want PopReply
	}{
		{"empty body means done", nil, PopReply{Done: true}},
		{"wait sentinel", []byte(`"WAIT"`), PopReply{Wait: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodePopReply(tt.body)
			if err != nil {
				t.Fatalf("DecodePopReply: %v", err)
			}
			if got != tt.want {
				t.Errorf("DecodePopReply = %+v, want %+v", got, tt.want)
			}
		})
	}

	t.Run("suite body", func(t *testing.T) {
		pair := SuitePair{Name: "TestX", Path: "x_test.rb"}
		b, err := EncodePopSuite(pair)
		if err != nil {
			t.Fatalf("EncodePopSuite: %v", err)
		}
		got, err := DecodePopReply(b)
		if err != nil {
			t.Fatalf("DecodePopReply: %v", err)
		}
		if got.Suite == nil || *got.Suite != pair {
			t.Errorf("DecodePopReply = %+v, want suite %+v", got, pair)
		}
	})
}

func TestSuitePairKey(t *testing.T) {
	a := SuitePair{Name: "TestX", Path: "one.rb"}
	b := SuitePair{Name: "TestX", Path: "two.rb"}
	if a.Key() == b.Key() {
		t.Errorf("pairs with different paths share key %q", a.Key())
	}
	if a.Key() != (SuitePair{Name: "TestX", Path: "one.rb"}).Key() {
		t.Error("identical pairs produced different keys")
	}
}
