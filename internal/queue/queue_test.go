package queue

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/randomizedcoder/go-suite-swarm/internal/protocol"
)

func pair(name string) protocol.SuitePair {
	return protocol.SuitePair{Name: name, Path: name + "_test.rb"}
}

func popAll(t *testing.T, q *Queue) []string {
	t.Helper()
	var names []string
	for {
		p, ok := q.Pop()
		if !ok {
			return names
		}
		names = append(names, p.Name)
	}
}

func TestLongestDurationFirst(t *testing.T) {
	durations := map[string]float64{
		pair("fast").Key():   1.0,
		pair("slow").Key():   60.0,
		pair("medium").Key(): 10.0,
	}
	q := New(durations)
	for _, n := range []string{"fast", "slow", "medium"} {
		if !q.Add(pair(n)) {
			t.Fatalf("Add(%s) rejected", n)
		}
	}
	got := popAll(t, q)
	want := []string{"slow", "medium", "fast"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("dispatch order (-want +got):\n%s", diff)
	}
}

func TestUnknownDurationGoesFirst(t *testing.T) {
	durations := map[string]float64{
		pair("known").Key(): 120.0,
	}
	q := New(durations)
	q.Add(pair("known"))
	q.Add(pair("brand_new"))

	got := popAll(t, q)
	want := []string{"brand_new", "known"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("dispatch order (-want +got):\n%s", diff)
	}
}

func TestDuplicatesDropped(t *testing.T) {
	q := New(nil)
	if !q.Add(pair("once")) {
		t.Fatal("first Add rejected")
	}
	if q.Add(pair("once")) {
		t.Error("duplicate Add accepted")
	}
	if q.Len() != 1 {
		t.Errorf("Len = %d, want 1", q.Len())
	}

	// A suite stays seen even after it is popped.
	q.Pop()
	if q.Add(pair("once")) {
		t.Error("re-Add after Pop accepted")
	}
}

func TestWhitelistExcludesForeignSuites(t *testing.T) {
	q := New(nil)
	q.SetWhitelist([]protocol.SuitePair{pair("a"), pair("b")})

	if q.Add(pair("intruder")) {
		t.Error("non-whitelisted suite accepted")
	}
	if !q.Add(pair("a")) {
		t.Error("whitelisted suite rejected")
	}
}

func TestWhitelistOrderImposedWhenAwaitedDrains(t *testing.T) {
	durations := map[string]float64{
		pair("a").Key(): 1.0,
		pair("b").Key(): 100.0,
		pair("c").Key(): 50.0,
	}
	q := New(durations)
	q.SetWhitelist([]protocol.SuitePair{pair("a"), pair("b"), pair("c")})

	if !q.Awaiting() {
		t.Fatal("expected queue to await whitelisted suites")
	}

	// Arrivals in arbitrary order; duration order holds while awaiting.
	q.Add(pair("c"))
	q.Add(pair("b"))
	if !q.Awaiting() {
		t.Fatal("still one suite outstanding, Awaiting should hold")
	}

	q.Add(pair("a"))
	if q.Awaiting() {
		t.Fatal("all suites arrived, Awaiting should clear")
	}

	got := popAll(t, q)
	want := []string{"a", "b", "c"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("whitelist order (-want +got):\n%s", diff)
	}
}

func TestWhitelistEvictsQueuedSuites(t *testing.T) {
	q := New(nil)
	q.Add(pair("keep"))
	q.Add(pair("evict"))

	q.SetWhitelist([]protocol.SuitePair{pair("keep")})

	got := popAll(t, q)
	want := []string{"keep"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("post-whitelist contents (-want +got):\n%s", diff)
	}
}

func TestWhitelistAlreadySeenNotAwaited(t *testing.T) {
	q := New(nil)
	q.Add(pair("early"))
	q.SetWhitelist([]protocol.SuitePair{pair("early"), pair("late")})

	if got := q.AwaitedCount(); got != 1 {
		t.Errorf("AwaitedCount = %d, want 1", got)
	}
}

func TestPopEmpty(t *testing.T) {
	q := New(nil)
	if _, ok := q.Pop(); ok {
		t.Error("Pop on empty queue reported ok")
	}
	if q.Awaiting() {
		t.Error("empty queue with no whitelist should not await")
	}
}

func TestSnapshotDoesNotDrain(t *testing.T) {
	q := New(nil)
	q.Add(pair("a"))
	q.Add(pair("b"))

	snap := q.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Snapshot len = %d, want 2", len(snap))
	}
	if q.Len() != 2 {
		t.Errorf("Len after Snapshot = %d, want 2", q.Len())
	}
}
