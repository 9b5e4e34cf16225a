package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	c := NewCollectorWithRegistry(CollectorConfig{
		Version: "test",
		Adapter: "script",
	}, registry)
	return c, registry
}

func TestNewCollectorRegistersFamilies(t *testing.T) {
	_, registry := newTestCollector(t)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	got := make(map[string]bool)
	for _, mf := range families {
		got[mf.GetName()] = true
	}

	want := []string{
		"suite_swarm_info",
		"suite_swarm_queue_depth",
		"suite_swarm_suites_dispatched_total",
		"suite_swarm_suites_completed_total",
	}
	for _, name := range want {
		if !got[name] {
			t.Errorf("family %s not registered", name)
		}
	}
}

func TestRecordHeartbeatTracksPeak(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordHeartbeat(HeartbeatUpdate{QueueDepth: 3})
	c.RecordHeartbeat(HeartbeatUpdate{QueueDepth: 12})
	c.RecordHeartbeat(HeartbeatUpdate{QueueDepth: 5})

	if peak := c.PeakQueueDepth(); peak != 12 {
		t.Errorf("PeakQueueDepth = %d, want 12", peak)
	}
}

func TestWrongTokenCount(t *testing.T) {
	c, _ := newTestCollector(t)

	if n := c.WrongTokenCount(); n != 0 {
		t.Errorf("initial WrongTokenCount = %d, want 0", n)
	}

	c.WrongToken()
	c.WrongToken()

	if n := c.WrongTokenCount(); n != 2 {
		t.Errorf("WrongTokenCount = %d, want 2", n)
	}
}

func TestWorkerExited(t *testing.T) {
	c, _ := newTestCollector(t)

	c.WorkerExited(0)
	c.WorkerExited(0)
	c.WorkerExited(1)
	c.WorkerExited(137)

	exits := c.WorkerExits()
	if exits[0] != 2 {
		t.Errorf("exits[0] = %d, want 2", exits[0])
	}
	if exits[1] != 1 {
		t.Errorf("exits[1] = %d, want 1", exits[1])
	}
	if exits[137] != 1 {
		t.Errorf("exits[137] = %d, want 1", exits[137])
	}
}

func TestWorkerExitsReturnsCopy(t *testing.T) {
	c, _ := newTestCollector(t)
	c.WorkerExited(0)

	exits := c.WorkerExits()
	exits[0] = 99

	if got := c.WorkerExits()[0]; got != 1 {
		t.Errorf("internal map mutated through copy: got %d, want 1", got)
	}
}

func TestSuiteCompleted(t *testing.T) {
	c, _ := newTestCollector(t)

	c.SuiteCompleted(1.5, false)
	c.SuiteCompleted(0.2, true)

	c.mu.Lock()
	done, failed := c.suitesDone, c.suitesFailed
	c.mu.Unlock()

	if done != 2 {
		t.Errorf("suitesDone = %d, want 2", done)
	}
	if failed != 1 {
		t.Errorf("suitesFailed = %d, want 1", failed)
	}
}

func TestStartTime(t *testing.T) {
	c, _ := newTestCollector(t)
	if time.Since(c.StartTime()) > time.Minute {
		t.Error("StartTime is not recent")
	}
}

func TestCollectorConcurrent(t *testing.T) {
	c, _ := newTestCollector(t)

	done := make(chan bool)
	go func() {
		for i := 0; i < 100; i++ {
			c.WorkerExited(i % 3)
			c.WrongToken()
		}
		done <- true
	}()
	go func() {
		for i := 0; i < 100; i++ {
			c.RecordHeartbeat(HeartbeatUpdate{QueueDepth: i})
			_ = c.WorkerExits()
		}
		done <- true
	}()

	<-done
	<-done

	if n := c.WrongTokenCount(); n != 100 {
		t.Errorf("WrongTokenCount = %d, want 100", n)
	}
}
