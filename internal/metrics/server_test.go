package metrics

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-suite-swarm/internal/logging"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()

	reg := prometheus.NewRegistry()
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "swarm_test_gauge"})
	reg.MustRegister(g)
	g.Set(7)

	s := NewServer("127.0.0.1:0", reg, logging.Discard())
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { s.Shutdown(t.Context()) })
	return s
}

func get(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestServerServesGatherer(t *testing.T) {
	s := startTestServer(t)
	body := get(t, "http://"+s.Addr()+"/metrics")
	if !strings.Contains(body, "swarm_test_gauge 7") {
		t.Errorf("metrics output missing gauge:\n%s", body)
	}
}

func TestServerHealthz(t *testing.T) {
	s := startTestServer(t)
	if body := get(t, "http://"+s.Addr()+"/healthz"); body != "ok\n" {
		t.Errorf("healthz body = %q, want ok", body)
	}
}

func TestServerStartFailsOnBadAddr(t *testing.T) {
	s := NewServer("256.256.256.256:0", prometheus.NewRegistry(), logging.Discard())
	if err := s.Start(); err == nil {
		s.Shutdown(t.Context())
		t.Fatal("Start on a bogus address did not fail")
	}
}

func TestServerAddrResolvesAfterStart(t *testing.T) {
	s := startTestServer(t)
	if strings.HasSuffix(s.Addr(), ":0") {
		t.Errorf("Addr still unresolved after Start: %s", s.Addr())
	}
}
