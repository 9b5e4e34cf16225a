package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// RunStatus is a point-in-time view of a running master, assembled from
// its /metrics endpoint.
type RunStatus struct {
	Version string
	Adapter string

	QueueDepth    int
	AwaitedSuites int
	LocalWorkers  int
	RemoteWorkers int
	ElapsedSecs   float64

	SuitesDispatched int64
	SuitesCompleted  int64
	SuiteFailures    int64
	WrongTokens      int64
	WorkerExits      map[string]int64 // by category

	ScrapedAt time.Time
}

// StatusScraper fetches RunStatus snapshots from a master's metrics
// endpoint.
type StatusScraper struct {
	url        string
	httpClient *http.Client
}

// NewStatusScraper creates a scraper for the given metrics address. Bare
// host:port values are normalized to a full /metrics URL.
func NewStatusScraper(addr string) *StatusScraper {
	url := addr
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}
	if !strings.HasSuffix(url, "/metrics") {
		url = strings.TrimRight(url, "/") + "/metrics"
	}
	return &StatusScraper{
		url: url,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Scrape fetches and parses one snapshot.
func (s *StatusScraper) Scrape() (*RunStatus, error) {
	resp, err := s.httpClient.Get(s.url)
	if err != nil {
		return nil, fmt.Errorf("metrics: fetch %s: %w", s.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metrics: fetch %s: http status %d", s.url, resp.StatusCode)
	}

	families, err := parseFamilies(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("metrics: parse %s: %w", s.url, err)
	}

	return statusFromFamilies(families), nil
}

func parseFamilies(r io.Reader) (map[string]*dto.MetricFamily, error) {
	decoder := expfmt.NewDecoder(r, expfmt.FmtText)
	families := make(map[string]*dto.MetricFamily)
	for {
		var mf dto.MetricFamily
		if err := decoder.Decode(&mf); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		families[mf.GetName()] = &mf
	}
	return families, nil
}

func statusFromFamilies(families map[string]*dto.MetricFamily) *RunStatus {
	st := &RunStatus{
		WorkerExits: make(map[string]int64),
		ScrapedAt:   time.Now(),
	}

	if mf, ok := families["suite_swarm_info"]; ok {
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				switch l.GetName() {
				case "version":
					st.Version = l.GetValue()
				case "adapter":
					st.Adapter = l.GetValue()
				}
			}
		}
	}

	st.QueueDepth = int(gaugeValue(families, "suite_swarm_queue_depth"))
	st.AwaitedSuites = int(gaugeValue(families, "suite_swarm_awaited_suites"))
	st.LocalWorkers = int(gaugeValue(families, "suite_swarm_local_workers"))
	st.RemoteWorkers = int(gaugeValue(families, "suite_swarm_remote_workers"))
	st.ElapsedSecs = gaugeValue(families, "suite_swarm_run_elapsed_seconds")

	st.SuitesDispatched = int64(counterValue(families, "suite_swarm_suites_dispatched_total"))
	st.SuitesCompleted = int64(counterValue(families, "suite_swarm_suites_completed_total"))
	st.SuiteFailures = int64(counterValue(families, "suite_swarm_suite_failures_total"))
	st.WrongTokens = int64(counterValue(families, "suite_swarm_wrong_token_total"))

	if mf, ok := families["suite_swarm_worker_exits_total"]; ok {
		for _, m := range mf.GetMetric() {
			category := ""
			for _, l := range m.GetLabel() {
				if l.GetName() == "category" {
					category = l.GetValue()
				}
			}
			if category != "" {
				st.WorkerExits[category] += int64(m.GetCounter().GetValue())
			}
		}
	}

	return st
}

func gaugeValue(families map[string]*dto.MetricFamily, name string) float64 {
	mf, ok := families[name]
	if !ok || len(mf.GetMetric()) == 0 {
		return 0
	}
	return mf.GetMetric()[0].GetGauge().GetValue()
}

func counterValue(families map[string]*dto.MetricFamily, name string) float64 {
	mf, ok := families[name]
	if !ok {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		total += m.GetCounter().GetValue()
	}
	return total
}

// Format renders the status as a short human-readable report.
func (st *RunStatus) Format() string {
	var b strings.Builder

	fmt.Fprintf(&b, "run:        version=%s adapter=%s elapsed=%s\n",
		orUnknown(st.Version), orUnknown(st.Adapter), formatElapsed(st.ElapsedSecs))
	fmt.Fprintf(&b, "queue:      depth=%d awaited=%d\n", st.QueueDepth, st.AwaitedSuites)
	fmt.Fprintf(&b, "workers:    local=%d remote=%d\n", st.LocalWorkers, st.RemoteWorkers)
	fmt.Fprintf(&b, "suites:     dispatched=%d completed=%d failed=%d\n",
		st.SuitesDispatched, st.SuitesCompleted, st.SuiteFailures)

	if len(st.WorkerExits) > 0 {
		categories := make([]string, 0, len(st.WorkerExits))
		for c := range st.WorkerExits {
			categories = append(categories, c)
		}
		sort.Strings(categories)
		parts := make([]string, 0, len(categories))
		for _, c := range categories {
			parts = append(parts, fmt.Sprintf("%s=%d", c, st.WorkerExits[c]))
		}
		fmt.Fprintf(&b, "exits:      %s\n", strings.Join(parts, " "))
	}

	if st.WrongTokens > 0 {
		fmt.Fprintf(&b, "rejected:   wrong_token=%d\n", st.WrongTokens)
	}

	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func formatElapsed(secs float64) string {
	d := time.Duration(secs * float64(time.Second))
	return d.Truncate(time.Second).String()
}
