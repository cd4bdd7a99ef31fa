package agentloop

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors updated by sessions. A nil
// *Metrics records nothing.
type Metrics struct {
	iterations    *prometheus.CounterVec
	sessions      *prometheus.CounterVec
	parseFailures prometheus.Counter
	llmQuery      prometheus.Histogram
}

// NewMetrics registers the session collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		iterations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "thinkloop_iterations_total",
			Help: "Loop iterations recorded, by entry kind and result status.",
		}, []string{"kind", "status"}),
		sessions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "thinkloop_sessions_total",
			Help: "Sessions finished, by terminal state.",
		}, []string{"state"}),
		parseFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "thinkloop_parse_failures_total",
			Help: "LLM responses that did not contain a usable decision.",
		}),
		llmQuery: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "thinkloop_llm_query_seconds",
			Help:    "Latency of decision queries to the LLM, retries included.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}
}

func (m *Metrics) observeEntry(e Entry) {
	if m == nil {
		return
	}
	m.iterations.WithLabelValues(string(e.Kind), string(e.Result.Status)).Inc()
}

func (m *Metrics) observeSession(state State) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(string(state)).Inc()
}

func (m *Metrics) observeParseFailure() {
	if m == nil {
		return
	}
	m.parseFailures.Inc()
}

func (m *Metrics) observeQuery(d time.Duration) {
	if m == nil {
		return
	}
	m.llmQuery.Observe(d.Seconds())
}
