package telemetry

import (
	"net/http"
	"time"

	"github.com/dukerupert/cartcore/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus metrics for cart synchronization and checkout.
// It satisfies both cartsync.Recorder and checkout.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	// Cart
	CartMutations  *prometheus.CounterVec
	MergeRuns      prometheus.Counter
	MergeItems     *prometheus.CounterVec
	StaleResponses prometheus.Counter

	// Checkout funnel
	CheckoutTransitions *prometheus.CounterVec
	Submissions         *prometheus.CounterVec
	SubmissionDuration  *prometheus.HistogramVec
}

// NewMetrics creates all metrics on a dedicated registry, together with the
// Go runtime and process collectors.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "cartcore"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// =======================================================================
		// Cart
		// =======================================================================
		CartMutations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cart",
				Name:      "mutations_total",
				Help:      "Cart mutations by operation, mode and outcome",
			},
			[]string{"op", "mode", "outcome"}, // outcome: ok or an error code
		),
		MergeRuns: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cart",
				Name:      "merges_total",
				Help:      "Login drains of the local cart into the remote cart",
			},
		),
		MergeItems: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cart",
				Name:      "merge_items_total",
				Help:      "Line items processed by login drains",
			},
			[]string{"result"}, // result: drained, failed
		),
		StaleResponses: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cart",
				Name:      "stale_responses_total",
				Help:      "Remote cart responses discarded because a newer one was applied",
			},
		),

		// =======================================================================
		// Checkout Funnel
		// =======================================================================
		CheckoutTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "checkout",
				Name:      "transitions_total",
				Help:      "Checkout state transitions",
			},
			[]string{"from", "to"},
		),
		Submissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "checkout",
				Name:      "submissions_total",
				Help:      "Order submissions by outcome",
			},
			[]string{"outcome"},
		),
		SubmissionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "checkout",
				Name:      "submission_duration_seconds",
				Help:      "Time from submit to a terminal state, payment sheet included",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"outcome"},
		),
	}
}

// Registry exposes the registry so HTTP metrics can share it.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus scrape handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordMutation(op, mode string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = domain.ErrorCode(err)
	}
	m.CartMutations.WithLabelValues(op, mode, outcome).Inc()
}

func (m *Metrics) RecordMerge(drained, failed int) {
	m.MergeRuns.Inc()
	m.MergeItems.WithLabelValues("drained").Add(float64(drained))
	m.MergeItems.WithLabelValues("failed").Add(float64(failed))
}

func (m *Metrics) RecordStaleResponse() {
	m.StaleResponses.Inc()
}

func (m *Metrics) RecordTransition(from, to string) {
	m.CheckoutTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) RecordSubmission(outcome string, elapsed time.Duration) {
	m.Submissions.WithLabelValues(outcome).Inc()
	m.SubmissionDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}
