package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	expansionLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fallm_expansion_latency_ms",
		Help:    "Latency of one query expansion strategy in milliseconds",
		Buckets: []float64{50, 100, 200, 400, 800, 1500, 3000, 6000},
	}, []string{"strategy"})

	retrieverLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fallm_retriever_latency_ms",
		Help:    "Latency of retriever calls in milliseconds",
		Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1500, 3000},
	}, []string{"type"})

	retrieverResults = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fallm_retriever_results",
		Help:    "Number of results returned by a retriever call",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
	}, []string{"type"})

	sourcingLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fallm_sourcing_latency_ms",
		Help:    "Latency of evidence attribution per answer in milliseconds",
		Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000},
	})

	sourcedGroups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fallm_sentence_groups_total",
		Help: "Sentence groups by attribution outcome (sourced/unsourced/skipped)",
	}, []string{"outcome"})

	requestTokens = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fallm_request_tokens",
		Help:    "LLM tokens consumed per request",
		Buckets: []float64{500, 1000, 2000, 4000, 8000, 16000, 32000},
	})
)

func ensureRegistered() {
	once.Do(func() {
		prometheus.MustRegister(expansionLatency, retrieverLatency, retrieverResults, sourcingLatency, sourcedGroups, requestTokens)
	})
}

// ObserveExpansion records latency for one expansion strategy.
func ObserveExpansion(strategy string, start time.Time) {
	ensureRegistered()
	expansionLatency.WithLabelValues(strategy).Observe(float64(time.Since(start).Milliseconds()))
}

// ObserveRetriever records latency and result size for a retriever type.
func ObserveRetriever(typ string, start time.Time, results int) {
	ensureRegistered()
	retrieverLatency.WithLabelValues(typ).Observe(float64(time.Since(start).Milliseconds()))
	retrieverResults.WithLabelValues(typ).Observe(float64(results))
}

// ObserveSourcing records the attribution latency for one answer.
func ObserveSourcing(start time.Time) {
	ensureRegistered()
	sourcingLatency.Observe(float64(time.Since(start).Milliseconds()))
}

// IncGroupOutcome counts a sentence group attribution outcome.
func IncGroupOutcome(outcome string) {
	ensureRegistered()
	sourcedGroups.WithLabelValues(outcome).Inc()
}

// ObserveRequestTokens records the tokens one request consumed.
func ObserveRequestTokens(n int64) {
	ensureRegistered()
	if n > 0 {
		requestTokens.Observe(float64(n))
	}
}
