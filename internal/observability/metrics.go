package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	catalogUpsertGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "therapy_matcher",
		Subsystem: "catalog",
		Name:      "last_upsert_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity or patient upsert.",
	})

	catalogReadGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "therapy_matcher",
		Subsystem: "catalog",
		Name:      "last_read_timestamp_seconds",
		Help:      "Unix timestamp of the most recent full catalog read.",
	})

	matchRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "therapy_matcher",
		Subsystem: "matcher",
		Name:      "requests_total",
		Help:      "Match requests, labeled by outcome (matched, empty, unknown_patient, error).",
	}, []string{"outcome"})

	matchResultSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "therapy_matcher",
		Subsystem: "matcher",
		Name:      "result_size",
		Help:      "Number of activities returned per match request.",
		Buckets:   []float64{0, 1, 2, 3},
	})
)

// Match outcomes.
const (
	MatchOutcomeMatched        = "matched"
	MatchOutcomeEmpty          = "empty"
	MatchOutcomeUnknownPatient = "unknown_patient"
	MatchOutcomeError          = "error"
)

func init() {
	prometheus.MustRegister(catalogUpsertGauge, catalogReadGauge, matchRequests, matchResultSize)
}

// RecordCatalogUpsert updates the upsert watermark.
func RecordCatalogUpsert(ts time.Time) {
	if ts.IsZero() {
		return
	}
	catalogUpsertGauge.Set(float64(ts.Unix()))
}

// RecordCatalogRead updates the read watermark.
func RecordCatalogRead(ts time.Time) {
	if ts.IsZero() {
		return
	}
	catalogReadGauge.Set(float64(ts.Unix()))
}

// RecordMatch counts a match request and the size of its result.
func RecordMatch(outcome string, results int) {
	matchRequests.WithLabelValues(outcome).Inc()
	if outcome != MatchOutcomeError {
		matchResultSize.Observe(float64(results))
	}
}

// MatchRequests exposes the request counter for assertions.
func MatchRequests() *prometheus.CounterVec {
	return matchRequests
}
