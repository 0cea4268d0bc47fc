package aggregator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeOK         = "ok"
	outcomeFetchError = "fetch_error"
	outcomeParseError = "parse_error"
)

// Metrics is optional; a nil *Metrics records nothing.
type Metrics struct {
	sourceFetches *prometheus.CounterVec
	articles      *prometheus.CounterVec
	duration      prometheus.Histogram
	emptyResults  prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sourceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feeddash_source_fetch_total",
			Help: "Per-source fetch attempts by outcome.",
		}, []string{"outcome"}),
		articles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feeddash_articles_aggregated_total",
			Help: "Articles produced by aggregations, by requested category.",
		}, []string{"category"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "feeddash_aggregation_seconds",
			Help:    "Wall-clock time of a full aggregation.",
			Buckets: prometheus.DefBuckets,
		}),
		emptyResults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feeddash_empty_results_total",
			Help: "Aggregations where every source produced nothing.",
		}),
	}
	reg.MustRegister(m.sourceFetches, m.articles, m.duration, m.emptyResults)
	return m
}

func (m *Metrics) sourceResult(outcome string) {
	if m == nil {
		return
	}
	m.sourceFetches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeAggregation(category string, count int, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Observe(d.Seconds())
	if count == 0 {
		m.emptyResults.Inc()
		return
	}
	m.articles.WithLabelValues(category).Add(float64(count))
}
