package server

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ppiankov/medrights/internal/advisor"
)

type metrics struct {
	requests      *prometheus.CounterVec
	queries       *prometheus.CounterVec
	queryDuration prometheus.Histogram
	rateLimited   prometheus.Counter
}

func newMetrics(reg *prometheus.Registry, adv *advisor.Advisor) *metrics {
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "medrights_knowledge_clauses",
		Help: "Clauses in the knowledge snapshot being served",
	}, func() float64 {
		return float64(adv.Snapshot().Knowledge.Metadata().TotalClauseCount)
	})

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "medrights_snapshot_loaded_timestamp_seconds",
		Help: "Unix time the served data snapshot was loaded",
	}, func() float64 {
		return float64(adv.Snapshot().LoadedAt.UnixNano()) / 1e9
	})

	return &metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medrights_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "code"}),

		queries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medrights_queries_total",
			Help: "Answered queries by template and cache outcome",
		}, []string{"template", "cached"}),

		queryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "medrights_query_duration_seconds",
			Help:    "Time to answer a query, cache lookups included",
			Buckets: []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05, .1},
		}),

		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "medrights_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter",
		}),
	}
}

func (m *metrics) observeQuery(template string, cached bool, seconds float64) {
	m.queries.WithLabelValues(template, strconv.FormatBool(cached)).Inc()
	m.queryDuration.Observe(seconds)
}
