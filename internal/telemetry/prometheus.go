package telemetry

import (
	"context"
	"net/http"

	"github.com/guillermoBallester/sqlwarden/internal/core/domain"
	"github.com/guillermoBallester/sqlwarden/internal/core/port"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus exposes the same application metrics as Instruments for
// pull-based scraping. Each instance owns its registry.
type Prometheus struct {
	registry      *prometheus.Registry
	queries       prometheus.Counter
	queryErrors   prometheus.Counter
	queryDuration prometheus.Histogram
	rejections    *prometheus.CounterVec
	truncations   prometheus.Counter
	toolDuration  *prometheus.HistogramVec
}

var durationBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		queries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sqlwarden_queries_total",
			Help: "Total number of read queries executed.",
		}),
		queryErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sqlwarden_query_errors_total",
			Help: "Total number of failed read queries.",
		}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sqlwarden_query_duration_ms",
			Help:    "Read query execution duration in milliseconds.",
			Buckets: durationBuckets,
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sqlwarden_validation_rejections_total",
			Help: "Total number of queries rejected by the validator, by rule.",
		}, []string{"rule"}),
		truncations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sqlwarden_truncations_total",
			Help: "Total number of read results cut at the row limit.",
		}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sqlwarden_tool_duration_ms",
			Help:    "MCP tool call duration in milliseconds.",
			Buckets: durationBuckets,
		}, []string{"tool"}),
	}
	p.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.queries,
		p.queryErrors,
		p.queryDuration,
		p.rejections,
		p.truncations,
		p.toolDuration,
	)
	return p
}

// Handler serves the registry in the Prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Registry returns the underlying registry.
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

func (p *Prometheus) RecordQueryDuration(_ context.Context, ms float64) {
	p.queryDuration.Observe(ms)
}

func (p *Prometheus) IncrementQueryCount(context.Context) { p.queries.Inc() }

func (p *Prometheus) IncrementQueryErrors(context.Context) { p.queryErrors.Inc() }

func (p *Prometheus) IncrementRejections(_ context.Context, rule domain.Rule) {
	p.rejections.WithLabelValues(string(rule)).Inc()
}

func (p *Prometheus) IncrementTruncations(context.Context) { p.truncations.Inc() }

func (p *Prometheus) RecordToolDuration(_ context.Context, tool string, ms float64) {
	p.toolDuration.WithLabelValues(tool).Observe(ms)
}

// Fanout forwards every measurement to each sink in order.
type Fanout []port.Instrumentation

func (f Fanout) RecordQueryDuration(ctx context.Context, ms float64) {
	for _, s := range f {
		s.RecordQueryDuration(ctx, ms)
	}
}

func (f Fanout) IncrementQueryCount(ctx context.Context) {
	for _, s := range f {
		s.IncrementQueryCount(ctx)
	}
}

func (f Fanout) IncrementQueryErrors(ctx context.Context) {
	for _, s := range f {
		s.IncrementQueryErrors(ctx)
	}
}

func (f Fanout) IncrementRejections(ctx context.Context, rule domain.Rule) {
	for _, s := range f {
		s.IncrementRejections(ctx, rule)
	}
}

func (f Fanout) IncrementTruncations(ctx context.Context) {
	for _, s := range f {
		s.IncrementTruncations(ctx)
	}
}

func (f Fanout) RecordToolDuration(ctx context.Context, tool string, ms float64) {
	for _, s := range f {
		s.RecordToolDuration(ctx, tool, ms)
	}
}
