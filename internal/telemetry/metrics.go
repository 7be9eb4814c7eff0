package telemetry

import (
	"context"

	"github.com/guillermoBallester/sqlwarden/internal/core/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/guillermoBallester/sqlwarden"

// Instruments holds pre-created OTel metric instruments.
type Instruments struct {
	QueryCount    metric.Int64Counter
	QueryDuration metric.Float64Histogram
	QueryErrors   metric.Int64Counter
	Rejections    metric.Int64Counter
	Truncations   metric.Int64Counter
	ToolDuration  metric.Float64Histogram
}

// NoopInstruments returns instruments that record nothing.
func NoopInstruments() *Instruments {
	return NewInstrumentsFromMeter(noop.NewMeterProvider().Meter(meterName))
}

// NewInstrumentsFromMeter creates the instruments on an explicit meter.
func NewInstrumentsFromMeter(meter metric.Meter) *Instruments {
	// OTel SDK returns noop instruments on error; safe to discard.
	queryCount, _ := meter.Int64Counter("sqlwarden.query.count",
		metric.WithDescription("Total number of read queries executed"),
	)
	queryDuration, _ := meter.Float64Histogram("sqlwarden.query.duration",
		metric.WithDescription("Read query execution duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	queryErrors, _ := meter.Int64Counter("sqlwarden.query.errors",
		metric.WithDescription("Total number of failed read queries"),
	)
	rejections, _ := meter.Int64Counter("sqlwarden.validation.rejections",
		metric.WithDescription("Total number of queries rejected by the validator"),
	)
	truncations, _ := meter.Int64Counter("sqlwarden.query.truncations",
		metric.WithDescription("Total number of read results cut at the row limit"),
	)
	toolDuration, _ := meter.Float64Histogram("sqlwarden.tool.duration",
		metric.WithDescription("MCP tool call duration in milliseconds"),
		metric.WithUnit("ms"),
	)

	return &Instruments{
		QueryCount:    queryCount,
		QueryDuration: queryDuration,
		QueryErrors:   queryErrors,
		Rejections:    rejections,
		Truncations:   truncations,
		ToolDuration:  toolDuration,
	}
}

func (i *Instruments) RecordQueryDuration(ctx context.Context, ms float64) {
	i.QueryDuration.Record(ctx, ms)
}

func (i *Instruments) IncrementQueryCount(ctx context.Context) {
	i.QueryCount.Add(ctx, 1)
}

func (i *Instruments) IncrementQueryErrors(ctx context.Context) {
	i.QueryErrors.Add(ctx, 1)
}

func (i *Instruments) IncrementRejections(ctx context.Context, rule domain.Rule) {
	i.Rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("validation.rule", string(rule))))
}

func (i *Instruments) IncrementTruncations(ctx context.Context) {
	i.Truncations.Add(ctx, 1)
}

func (i *Instruments) RecordToolDuration(ctx context.Context, tool string, ms float64) {
	i.ToolDuration.Record(ctx, ms, metric.WithAttributes(attribute.String("mcp.tool.name", tool)))
}
