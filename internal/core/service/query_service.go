package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/guillermoBallester/sqlwarden/internal/core/domain"
	"github.com/guillermoBallester/sqlwarden/internal/core/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type toolNameKey struct{}

// WithToolName returns a context carrying the MCP tool name for audit logging.
func WithToolName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, toolNameKey{}, name)
}

func toolNameFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(toolNameKey{}).(string); ok {
		return v
	}
	return ""
}

// systemNamer is implemented by executors that know their database engine.
type systemNamer interface {
	System() string
}

// QueryService gates ad hoc reads: validation (domain) first, then a bounded
// read through the executor (infrastructure).
type QueryService struct {
	validator port.QueryValidator
	executor  port.QueryExecutor
	reader    *BoundedReader
	auditor   port.QueryAuditor
	logger    *slog.Logger
	masks     domain.ColumnMasks // nil = no masking
	tracer    trace.Tracer
	inst      port.Instrumentation
}

func NewQueryService(validator port.QueryValidator, executor port.QueryExecutor, reader *BoundedReader, auditor port.QueryAuditor, logger *slog.Logger, masks domain.ColumnMasks, tracer trace.Tracer, inst port.Instrumentation) *QueryService {
	if logger == nil {
		logger = slog.Default()
	}
	if reader == nil {
		reader = NewBoundedReader(domain.DefaultMaxRecordCount, logger)
	}
	if auditor == nil {
		auditor = port.NoopAuditor{}
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	return &QueryService{
		validator: validator,
		executor:  executor,
		reader:    reader,
		auditor:   auditor,
		logger:    logger,
		masks:     masks,
		tracer:    tracer,
		inst:      inst,
	}
}

// Read validates sql and, only when accepted, runs it through the bounded reader.
// Rejected queries never reach the executor.
func (s *QueryService) Read(ctx context.Context, sql string) domain.ReadResult {
	system := "unknown"
	if n, ok := s.executor.(systemNamer); ok {
		system = n.System()
	}

	ctx, span := s.tracer.Start(ctx, "QueryService.Read",
		trace.WithAttributes(
			attribute.String("db.system", system),
			attribute.String("db.operation.name", "query"),
			attribute.String("db.statement", sql),
		),
	)
	defer span.End()

	verdict := s.validator.Validate(sql)
	if !verdict.Accepted {
		return s.reject(ctx, span, sql, verdict.Rule, verdict.Err())
	}

	// Masked columns must be traceable to their output names before the
	// query runs; otherwise nothing is returned.
	targets, err := s.masks.Targets(sql)
	if err != nil {
		return s.reject(ctx, span, sql, domain.RuleColumnMask, err)
	}

	start := time.Now()
	result := s.reader.Execute(ctx, sql, s.executor)
	durationMS := time.Since(start).Milliseconds()

	s.inst.RecordQueryDuration(ctx, float64(durationMS))

	entry := port.AuditEntry{
		Tool:          toolNameFromCtx(ctx),
		SQL:           sql,
		Accepted:      true,
		RowsReturned:  len(result.Rows),
		TotalObserved: result.TotalObserved,
		Truncated:     result.Truncated,
		DurationMS:    durationMS,
	}

	if !result.Success {
		entry.Err = errors.New(result.Error)
		s.auditor.Record(ctx, entry)
		span.SetStatus(codes.Error, result.Error)
		s.inst.IncrementQueryErrors(ctx)
		return result
	}
	s.auditor.Record(ctx, entry)

	s.inst.IncrementQueryCount(ctx)
	if result.Truncated {
		s.inst.IncrementTruncations(ctx)
	}
	span.SetAttributes(
		attribute.Int("db.response.rows", len(result.Rows)),
		attribute.Int("db.response.observed_rows", result.TotalObserved),
		attribute.Bool("db.response.truncated", result.Truncated),
	)

	targets.Apply(result.Rows)
	return result
}

func (s *QueryService) reject(ctx context.Context, span trace.Span, sql string, rule domain.Rule, err error) domain.ReadResult {
	s.logger.WarnContext(ctx, "query validation rejected",
		slog.String("db.operation.name", "query"),
		slog.String("db.statement", sql),
		slog.String("error.type", "validation_error"),
		slog.String("validation.rule", string(rule)),
	)
	span.SetAttributes(attribute.String("validation.rule", string(rule)))
	span.SetStatus(codes.Error, err.Error())
	s.inst.IncrementRejections(ctx, rule)
	s.auditor.Record(ctx, port.AuditEntry{
		Tool: toolNameFromCtx(ctx),
		SQL:  sql,
		Rule: rule,
		Err:  err,
	})
	return domain.FailedRead(err.Error())
}
