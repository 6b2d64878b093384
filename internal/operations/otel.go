package operations

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"hudlink/internal/infrastructure"
	"hudlink/pkg/contracts/domain"
)

const (
	TracerName = "hudlink.operations"
)

// OperationTracer instruments units and steps with spans and business metrics
type OperationTracer struct {
	tracer          trace.Tracer
	businessMetrics *infrastructure.BusinessMetrics
}

// NewOperationTracer creates a tracer from initialized providers. Nil
// providers give a tracer whose instruments are no-ops.
func NewOperationTracer(providers *infrastructure.OTelProviders) (*OperationTracer, error) {
	var meter metric.Meter = noop.NewMeterProvider().Meter(TracerName)
	tracer := otel.Tracer(TracerName)
	if providers != nil {
		meter = providers.Meter
		tracer = providers.Tracer
	}
	businessMetrics, err := infrastructure.CreateBusinessMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create business metrics: %w", err)
	}
	return &OperationTracer{tracer: tracer, businessMetrics: businessMetrics}, nil
}

func unitAttrs(unit domain.Unit) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("unit.state", unit.State),
		attribute.Int("unit.year", unit.Year),
	}
}

// TraceUnit starts the span covering one state/year unit
func (pt *OperationTracer) TraceUnit(ctx context.Context, operationID string, unit domain.Unit, mode string) (context.Context, trace.Span) {
	attrs := append(unitAttrs(unit),
		attribute.String("operation.id", operationID),
		attribute.String("unit.mode", mode),
	)
	ctx, span := pt.tracer.Start(ctx, "unit.execute",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	pt.businessMetrics.ActiveUnits.Add(ctx, 1)
	return ctx, span
}

// TraceStage starts the span covering one step
func (pt *OperationTracer) TraceStage(ctx context.Context, operationID, stepID string) (context.Context, trace.Span) {
	return pt.tracer.Start(ctx, "stage."+stepID,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("operation.id", operationID),
			attribute.String("stage.id", stepID),
		),
	)
}

// RecordStageCompletion ends a step span and records its duration and rows
func (pt *OperationTracer) RecordStageCompletion(ctx context.Context, span trace.Span, stepID string, duration time.Duration, rows int, err error) {
	status := "success"
	if err != nil {
		status = "failure"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(
		attribute.String("stage.status", status),
		attribute.Int("stage.rows_out", rows),
	)
	span.End()

	pt.businessMetrics.StageDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.String("stage", stepID), attribute.String("status", status)))
	if rows > 0 {
		pt.businessMetrics.RecordsProcessed.Add(ctx, int64(rows),
			metric.WithAttributes(attribute.String("stage", stepID)))
	}
}

// RecordUnitCompletion ends a unit span and records the outcome
func (pt *OperationTracer) RecordUnitCompletion(ctx context.Context, span trace.Span, unit domain.Unit, duration time.Duration, status OperationStatus, flags map[domain.FlagKind]int, err error) {
	if err != nil {
		infrastructure.RecordError(ctx, err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(attribute.String("unit.status", string(status)))
	span.End()

	pt.businessMetrics.ActiveUnits.Add(ctx, -1)
	pt.businessMetrics.UnitsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", string(status))))
	pt.businessMetrics.UnitDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.String("state", unit.State)))
	for kind, n := range flags {
		pt.businessMetrics.QualityFlags.Add(ctx, int64(n),
			metric.WithAttributes(attribute.String("kind", string(kind))))
	}
}
