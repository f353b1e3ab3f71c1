package transfer

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/bazaarpay/bazaarpay/internal/ledger"
	"github.com/bazaarpay/bazaarpay/internal/marketplace"
	"github.com/bazaarpay/bazaarpay/internal/wallet"
)

const instrumentationName = "github.com/bazaarpay/bazaarpay/internal/transfer"

type telemetry struct {
	tracer   trace.Tracer
	ops      metric.Int64Counter
	volume   metric.Int64Counter
	duration metric.Float64Histogram
}

func newTelemetry(tracer trace.Tracer, meter metric.Meter) (*telemetry, error) {
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}

	ops, err := meter.Int64Counter("wallet.operations",
		metric.WithDescription("Money movements by kind and outcome"))
	if err != nil {
		return nil, err
	}
	volume, err := meter.Int64Counter("wallet.volume",
		metric.WithDescription("Committed gross volume in minor units"),
		metric.WithUnit("{minor_unit}"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("wallet.operation.duration",
		metric.WithDescription("Time spent inside an operation"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	return &telemetry{tracer: tracer, ops: ops, volume: volume, duration: duration}, nil
}

// start opens a span for op. The returned func ends it and records the outcome.
func (t *telemetry) start(ctx context.Context, op, owner string) (context.Context, func(err error)) {
	begin := time.Now()
	ctx, span := t.tracer.Start(ctx, "transfer."+op,
		trace.WithAttributes(
			attribute.String("wallet.operation", op),
			attribute.String("wallet.owner_id", owner),
		))

	return ctx, func(err error) {
		outcome := outcomeOf(err)
		attrs := metric.WithAttributes(
			attribute.String("operation", op),
			attribute.String("outcome", outcome),
		)
		t.ops.Add(ctx, 1, attrs)
		t.duration.Record(ctx, float64(time.Since(begin).Microseconds())/1000, attrs)

		span.SetAttributes(attribute.String("wallet.outcome", outcome))
		if err != nil && outcome == "error" {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

func (t *telemetry) committed(ctx context.Context, kind ledger.Kind, gross int64) {
	t.volume.Add(ctx, gross, metric.WithAttributes(attribute.String("kind", string(kind))))
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ledger.ErrDuplicateRequest):
		return "duplicate"
	case errors.Is(err, ledger.ErrKeyReused):
		return "key_reused"
	case errors.Is(err, wallet.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, marketplace.ErrItemNotAvailable):
		return "item_not_available"
	case IsValidation(err), errors.Is(err, ErrSelfTransfer), errors.Is(err, ErrRecipientNotFound):
		return "rejected"
	default:
		return "error"
	}
}
