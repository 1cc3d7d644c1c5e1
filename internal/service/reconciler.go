package service

import (
	"context"
	"time"

	"github.com/MateusMoreirac/Podscrebr/internal/domain"
	"github.com/MateusMoreirac/Podscrebr/pkg/metrics"
	"github.com/MateusMoreirac/Podscrebr/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Reconciler applies one stock decrement per demanded product and reports a single verdict.
//
// Products are adjusted concurrently and independently. Reconcile always waits for every
// product. Decrements that were applied stay applied when another product fails.
type Reconciler struct {
	gateway     StockGateway
	concurrency int
	metrics     *metrics.CheckoutMetrics
	tracer      trace.Tracer
	logger      *zap.Logger
}

func NewReconciler(gateway StockGateway, concurrency int, m *metrics.CheckoutMetrics, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		gateway:     gateway,
		concurrency: concurrency,
		metrics:     m,
		tracer:      otel.Tracer("contract/reconciler"),
		logger:      logger,
	}
}

func (r *Reconciler) Reconcile(ctx context.Context, demand domain.ConsolidatedDemand) domain.CheckoutResult {
	ctx, span := r.tracer.Start(ctx, "Reconciler.Reconcile")
	defer span.End()

	start := time.Now()
	ids := demand.ProductIDs()
	outcomes := make([]domain.StockOutcome, len(ids))

	span.SetAttributes(
		attribute.Int("products", len(ids)),
		attribute.Int64("units", demand.Sum()),
	)

	// Plain Group: a failed product must not cancel its siblings.
	var g errgroup.Group
	if r.concurrency > 0 {
		g.SetLimit(r.concurrency)
	}

	for i, id := range ids {
		g.Go(func() error {
			outcomes[i] = r.Adjust(ctx, id, demand[id])
			return nil
		})
	}
	_ = g.Wait()

	result := domain.NewCheckoutResult(demand, outcomes)
	r.metrics.ObserveReconcile(float64(time.Since(start).Milliseconds()))

	span.SetAttributes(attribute.Bool("succeeded", result.Succeeded()))
	if !result.Succeeded() {
		failed := result.Failures()
		mylogger.Warn(
			ctx,
			r.logger,
			"Reconciliation incomplete",
			zap.Int("failed", len(failed)),
			zap.Int("applied", len(result.AppliedOutcomes())),
		)
	}

	return result
}

// Adjust runs the per-product state machine: atomic attempt, then the read-then-write
// fallback exactly once if the atomic primitive is unavailable.
func (r *Reconciler) Adjust(ctx context.Context, productID string, quantity int64) domain.StockOutcome {
	outcome := r.adjust(ctx, productID, quantity)
	r.metrics.ObserveAdjustment(string(outcome.Path), string(outcome.State))

	if !outcome.IsApplied() {
		mylogger.Warn(
			ctx,
			r.logger,
			"Stock adjustment failed",
			zap.String("product_id", productID),
			zap.Int64("quantity", quantity),
			zap.String("path", string(outcome.Path)),
			zap.Error(outcome.Err),
		)
	}

	return outcome
}

func (r *Reconciler) adjust(ctx context.Context, productID string, quantity int64) domain.StockOutcome {
	attempt := r.gateway.TryAtomicDecrement(ctx, productID, quantity)

	switch attempt.Status {
	case AtomicApplied:
		return domain.Applied(productID, quantity, attempt.NewStock, domain.PathAtomic)
	case AtomicUnavailable:
		mylogger.Warn(
			ctx,
			r.logger,
			"Atomic decrement unavailable, using read-then-write fallback",
			zap.String("product_id", productID),
			zap.Error(attempt.Err),
		)

		newStock, err := r.gateway.ReadThenWriteDecrement(ctx, productID, quantity)
		if err != nil {
			return domain.Failed(productID, quantity, domain.PathFallback, err)
		}
		return domain.Applied(productID, quantity, newStock, domain.PathFallback)
	default:
		return domain.Failed(productID, quantity, domain.PathAtomic, attempt.Err)
	}
}
