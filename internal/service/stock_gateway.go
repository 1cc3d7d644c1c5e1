package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/MateusMoreirac/Podscrebr/internal/repository"
	"github.com/MateusMoreirac/Podscrebr/pkg/mylogger"
	"github.com/MateusMoreirac/Podscrebr/pkg/utils"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var ErrInvalidAmount = errors.New("stock amount must be positive")

// StoreError is a transient failure talking to the stock store, including an open breaker.
// The gateway never retries it.
type StoreError struct {
	Op        string
	ProductID string
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("stock store %s for product %s: %v", e.Op, e.ProductID, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

type AtomicStatus int

const (
	AtomicApplied AtomicStatus = iota
	// AtomicUnavailable means the conditional decrement does not exist in this deployment.
	AtomicUnavailable
	AtomicFailed
)

func (s AtomicStatus) String() string {
	switch s {
	case AtomicApplied:
		return "applied"
	case AtomicUnavailable:
		return "unavailable"
	default:
		return "failed"
	}
}

// AtomicAttempt is the result of one conditional decrement.
// Err is set for AtomicUnavailable and AtomicFailed.
type AtomicAttempt struct {
	Status   AtomicStatus
	NewStock int64
	Err      error
}

type StockGateway interface {
	TryAtomicDecrement(ctx context.Context, productID string, amount int64) AtomicAttempt
	ReadThenWriteDecrement(ctx context.Context, productID string, amount int64) (int64, error)
	Restock(ctx context.Context, productID string, amount int64) (int64, error)
	GetStock(ctx context.Context, productID string) (int64, error)
}

type stockGateway struct {
	store  repository.StockStore
	cb     *gobreaker.CircuitBreaker
	tracer trace.Tracer
	logger *zap.Logger
}

func NewStockGateway(store repository.StockStore, settings utils.BreakerSettings, logger *zap.Logger) StockGateway {
	if settings.Name == "" {
		settings.Name = "stock-store"
	}
	settings.IsSuccessful = isExpectedStockError

	return &stockGateway{
		store:  store,
		cb:     utils.NewBreaker(settings, logger),
		tracer: otel.Tracer("contract/stock_gateway"),
		logger: logger,
	}
}

// isExpectedStockError keeps business answers from the store out of the breaker's failure count.
func isExpectedStockError(err error) bool {
	return err == nil ||
		errors.Is(err, repository.ErrProductNotFound) ||
		errors.Is(err, repository.ErrInsufficientStock) ||
		errors.Is(err, repository.ErrAtomicUnavailable)
}

func (g *stockGateway) TryAtomicDecrement(ctx context.Context, productID string, amount int64) AtomicAttempt {
	ctx, span := g.tracer.Start(ctx, "StockGateway.TryAtomicDecrement")
	defer span.End()

	span.SetAttributes(
		attribute.String("product_id", productID),
		attribute.Int64("amount", amount),
	)

	if amount <= 0 {
		return AtomicAttempt{Status: AtomicFailed, Err: ErrInvalidAmount}
	}

	newStock, err := g.call("conditional_decrement", productID, func() (int64, error) {
		return g.store.ConditionalDecrement(ctx, productID, amount)
	})

	switch {
	case err == nil:
		span.SetAttributes(attribute.String("status", AtomicApplied.String()))
		return AtomicAttempt{Status: AtomicApplied, NewStock: newStock}
	case errors.Is(err, repository.ErrAtomicUnavailable):
		span.SetAttributes(attribute.String("status", AtomicUnavailable.String()))
		return AtomicAttempt{Status: AtomicUnavailable, Err: err}
	default:
		span.RecordError(err)
		return AtomicAttempt{Status: AtomicFailed, Err: err}
	}
}

// ReadThenWriteDecrement reads stock, clamps current-amount at zero and writes it back
// unconditionally. Two concurrent callers can both read the same value, so one decrement
// is lost. It only exists for deployments without the conditional decrement.
func (g *stockGateway) ReadThenWriteDecrement(ctx context.Context, productID string, amount int64) (int64, error) {
	ctx, span := g.tracer.Start(ctx, "StockGateway.ReadThenWriteDecrement")
	defer span.End()

	span.SetAttributes(
		attribute.String("product_id", productID),
		attribute.Int64("amount", amount),
	)

	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	current, err := g.call("get_stock", productID, func() (int64, error) {
		return g.store.GetStock(ctx, productID)
	})
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	next := max(0, current-amount)
	if current < amount {
		mylogger.Warn(
			ctx,
			g.logger,
			"Fallback decrement clamped at zero",
			zap.String("product_id", productID),
			zap.Int64("stock", current),
			zap.Int64("amount", amount),
		)
	}

	_, err = g.call("set_stock", productID, func() (int64, error) {
		return next, g.store.SetStock(ctx, productID, next)
	})
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	return next, nil
}

func (g *stockGateway) Restock(ctx context.Context, productID string, amount int64) (int64, error) {
	ctx, span := g.tracer.Start(ctx, "StockGateway.Restock")
	defer span.End()

	span.SetAttributes(
		attribute.String("product_id", productID),
		attribute.Int64("amount", amount),
	)

	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	newStock, err := g.call("increase_stock", productID, func() (int64, error) {
		return g.store.IncreaseStock(ctx, productID, amount)
	})
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	return newStock, nil
}

func (g *stockGateway) GetStock(ctx context.Context, productID string) (int64, error) {
	return g.call("get_stock", productID, func() (int64, error) {
		return g.store.GetStock(ctx, productID)
	})
}

// call runs one store round trip behind the breaker. Domain errors pass through untouched,
// everything else becomes a StoreError.
func (g *stockGateway) call(op, productID string, fn func() (int64, error)) (int64, error) {
	res, err := utils.ExecuteWithBreaker(g.cb, fn)
	if err == nil || isExpectedStockError(err) {
		return res, err
	}

	return 0, &StoreError{Op: op, ProductID: productID, Err: err}
}
