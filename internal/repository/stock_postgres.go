package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/MateusMoreirac/Podscrebr/pkg/mylogger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// SQLSTATE codes raised by, or about, the decrement_stock function.
const (
	codeUndefinedFunction     = "42883"
	codeInsufficientPrivilege = "42501"
	codeNoDataFound           = "P0002"
	codeCheckViolation        = "23514"
)

type postgresStockStore struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewPostgresStockStore(pool *pgxpool.Pool, logger *zap.Logger) StockStore {
	return &postgresStockStore{
		pool:   pool,
		tracer: otel.Tracer("contract/stock_postgres"),
		logger: logger,
	}
}

// ConditionalDecrement calls decrement_stock, which updates the row only when
// stock >= amount, so concurrent callers are serialized by the row lock.
func (s *postgresStockStore) ConditionalDecrement(ctx context.Context, productID string, amount int64) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "StockStore.ConditionalDecrement")
	defer span.End()

	span.SetAttributes(
		attribute.String("product_id", productID),
		attribute.Int64("amount", amount),
	)

	var newStock int64
	err := s.pool.QueryRow(ctx, `SELECT decrement_stock($1, $2)`, productID, amount).Scan(&newStock)
	if err != nil {
		mapped := mapDecrementError(err)
		if !errors.Is(mapped, ErrInsufficientStock) && !errors.Is(mapped, ErrProductNotFound) {
			span.RecordError(err)
			mylogger.Warn(
				ctx,
				s.logger,
				"decrement_stock failed",
				zap.String("product_id", productID),
				zap.Int64("amount", amount),
				zap.Error(err),
			)
		}

		return 0, mapped
	}

	return newStock, nil
}

func (s *postgresStockStore) GetStock(ctx context.Context, productID string) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "StockStore.GetStock")
	defer span.End()

	span.SetAttributes(attribute.String("product_id", productID))

	query := `
		SELECT stock
		FROM products
		WHERE id = $1 AND deleted_at IS NULL
	`

	var stock int64
	if err := s.pool.QueryRow(ctx, query, productID).Scan(&stock); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrProductNotFound
		}

		span.RecordError(err)
		return 0, fmt.Errorf("error reading stock for product %s: %w", productID, err)
	}

	return stock, nil
}

// SetStock overwrites the counter unconditionally.
func (s *postgresStockStore) SetStock(ctx context.Context, productID string, stock int64) error {
	ctx, span := s.tracer.Start(ctx, "StockStore.SetStock")
	defer span.End()

	span.SetAttributes(
		attribute.String("product_id", productID),
		attribute.Int64("stock", stock),
	)

	query := `
		UPDATE products
		SET stock = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`

	commandTag, err := s.pool.Exec(ctx, query, productID, stock)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("error writing stock for product %s: %w", productID, err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrProductNotFound
	}

	return nil
}

func (s *postgresStockStore) IncreaseStock(ctx context.Context, productID string, amount int64) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "StockStore.IncreaseStock")
	defer span.End()

	span.SetAttributes(
		attribute.String("product_id", productID),
		attribute.Int64("amount", amount),
	)

	query := `
		UPDATE products
		SET stock = stock + $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING stock
	`

	var stock int64
	if err := s.pool.QueryRow(ctx, query, productID, amount).Scan(&stock); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			mylogger.Warn(ctx, s.logger, "Product not found", zap.String("product_id", productID))
			return 0, ErrProductNotFound
		}

		span.RecordError(err)
		return 0, fmt.Errorf("error increasing stock for product %s: %w", productID, err)
	}

	return stock, nil
}

func mapDecrementError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return fmt.Errorf("error calling decrement_stock: %w", err)
	}

	switch pgErr.Code {
	case codeUndefinedFunction, codeInsufficientPrivilege:
		return fmt.Errorf("%w: %s", ErrAtomicUnavailable, pgErr.Message)
	case codeNoDataFound:
		return ErrProductNotFound
	case codeCheckViolation:
		return ErrInsufficientStock
	default:
		return fmt.Errorf("error calling decrement_stock: %w", err)
	}
}
