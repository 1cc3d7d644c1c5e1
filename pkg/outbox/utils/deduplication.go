package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MateusMoreirac/Podscrebr/pkg/db"
	"github.com/MateusMoreirac/Podscrebr/pkg/mylogger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	uniqueViolation = "23505"
	actionAttempts  = 3
	retryDelay      = 500 * time.Millisecond
)

// ErrAlreadyProcessed is returned by the claim step when the item was seen before; callers
// normally never observe it because ProcessWithDeduplication treats it as success.
var ErrAlreadyProcessed = errors.New("event already processed")

// ProcessWithDeduplication claims (eventID, itemKey) in processed_event_items and runs action
// while the claim's transaction is open. The claim commits only when action succeeds, so
// a failed item is retried on redelivery while items that succeeded are skipped. Use an
// empty itemKey to deduplicate a whole event. action is retried a few times before
// giving up.
func ProcessWithDeduplication(
	ctx context.Context,
	pool db.TxBeginner,
	logger *zap.Logger,
	eventID int64,
	itemKey string,
	action func(ctx context.Context) error,
) error {
	span := trace.SpanFromContext(ctx)

	err := db.WithTx(ctx, pool, logger, func(tx pgx.Tx) error {
		if err := claim(ctx, tx, eventID, itemKey); err != nil {
			return err
		}

		var err error
		for i := 0; i < actionAttempts; i++ {
			if err = action(ctx); err == nil {
				return nil
			}

			if i < actionAttempts-1 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(retryDelay):
				}
			}
		}

		mylogger.Error(
			ctx,
			logger,
			"Failed to process event after retries",
			zap.Int64("event_id", eventID),
			zap.String("item_key", itemKey),
			zap.Error(err),
		)
		return fmt.Errorf("failed to process event %d item %q: %w", eventID, itemKey, err)
	})

	if errors.Is(err, ErrAlreadyProcessed) {
		mylogger.Info(ctx, logger, "Event already processed, skipping", zap.Int64("event_id", eventID), zap.String("item_key", itemKey))
		return nil
	}

	if err != nil {
		span.RecordError(err)
	}

	return err
}

func claim(ctx context.Context, tx pgx.Tx, eventID int64, itemKey string) error {
	query := `
		INSERT INTO processed_event_items (event_id, item_key)
		VALUES ($1, $2)
	`

	if _, err := tx.Exec(ctx, query, eventID, itemKey); err != nil {
		var pgError *pgconn.PgError
		if errors.As(err, &pgError) && pgError.Code == uniqueViolation {
			return ErrAlreadyProcessed
		}

		return fmt.Errorf("failed to record processed event: %w", err)
	}

	return nil
}
