package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	redisStockMissing      = -1
	redisStockInsufficient = -2
)

// decrementScript runs as a single command on the server, so no other client can
// interleave between the check and the DECRBY.
var decrementScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if not current then
	return -1
end
local amount = tonumber(ARGV[1])
if tonumber(current) < amount then
	return -2
end
return redis.call('DECRBY', KEYS[1], amount)
`)

// increaseScript refuses to recreate a key that DropStock removed.
var increaseScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
return redis.call('INCRBY', KEYS[1], ARGV[1])
`)

type redisStockStore struct {
	rdb    redis.UniversalClient
	tracer trace.Tracer
	logger *zap.Logger
}

// RedisStockStore keeps counters under stock:<product id>.
type RedisStockStore interface {
	StockStore
	StockMirror
}

func NewRedisStockStore(rdb redis.UniversalClient, logger *zap.Logger) RedisStockStore {
	return &redisStockStore{
		rdb:    rdb,
		tracer: otel.Tracer("contract/stock_redis"),
		logger: logger,
	}
}

func stockKey(productID string) string {
	return "stock:" + productID
}

func (s *redisStockStore) ConditionalDecrement(ctx context.Context, productID string, amount int64) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "StockStore.ConditionalDecrement")
	defer span.End()

	span.SetAttributes(
		attribute.String("product_id", productID),
		attribute.Int64("amount", amount),
	)

	res, err := decrementScript.Run(ctx, s.rdb, []string{stockKey(productID)}, amount).Int64()
	if err != nil {
		span.RecordError(err)

		if isScriptingUnavailable(err) {
			return 0, fmt.Errorf("%w: %s", ErrAtomicUnavailable, err.Error())
		}
		return 0, fmt.Errorf("error running decrement script for product %s: %w", productID, err)
	}

	switch res {
	case redisStockMissing:
		return 0, ErrProductNotFound
	case redisStockInsufficient:
		return 0, ErrInsufficientStock
	default:
		return res, nil
	}
}

func (s *redisStockStore) GetStock(ctx context.Context, productID string) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "StockStore.GetStock")
	defer span.End()

	span.SetAttributes(attribute.String("product_id", productID))

	val, err := s.rdb.Get(ctx, stockKey(productID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrProductNotFound
		}

		span.RecordError(err)
		return 0, fmt.Errorf("error reading stock for product %s: %w", productID, err)
	}

	stock, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt stock value %q for product %s: %w", val, productID, err)
	}

	return stock, nil
}

// SetStock overwrites an existing counter; it never creates one.
func (s *redisStockStore) SetStock(ctx context.Context, productID string, stock int64) error {
	ctx, span := s.tracer.Start(ctx, "StockStore.SetStock")
	defer span.End()

	span.SetAttributes(
		attribute.String("product_id", productID),
		attribute.Int64("stock", stock),
	)

	ok, err := s.rdb.SetXX(ctx, stockKey(productID), stock, 0).Result()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("error writing stock for product %s: %w", productID, err)
	}

	if !ok {
		return ErrProductNotFound
	}

	return nil
}

func (s *redisStockStore) IncreaseStock(ctx context.Context, productID string, amount int64) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "StockStore.IncreaseStock")
	defer span.End()

	span.SetAttributes(
		attribute.String("product_id", productID),
		attribute.Int64("amount", amount),
	)

	stock, err := increaseScript.Run(ctx, s.rdb, []string{stockKey(productID)}, amount).Int64()
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("error increasing stock for product %s: %w", productID, err)
	}

	if stock == redisStockMissing {
		return 0, ErrProductNotFound
	}

	return stock, nil
}

func (s *redisStockStore) SeedStock(ctx context.Context, productID string, stock int64) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, stockKey(productID), stock, 0).Result()
	if err != nil {
		return false, fmt.Errorf("error seeding stock for product %s: %w", productID, err)
	}

	return ok, nil
}

func (s *redisStockStore) PutStock(ctx context.Context, productID string, stock int64) error {
	if err := s.rdb.Set(ctx, stockKey(productID), stock, 0).Err(); err != nil {
		return fmt.Errorf("error putting stock for product %s: %w", productID, err)
	}

	return nil
}

func (s *redisStockStore) DropStock(ctx context.Context, productID string) error {
	if err := s.rdb.Del(ctx, stockKey(productID)).Err(); err != nil {
		return fmt.Errorf("error dropping stock for product %s: %w", productID, err)
	}

	return nil
}

// isScriptingUnavailable recognises servers where Lua is missing, disabled or not permitted.
func isScriptingUnavailable(err error) bool {
	msg := strings.ToLower(err.Error())

	for _, marker := range []string{"unknown command", "noscript", "scripting is disabled", "noperm"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
