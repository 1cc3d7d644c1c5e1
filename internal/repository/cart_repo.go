package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MateusMoreirac/Podscrebr/internal/domain"
	"github.com/MateusMoreirac/Podscrebr/pkg/mylogger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// CartRepository stores one opaque cart snapshot per session.
type CartRepository interface {
	Get(ctx context.Context, sessionID string) (*domain.Cart, error)
	Save(ctx context.Context, sessionID string, cart *domain.Cart) error
	Delete(ctx context.Context, sessionID string) error
	// Lock takes the session's checkout lock for at most ttl. It fails with
	// ErrCheckoutInProgress while another holder has it.
	Lock(ctx context.Context, sessionID string, ttl time.Duration) (UnlockFunc, error)
}

type UnlockFunc func(ctx context.Context)

// unlockScript deletes the lock only if it still carries our token, so an expired lock
// taken over by another checkout is left alone.
var unlockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

type cartRepo struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	tracer trace.Tracer
	logger *zap.Logger
}

func NewCartRepository(rdb redis.UniversalClient, ttl time.Duration, logger *zap.Logger) CartRepository {
	return &cartRepo{
		rdb:    rdb,
		ttl:    ttl,
		tracer: otel.Tracer("contract/cart_repo"),
		logger: logger,
	}
}

func cartKey(sessionID string) string {
	return "cart:" + sessionID
}

func checkoutLockKey(sessionID string) string {
	return "checkout:" + sessionID
}

// Get returns an empty cart when the session has none. A snapshot that no longer decodes
// is treated the same way.
func (r *cartRepo) Get(ctx context.Context, sessionID string) (*domain.Cart, error) {
	ctx, span := r.tracer.Start(ctx, "CartRepository.Get")
	defer span.End()

	span.SetAttributes(attribute.String("session_id", sessionID))

	val, err := r.rdb.Get(ctx, cartKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &domain.Cart{}, nil
		}

		span.RecordError(err)
		return nil, fmt.Errorf("error loading cart: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(val, &cart); err != nil {
		mylogger.Warn(ctx, r.logger, "Discarding unreadable cart snapshot", zap.String("session_id", sessionID), zap.Error(err))
		return &domain.Cart{}, nil
	}

	return &cart, nil
}

func (r *cartRepo) Save(ctx context.Context, sessionID string, cart *domain.Cart) error {
	ctx, span := r.tracer.Start(ctx, "CartRepository.Save")
	defer span.End()

	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.Int("lines", len(cart.Lines)),
	)

	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("error encoding cart: %w", err)
	}

	if err := r.rdb.Set(ctx, cartKey(sessionID), data, r.ttl).Err(); err != nil {
		span.RecordError(err)

		mylogger.Error(ctx, r.logger, "Error saving cart", zap.String("session_id", sessionID), zap.Error(err))
		return fmt.Errorf("error saving cart: %w", err)
	}

	return nil
}

func (r *cartRepo) Delete(ctx context.Context, sessionID string) error {
	ctx, span := r.tracer.Start(ctx, "CartRepository.Delete")
	defer span.End()

	if err := r.rdb.Del(ctx, cartKey(sessionID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("error deleting cart: %w", err)
	}

	return nil
}

func (r *cartRepo) Lock(ctx context.Context, sessionID string, ttl time.Duration) (UnlockFunc, error) {
	ctx, span := r.tracer.Start(ctx, "CartRepository.Lock")
	defer span.End()

	key := checkoutLockKey(sessionID)
	token := uuid.NewString()

	ok, err := r.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error taking checkout lock: %w", err)
	}
	if !ok {
		return nil, ErrCheckoutInProgress
	}

	return func(ctx context.Context) {
		if err := unlockScript.Run(ctx, r.rdb, []string{key}, token).Err(); err != nil {
			mylogger.Warn(ctx, r.logger, "Error releasing checkout lock", zap.String("session_id", sessionID), zap.Error(err))
		}
	}, nil
}
