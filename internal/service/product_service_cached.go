package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/MateusMoreirac/Podscrebr/internal/domain"
	"github.com/MateusMoreirac/Podscrebr/pkg/mylogger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type cachedProductService struct {
	next        ProductService
	redisClient redis.UniversalClient
	cacheTTL    time.Duration
	logger      *zap.Logger
}

func NewCachedProductService(next ProductService, redisClient redis.UniversalClient, logger *zap.Logger) ProductService {
	return &cachedProductService{
		next:        next,
		redisClient: redisClient,
		cacheTTL:    time.Minute * 10,
		logger:      logger,
	}
}

func productKey(id string) string {
	return "product:" + id
}

func (s *cachedProductService) Create(ctx context.Context, product *domain.Product) (string, error) {
	return s.next.Create(ctx, product)
}

func (s *cachedProductService) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	key := productKey(id)

	val, err := s.redisClient.Get(ctx, key).Bytes()
	if err == nil {
		var product domain.Product
		if err := json.Unmarshal(val, &product); err == nil {
			return &product, nil
		}
	}

	product, err := s.next.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(product); err == nil {
		if err := s.redisClient.Set(ctx, key, data, s.cacheTTL).Err(); err != nil {
			mylogger.Warn(ctx, s.logger, "Failed to cache product", zap.String("product_id", id), zap.Error(err))
		}
	}

	return product, nil
}

func (s *cachedProductService) List(ctx context.Context, limit, offset int64) ([]domain.Product, int64, error) {
	return s.next.List(ctx, limit, offset)
}

func (s *cachedProductService) Update(ctx context.Context, id string, input *domain.UpdateProductInput) (*domain.Product, error) {
	s.Invalidate(ctx, id)
	return s.next.Update(ctx, id, input)
}

func (s *cachedProductService) Delete(ctx context.Context, id string) error {
	if err := s.next.Delete(ctx, id); err != nil {
		return err
	}

	s.Invalidate(ctx, id)
	return nil
}

func (s *cachedProductService) AdjustStock(ctx context.Context, id string, delta int64) (int64, error) {
	res, err := s.next.AdjustStock(ctx, id, delta)
	if err != nil {
		return 0, err
	}

	s.Invalidate(ctx, id)
	return res, nil
}

func (s *cachedProductService) ReturnStock(ctx context.Context, items []domain.OrderItemEvent) ([]domain.OrderItemEvent, error) {
	remaining, err := s.next.ReturnStock(ctx, items)

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	s.Invalidate(ctx, ids...)

	return remaining, err
}

func (s *cachedProductService) SyncStock(ctx context.Context) (int, error) {
	return s.next.SyncStock(ctx)
}

func (s *cachedProductService) Invalidate(ctx context.Context, ids ...string) {
	if len(ids) == 0 {
		return
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, productKey(id))
	}

	if err := s.redisClient.Del(ctx, keys...).Err(); err != nil {
		mylogger.Warn(ctx, s.logger, "Failed to invalidate product cache", zap.Strings("keys", keys), zap.Error(err))
	}
}
