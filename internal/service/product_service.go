package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/MateusMoreirac/Podscrebr/internal/domain"
	"github.com/MateusMoreirac/Podscrebr/internal/repository"
	"github.com/MateusMoreirac/Podscrebr/pkg/db"
	"github.com/MateusMoreirac/Podscrebr/pkg/mylogger"
	outboxDomain "github.com/MateusMoreirac/Podscrebr/pkg/outbox/domain"
	"github.com/MateusMoreirac/Podscrebr/pkg/outbox/worker"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type ProductService interface {
	Create(ctx context.Context, product *domain.Product) (string, error)
	FindByID(ctx context.Context, id string) (*domain.Product, error)
	List(ctx context.Context, limit, offset int64) ([]domain.Product, int64, error)
	Update(ctx context.Context, id string, input *domain.UpdateProductInput) (*domain.Product, error)
	Delete(ctx context.Context, id string) error
	AdjustStock(ctx context.Context, id string, delta int64) (int64, error)
	ReturnStock(ctx context.Context, items []domain.OrderItemEvent) ([]domain.OrderItemEvent, error)
	SyncStock(ctx context.Context) (int, error)
	Invalidate(ctx context.Context, ids ...string)
}

type productService struct {
	productRepo  repository.ProductRepository
	outboxRepo   worker.OutboxRepository
	gateway      StockGateway
	mirror       repository.StockMirror
	pool         db.TxBeginner
	productTopic string
	logger       *zap.Logger
}

// NewProductService wires the catalog. mirror is nil when stock lives in the catalog table
// itself; otherwise catalog writes are copied to it and reads take stock from the gateway.
func NewProductService(
	productRepo repository.ProductRepository,
	outboxRepo worker.OutboxRepository,
	gateway StockGateway,
	mirror repository.StockMirror,
	pool db.TxBeginner,
	productTopic string,
	logger *zap.Logger,
) ProductService {
	return &productService{
		productRepo:  productRepo,
		outboxRepo:   outboxRepo,
		gateway:      gateway,
		mirror:       mirror,
		pool:         pool,
		productTopic: productTopic,
		logger:       logger,
	}
}

func (s *productService) Create(ctx context.Context, product *domain.Product) (string, error) {
	if product.ID == "" {
		product.ID = uuid.NewString()
	}

	var id string
	err := db.WithTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		var err error
		id, err = s.productRepo.Create(ctx, tx, product)
		if err != nil {
			mylogger.Error(ctx, s.logger, "create error", zap.Error(err))
			return fmt.Errorf("error creating product: %w", err)
		}

		outboxEvent, err := outboxDomain.NewOutboxEvent(
			s.productTopic,
			"Product",
			id,
			domain.EventProductCreated,
			domain.ProductCreatedEvent{ProductID: id, Name: product.Name, Stock: product.Stock},
		)
		if err != nil {
			return fmt.Errorf("event payload marshal error: %w", err)
		}

		if err := s.outboxRepo.SaveOutboxEvent(ctx, tx, outboxEvent); err != nil {
			mylogger.Error(
				ctx,
				s.logger,
				"Error saving outbox event",
				zap.Error(err),
			)

			return fmt.Errorf("failed to save outbox event: %w", err)
		}

		return nil
	})
	if err != nil {
		return "", err
	}

	if s.mirror != nil {
		if err := s.mirror.PutStock(ctx, id, product.Stock); err != nil {
			mylogger.Error(ctx, s.logger, "Failed to mirror stock of new product", zap.String("product_id", id), zap.Error(err))
			return "", fmt.Errorf("failed to mirror stock: %w", err)
		}
	}

	return id, nil
}

func (s *productService) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	res, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			mylogger.Warn(ctx, s.logger, "product not found", zap.String("product_id", id))
			return nil, err
		}

		mylogger.Error(ctx, s.logger, "error getting product", zap.Error(err))
		return nil, fmt.Errorf("error getting product by id: %w", err)
	}

	s.overlayStock(ctx, res)
	return res, nil
}

func (s *productService) List(ctx context.Context, limit, offset int64) ([]domain.Product, int64, error) {
	list, quantity, err := s.productRepo.List(ctx, limit, offset)
	if err != nil {
		mylogger.Error(ctx, s.logger, "list error", zap.Error(err))
		return nil, 0, fmt.Errorf("error listing products: %w", err)
	}

	for i := range list {
		s.overlayStock(ctx, &list[i])
	}

	return list, quantity, nil
}

// overlayStock replaces the catalog stock with the authoritative counter when the two live apart.
func (s *productService) overlayStock(ctx context.Context, product *domain.Product) {
	if s.mirror == nil {
		return
	}

	stock, err := s.gateway.GetStock(ctx, product.ID)
	if err != nil {
		mylogger.Warn(ctx, s.logger, "Falling back to catalog stock", zap.String("product_id", product.ID), zap.Error(err))
		return
	}
	product.Stock = stock
}

func (s *productService) Update(ctx context.Context, id string, input *domain.UpdateProductInput) (*domain.Product, error) {
	if err := s.productRepo.Update(ctx, id, input); err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			mylogger.Warn(ctx, s.logger, "product not found", zap.String("product_id", id))
			return nil, err
		}

		mylogger.Error(ctx, s.logger, "error updating product", zap.Error(err))
		return nil, err
	}

	if input.Stock != nil && s.mirror != nil {
		if err := s.mirror.PutStock(ctx, id, *input.Stock); err != nil {
			return nil, fmt.Errorf("failed to mirror stock: %w", err)
		}
	}

	return s.FindByID(ctx, id)
}

func (s *productService) Delete(ctx context.Context, id string) error {
	err := s.productRepo.DeleteByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			mylogger.Warn(ctx, s.logger, "product not found", zap.String("product_id", id))
			return err
		}

		mylogger.Error(ctx, s.logger, "error deleting product", zap.Error(err))
		return err
	}

	if s.mirror != nil {
		if err := s.mirror.DropStock(ctx, id); err != nil {
			mylogger.Warn(ctx, s.logger, "Failed to drop mirrored stock", zap.String("product_id", id), zap.Error(err))
		}
	}

	return nil
}

// AdjustStock applies an admin delta. Decreases go through the conditional decrement and
// are refused below zero.
func (s *productService) AdjustStock(ctx context.Context, id string, delta int64) (int64, error) {
	if delta == 0 {
		return 0, ErrInvalidAmount
	}

	if delta > 0 {
		return s.gateway.Restock(ctx, id, delta)
	}

	attempt := s.gateway.TryAtomicDecrement(ctx, id, -delta)
	switch attempt.Status {
	case AtomicApplied:
		return attempt.NewStock, nil
	case AtomicUnavailable:
		return s.gateway.ReadThenWriteDecrement(ctx, id, -delta)
	default:
		return 0, attempt.Err
	}
}

// ReturnStock puts cancelled items back. It returns the items it could not restock so a
// retry covers only those.
func (s *productService) ReturnStock(ctx context.Context, items []domain.OrderItemEvent) ([]domain.OrderItemEvent, error) {
	var (
		remaining []domain.OrderItemEvent
		errs      []error
	)

	for _, item := range items {
		if _, err := s.gateway.Restock(ctx, item.ProductID, item.Quantity); err != nil {
			mylogger.Warn(
				ctx,
				s.logger,
				"Failed to increase stock",
				zap.String("product_id", item.ProductID),
				zap.Int64("quantity", item.Quantity),
				zap.Error(err),
			)

			remaining = append(remaining, item)
			errs = append(errs, err)
		}
	}

	return remaining, errors.Join(errs...)
}

// SyncStock seeds the external stock store with catalog stock for products it does not know yet.
func (s *productService) SyncStock(ctx context.Context) (int, error) {
	if s.mirror == nil {
		return 0, nil
	}

	levels, err := s.productRepo.ListStockLevels(ctx)
	if err != nil {
		return 0, err
	}

	seeded := 0
	for id, stock := range levels {
		ok, err := s.mirror.SeedStock(ctx, id, stock)
		if err != nil {
			return seeded, fmt.Errorf("failed to seed stock of %s: %w", id, err)
		}
		if ok {
			seeded++
		}
	}

	mylogger.Info(ctx, s.logger, "Stock store synced", zap.Int("products", len(levels)), zap.Int("seeded", seeded))
	return seeded, nil
}

func (s *productService) Invalidate(context.Context, ...string) {}
