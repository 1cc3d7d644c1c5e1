package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/MateusMoreirac/Podscrebr/internal/domain"
	"github.com/MateusMoreirac/Podscrebr/internal/repository"
	"github.com/MateusMoreirac/Podscrebr/pkg/mylogger"
	"go.uber.org/zap"
)

var (
	ErrCartLineNotFound = errors.New("cart line not found")
	ErrInvalidSize      = errors.New("size is not offered for this product")
)

type CartService interface {
	Get(ctx context.Context, sessionID string) (*domain.Cart, error)
	AddItem(ctx context.Context, sessionID, productID string, quantity int64, size string) (*domain.Cart, error)
	UpdateQuantity(ctx context.Context, sessionID, productID, size string, quantity int64) (*domain.Cart, error)
	RemoveItem(ctx context.Context, sessionID, productID, size string) (*domain.Cart, error)
	Clear(ctx context.Context, sessionID string) error
}

type cartService struct {
	carts    repository.CartRepository
	products ProductService
	logger   *zap.Logger
}

func NewCartService(carts repository.CartRepository, products ProductService, logger *zap.Logger) CartService {
	return &cartService{
		carts:    carts,
		products: products,
		logger:   logger,
	}
}

func (s *cartService) Get(ctx context.Context, sessionID string) (*domain.Cart, error) {
	return s.carts.Get(ctx, sessionID)
}

// AddItem snapshots the current product into the cart. Stock is not checked here.
func (s *cartService) AddItem(ctx context.Context, sessionID, productID string, quantity int64, size string) (*domain.Cart, error) {
	if quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	if !product.HasSize(size) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSize, size)
	}

	cart, err := s.carts.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if err := cart.Add(*product, quantity, size); err != nil {
		return nil, err
	}

	if err := s.carts.Save(ctx, sessionID, cart); err != nil {
		return nil, err
	}

	mylogger.Debug(ctx, s.logger, "Cart item added", zap.String("product_id", productID), zap.Int64("quantity", quantity))
	return cart, nil
}

func (s *cartService) UpdateQuantity(ctx context.Context, sessionID, productID, size string, quantity int64) (*domain.Cart, error) {
	cart, err := s.carts.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !cart.UpdateQuantity(productID, size, quantity) {
		return nil, ErrCartLineNotFound
	}

	if err := s.carts.Save(ctx, sessionID, cart); err != nil {
		return nil, err
	}

	return cart, nil
}

func (s *cartService) RemoveItem(ctx context.Context, sessionID, productID, size string) (*domain.Cart, error) {
	cart, err := s.carts.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !cart.Remove(productID, size) {
		return nil, ErrCartLineNotFound
	}

	if err := s.carts.Save(ctx, sessionID, cart); err != nil {
		return nil, err
	}

	return cart, nil
}

// Clear empties the cart and returns any stock an unfinished checkout had reserved for it.
func (s *cartService) Clear(ctx context.Context, sessionID string) error {
	unlock, err := s.carts.Lock(ctx, sessionID, checkoutLockTTL)
	if err != nil {
		return err
	}
	defer unlock(context.WithoutCancel(ctx))

	cart, err := s.carts.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	if len(cart.Reserved) > 0 {
		if err := releaseReservation(ctx, s.products, cart.Reserved, cart.Reserved); err != nil {
			mylogger.Warn(ctx, s.logger, "Failed to release reservation on clear", zap.String("session_id", sessionID), zap.Error(err))

			cart.Clear()
			if saveErr := s.carts.Save(ctx, sessionID, cart); saveErr != nil {
				return errors.Join(err, saveErr)
			}
			return err
		}
	}

	return s.carts.Delete(ctx, sessionID)
}
