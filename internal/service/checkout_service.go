package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MateusMoreirac/Podscrebr/internal/domain"
	"github.com/MateusMoreirac/Podscrebr/internal/repository"
	"github.com/MateusMoreirac/Podscrebr/pkg/metrics"
	"github.com/MateusMoreirac/Podscrebr/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	ErrEmptyCart        = errors.New("cart is empty")
	ErrCheckoutRejected = errors.New("checkout rejected")
)

// RejectedLine is a cart line whose product could not be reserved.
type RejectedLine struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Size      string `json:"size,omitempty"`
	Quantity  int64  `json:"quantity"`
	Reason    string `json:"reason"`
}

// CheckoutRejectedError carries the itemized failures. Lines of products that were
// reserved are not listed; their decrements stay applied.
type CheckoutRejectedError struct {
	Lines  []RejectedLine
	Result domain.CheckoutResult
}

func (e *CheckoutRejectedError) Error() string {
	ids := make([]string, 0, len(e.Lines))
	for _, l := range e.Lines {
		ids = append(ids, l.ProductID)
	}
	return fmt.Sprintf("checkout rejected for products: %s", strings.Join(ids, ", "))
}

func (e *CheckoutRejectedError) Is(target error) bool {
	return target == ErrCheckoutRejected
}

type CheckoutService interface {
	Checkout(ctx context.Context, sessionID string, data domain.CheckoutData) (*domain.Order, error)
}

type checkoutService struct {
	carts      repository.CartRepository
	reconciler *Reconciler
	handoff    OrderHandoff
	products   ProductService
	metrics    *metrics.CheckoutMetrics
	tracer     trace.Tracer
	logger     *zap.Logger
}

func NewCheckoutService(
	carts repository.CartRepository,
	reconciler *Reconciler,
	handoff OrderHandoff,
	products ProductService,
	m *metrics.CheckoutMetrics,
	logger *zap.Logger,
) CheckoutService {
	return &checkoutService{
		carts:      carts,
		reconciler: reconciler,
		handoff:    handoff,
		products:   products,
		metrics:    m,
		tracer:     otel.Tracer("contract/checkout"),
		logger:     logger,
	}
}

// checkoutLockTTL bounds how long a crashed checkout can block its session.
const checkoutLockTTL = 30 * time.Second

// Checkout reserves stock for the session's cart and hands the order off.
// The cart is cleared only when every product was reserved and the order was recorded.
// Otherwise the decrements that did apply are kept on the cart as a reservation, so a
// retry only decrements what is still missing.
func (s *checkoutService) Checkout(ctx context.Context, sessionID string, data domain.CheckoutData) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "CheckoutService.Checkout")
	defer span.End()

	unlock, err := s.carts.Lock(ctx, sessionID, checkoutLockTTL)
	if err != nil {
		return nil, err
	}
	defer unlock(context.WithoutCancel(ctx))

	cart, err := s.carts.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if cart.IsEmpty() {
		return nil, ErrEmptyCart
	}

	demand := domain.Consolidate(cart.Lines)
	toReserve, toRelease := domain.SplitReservation(demand, cart.Reserved)
	span.SetAttributes(
		attribute.Int("lines", len(cart.Lines)),
		attribute.Int("products", len(demand)),
		attribute.Int("already_reserved", len(demand)-len(toReserve)),
	)

	if len(toRelease) > 0 {
		if err := s.release(ctx, sessionID, cart, toRelease); err != nil {
			return nil, err
		}
	}

	if len(toReserve) > 0 {
		result := s.reconciler.Reconcile(ctx, toReserve)
		s.products.Invalidate(ctx, toReserve.ProductIDs()...)

		for _, o := range result.AppliedOutcomes() {
			if cart.Reserved == nil {
				cart.Reserved = make(domain.ConsolidatedDemand)
			}
			cart.Reserved[o.ProductID] = o.Quantity
		}

		if !result.Succeeded() {
			s.metrics.ObserveCheckout(false)
			s.saveReservation(ctx, sessionID, cart)

			rejected := &CheckoutRejectedError{
				Lines:  rejectedLines(cart.Lines, result),
				Result: result,
			}

			span.RecordError(rejected)
			mylogger.Warn(ctx, s.logger, "Checkout rejected", zap.String("session_id", sessionID), zap.Error(rejected))
			return nil, rejected
		}
	}

	s.metrics.ObserveCheckout(true)

	order, err := s.handoff.Place(ctx, data, cart.Lines)
	if err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Stock reserved but order handoff failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)

		s.saveReservation(ctx, sessionID, cart)
		return nil, fmt.Errorf("order handoff failed: %w", err)
	}

	if err := s.carts.Delete(ctx, sessionID); err != nil {
		mylogger.Warn(ctx, s.logger, "Failed to clear cart after checkout", zap.String("session_id", sessionID), zap.Error(err))
	}

	return order, nil
}

// release returns reservations the cart no longer asks for. Whatever fails stays on the
// cart for the next attempt.
func (s *checkoutService) release(ctx context.Context, sessionID string, cart *domain.Cart, toRelease domain.ConsolidatedDemand) error {
	if err := releaseReservation(ctx, s.products, cart.Reserved, toRelease); err != nil {
		s.saveReservation(ctx, sessionID, cart)
		return fmt.Errorf("failed to release previous reservation: %w", err)
	}
	return nil
}

// releaseReservation returns toRelease to stock and drops every returned product from
// reserved. A product that is gone from the store has nothing to return to.
func releaseReservation(ctx context.Context, products ProductService, reserved, toRelease domain.ConsolidatedDemand) error {
	var errs []error
	for _, id := range toRelease.ProductIDs() {
		item := domain.OrderItemEvent{ProductID: id, Quantity: toRelease[id]}

		_, err := products.ReturnStock(ctx, []domain.OrderItemEvent{item})
		if err != nil && !errors.Is(err, repository.ErrProductNotFound) {
			errs = append(errs, err)
			continue
		}
		delete(reserved, id)
	}

	return errors.Join(errs...)
}

func (s *checkoutService) saveReservation(ctx context.Context, sessionID string, cart *domain.Cart) {
	if err := s.carts.Save(ctx, sessionID, cart); err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Failed to record stock reservation on cart",
			zap.String("session_id", sessionID),
			zap.Any("reserved", cart.Reserved),
			zap.Error(err),
		)
	}
}

// rejectedLines expands per-product failures back to the cart lines that requested them.
func rejectedLines(lines []domain.CartLine, result domain.CheckoutResult) []RejectedLine {
	failed := make(map[string]domain.StockOutcome)
	for _, o := range result.Failures() {
		failed[o.ProductID] = o
	}

	var rejected []RejectedLine
	for _, line := range lines {
		o, ok := failed[line.Product.ID]
		if !ok {
			continue
		}

		rejected = append(rejected, RejectedLine{
			ProductID: line.Product.ID,
			Name:      line.Product.Name,
			Size:      line.Size,
			Quantity:  line.Quantity,
			Reason:    rejectionReason(o),
		})
	}
	return rejected
}

func rejectionReason(o domain.StockOutcome) string {
	var storeErr *StoreError

	switch {
	case errors.Is(o.Err, repository.ErrInsufficientStock):
		return "insufficient stock"
	case errors.Is(o.Err, repository.ErrProductNotFound):
		return "product is no longer available"
	case errors.As(o.Err, &storeErr):
		return "stock service unavailable, try again"
	case o.Reason != "":
		return o.Reason
	default:
		return "not reserved"
	}
}
