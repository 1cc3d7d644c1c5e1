package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MateusMoreirac/Podscrebr/internal/domain"
	"github.com/MateusMoreirac/Podscrebr/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type checkoutFixture struct {
	store    *repository.MemoryStockStore
	carts    *fakeCartRepo
	handoff  *fakeHandoff
	products *fakeInvalidator
	service  CheckoutService
}

func newCheckoutFixture(stock map[string]int64) *checkoutFixture {
	store := repository.NewMemoryStockStore(stock)
	f := &checkoutFixture{
		store:    store,
		carts:    newFakeCartRepo(),
		handoff:  &fakeHandoff{},
		products: &fakeInvalidator{store: store},
	}

	reconciler := NewReconciler(newTestGateway(f.store), 4, nil, zap.NewNop())
	f.service = NewCheckoutService(f.carts, reconciler, f.handoff, f.products, nil, zap.NewNop())
	return f
}

func (f *checkoutFixture) addToCart(t *testing.T, session string, p domain.Product, qty int64, size string) {
	t.Helper()

	cart, err := f.carts.Get(context.Background(), session)
	require.NoError(t, err)
	require.NoError(t, cart.Add(p, qty, size))
	require.NoError(t, f.carts.Save(context.Background(), session, cart))
}

func (f *checkoutFixture) stockOf(t *testing.T, id string) int64 {
	t.Helper()

	stock, err := f.store.GetStock(context.Background(), id)
	require.NoError(t, err)
	return stock
}

func shirt(id string, stock int64) domain.Product {
	return domain.Product{
		ID:    id,
		Name:  "Camisa " + id,
		Price: decimal.RequireFromString("50.00"),
		Stock: stock,
		Sizes: []string{"P", "M", "G"},
	}
}

var customer = domain.CheckoutData{
	Name:          "Maria",
	Address:       domain.Address{Street: "Rua A", Number: "10"},
	PaymentMethod: domain.PaymentPix,
}

func TestCheckout_EmptyCart(t *testing.T) {
	f := newCheckoutFixture(nil)

	_, err := f.service.Checkout(context.Background(), "s1", customer)

	require.ErrorIs(t, err, ErrEmptyCart)
	require.Zero(t, f.handoff.calls)
}

func TestCheckout_SuccessClearsCart(t *testing.T) {
	f := newCheckoutFixture(map[string]int64{"p1": 10})
	f.addToCart(t, "s1", shirt("p1", 10), 2, "M")
	f.addToCart(t, "s1", shirt("p1", 10), 3, "G")

	order, err := f.service.Checkout(context.Background(), "s1", customer)
	require.NoError(t, err)
	require.NotNil(t, order)

	require.Equal(t, int64(5), f.stockOf(t, "p1"))
	require.Equal(t, 1, f.handoff.calls)
	require.Len(t, f.handoff.lines, 2)
	require.Contains(t, f.carts.deleted, "s1")
	require.Contains(t, f.products.invalidated, "p1")

	cart, err := f.carts.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.True(t, cart.IsEmpty())
}

func TestCheckout_InsufficientStockKeepsCart(t *testing.T) {
	f := newCheckoutFixture(map[string]int64{"p1": 2})
	f.addToCart(t, "s1", shirt("p1", 2), 3, "M")

	_, err := f.service.Checkout(context.Background(), "s1", customer)

	require.ErrorIs(t, err, ErrCheckoutRejected)

	var rejected *CheckoutRejectedError
	require.ErrorAs(t, err, &rejected)
	require.Len(t, rejected.Lines, 1)
	require.Equal(t, "p1", rejected.Lines[0].ProductID)
	require.Equal(t, "M", rejected.Lines[0].Size)
	require.Equal(t, "insufficient stock", rejected.Lines[0].Reason)

	require.Equal(t, int64(2), f.stockOf(t, "p1"))
	require.Zero(t, f.handoff.calls)
	require.Empty(t, f.carts.deleted)

	cart, err := f.carts.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, cart.Lines, 1)
}

func TestCheckout_PartialFailureListsOnlyFailedLines(t *testing.T) {
	f := newCheckoutFixture(map[string]int64{"p1": 10, "p2": 1})
	f.addToCart(t, "s1", shirt("p1", 10), 2, "M")
	f.addToCart(t, "s1", shirt("p2", 1), 1, "P")
	f.addToCart(t, "s1", shirt("p2", 1), 1, "G")

	_, err := f.service.Checkout(context.Background(), "s1", customer)

	var rejected *CheckoutRejectedError
	require.ErrorAs(t, err, &rejected)
	require.Len(t, rejected.Lines, 2)
	for _, line := range rejected.Lines {
		require.Equal(t, "p2", line.ProductID)
	}

	// Applied decrements are not compensated; the cart remembers them.
	require.Equal(t, int64(8), f.stockOf(t, "p1"))
	require.Equal(t, int64(1), f.stockOf(t, "p2"))
	require.Zero(t, f.handoff.calls)

	cart, err := f.carts.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, cart.Lines, 3)
	require.Equal(t, domain.ConsolidatedDemand{"p1": 2}, cart.Reserved)
}

func TestCheckout_RetryAfterPartialFailureDecrementsOnlyMissing(t *testing.T) {
	f := newCheckoutFixture(map[string]int64{"p1": 10, "p2": 1})
	f.addToCart(t, "s1", shirt("p1", 10), 2, "M")
	f.addToCart(t, "s1", shirt("p2", 1), 2, "P")

	_, err := f.service.Checkout(context.Background(), "s1", customer)
	require.ErrorIs(t, err, ErrCheckoutRejected)
	require.Equal(t, int64(8), f.stockOf(t, "p1"))

	_, err = f.store.IncreaseStock(context.Background(), "p2", 1)
	require.NoError(t, err)

	order, err := f.service.Checkout(context.Background(), "s1", customer)
	require.NoError(t, err)
	require.NotNil(t, order)

	require.Equal(t, int64(8), f.stockOf(t, "p1"))
	require.Zero(t, f.stockOf(t, "p2"))
	require.Equal(t, 1, f.handoff.calls)
	require.Contains(t, f.carts.deleted, "s1")
}

func TestCheckout_RetryAfterHandoffFailureDoesNotDecrementAgain(t *testing.T) {
	f := newCheckoutFixture(map[string]int64{"p1": 10})
	f.handoff.err = errors.New("outbox down")
	f.addToCart(t, "s1", shirt("p1", 10), 3, "M")

	_, err := f.service.Checkout(context.Background(), "s1", customer)
	require.Error(t, err)
	require.Equal(t, int64(7), f.stockOf(t, "p1"))

	f.handoff.err = nil
	_, err = f.service.Checkout(context.Background(), "s1", customer)
	require.NoError(t, err)

	require.Equal(t, int64(7), f.stockOf(t, "p1"))
	require.Equal(t, 2, f.handoff.calls)
}

func TestCheckout_ChangedCartReleasesStaleReservation(t *testing.T) {
	f := newCheckoutFixture(map[string]int64{"p1": 10, "p2": 0})
	f.addToCart(t, "s1", shirt("p1", 10), 4, "M")
	f.addToCart(t, "s1", shirt("p2", 0), 1, "M")

	_, err := f.service.Checkout(context.Background(), "s1", customer)
	require.ErrorIs(t, err, ErrCheckoutRejected)
	require.Equal(t, int64(6), f.stockOf(t, "p1"))

	cart, err := f.carts.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.True(t, cart.UpdateQuantity("p1", "M", 1))
	require.True(t, cart.Remove("p2", "M"))
	require.NoError(t, f.carts.Save(context.Background(), "s1", cart))

	_, err = f.service.Checkout(context.Background(), "s1", customer)
	require.NoError(t, err)

	require.Equal(t, int64(9), f.stockOf(t, "p1"))
	require.Equal(t, []domain.OrderItemEvent{{ProductID: "p1", Quantity: 4}}, f.products.returned)
}

func TestCheckout_ReleaseFailureKeepsReservation(t *testing.T) {
	f := newCheckoutFixture(map[string]int64{"p1": 10})
	f.addToCart(t, "s1", shirt("p1", 10), 1, "M")

	cart, err := f.carts.Get(context.Background(), "s1")
	require.NoError(t, err)
	cart.Reserved = domain.ConsolidatedDemand{"p1": 5}
	require.NoError(t, f.carts.Save(context.Background(), "s1", cart))

	f.products.returnErr = &StoreError{Op: "increase_stock", ProductID: "p1", Err: errors.New("timeout")}

	_, err = f.service.Checkout(context.Background(), "s1", customer)
	require.Error(t, err)

	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	require.Equal(t, int64(10), f.stockOf(t, "p1"))

	cart, err = f.carts.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, domain.ConsolidatedDemand{"p1": 5}, cart.Reserved)
}

func TestCheckout_ConcurrentCheckoutOfSameSessionIsRefused(t *testing.T) {
	f := newCheckoutFixture(map[string]int64{"p1": 10})
	f.addToCart(t, "s1", shirt("p1", 10), 2, "M")

	unlock, err := f.carts.Lock(context.Background(), "s1", time.Second)
	require.NoError(t, err)

	_, err = f.service.Checkout(context.Background(), "s1", customer)
	require.ErrorIs(t, err, repository.ErrCheckoutInProgress)
	require.Equal(t, int64(10), f.stockOf(t, "p1"))

	unlock(context.Background())

	_, err = f.service.Checkout(context.Background(), "s1", customer)
	require.NoError(t, err)
	require.Equal(t, int64(8), f.stockOf(t, "p1"))
	require.Equal(t, 2, f.carts.unlocks)
}

func TestCheckout_UnknownProductReason(t *testing.T) {
	f := newCheckoutFixture(nil)
	f.addToCart(t, "s1", shirt("gone", 1), 1, "M")

	_, err := f.service.Checkout(context.Background(), "s1", customer)

	var rejected *CheckoutRejectedError
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, "product is no longer available", rejected.Lines[0].Reason)
}

func TestCheckout_HandoffFailureKeepsCart(t *testing.T) {
	f := newCheckoutFixture(map[string]int64{"p1": 10})
	f.handoff.err = errors.New("outbox down")
	f.addToCart(t, "s1", shirt("p1", 10), 1, "M")

	_, err := f.service.Checkout(context.Background(), "s1", customer)

	require.Error(t, err)
	require.NotErrorIs(t, err, ErrCheckoutRejected)
	require.Empty(t, f.carts.deleted)
}
