package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MateusMoreirac/Podscrebr/internal/domain"
	"github.com/MateusMoreirac/Podscrebr/internal/repository"
	outboxDomain "github.com/MateusMoreirac/Podscrebr/pkg/outbox/domain"
	"github.com/jackc/pgx/v5"
)

type fakeTx struct {
	pgx.Tx
	mu         sync.Mutex
	committed  int
	rolledBack int
}

func (t *fakeTx) Commit(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.committed++
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.committed > 0 {
		return pgx.ErrTxClosed
	}
	t.rolledBack++
	return nil
}

type fakeBeginner struct {
	tx  *fakeTx
	err error
}

func newFakeBeginner() *fakeBeginner {
	return &fakeBeginner{tx: &fakeTx{}}
}

func (b *fakeBeginner) Begin(context.Context) (pgx.Tx, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.tx, nil
}

type fakeOutbox struct {
	mu      sync.Mutex
	events  []*outboxDomain.OutboxEvent
	saveErr error
}

func (o *fakeOutbox) SaveOutboxEvent(_ context.Context, _ pgx.Tx, event *outboxDomain.OutboxEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.saveErr != nil {
		return o.saveErr
	}
	event.ID = int64(len(o.events) + 1)
	o.events = append(o.events, event)
	return nil
}

func (o *fakeOutbox) GetUnpublishedEvents(context.Context, pgx.Tx, int) ([]*outboxDomain.OutboxEvent, error) {
	return nil, nil
}

func (o *fakeOutbox) MarkEventPublished(context.Context, pgx.Tx, int64) error {
	return nil
}

func (o *fakeOutbox) MarkEventFailed(context.Context, pgx.Tx, int64, string) error {
	return nil
}

type fakeCartRepo struct {
	mu      sync.Mutex
	carts   map[string]*domain.Cart
	deleted []string
	locked  map[string]bool
	unlocks int
}

func newFakeCartRepo() *fakeCartRepo {
	return &fakeCartRepo{carts: make(map[string]*domain.Cart), locked: make(map[string]bool)}
}

func copyCart(cart *domain.Cart) *domain.Cart {
	copied := &domain.Cart{Lines: append([]domain.CartLine(nil), cart.Lines...)}
	if cart.Reserved != nil {
		copied.Reserved = make(domain.ConsolidatedDemand, len(cart.Reserved))
		for id, qty := range cart.Reserved {
			copied.Reserved[id] = qty
		}
	}
	return copied
}

func (r *fakeCartRepo) Lock(_ context.Context, sessionID string, _ time.Duration) (repository.UnlockFunc, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.locked[sessionID] {
		return nil, repository.ErrCheckoutInProgress
	}
	r.locked[sessionID] = true

	return func(context.Context) {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.locked, sessionID)
		r.unlocks++
	}, nil
}

func (r *fakeCartRepo) Get(_ context.Context, sessionID string) (*domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cart, ok := r.carts[sessionID]
	if !ok {
		return &domain.Cart{}, nil
	}

	return copyCart(cart), nil
}

func (r *fakeCartRepo) Save(_ context.Context, sessionID string, cart *domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.carts[sessionID] = copyCart(cart)
	return nil
}

func (r *fakeCartRepo) Delete(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.carts, sessionID)
	r.deleted = append(r.deleted, sessionID)
	return nil
}

type fakeProductRepo struct {
	mu       sync.Mutex
	products map[string]domain.Product
}

func newFakeProductRepo(products ...domain.Product) *fakeProductRepo {
	r := &fakeProductRepo{products: make(map[string]domain.Product)}
	for _, p := range products {
		r.products[p.ID] = p
	}
	return r
}

func (r *fakeProductRepo) Create(_ context.Context, _ pgx.Tx, product *domain.Product) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[product.ID]; ok {
		return "", errors.New("duplicate product")
	}
	r.products[product.ID] = *product
	return product.ID, nil
}

func (r *fakeProductRepo) GetByID(_ context.Context, id string) (*domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	return &p, nil
}

func (r *fakeProductRepo) List(_ context.Context, limit, offset int64) ([]domain.Product, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var list []domain.Product
	for _, p := range r.products {
		list = append(list, p)
	}
	total := int64(len(list))

	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)
	return list[offset:end], total, nil
}

func (r *fakeProductRepo) ListStockLevels(context.Context) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	levels := make(map[string]int64, len(r.products))
	for id, p := range r.products {
		levels[id] = p.Stock
	}
	return levels, nil
}

func (r *fakeProductRepo) Update(_ context.Context, id string, input *domain.UpdateProductInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[id]
	if !ok {
		return repository.ErrProductNotFound
	}
	if input.Name != nil {
		p.Name = *input.Name
	}
	if input.Price != nil {
		p.Price = *input.Price
	}
	if input.Stock != nil {
		p.Stock = *input.Stock
	}
	if input.Sizes != nil {
		p.Sizes = *input.Sizes
	}
	r.products[id] = p
	return nil
}

func (r *fakeProductRepo) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[id]; !ok {
		return repository.ErrProductNotFound
	}
	delete(r.products, id)
	return nil
}

type fakeHandoff struct {
	mu     sync.Mutex
	calls  int
	lines  []domain.CartLine
	err    error
	result *domain.Order
}

func (h *fakeHandoff) Place(_ context.Context, data domain.CheckoutData, lines []domain.CartLine) (*domain.Order, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.calls++
	h.lines = lines
	if h.err != nil {
		return nil, h.err
	}
	if h.result != nil {
		return h.result, nil
	}
	return &domain.Order{ID: "order-1", Customer: data, Lines: lines, Total: domain.Total(lines)}, nil
}

// fakeInvalidator records cache invalidations and returns stock straight to store.
type fakeInvalidator struct {
	ProductService
	mu          sync.Mutex
	invalidated []string
	store       *repository.MemoryStockStore
	returnErr   error
	returned    []domain.OrderItemEvent
}

func (f *fakeInvalidator) ReturnStock(ctx context.Context, items []domain.OrderItemEvent) ([]domain.OrderItemEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.returnErr != nil {
		return items, f.returnErr
	}

	var (
		remaining []domain.OrderItemEvent
		errs      []error
	)
	for _, item := range items {
		if _, err := f.store.IncreaseStock(ctx, item.ProductID, item.Quantity); err != nil {
			remaining = append(remaining, item)
			errs = append(errs, err)
			continue
		}
		f.returned = append(f.returned, item)
	}
	return remaining, errors.Join(errs...)
}

func (f *fakeInvalidator) Invalidate(_ context.Context, ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, ids...)
}
