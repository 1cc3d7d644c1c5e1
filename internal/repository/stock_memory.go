package repository

import (
	"context"
	"sync"
	"sync/atomic"
)

// MemoryStockStore is an in-process stock store for local runs and tests.
// All mutations happen under one mutex, so ConditionalDecrement is atomic.
type MemoryStockStore struct {
	mu             sync.Mutex
	stock          map[string]int64
	atomicDisabled atomic.Bool
}

func NewMemoryStockStore(initial map[string]int64) *MemoryStockStore {
	stock := make(map[string]int64, len(initial))
	for id, qty := range initial {
		stock[id] = qty
	}

	return &MemoryStockStore{stock: stock}
}

// DisableAtomic simulates a deployment where the conditional decrement is missing.
func (s *MemoryStockStore) DisableAtomic(disabled bool) {
	s.atomicDisabled.Store(disabled)
}

func (s *MemoryStockStore) ConditionalDecrement(ctx context.Context, productID string, amount int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if s.atomicDisabled.Load() {
		return 0, ErrAtomicUnavailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.stock[productID]
	if !ok {
		return 0, ErrProductNotFound
	}

	if current < amount {
		return 0, ErrInsufficientStock
	}

	s.stock[productID] = current - amount
	return current - amount, nil
}

func (s *MemoryStockStore) GetStock(ctx context.Context, productID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.stock[productID]
	if !ok {
		return 0, ErrProductNotFound
	}
	return current, nil
}

func (s *MemoryStockStore) SetStock(ctx context.Context, productID string, stock int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stock[productID]; !ok {
		return ErrProductNotFound
	}

	s.stock[productID] = stock
	return nil
}

func (s *MemoryStockStore) IncreaseStock(ctx context.Context, productID string, amount int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.stock[productID]
	if !ok {
		return 0, ErrProductNotFound
	}

	s.stock[productID] = current + amount
	return current + amount, nil
}

func (s *MemoryStockStore) SeedStock(_ context.Context, productID string, stock int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stock[productID]; ok {
		return false, nil
	}

	s.stock[productID] = stock
	return true, nil
}

func (s *MemoryStockStore) PutStock(_ context.Context, productID string, stock int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stock[productID] = stock
	return nil
}

func (s *MemoryStockStore) DropStock(_ context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.stock, productID)
	return nil
}
