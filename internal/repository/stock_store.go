package repository

import "context"

// StockStore is the backing-store contract for authoritative stock counters.
//
// ConditionalDecrement checks stock >= amount and decrements in one indivisible step.
// It fails with ErrInsufficientStock, ErrProductNotFound, or ErrAtomicUnavailable when
// the primitive is missing in this deployment.
//
// GetStock and SetStock are separate round trips. Combining them is a read-modify-write
// and loses updates under concurrent writers.
type StockStore interface {
	ConditionalDecrement(ctx context.Context, productID string, amount int64) (int64, error)
	GetStock(ctx context.Context, productID string) (int64, error)
	SetStock(ctx context.Context, productID string, stock int64) error
	IncreaseStock(ctx context.Context, productID string, amount int64) (int64, error)
}

// StockMirror is implemented by stores that keep stock outside the catalog table and must
// follow catalog creates, edits and deletes.
type StockMirror interface {
	// SeedStock sets stock only if the product has no counter yet.
	SeedStock(ctx context.Context, productID string, stock int64) (bool, error)
	PutStock(ctx context.Context, productID string, stock int64) error
	DropStock(ctx context.Context, productID string) error
}
