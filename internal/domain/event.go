package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderPlaced    = "OrderPlaced"
	EventOrderCancelled = "OrderCancelled"
	EventProductCreated = "ProductCreated"
)

type OrderItemEvent struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name,omitempty"`
	Size      string          `json:"size,omitempty"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type OrderPlacedEvent struct {
	OrderID       string           `json:"order_id"`
	Customer      string           `json:"customer"`
	PaymentMethod PaymentMethod    `json:"payment_method"`
	Items         []OrderItemEvent `json:"items"`
	Total         decimal.Decimal  `json:"total"`
	PlacedAt      time.Time        `json:"placed_at"`
}

// OrderCancelledEvent is emitted by the fulfilment side; its items are returned to stock.
type OrderCancelledEvent struct {
	OrderID string           `json:"order_id"`
	Items   []OrderItemEvent `json:"items"`
}

type ProductCreatedEvent struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Stock     int64  `json:"stock"`
}

func OrderItemsFromLines(lines []CartLine) []OrderItemEvent {
	items := make([]OrderItemEvent, 0, len(lines))
	for _, line := range lines {
		items = append(items, OrderItemEvent{
			ProductID: line.Product.ID,
			Name:      line.Product.Name,
			Size:      line.Size,
			Quantity:  line.Quantity,
			UnitPrice: line.Product.Price,
		})
	}
	return items
}
