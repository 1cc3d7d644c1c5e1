package domain

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"
)

var ErrInvalidQuantity = errors.New("quantity must be at least 1")

// CartLine holds a snapshot of the product taken when it was added to the cart.
// Size is the optional variant label; "" means no variant.
type CartLine struct {
	Product  Product `json:"product"`
	Quantity int64   `json:"quantity"`
	Size     string  `json:"size,omitempty"`
}

func (l CartLine) matches(productID, size string) bool {
	return l.Product.ID == productID && l.Size == size
}

func (l CartLine) Subtotal() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(l.Quantity))
}

// CanIncrement is a display hint based on the stock snapshot in the cart.
// It can be arbitrarily stale and is never used to decide a stock decrement.
func (l CartLine) CanIncrement() bool {
	return l.Quantity < l.Product.Stock
}

type Cart struct {
	Lines []CartLine `json:"lines"`
	// Reserved is stock already decremented by an earlier checkout attempt of this cart
	// that did not complete.
	Reserved ConsolidatedDemand `json:"reserved,omitempty"`
}

func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Lines) == 0
}

// Add merges quantity into the line with the same product and size, or appends a new line.
func (c *Cart) Add(product Product, quantity int64, size string) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}

	for i := range c.Lines {
		if c.Lines[i].matches(product.ID, size) {
			c.Lines[i].Quantity += quantity
			c.Lines[i].Product = product
			return nil
		}
	}

	c.Lines = append(c.Lines, CartLine{Product: product, Quantity: quantity, Size: size})
	return nil
}

// UpdateQuantity sets the quantity of a line; quantity <= 0 removes it.
// It reports false when no such line exists.
func (c *Cart) UpdateQuantity(productID, size string, quantity int64) bool {
	if quantity <= 0 {
		return c.Remove(productID, size)
	}

	for i := range c.Lines {
		if c.Lines[i].matches(productID, size) {
			c.Lines[i].Quantity = quantity
			return true
		}
	}
	return false
}

func (c *Cart) Remove(productID, size string) bool {
	for i := range c.Lines {
		if c.Lines[i].matches(productID, size) {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Cart) Clear() {
	c.Lines = nil
}

func (c *Cart) Total() decimal.Decimal {
	return Total(c.Lines)
}

func (c *Cart) ItemCount() int64 {
	var count int64
	for _, line := range c.Lines {
		count += line.Quantity
	}
	return count
}

// Total is the exact sum of price * quantity; rounding is left to presentation.
func Total(lines []CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

// ConsolidatedDemand maps product id to the quantity requested across all cart lines.
type ConsolidatedDemand map[string]int64

// Consolidate groups lines by product id only: sizes of one product draw from one stock pool.
func Consolidate(lines []CartLine) ConsolidatedDemand {
	demand := make(ConsolidatedDemand, len(lines))
	for _, line := range lines {
		demand[line.Product.ID] += line.Quantity
	}
	return demand
}

func (d ConsolidatedDemand) Sum() int64 {
	var sum int64
	for _, qty := range d {
		sum += qty
	}
	return sum
}

// SplitReservation compares demand with what is already reserved. toReserve holds the
// products that still need a decrement; toRelease holds reservations that no longer match
// the demand and must be returned to stock first.
func SplitReservation(demand, reserved ConsolidatedDemand) (toReserve, toRelease ConsolidatedDemand) {
	toReserve = make(ConsolidatedDemand)
	toRelease = make(ConsolidatedDemand)

	for id, qty := range demand {
		if reserved[id] != qty {
			toReserve[id] = qty
		}
	}
	for id, qty := range reserved {
		if demand[id] != qty {
			toRelease[id] = qty
		}
	}
	return toReserve, toRelease
}

// ProductIDs returns the demanded ids in ascending order.
func (d ConsolidatedDemand) ProductIDs() []string {
	ids := make([]string, 0, len(d))
	for id := range d {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
