package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentPix    PaymentMethod = "pix"
	PaymentDebit  PaymentMethod = "debit"
	PaymentCredit PaymentMethod = "credit"
	PaymentCash   PaymentMethod = "cash"
)

type Address struct {
	Street     string `json:"street" validate:"required,max=200"`
	Number     string `json:"number" validate:"required,max=20"`
	Complement string `json:"complement,omitempty" validate:"max=100"`
}

// CheckoutData is what the shopper fills in on the checkout form.
type CheckoutData struct {
	Name          string        `json:"name" validate:"required,min=2,max=120"`
	Address       Address       `json:"address" validate:"required"`
	PaymentMethod PaymentMethod `json:"payment_method" validate:"required,oneof=pix debit credit cash"`
}

type Order struct {
	ID         string          `json:"id"`
	Customer   CheckoutData    `json:"customer"`
	Lines      []CartLine      `json:"lines"`
	Total      decimal.Decimal `json:"total"`
	Summary    string          `json:"summary"`
	HandoffURL string          `json:"handoff_url"`
	PlacedAt   time.Time       `json:"placed_at"`
}
