package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          string          `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description" db:"description"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Stock       int64           `json:"stock" db:"stock"`
	Category    string          `json:"category" db:"category"`
	ImageUrl    string          `json:"image_url" db:"image_url"`
	Sizes       []string        `json:"sizes,omitempty" db:"sizes"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
	DeletedAt   *time.Time      `json:"-" db:"deleted_at"`
}

// HasSize reports whether size is a valid variant. Products without sizes accept only "".
func (p Product) HasSize(size string) bool {
	if len(p.Sizes) == 0 {
		return size == ""
	}

	for _, s := range p.Sizes {
		if s == size {
			return true
		}
	}
	return false
}

type UpdateProductInput struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *int64           `json:"stock"`
	ImageUrl    *string          `json:"image_url"`
	Category    *string          `json:"category"`
	Sizes       *[]string        `json:"sizes"`
}
