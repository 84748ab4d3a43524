package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartLine is one pending purchase of a product by a user. ProductName, Price
// and Stock are read from the catalog when the cart is loaded and are not
// persisted with the line.
type CartLine struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	ProductID   string          `json:"product_id"`
	Quantity    int             `json:"quantity"`
	ProductName string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (l CartLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type CartSummary struct {
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
}

type CartProblem struct {
	ProductID string `json:"product_id"`
	Product   string `json:"product"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}
