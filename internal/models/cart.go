package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartLine is one (product, quantity) pairing owned by a shopper. While the
// line sits in the cart OrderID is nil; checkout re-parents it to an order.
// ID is zero until the row has been persisted.
type CartLine struct {
	ID        int64      `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	ProductID int64      `json:"product_id"`
	Quantity  int        `json:"quantity"`
	OrderID   *uuid.UUID `json:"order_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	Product   *Product   `json:"product,omitempty"`
}

// LineTotal is quantity x unit price for this line.
func (l *CartLine) LineTotal() decimal.Decimal {
	if l.Product == nil {
		return decimal.Zero
	}
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// CartSnapshot is the materialized cart view handed to callers: the cached
// lines plus the derived totals, recomputed at snapshot time.
type CartSnapshot struct {
	Lines           []CartLine      `json:"lines"`
	DestinationCode string          `json:"destination_code,omitempty"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Shipping        decimal.Decimal `json:"shipping"`
	Total           decimal.Decimal `json:"total"`
	ItemCount       int             `json:"item_count"`
}

type AddItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required"`
	Quantity  int   `json:"quantity,omitempty" validate:"omitempty,min=1"`
}

type ShippingCodeRequest struct {
	Code string `json:"code" validate:"required"`
}
