// Package catalog describes the sellable items the POS adds to orders.
package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/salon-pos/internal/domain/line"
	"github.com/xenking/salon-pos/internal/domain/tax"
)

// ErrNotFound is returned when a requested catalog item does not exist.
var ErrNotFound = errors.New("catalog item not found")

// Item is a product, service or package available at a branch.
type Item struct {
	ID    string
	Name  string
	Kind  line.Kind
	Price decimal.Decimal
	Taxes []tax.Component
}

// Line converts the item into a fresh order line of quantity 1.
func (it Item) Line() line.Item {
	return line.Item{
		ID:                it.ID,
		Name:              it.Name,
		Kind:              it.Kind,
		UnitPrice:         it.Price,
		ListPrice:         it.Price,
		Quantity:          decimal.NewFromInt(1),
		PromotionDiscount: decimal.Zero,
		Taxes:             append([]tax.Component(nil), it.Taxes...),
	}
}

// Repository defines read operations for the catalog.
type Repository interface {
	GetItem(ctx context.Context, id string) (*Item, error)
}
