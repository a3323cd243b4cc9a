// Package line defines the order line item shared by the pricing components.
package line

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/xenking/salon-pos/internal/domain/tax"
)

// Kind enumerates the catalog entry types a line can carry.
type Kind string

const (
	KindProduct Kind = "product"
	KindService Kind = "service"
	KindPackage Kind = "package"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindProduct, KindService, KindPackage:
		return true
	default:
		return false
	}
}

// Employee references the staff member performing a service.
type Employee struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Item is one row of an order: a quantity of one catalog entry.
//
// Free items are synthetic lines granted by a promotion. They carry a zero
// unit price and no promotion discount, and are excluded from every total.
type Item struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Kind              Kind            `json:"kind"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	ListPrice         decimal.Decimal `json:"list_price"`
	Quantity          decimal.Decimal `json:"quantity"`
	IsFree            bool            `json:"is_free"`
	PromotionDiscount decimal.Decimal `json:"promotion_discount"`
	Note              string          `json:"note,omitempty"`
	Employee          *Employee       `json:"employee,omitempty"`
	AppliedPromotions []string        `json:"applied_promotions,omitempty"`
	SourceItemID      string          `json:"source_item_id,omitempty"`
	Taxes             []tax.Component `json:"taxes,omitempty"`
}

// Gross returns unit price times quantity.
func (it Item) Gross() decimal.Decimal {
	return it.UnitPrice.Mul(it.Quantity)
}

// Clone returns a deep copy of the item.
func (it Item) Clone() Item {
	out := it
	if it.Employee != nil {
		e := *it.Employee
		out.Employee = &e
	}
	out.AppliedPromotions = slices.Clone(it.AppliedPromotions)
	out.Taxes = slices.Clone(it.Taxes)
	return out
}

// CloneAll deep copies a slice of items.
func CloneAll(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}

// Paid returns only the non-free items, preserving order.
func Paid(items []Item) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if !it.IsFree {
			out = append(out, it)
		}
	}
	return out
}
