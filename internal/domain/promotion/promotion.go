// Package promotion evaluates automatic promotions against order lines.
package promotion

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/salon-pos/internal/domain/line"
)

// Kind distinguishes the two promotion variants.
type Kind string

const (
	// KindDiscount reduces the price of the triggering line.
	KindDiscount Kind = "discount"
	// KindFreeItem grants a quantity of a reward item for free.
	KindFreeItem Kind = "free_item"
)

// DiscountType enumerates how a discount promotion amount is interpreted.
type DiscountType string

const (
	// DiscountPercentage takes a percentage of the line gross.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes a flat amount off the line once.
	DiscountFixed DiscountType = "fixed"
)

// Status is the administrative state of a promotion.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Reward is the catalog snapshot of a free-item promotion's rewarded item.
type Reward struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Kind  line.Kind       `json:"kind"`
	Price decimal.Decimal `json:"price"`
}

// Promotion is a read-only rule supplied by the catalog.
type Promotion struct {
	ID          string
	Name        string
	BranchID    string
	Kind        Kind
	ItemID      string
	BuyQuantity decimal.Decimal
	StartDate   time.Time
	EndDate     time.Time
	Status      Status

	// Discount variant.
	DiscountAmount decimal.Decimal
	DiscountType   DiscountType

	// FreeItem variant.
	Reward      *Reward
	GetQuantity decimal.Decimal
}

// ActiveAt reports whether the promotion applies on the calendar date of t.
// Both date bounds are inclusive; a zero bound is open. Bounds are calendar
// dates: only their own year, month and day are compared.
func (p Promotion) ActiveAt(t time.Time) bool {
	if p.Status != StatusActive {
		return false
	}
	day := truncateDay(t)
	if !p.StartDate.IsZero() && day.Before(sameDayIn(p.StartDate, t.Location())) {
		return false
	}
	if !p.EndDate.IsZero() && day.After(sameDayIn(p.EndDate, t.Location())) {
		return false
	}
	return true
}

// Triggers reports whether it satisfies the promotion's trigger condition.
func (p Promotion) Triggers(it line.Item) bool {
	if it.IsFree || it.ID != p.ItemID {
		return false
	}
	return it.Quantity.GreaterThanOrEqual(p.BuyQuantity)
}

// Repository lists the promotions configured for a branch.
type Repository interface {
	ListByBranch(ctx context.Context, branchID string) ([]Promotion, error)
}

func truncateDay(t time.Time) time.Time {
	return sameDayIn(t, t.Location())
}

// sameDayIn returns midnight in loc of t's calendar date in t's own location.
func sameDayIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
