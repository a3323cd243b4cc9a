package promotion

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/salon-pos/internal/domain/line"
)

var hundred = decimal.NewFromInt(100)

// Engine computes line discounts and free-item lines from a promotion list.
// Inactive promotions are filtered on every call using the engine clock.
type Engine struct {
	now func() time.Time
}

// NewEngine creates an Engine using the wall clock.
func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// NewEngineAt creates an Engine with a custom clock.
func NewEngineAt(now func() time.Time) *Engine {
	return &Engine{now: now}
}

// Active returns the promotions applicable today, preserving list order.
func (e *Engine) Active(promos []Promotion) []Promotion {
	now := e.now()
	out := make([]Promotion, 0, len(promos))
	for _, p := range promos {
		if p.ActiveAt(now) {
			out = append(out, p)
		}
	}
	return out
}

// ComputeLineDiscount returns the automatic discount for one line and the ids
// of the discount promotions that produced it.
//
// Matching promotions are summed in list order and the sum is capped at the
// line gross. Each promotion applies at most once per line regardless of how
// many multiples of its threshold the quantity covers.
func (e *Engine) ComputeLineDiscount(it line.Item, promos []Promotion) (decimal.Decimal, []string) {
	return lineDiscount(it, e.Active(promos))
}

// ComputeFreeItems returns the free lines the given line earns.
func (e *Engine) ComputeFreeItems(it line.Item, promos []Promotion) []line.Item {
	return freeItems(it, e.Active(promos))
}

// ApplyToOrder recomputes every non-free line's discount and regenerates the
// free lines from scratch. Non-free lines keep their order; free lines follow.
// Applying the result again yields the same lines.
func (e *Engine) ApplyToOrder(lines []line.Item, promos []Promotion) []line.Item {
	active := e.Active(promos)

	paid := line.CloneAll(line.Paid(lines))
	for i := range paid {
		applyLine(&paid[i], active)
	}
	return append(paid, materialize(paid, active)...)
}

// RecomputeLine recomputes the discount of the line at index i only, then
// rebuilds the free lines for the whole order. Other lines keep the discount
// they already carry.
func (e *Engine) RecomputeLine(lines []line.Item, i int, promos []Promotion) []line.Item {
	active := e.Active(promos)

	var target string
	if i >= 0 && i < len(lines) && !lines[i].IsFree {
		target = lines[i].ID
	}

	paid := line.CloneAll(line.Paid(lines))
	for j := range paid {
		if target != "" && paid[j].ID == target {
			applyLine(&paid[j], active)
		}
	}
	return append(paid, materialize(paid, active)...)
}

func applyLine(it *line.Item, active []Promotion) {
	amount, ids := lineDiscount(*it, active)
	it.PromotionDiscount = amount
	for _, p := range active {
		if p.Kind == KindFreeItem && p.Triggers(*it) && p.Reward != nil {
			ids = append(ids, p.ID)
		}
	}
	it.AppliedPromotions = ids
}

func lineDiscount(it line.Item, active []Promotion) (decimal.Decimal, []string) {
	if it.IsFree {
		return decimal.Zero, nil
	}

	total := decimal.Zero
	var ids []string
	for _, p := range active {
		if p.Kind != KindDiscount || !p.Triggers(it) {
			continue
		}

		var amount decimal.Decimal
		switch p.DiscountType {
		case DiscountPercentage:
			amount = it.Gross().Mul(p.DiscountAmount).Div(hundred)
		case DiscountFixed:
			amount = p.DiscountAmount
		default:
			continue
		}
		if !amount.IsPositive() {
			continue
		}

		total = total.Add(amount)
		ids = append(ids, p.ID)
	}

	gross := floorAtZero(it.Gross())
	return decimal.Min(total, gross), ids
}

func freeItems(it line.Item, active []Promotion) []line.Item {
	var out []line.Item
	for _, p := range active {
		if p.Kind != KindFreeItem || p.Reward == nil || !p.GetQuantity.IsPositive() {
			continue
		}
		if !p.Triggers(it) {
			continue
		}
		out = append(out, line.Item{
			ID:                p.Reward.ID,
			Name:              p.Reward.Name,
			Kind:              p.Reward.Kind,
			UnitPrice:         decimal.Zero,
			ListPrice:         p.Reward.Price,
			Quantity:          p.GetQuantity,
			IsFree:            true,
			PromotionDiscount: decimal.Zero,
			AppliedPromotions: []string{p.ID},
			SourceItemID:      it.ID,
		})
	}
	return out
}

// materialize builds the free lines for a set of paid lines. A promotion
// grants at most one free line per triggering catalog item.
func materialize(paid []line.Item, active []Promotion) []line.Item {
	type key struct{ promo, source string }
	seen := map[key]struct{}{}

	var out []line.Item
	for _, it := range paid {
		for _, f := range freeItems(it, active) {
			k := key{promo: f.AppliedPromotions[0], source: f.SourceItemID}
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, f)
		}
	}
	return slices.Clip(out)
}

func floorAtZero(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}
