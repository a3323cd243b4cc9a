// Package pricing combines order lines and order-level modifiers into a
// summary with a fixed evaluation order.
package pricing

import (
	"slices"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/salon-pos/internal/domain/line"
	"github.com/xenking/salon-pos/internal/domain/tax"
)

// DiscountType enumerates manual discount interpretations.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// ErrInvalidDiscountType is returned when parsing an unknown discount type.
var ErrInvalidDiscountType = errors.New("invalid discount type")

// ParseDiscountType validates s as a DiscountType.
func ParseDiscountType(s string) (DiscountType, error) {
	switch t := DiscountType(s); t {
	case DiscountPercentage, DiscountFixed:
		return t, nil
	default:
		return "", errors.Wrapf(ErrInvalidDiscountType, "%q", s)
	}
}

// ManualDiscount is an order-level discount entered by the cashier.
type ManualDiscount struct {
	Amount decimal.Decimal `json:"amount"`
	Type   DiscountType    `json:"type"`
}

// Input is everything the aggregator needs to summarize an order.
type Input struct {
	Lines          []line.Item
	ManualDiscount ManualDiscount
	ServiceCharge  decimal.Decimal
	Jurisdiction   tax.Jurisdiction
}

// LineSummary is the per-line figure set shown next to each row.
type LineSummary struct {
	Index             int                        `json:"index"`
	ID                string                     `json:"id"`
	IsFree            bool                       `json:"is_free"`
	Gross             decimal.Decimal            `json:"gross"`
	PromotionDiscount decimal.Decimal            `json:"promotion_discount"`
	Tax               decimal.Decimal            `json:"tax"`
	TaxBreakdown      map[string]decimal.Decimal `json:"tax_breakdown,omitempty"`
}

// Summary is the computed order total.
type Summary struct {
	Subtotal               decimal.Decimal            `json:"subtotal"`
	PromotionDiscountTotal decimal.Decimal            `json:"promotion_discount_total"`
	ManualDiscountValue    decimal.Decimal            `json:"manual_discount_value"`
	TaxTotal               decimal.Decimal            `json:"tax_total"`
	TaxBreakdown           map[string]decimal.Decimal `json:"tax_breakdown"`
	TaxIncluded            bool                       `json:"tax_included"`
	ServiceCharge          decimal.Decimal            `json:"service_charge"`
	GrandTotal             decimal.Decimal            `json:"grand_total"`
	ItemCount              int                        `json:"item_count"` // paid lines only
	TotalQuantity          decimal.Decimal            `json:"total_quantity"`
	Lines                  []LineSummary              `json:"lines"`
	Warnings               []string                   `json:"warnings,omitempty"`
}

// Zero returns an empty summary.
func Zero() Summary {
	return Summary{
		Subtotal:               decimal.Zero,
		PromotionDiscountTotal: decimal.Zero,
		ManualDiscountValue:    decimal.Zero,
		TaxTotal:               decimal.Zero,
		TaxBreakdown:           map[string]decimal.Decimal{},
		ServiceCharge:          decimal.Zero,
		GrandTotal:             decimal.Zero,
		TotalQuantity:          decimal.Zero,
		Lines:                  []LineSummary{},
	}
}

// Round returns a copy with every money figure rounded to places.
func (s Summary) Round(places int32) Summary {
	out := s
	out.Subtotal = s.Subtotal.Round(places)
	out.PromotionDiscountTotal = s.PromotionDiscountTotal.Round(places)
	out.ManualDiscountValue = s.ManualDiscountValue.Round(places)
	out.TaxTotal = s.TaxTotal.Round(places)
	out.TaxBreakdown = roundMap(s.TaxBreakdown, places)
	out.ServiceCharge = s.ServiceCharge.Round(places)
	out.GrandTotal = s.GrandTotal.Round(places)
	out.Lines = make([]LineSummary, len(s.Lines))
	for i, l := range s.Lines {
		l.Gross = l.Gross.Round(places)
		l.PromotionDiscount = l.PromotionDiscount.Round(places)
		l.Tax = l.Tax.Round(places)
		l.TaxBreakdown = roundMap(l.TaxBreakdown, places)
		out.Lines[i] = l
	}
	out.Warnings = slices.Clone(s.Warnings)
	return out
}

var hundred = decimal.NewFromInt(100)

// Aggregator summarizes orders under one tax resolver.
type Aggregator struct {
	taxes *tax.Resolver
}

// NewAggregator creates an Aggregator. A nil resolver disables tax.
func NewAggregator(taxes *tax.Resolver) *Aggregator {
	if taxes == nil {
		taxes = tax.NewResolver(tax.Config{}, nil)
	}
	return &Aggregator{taxes: taxes}
}

// Summarize computes the unrounded summary. Evaluation order:
// subtotal, manual discount, tax, service charge, grand total.
func (a *Aggregator) Summarize(in Input) Summary {
	out := Zero()
	out.TaxIncluded = a.taxes.Inclusive()
	if len(in.Lines) == 0 {
		return out
	}

	taxes := a.taxes.WithTable(lineTaxes(in.Lines))
	for i, it := range in.Lines {
		ls := LineSummary{
			Index:             i,
			ID:                it.ID,
			IsFree:            it.IsFree,
			Gross:             decimal.Zero,
			PromotionDiscount: decimal.Zero,
			Tax:               decimal.Zero,
		}
		if !it.IsFree {
			out.ItemCount++
			out.TotalQuantity = out.TotalQuantity.Add(it.Quantity)
			ls.Gross = it.Gross()
			ls.PromotionDiscount = it.PromotionDiscount
			out.Subtotal = out.Subtotal.Add(ls.Gross)
			out.PromotionDiscountTotal = out.PromotionDiscountTotal.Add(it.PromotionDiscount)

			res := taxes.CalculateItemTax(it.ID, it.Quantity, it.UnitPrice, in.Jurisdiction)
			ls.Tax = res.Total
			ls.TaxBreakdown = res.Breakdown
			out.TaxTotal = out.TaxTotal.Add(res.Total)
			for name, amount := range res.Breakdown {
				out.TaxBreakdown[name] = out.TaxBreakdown[name].Add(amount)
			}
		}
		out.Lines = append(out.Lines, ls)
	}

	out.ManualDiscountValue = manualDiscountValue(in.ManualDiscount, out.Subtotal)
	out.ServiceCharge = floorAtZero(in.ServiceCharge)

	total := out.Subtotal.Add(out.ServiceCharge).Sub(out.ManualDiscountValue)
	// Inclusive prices already carry their tax: a 100 sticker totals 100.
	if !out.TaxIncluded {
		total = total.Add(out.TaxTotal)
	}
	out.GrandTotal = total

	return out
}

// lineTaxes indexes the tax components carried by paid lines by item id.
func lineTaxes(lines []line.Item) tax.StaticTable {
	t := make(tax.StaticTable, len(lines))
	for _, it := range lines {
		if !it.IsFree {
			t[it.ID] = it.Taxes
		}
	}
	return t
}

// manualDiscountValue resolves the manual discount against subtotal and
// clamps it to [0, subtotal].
func manualDiscountValue(md ManualDiscount, subtotal decimal.Decimal) decimal.Decimal {
	amount := floorAtZero(md.Amount)

	var value decimal.Decimal
	switch md.Type {
	case DiscountPercentage:
		value = subtotal.Mul(amount).Div(hundred)
	case DiscountFixed:
		value = amount
	default:
		return decimal.Zero
	}
	return decimal.Min(value, floorAtZero(subtotal))
}

func floorAtZero(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

func roundMap(m map[string]decimal.Decimal, places int32) map[string]decimal.Decimal {
	if m == nil {
		return nil
	}
	out := make(map[string]decimal.Decimal, len(m))
	for k, v := range m {
		out[k] = v.Round(places)
	}
	return out
}
