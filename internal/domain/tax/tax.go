// Package tax resolves per-line tax amounts and their named breakdown.
//
// Amounts are returned unrounded; callers round once when aggregating for
// display so that many small lines do not compound rounding error.
package tax

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// Mode selects the tax regime.
type Mode string

const (
	// ModeRegular sums every configured component.
	ModeRegular Mode = "regular"
	// ModeGST filters components by customer jurisdiction (CGST+SGST or IGST).
	ModeGST Mode = "gst"
)

// Type selects whether prices already contain tax.
type Type string

const (
	TypeExclusive Type = "exclusive"
	TypeInclusive Type = "inclusive"
)

// Jurisdiction locates the customer relative to the selling branch.
type Jurisdiction string

const (
	// JurisdictionSame is an intra-state sale: CGST and SGST apply.
	JurisdictionSame Jurisdiction = "same"
	// JurisdictionDifferent is an inter-state sale: IGST applies.
	JurisdictionDifferent Jurisdiction = "different"
)

// Config holds the company level tax settings.
type Config struct {
	Collect bool
	Mode    Mode
	Type    Type
}

// Component is one named tax with a percentage rate.
type Component struct {
	Name string          `json:"name"`
	Rate decimal.Decimal `json:"rate"`
}

// Result is the tax computed for one line.
type Result struct {
	Total     decimal.Decimal
	Breakdown map[string]decimal.Decimal
}

// Table looks up the tax components configured for a catalog item.
type Table interface {
	Components(itemID string) []Component
}

// StaticTable is an in-memory Table keyed by item id.
type StaticTable map[string][]Component

// Components implements Table.
func (t StaticTable) Components(itemID string) []Component {
	return t[itemID]
}

var hundred = decimal.NewFromInt(100)

// Resolver computes tax for order lines under a fixed company configuration.
type Resolver struct {
	cfg   Config
	table Table
}

// NewResolver creates a Resolver. The table may be nil when callers only use
// Calculate with explicit components.
func NewResolver(cfg Config, table Table) *Resolver {
	return &Resolver{cfg: cfg, table: table}
}

// WithTable returns a copy of r that looks item components up in t.
func (r *Resolver) WithTable(t Table) *Resolver {
	c := *r
	c.table = t
	return &c
}

// Config returns the configuration the resolver was built with.
func (r *Resolver) Config() Config {
	return r.cfg
}

// Inclusive reports whether prices are treated as tax inclusive.
func (r *Resolver) Inclusive() bool {
	return r.cfg.Collect && r.cfg.Type == TypeInclusive
}

// CalculateItemTax computes the tax for quantity units of itemID sold at
// unitPrice. Items without configuration yield zero tax.
func (r *Resolver) CalculateItemTax(itemID string, quantity, unitPrice decimal.Decimal, j Jurisdiction) Result {
	var components []Component
	if r.table != nil {
		components = r.table.Components(itemID)
	}
	return r.Calculate(components, quantity, unitPrice, j)
}

// Calculate computes the tax for the given components over quantity*unitPrice.
func (r *Resolver) Calculate(components []Component, quantity, unitPrice decimal.Decimal, j Jurisdiction) Result {
	res := Result{Total: decimal.Zero, Breakdown: map[string]decimal.Decimal{}}
	if !r.cfg.Collect || len(components) == 0 {
		return res
	}

	base := unitPrice.Mul(quantity)
	if !base.IsPositive() {
		return res
	}

	applied := components
	if r.cfg.Mode == ModeGST {
		applied = filterByJurisdiction(components, j)
	}

	totalRate := decimal.Zero
	for _, c := range applied {
		totalRate = totalRate.Add(c.Rate)
	}
	if !totalRate.IsPositive() {
		return res
	}

	switch r.cfg.Type {
	case TypeInclusive:
		// tax = gross - gross/(1+rate/100), computed once on the combined rate
		// and shared between components by their share of that rate.
		net := base.Div(decimal.NewFromInt(1).Add(totalRate.Div(hundred)))
		total := base.Sub(net)
		for _, c := range applied {
			addTo(res.Breakdown, c.Name, total.Mul(c.Rate).Div(totalRate))
		}
		res.Total = total
	default:
		total := decimal.Zero
		for _, c := range applied {
			amount := base.Mul(c.Rate).Div(hundred)
			addTo(res.Breakdown, c.Name, amount)
			total = total.Add(amount)
		}
		res.Total = total
	}

	return res
}

// filterByJurisdiction keeps CGST/SGST components for same-state sales and
// IGST components for inter-state sales. Everything else is dropped.
func filterByJurisdiction(components []Component, j Jurisdiction) []Component {
	out := make([]Component, 0, len(components))
	for _, c := range components {
		name := strings.ToUpper(strings.TrimSpace(c.Name))
		switch j {
		case JurisdictionDifferent:
			if strings.HasPrefix(name, "IGST") {
				out = append(out, c)
			}
		default:
			if strings.HasPrefix(name, "CGST") || strings.HasPrefix(name, "SGST") {
				out = append(out, c)
			}
		}
	}
	return out
}

func addTo(m map[string]decimal.Decimal, name string, amount decimal.Decimal) {
	name = strings.TrimSpace(name)
	m[name] = m[name].Add(amount)
}

// rawComponent accepts both name/rate and tax_name/tax_rate spellings.
type rawComponent struct {
	Name    string           `json:"name"`
	TaxName string           `json:"tax_name"`
	Rate    *decimal.Decimal `json:"rate"`
	TaxRate *decimal.Decimal `json:"tax_rate"`
}

// ParseComponents decodes an item's stored tax configuration. It accepts a
// JSON array of components or an object mapping tax names to rates.
// Malformed input yields nil, never an error.
func ParseComponents(raw []byte) []Component {
	if len(raw) == 0 {
		return nil
	}

	var list []rawComponent
	if err := json.Unmarshal(raw, &list); err == nil {
		out := make([]Component, 0, len(list))
		for _, rc := range list {
			name := rc.Name
			if name == "" {
				name = rc.TaxName
			}
			rate := rc.Rate
			if rate == nil {
				rate = rc.TaxRate
			}
			if name == "" || rate == nil || rate.IsNegative() {
				continue
			}
			out = append(out, Component{Name: strings.TrimSpace(name), Rate: *rate})
		}
		return out
	}

	var byName map[string]decimal.Decimal
	if err := json.Unmarshal(raw, &byName); err == nil {
		out := make([]Component, 0, len(byName))
		for name, rate := range byName {
			if name == "" || rate.IsNegative() {
				continue
			}
			out = append(out, Component{Name: strings.TrimSpace(name), Rate: rate})
		}
		slices.SortFunc(out, func(a, b Component) int { return strings.Compare(a.Name, b.Name) })
		return out
	}

	return nil
}
