// Package settings exposes company level configuration used for pricing.
package settings

import (
	"context"

	"github.com/xenking/salon-pos/internal/domain/tax"
)

// Company holds the company tax settings.
type Company struct {
	CollectTax bool
	TaxMode    tax.Mode
	TaxType    tax.Type
}

// TaxConfig converts the settings into a tax configuration. Unknown modes
// fall back to regular and unknown types to exclusive.
func (c Company) TaxConfig() tax.Config {
	cfg := tax.Config{Collect: c.CollectTax, Mode: tax.ModeRegular, Type: tax.TypeExclusive}
	if c.TaxMode == tax.ModeGST {
		cfg.Mode = tax.ModeGST
	}
	if c.TaxType == tax.TypeInclusive {
		cfg.Type = tax.TypeInclusive
	}
	return cfg
}

// Repository reads company settings.
type Repository interface {
	Company(ctx context.Context) (*Company, error)
}
