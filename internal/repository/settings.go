package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/salon-pos/internal/domain/settings"
	"github.com/xenking/salon-pos/internal/domain/tax"
)

const (
	getCompanySettingsSQL = `SELECT collect_tax, tax_mode, tax_type FROM company_settings WHERE id = 1`

	saveCompanySettingsSQL = `INSERT INTO company_settings (id, collect_tax, tax_mode, tax_type)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			collect_tax = EXCLUDED.collect_tax, tax_mode = EXCLUDED.tax_mode,
			tax_type = EXCLUDED.tax_type, updated_at = now()`
)

var _ settings.Repository = (*SettingsRepository)(nil)

// SettingsRepository implements settings.Repository backed by PostgreSQL.
type SettingsRepository struct {
	db DB
}

// NewSettingsRepository returns a SettingsRepository that uses the given pool.
func NewSettingsRepository(db DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Company returns the company tax settings. A missing row means tax
// collection is disabled.
func (r *SettingsRepository) Company(ctx context.Context) (*settings.Company, error) {
	var (
		c             settings.Company
		mode, taxType string
	)
	err := r.db.QueryRow(ctx, getCompanySettingsSQL).Scan(&c.CollectTax, &mode, &taxType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &settings.Company{TaxMode: tax.ModeRegular, TaxType: tax.TypeExclusive}, nil
		}
		return nil, errors.Wrap(err, "get company settings")
	}
	c.TaxMode = tax.Mode(mode)
	c.TaxType = tax.Type(taxType)
	return &c, nil
}

// SaveCompany stores the company tax settings.
func (r *SettingsRepository) SaveCompany(ctx context.Context, c settings.Company) error {
	if _, err := r.db.Exec(ctx, saveCompanySettingsSQL, c.CollectTax, string(c.TaxMode), string(c.TaxType)); err != nil {
		return errors.Wrap(err, "save company settings")
	}
	return nil
}
