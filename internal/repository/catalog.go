package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/salon-pos/internal/domain/catalog"
	"github.com/xenking/salon-pos/internal/domain/line"
	"github.com/xenking/salon-pos/internal/domain/tax"
)

const (
	getCatalogItemSQL = `SELECT id, name, kind, price, tax_config
		FROM catalog_items WHERE id = $1 AND active = TRUE`

	upsertCatalogItemSQL = `INSERT INTO catalog_items (id, name, kind, price, tax_config, active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, kind = EXCLUDED.kind, price = EXCLUDED.price,
			tax_config = EXCLUDED.tax_config, active = TRUE, updated_at = now()`
)

var _ catalog.Repository = (*CatalogRepository)(nil)

// CatalogRepository implements catalog.Repository backed by PostgreSQL.
type CatalogRepository struct {
	db DB
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(db DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// GetItem returns an active catalog item with its tax components.
func (r *CatalogRepository) GetItem(ctx context.Context, id string) (*catalog.Item, error) {
	rows, err := r.db.Query(ctx, getCatalogItemSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get catalog item %q", id)
	}

	it, err := pgx.CollectExactlyOneRow(rows, scanCatalogItem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get catalog item %q", id)
	}
	return &it, nil
}

// UpsertItem inserts or replaces a catalog item. taxConfig is stored as-is.
func (r *CatalogRepository) UpsertItem(ctx context.Context, it catalog.Item, taxConfig []byte) error {
	if len(taxConfig) == 0 {
		taxConfig = []byte("[]")
	}
	if _, err := r.db.Exec(ctx, upsertCatalogItemSQL, it.ID, it.Name, string(it.Kind), it.Price, taxConfig); err != nil {
		return errors.Wrapf(err, "upsert catalog item %q", it.ID)
	}
	return nil
}

func scanCatalogItem(row pgx.CollectableRow) (catalog.Item, error) {
	var (
		it        catalog.Item
		kind      string
		taxConfig []byte
	)
	err := row.Scan(&it.ID, &it.Name, &kind, &it.Price, &taxConfig)
	it.Kind = line.Kind(kind)
	it.Taxes = tax.ParseComponents(taxConfig)
	return it, err
}
