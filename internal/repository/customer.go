package repository

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/salon-pos/internal/domain/customer"
	"github.com/xenking/salon-pos/internal/domain/tax"
)

const (
	getCustomerTaxContextSQL = `SELECT c.id, c.name, c.state_code, COALESCE(b.state_code, '')
		FROM customers c
		LEFT JOIN branches b ON b.id = $1
		WHERE c.id = $2`

	upsertCustomerSQL = `INSERT INTO customers (id, name, phone, state_code)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, phone = EXCLUDED.phone, state_code = EXCLUDED.state_code`

	upsertBranchSQL = `INSERT INTO branches (id, name, state_code)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, state_code = EXCLUDED.state_code`
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
type CustomerRepository struct {
	db DB
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(db DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

// GetTaxContext compares the customer's state with the branch state. A
// missing state on either side counts as the same jurisdiction.
func (r *CustomerRepository) GetTaxContext(ctx context.Context, branchID, customerID string) (*customer.TaxContext, error) {
	rows, err := r.db.Query(ctx, getCustomerTaxContextSQL, branchID, customerID)
	if err != nil {
		return nil, errors.Wrapf(err, "get customer %q", customerID)
	}

	tc, err := pgx.CollectExactlyOneRow(rows, scanTaxContext)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get customer %q", customerID)
	}
	return &tc, nil
}

// UpsertCustomer inserts or replaces a customer record.
func (r *CustomerRepository) UpsertCustomer(ctx context.Context, id, name, phone, stateCode string) error {
	if _, err := r.db.Exec(ctx, upsertCustomerSQL, id, name, phone, stateCode); err != nil {
		return errors.Wrapf(err, "upsert customer %q", id)
	}
	return nil
}

// UpsertBranch inserts or replaces a branch record.
func (r *CustomerRepository) UpsertBranch(ctx context.Context, id, name, stateCode string) error {
	if _, err := r.db.Exec(ctx, upsertBranchSQL, id, name, stateCode); err != nil {
		return errors.Wrapf(err, "upsert branch %q", id)
	}
	return nil
}

func scanTaxContext(row pgx.CollectableRow) (customer.TaxContext, error) {
	var (
		tc            customer.TaxContext
		customerState string
		branchState   string
	)
	err := row.Scan(&tc.CustomerID, &tc.Name, &customerState, &branchState)
	tc.Jurisdiction = jurisdiction(customerState, branchState)
	return tc, err
}

func jurisdiction(customerState, branchState string) tax.Jurisdiction {
	c, b := strings.TrimSpace(customerState), strings.TrimSpace(branchState)
	if c == "" || b == "" || strings.EqualFold(c, b) {
		return tax.JurisdictionSame
	}
	return tax.JurisdictionDifferent
}
