package repository

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/salon-pos/internal/domain/order"
)

const (
	insertSaleSQL = `INSERT INTO sales (id, branch_id, terminal_id, status, order_type, customer_id, employee_id,
		order_date, subtotal, promotion_discount, manual_discount, tax_total, tax_included,
		service_charge, grand_total, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	insertSaleDetailSQL = `INSERT INTO sale_details (sale_id, line_no, item_id, name, kind, quantity,
		unit_price, list_price, is_free, promotion_discount, employee_id, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
)

var _ order.Bridge = (*SaleRepository)(nil)

// SaleRepository stores submitted orders as a sale header plus one detail row
// per line, in a single transaction.
type SaleRepository struct {
	db    DB
	newID func() uuid.UUID
}

// NewSaleRepository returns a SaleRepository that uses the given pool.
func NewSaleRepository(db DB) *SaleRepository {
	return &SaleRepository{db: db, newID: uuid.New}
}

// SubmitOrder implements order.Bridge.
func (r *SaleRepository) SubmitOrder(ctx context.Context, p order.Payload, status order.Status) (*order.Receipt, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, errors.Wrap(err, "marshal sale payload")
	}

	id := r.newID()
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "begin sale transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	s := p.Summary
	if _, err := tx.Exec(ctx, insertSaleSQL,
		id, p.BranchID, p.TerminalID, string(status), p.Type, customerID(p), employeeID(p),
		p.Date, s.Subtotal, s.PromotionDiscountTotal, s.ManualDiscountValue, s.TaxTotal, s.TaxIncluded,
		s.ServiceCharge, s.GrandTotal, payload,
	); err != nil {
		return nil, errors.Wrap(err, "insert sale")
	}

	if err := insertDetails(ctx, tx, id, p); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit sale")
	}

	return &order.Receipt{Success: true, Message: "Sale saved", ID: id.String()}, nil
}

func insertDetails(ctx context.Context, tx pgx.Tx, id uuid.UUID, p order.Payload) error {
	for i, it := range p.Lines {
		var employee *string
		if it.Employee != nil {
			employee = &it.Employee.ID
		}
		if _, err := tx.Exec(ctx, insertSaleDetailSQL,
			id, i+1, it.ID, it.Name, string(it.Kind), it.Quantity,
			it.UnitPrice, it.ListPrice, it.IsFree, it.PromotionDiscount, employee, it.Note,
		); err != nil {
			return errors.Wrapf(err, "insert sale line %d", i+1)
		}
	}
	return nil
}

func customerID(p order.Payload) *string {
	if p.Customer == nil || p.Customer.CustomerID == "" {
		return nil
	}
	return &p.Customer.CustomerID
}

func employeeID(p order.Payload) *string {
	if p.Employee == nil {
		return nil
	}
	return &p.Employee.ID
}
