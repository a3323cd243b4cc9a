package repository

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/salon-pos/internal/domain/line"
	"github.com/xenking/salon-pos/internal/domain/promotion"
)

// Date and status filtering is left to promotion.Engine so cached lists stay
// valid across midnight.
const listPromotionsByBranchSQL = `SELECT p.id, p.name, p.branch_id, p.kind, p.item_id, p.buy_quantity,
		p.start_date, p.end_date, p.status, p.discount_amount, p.discount_type,
		p.reward_item_id, ri.name, ri.kind, ri.price, p.get_quantity
	FROM promotions p
	LEFT JOIN catalog_items ri ON ri.id = p.reward_item_id
	WHERE p.branch_id = $1
	ORDER BY p.priority, p.id`

const upsertPromotionSQL = `INSERT INTO promotions (id, name, branch_id, kind, item_id, buy_quantity,
		start_date, end_date, status, discount_amount, discount_type, reward_item_id, get_quantity, priority)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name, branch_id = EXCLUDED.branch_id, kind = EXCLUDED.kind,
		item_id = EXCLUDED.item_id, buy_quantity = EXCLUDED.buy_quantity,
		start_date = EXCLUDED.start_date, end_date = EXCLUDED.end_date, status = EXCLUDED.status,
		discount_amount = EXCLUDED.discount_amount, discount_type = EXCLUDED.discount_type,
		reward_item_id = EXCLUDED.reward_item_id, get_quantity = EXCLUDED.get_quantity,
		priority = EXCLUDED.priority`

var _ promotion.Repository = (*PromotionRepository)(nil)

// PromotionRepository implements promotion.Repository backed by PostgreSQL.
type PromotionRepository struct {
	db DB
}

// NewPromotionRepository returns a PromotionRepository that uses the given pool.
func NewPromotionRepository(db DB) *PromotionRepository {
	return &PromotionRepository{db: db}
}

// ListByBranch returns every promotion configured for the branch in
// evaluation order.
func (r *PromotionRepository) ListByBranch(ctx context.Context, branchID string) ([]promotion.Promotion, error) {
	rows, err := r.db.Query(ctx, listPromotionsByBranchSQL, branchID)
	if err != nil {
		return nil, errors.Wrapf(err, "list promotions for branch %q", branchID)
	}
	promos, err := pgx.CollectRows(rows, scanPromotion)
	if err != nil {
		return nil, errors.Wrapf(err, "list promotions for branch %q", branchID)
	}
	return promos, nil
}

// UpsertPromotion inserts or replaces a promotion. priority orders
// evaluation within the branch.
func (r *PromotionRepository) UpsertPromotion(ctx context.Context, p promotion.Promotion, priority int) error {
	var (
		start, end   *time.Time
		amount       decimal.NullDecimal
		discountType *string
		rewardID     *string
		getQuantity  decimal.NullDecimal
	)
	if !p.StartDate.IsZero() {
		start = &p.StartDate
	}
	if !p.EndDate.IsZero() {
		end = &p.EndDate
	}
	switch p.Kind {
	case promotion.KindDiscount:
		amount = decimal.NewNullDecimal(p.DiscountAmount)
		dt := string(p.DiscountType)
		discountType = &dt
	case promotion.KindFreeItem:
		if p.Reward != nil {
			rewardID = &p.Reward.ID
		}
		getQuantity = decimal.NewNullDecimal(p.GetQuantity)
	}

	if _, err := r.db.Exec(ctx, upsertPromotionSQL,
		p.ID, p.Name, p.BranchID, string(p.Kind), p.ItemID, p.BuyQuantity,
		start, end, string(p.Status), amount, discountType, rewardID, getQuantity, priority,
	); err != nil {
		return errors.Wrapf(err, "upsert promotion %q", p.ID)
	}
	return nil
}

func scanPromotion(row pgx.CollectableRow) (promotion.Promotion, error) {
	var (
		p              promotion.Promotion
		kind, status   string
		startDate      *time.Time
		endDate        *time.Time
		discountAmount decimal.NullDecimal
		discountType   *string
		rewardID       *string
		rewardName     *string
		rewardKind     *string
		rewardPrice    decimal.NullDecimal
		getQuantity    decimal.NullDecimal
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.BranchID, &kind, &p.ItemID, &p.BuyQuantity,
		&startDate, &endDate, &status, &discountAmount, &discountType,
		&rewardID, &rewardName, &rewardKind, &rewardPrice, &getQuantity,
	)
	if err != nil {
		return p, err
	}

	p.Kind = promotion.Kind(kind)
	p.Status = promotion.Status(status)
	if startDate != nil {
		p.StartDate = *startDate
	}
	if endDate != nil {
		p.EndDate = *endDate
	}

	switch p.Kind {
	case promotion.KindDiscount:
		p.DiscountAmount = discountAmount.Decimal
		if discountType != nil {
			p.DiscountType = promotion.DiscountType(*discountType)
		}
	case promotion.KindFreeItem:
		p.GetQuantity = getQuantity.Decimal
		if rewardID != nil {
			rw := &promotion.Reward{ID: *rewardID, Price: rewardPrice.Decimal}
			if rewardName != nil {
				rw.Name = *rewardName
			}
			if rewardKind != nil {
				rw.Kind = line.Kind(*rewardKind)
			}
			p.Reward = rw
		}
	}
	return p, nil
}
