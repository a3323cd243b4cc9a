// Command seed-db applies migrations and loads sample branches, settings,
// catalog items, customers and promotions.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/salon-pos/internal/domain/catalog"
	"github.com/xenking/salon-pos/internal/domain/line"
	"github.com/xenking/salon-pos/internal/domain/promotion"
	"github.com/xenking/salon-pos/internal/domain/settings"
	"github.com/xenking/salon-pos/internal/domain/tax"
	"github.com/xenking/salon-pos/internal/repository"
)

const dateLayout = "2006-01-02"

type seedFile struct {
	Company struct {
		CollectTax bool   `json:"collect_tax"`
		TaxMode    string `json:"tax_mode"`
		TaxType    string `json:"tax_type"`
	} `json:"company"`
	Branches []struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		StateCode string `json:"state_code"`
	} `json:"branches"`
	Items []struct {
		ID    string          `json:"id"`
		Name  string          `json:"name"`
		Kind  string          `json:"kind"`
		Price decimal.Decimal `json:"price"`
		Taxes json.RawMessage `json:"taxes"`
	} `json:"items"`
	Customers []struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Phone     string `json:"phone"`
		StateCode string `json:"state_code"`
	} `json:"customers"`
	Promotions []promotionJSON `json:"promotions"`
}

type promotionJSON struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	BranchID       string          `json:"branch_id"`
	Kind           string          `json:"kind"`
	ItemID         string          `json:"item_id"`
	BuyQuantity    decimal.Decimal `json:"buy_quantity"`
	StartDate      string          `json:"start_date"`
	EndDate        string          `json:"end_date"`
	Status         string          `json:"status"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	DiscountType   string          `json:"discount_type"`
	RewardItemID   string          `json:"reward_item_id"`
	GetQuantity    decimal.Decimal `json:"get_quantity"`
	Priority       int             `json:"priority"`
}

func (p promotionJSON) toDomain() (promotion.Promotion, error) {
	out := promotion.Promotion{
		ID:             p.ID,
		Name:           p.Name,
		BranchID:       p.BranchID,
		Kind:           promotion.Kind(p.Kind),
		ItemID:         p.ItemID,
		BuyQuantity:    p.BuyQuantity,
		Status:         promotion.Status(p.Status),
		DiscountAmount: p.DiscountAmount,
		DiscountType:   promotion.DiscountType(p.DiscountType),
		GetQuantity:    p.GetQuantity,
	}
	var err error
	if p.StartDate != "" {
		if out.StartDate, err = time.Parse(dateLayout, p.StartDate); err != nil {
			return out, errors.Wrapf(err, "parse start date of %s", p.ID)
		}
	}
	if p.EndDate != "" {
		if out.EndDate, err = time.Parse(dateLayout, p.EndDate); err != nil {
			return out, errors.Wrapf(err, "parse end date of %s", p.ID)
		}
	}
	if p.RewardItemID != "" {
		out.Reward = &promotion.Reward{ID: p.RewardItemID}
	}
	return out, nil
}

func main() {
	var (
		databaseURL string
		seedPath    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "seed-file", "db/seed/pos.json", "path to seed JSON file")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, seedPath); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, seedPath string) error {
	data, err := os.ReadFile(seedPath)
	if err != nil {
		return errors.Wrap(err, "read seed file")
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return errors.Wrap(err, "parse seed file")
	}

	lg.Info("Connecting to database")
	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	var (
		settingsRepo  = repository.NewSettingsRepository(pool)
		catalogRepo   = repository.NewCatalogRepository(pool)
		customerRepo  = repository.NewCustomerRepository(pool)
		promotionRepo = repository.NewPromotionRepository(pool)
	)

	if err := settingsRepo.SaveCompany(ctx, settings.Company{
		CollectTax: seed.Company.CollectTax,
		TaxMode:    tax.Mode(seed.Company.TaxMode),
		TaxType:    tax.Type(seed.Company.TaxType),
	}); err != nil {
		return err
	}

	for _, b := range seed.Branches {
		if err := customerRepo.UpsertBranch(ctx, b.ID, b.Name, b.StateCode); err != nil {
			return err
		}
	}
	lg.Info("Branches seeded", zap.Int("count", len(seed.Branches)))

	// Items go before promotions: reward items are joined on read.
	for _, it := range seed.Items {
		item := catalog.Item{ID: it.ID, Name: it.Name, Kind: line.Kind(it.Kind), Price: it.Price}
		if err := catalogRepo.UpsertItem(ctx, item, it.Taxes); err != nil {
			return err
		}
	}
	lg.Info("Catalog seeded", zap.Int("count", len(seed.Items)))

	for _, c := range seed.Customers {
		if err := customerRepo.UpsertCustomer(ctx, c.ID, c.Name, c.Phone, c.StateCode); err != nil {
			return err
		}
	}
	lg.Info("Customers seeded", zap.Int("count", len(seed.Customers)))

	for _, pj := range seed.Promotions {
		p, err := pj.toDomain()
		if err != nil {
			return err
		}
		if err := promotionRepo.UpsertPromotion(ctx, p, pj.Priority); err != nil {
			return err
		}
	}
	lg.Info("Promotions seeded", zap.Int("count", len(seed.Promotions)))

	return nil
}
