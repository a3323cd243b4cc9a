package promotion

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/salon-pos/internal/domain/line"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

var today = time.Date(2025, time.March, 15, 14, 30, 0, 0, time.UTC)

func testEngine() *Engine {
	return NewEngineAt(func() time.Time { return today })
}

func item(id, price, qty string) line.Item {
	return line.Item{
		ID:        id,
		Name:      id,
		Kind:      line.KindService,
		UnitPrice: d(price),
		ListPrice: d(price),
		Quantity:  d(qty),
	}
}

func discountPromo(id, itemID, buy, amount string, typ DiscountType) Promotion {
	return Promotion{
		ID:             id,
		Name:           id,
		Kind:           KindDiscount,
		ItemID:         itemID,
		BuyQuantity:    d(buy),
		Status:         StatusActive,
		StartDate:      today.AddDate(0, 0, -7),
		EndDate:        today.AddDate(0, 0, 7),
		DiscountAmount: d(amount),
		DiscountType:   typ,
	}
}

func freePromo(id, itemID, buy, rewardID, rewardPrice, get string) Promotion {
	return Promotion{
		ID:          id,
		Name:        id,
		Kind:        KindFreeItem,
		ItemID:      itemID,
		BuyQuantity: d(buy),
		Status:      StatusActive,
		StartDate:   today.AddDate(0, 0, -7),
		EndDate:     today.AddDate(0, 0, 7),
		Reward: &Reward{
			ID:    rewardID,
			Name:  rewardID,
			Kind:  line.KindProduct,
			Price: d(rewardPrice),
		},
		GetQuantity: d(get),
	}
}

func TestComputeLineDiscount_Threshold(t *testing.T) {
	promos := []Promotion{discountPromo("p10", "x", "3", "10", DiscountPercentage)}
	e := testEngine()

	tests := []struct {
		name string
		qty  string
		want decimal.Decimal
	}{
		{name: "below threshold", qty: "2", want: d("0")},
		{name: "at threshold", qty: "3", want: d("6")},
		{name: "above threshold applies once", qty: "5", want: d("10")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := e.ComputeLineDiscount(item("x", "20", tt.qty), promos)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestComputeLineDiscount(t *testing.T) {
	tests := []struct {
		name    string
		line    line.Item
		promos  []Promotion
		want    decimal.Decimal
		wantIDs []string
	}{
		{
			name:   "fixed applied once",
			line:   item("x", "50", "4"),
			promos: []Promotion{discountPromo("f5", "x", "2", "5", DiscountFixed)},
			want:   d("5"),
			wantIDs: []string{
				"f5",
			},
		},
		{
			name:   "other item does not match",
			line:   item("y", "50", "4"),
			promos: []Promotion{discountPromo("f5", "x", "1", "5", DiscountFixed)},
			want:   d("0"),
		},
		{
			name: "multiple matches summed in list order",
			line: item("x", "100", "1"),
			promos: []Promotion{
				discountPromo("pct", "x", "1", "10", DiscountPercentage),
				discountPromo("fix", "x", "1", "15", DiscountFixed),
			},
			want:    d("25"),
			wantIDs: []string{"pct", "fix"},
		},
		{
			name: "sum capped at gross",
			line: item("x", "20", "1"),
			promos: []Promotion{
				discountPromo("a", "x", "1", "15", DiscountFixed),
				discountPromo("b", "x", "1", "15", DiscountFixed),
			},
			want:    d("20"),
			wantIDs: []string{"a", "b"},
		},
		{
			name: "inactive status ignored",
			line: item("x", "100", "1"),
			promos: func() []Promotion {
				p := discountPromo("off", "x", "1", "10", DiscountFixed)
				p.Status = StatusInactive
				return []Promotion{p}
			}(),
			want: d("0"),
		},
		{
			name: "expired ignored",
			line: item("x", "100", "1"),
			promos: func() []Promotion {
				p := discountPromo("old", "x", "1", "10", DiscountFixed)
				p.EndDate = today.AddDate(0, 0, -1)
				return []Promotion{p}
			}(),
			want: d("0"),
		},
		{
			name: "not yet started ignored",
			line: item("x", "100", "1"),
			promos: func() []Promotion {
				p := discountPromo("soon", "x", "1", "10", DiscountFixed)
				p.StartDate = today.AddDate(0, 0, 1)
				return []Promotion{p}
			}(),
			want: d("0"),
		},
		{
			name: "end date is inclusive",
			line: item("x", "100", "1"),
			promos: func() []Promotion {
				p := discountPromo("last", "x", "1", "10", DiscountFixed)
				p.EndDate = time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)
				return []Promotion{p}
			}(),
			want:    d("10"),
			wantIDs: []string{"last"},
		},
		{
			name: "free line never discounted",
			line: func() line.Item {
				it := item("x", "0", "1")
				it.IsFree = true
				return it
			}(),
			promos: []Promotion{discountPromo("f5", "x", "1", "5", DiscountFixed)},
			want:   d("0"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ids := testEngine().ComputeLineDiscount(tt.line, tt.promos)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestComputeFreeItems(t *testing.T) {
	e := testEngine()
	promos := []Promotion{freePromo("bogo", "cut", "2", "shampoo", "12.50", "1")}

	assert.Empty(t, e.ComputeFreeItems(item("cut", "30", "1"), promos))

	got := e.ComputeFreeItems(item("cut", "30", "2"), promos)
	require.Len(t, got, 1)
	f := got[0]
	assert.Equal(t, "shampoo", f.ID)
	assert.True(t, f.IsFree)
	assert.True(t, f.UnitPrice.IsZero())
	assert.True(t, f.PromotionDiscount.IsZero())
	assert.True(t, d("12.50").Equal(f.ListPrice))
	assert.True(t, d("1").Equal(f.Quantity))
	assert.Equal(t, []string{"bogo"}, f.AppliedPromotions)
	assert.Equal(t, "cut", f.SourceItemID)

	// A larger quantity still grants one free line.
	assert.Len(t, e.ComputeFreeItems(item("cut", "30", "10"), promos), 1)
}

func TestApplyToOrder(t *testing.T) {
	e := testEngine()
	promos := []Promotion{
		discountPromo("pct", "cut", "1", "10", DiscountPercentage),
		freePromo("bogo", "cut", "2", "shampoo", "12.50", "1"),
	}
	lines := []line.Item{item("cut", "30", "2"), item("gel", "5", "1")}

	got := e.ApplyToOrder(lines, promos)
	require.Len(t, got, 3)

	assert.Equal(t, "cut", got[0].ID)
	assert.True(t, d("6").Equal(got[0].PromotionDiscount))
	assert.Equal(t, []string{"pct", "bogo"}, got[0].AppliedPromotions)
	assert.Equal(t, "gel", got[1].ID)
	assert.True(t, got[1].PromotionDiscount.IsZero())
	assert.True(t, got[2].IsFree)

	// Input is not mutated.
	assert.True(t, lines[0].PromotionDiscount.IsZero())
}

func TestApplyToOrder_Idempotent(t *testing.T) {
	e := testEngine()
	promos := []Promotion{
		freePromo("bogo", "cut", "2", "shampoo", "12.50", "1"),
		freePromo("combo", "color", "1", "mask", "8", "2"),
		discountPromo("fix", "color", "1", "5", DiscountFixed),
	}
	lines := []line.Item{item("cut", "30", "3"), item("color", "80", "1")}

	once := e.ApplyToOrder(lines, promos)
	twice := e.ApplyToOrder(once, promos)

	assert.Equal(t, once, twice)
	assert.Len(t, twice, 4)
}

func TestApplyToOrder_RemovesUnsatisfiedFreeLines(t *testing.T) {
	e := testEngine()
	promos := []Promotion{freePromo("bogo", "cut", "2", "shampoo", "12.50", "1")}

	withFree := e.ApplyToOrder([]line.Item{item("cut", "30", "2")}, promos)
	require.Len(t, withFree, 2)

	withFree[0].Quantity = d("1")
	got := e.ApplyToOrder(withFree, promos)
	require.Len(t, got, 1)
	assert.False(t, got[0].IsFree)
}

func TestApplyToOrder_ExpiredPromotionDropsFreeLine(t *testing.T) {
	promos := []Promotion{freePromo("bogo", "cut", "1", "shampoo", "12.50", "1")}
	lines := testEngine().ApplyToOrder([]line.Item{item("cut", "30", "1")}, promos)
	require.Len(t, lines, 2)

	later := NewEngineAt(func() time.Time { return today.AddDate(0, 1, 0) })
	got := later.ApplyToOrder(lines, promos)
	assert.Len(t, got, 1)
}

func TestRecomputeLine(t *testing.T) {
	e := testEngine()
	promos := []Promotion{
		discountPromo("fix", "cut", "1", "5", DiscountFixed),
		discountPromo("gel5", "gel", "1", "1", DiscountFixed),
		freePromo("bogo", "cut", "2", "shampoo", "12.50", "1"),
	}
	lines := []line.Item{item("cut", "30", "2"), item("gel", "5", "1")}

	got := e.RecomputeLine(lines, 0, promos)
	require.Len(t, got, 3)
	assert.True(t, d("5").Equal(got[0].PromotionDiscount))
	// Only the targeted line is recomputed.
	assert.True(t, got[1].PromotionDiscount.IsZero())
	// Free lines are rebuilt for the whole order.
	assert.True(t, got[2].IsFree)
	assert.Equal(t, "shampoo", got[2].ID)
}

func TestRecomputeLine_OutOfRange(t *testing.T) {
	e := testEngine()
	promos := []Promotion{freePromo("bogo", "cut", "1", "shampoo", "12.50", "1")}

	got := e.RecomputeLine([]line.Item{item("cut", "30", "1")}, 5, promos)
	require.Len(t, got, 2)
	assert.True(t, got[1].IsFree)
}

func TestActiveAt_CalendarBounds(t *testing.T) {
	// DATE columns come back as UTC midnight.
	day := time.Date(2025, time.June, 30, 0, 0, 0, 0, time.UTC)
	p := discountPromo("one-day", "x", "1", "10", DiscountPercentage)
	p.StartDate, p.EndDate = day, day

	newYork := time.FixedZone("EDT", -4*60*60)
	kolkata := time.FixedZone("IST", 5*60*60+30*60)

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{name: "morning behind utc", now: time.Date(2025, time.June, 30, 10, 0, 0, 0, newYork), want: true},
		{name: "late evening behind utc", now: time.Date(2025, time.June, 30, 23, 30, 0, 0, newYork), want: true},
		{name: "day before behind utc", now: time.Date(2025, time.June, 29, 23, 0, 0, 0, newYork), want: false},
		{name: "day after behind utc", now: time.Date(2025, time.July, 1, 0, 30, 0, 0, newYork), want: false},
		{name: "early morning ahead of utc", now: time.Date(2025, time.June, 30, 2, 0, 0, 0, kolkata), want: true},
		{name: "day after ahead of utc", now: time.Date(2025, time.July, 1, 1, 0, 0, 0, kolkata), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.ActiveAt(tt.now))

			e := NewEngineAt(func() time.Time { return tt.now })
			got, _ := e.ComputeLineDiscount(item("x", "100", "1"), []Promotion{p})
			if tt.want {
				assert.True(t, d("10").Equal(got), "got %s", got)
			} else {
				assert.True(t, got.IsZero(), "got %s", got)
			}
		})
	}
}
