package order

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/salon-pos/internal/domain/catalog"
	"github.com/xenking/salon-pos/internal/domain/customer"
	"github.com/xenking/salon-pos/internal/domain/line"
	"github.com/xenking/salon-pos/internal/domain/pricing"
	"github.com/xenking/salon-pos/internal/domain/promotion"
	"github.com/xenking/salon-pos/internal/domain/tax"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

var testNow = time.Date(2025, time.June, 2, 10, 0, 0, 0, time.UTC)

func newTestOrder(agg *pricing.Aggregator) *Order {
	engine := promotion.NewEngineAt(func() time.Time { return testNow })
	return newOrder(engine, agg, func() time.Time { return testNow }, State{})
}

var (
	haircut = catalog.Item{ID: "haircut", Name: "Haircut", Kind: line.KindService, Price: d("30")}
	shampoo = catalog.Item{ID: "shampoo", Name: "Shampoo", Kind: line.KindProduct, Price: d("12.50")}
	facial  = catalog.Item{ID: "facial", Name: "Facial", Kind: line.KindService, Price: d("45")}
)

// buyTwoHaircutsGetShampoo grants one free shampoo for two haircuts.
func buyTwoHaircutsGetShampoo() promotion.Promotion {
	return promotion.Promotion{
		ID:          "bogo",
		Kind:        promotion.KindFreeItem,
		ItemID:      "haircut",
		BuyQuantity: d("2"),
		Status:      promotion.StatusActive,
		StartDate:   testNow.AddDate(0, -1, 0),
		EndDate:     testNow.AddDate(0, 1, 0),
		Reward: &promotion.Reward{
			ID:    "shampoo",
			Name:  "Shampoo",
			Kind:  line.KindProduct,
			Price: d("12.50"),
		},
		GetQuantity: d("1"),
	}
}

func tenPercentOffFacial() promotion.Promotion {
	return promotion.Promotion{
		ID:             "facial10",
		Kind:           promotion.KindDiscount,
		ItemID:         "facial",
		BuyQuantity:    d("1"),
		Status:         promotion.StatusActive,
		DiscountAmount: d("10"),
		DiscountType:   promotion.DiscountPercentage,
	}
}

// orderWithFreeLine returns an order of two haircuts plus a free shampoo.
func orderWithFreeLine(t *testing.T) *Order {
	t.Helper()
	o := newTestOrder(nil)
	require.NoError(t, o.SetPromotions([]promotion.Promotion{buyTwoHaircutsGetShampoo()}))
	require.NoError(t, o.AddItem(haircut))
	require.NoError(t, o.AddItem(haircut))

	lines := o.Lines()
	require.Len(t, lines, 2)
	require.True(t, lines[1].IsFree)
	return o
}

func TestAddItem(t *testing.T) {
	o := newTestOrder(nil)

	require.NoError(t, o.AddItem(haircut))
	require.NoError(t, o.AddItem(shampoo))
	require.NoError(t, o.AddItem(haircut))

	lines := o.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "haircut", lines[0].ID)
	assert.True(t, d("2").Equal(lines[0].Quantity))
	assert.Equal(t, "shampoo", lines[1].ID)
	assert.True(t, d("1").Equal(lines[1].Quantity))
	assert.True(t, lines[1].PromotionDiscount.IsZero())
}

func TestAddItem_Invalid(t *testing.T) {
	o := newTestOrder(nil)

	var verr *ValidationError
	err := o.AddItem(catalog.Item{ID: "", Kind: line.KindProduct})
	require.ErrorAs(t, err, &verr)
	require.ErrorIs(t, err, ErrInvalidItem)

	err = o.AddItem(catalog.Item{ID: "x", Kind: line.KindProduct, Price: d("-1")})
	require.ErrorIs(t, err, ErrInvalidPrice)

	assert.Empty(t, o.Lines())
	assert.False(t, o.CanUndo())
}

func TestAddItem_MaterializesFreeItems(t *testing.T) {
	o := orderWithFreeLine(t)
	lines := o.Lines()

	free := lines[1]
	assert.Equal(t, "shampoo", free.ID)
	assert.True(t, free.UnitPrice.IsZero())
	assert.True(t, d("12.50").Equal(free.ListPrice))
	assert.Equal(t, "haircut", free.SourceItemID)

	// A paid shampoo is a separate line from the free one.
	require.NoError(t, o.AddItem(shampoo))
	lines = o.Lines()
	require.Len(t, lines, 3)
	assert.False(t, lines[1].IsFree)
	assert.Equal(t, "shampoo", lines[1].ID)
	assert.True(t, lines[2].IsFree)

	// Adding it again increments the paid line, never the free one.
	require.NoError(t, o.AddItem(shampoo))
	lines = o.Lines()
	require.Len(t, lines, 3)
	assert.True(t, d("2").Equal(lines[1].Quantity))
	assert.True(t, d("1").Equal(lines[2].Quantity))
}

func TestFreeLinesAreImmutable(t *testing.T) {
	o := orderWithFreeLine(t)
	before := o.State()
	historyLen := o.history.len()

	require.NoError(t, o.UpdateQuantity(1, d("5")))
	require.NoError(t, o.Increment(1))
	require.NoError(t, o.Decrement(1))
	require.NoError(t, o.RemoveItem(1))
	require.NoError(t, o.SetLineNote(1, "gift"))
	require.NoError(t, o.AssignEmployee(1, line.Employee{ID: "e1"}, nil))

	assert.Equal(t, before, o.State())
	assert.Equal(t, historyLen, o.history.len())
}

func TestUpdateQuantity(t *testing.T) {
	o := newTestOrder(nil)
	require.NoError(t, o.AddItem(shampoo))

	require.NoError(t, o.UpdateQuantity(0, d("2.5")))
	assert.True(t, d("2.5").Equal(o.Lines()[0].Quantity))

	for _, q := range []string{"0", "-1"} {
		err := o.UpdateQuantity(0, d(q))
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		require.ErrorIs(t, err, ErrInvalidQuantity)
	}
	assert.True(t, d("2.5").Equal(o.Lines()[0].Quantity))

	require.ErrorIs(t, o.UpdateQuantity(3, d("1")), ErrLineNotFound)
	require.ErrorIs(t, o.UpdateQuantity(-1, d("1")), ErrLineNotFound)
}

func TestUpdateQuantity_LineScopedRecompute(t *testing.T) {
	o := newTestOrder(nil)
	require.NoError(t, o.SetPromotions([]promotion.Promotion{buyTwoHaircutsGetShampoo(), tenPercentOffFacial()}))
	require.NoError(t, o.AddItem(haircut))
	require.NoError(t, o.AddItem(facial))

	require.Len(t, o.Lines(), 2)
	assert.True(t, d("4.5").Equal(o.Lines()[1].PromotionDiscount))

	require.NoError(t, o.UpdateQuantity(0, d("2")))
	lines := o.Lines()
	require.Len(t, lines, 3)
	assert.True(t, lines[2].IsFree)

	require.NoError(t, o.UpdateQuantity(1, d("2")))
	assert.True(t, d("9").Equal(o.Lines()[1].PromotionDiscount))

	require.NoError(t, o.UpdateQuantity(0, d("1")))
	assert.Len(t, o.Lines(), 2)
}

func TestIncrementDecrement(t *testing.T) {
	o := newTestOrder(nil)
	require.NoError(t, o.AddItem(shampoo))

	require.NoError(t, o.Increment(0))
	require.NoError(t, o.Increment(0))
	assert.True(t, d("3").Equal(o.Lines()[0].Quantity))

	require.NoError(t, o.Decrement(0))
	require.NoError(t, o.Decrement(0))
	assert.True(t, d("1").Equal(o.Lines()[0].Quantity))

	historyLen := o.history.len()
	require.NoError(t, o.Decrement(0))
	assert.True(t, d("1").Equal(o.Lines()[0].Quantity))
	assert.Equal(t, historyLen, o.history.len(), "no-op must not be recorded")

	require.ErrorIs(t, o.Increment(9), ErrLineNotFound)
}

func TestRemoveItem_DropsEarnedFreeLines(t *testing.T) {
	o := orderWithFreeLine(t)
	require.NoError(t, o.AddItem(facial))
	o.Select(2)
	require.Equal(t, 2, o.Selected())

	require.NoError(t, o.RemoveItem(0))

	lines := o.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "facial", lines[0].ID)
	assert.Equal(t, -1, o.Selected())
}

func TestAssignEmployee(t *testing.T) {
	o := newTestOrder(nil)
	require.NoError(t, o.AddItem(haircut))
	require.NoError(t, o.AddItem(shampoo))
	stylist := line.Employee{ID: "e1", Name: "Sam"}

	override := d("35")
	require.NoError(t, o.AssignEmployee(0, stylist, &override))
	l := o.Lines()[0]
	require.NotNil(t, l.Employee)
	assert.Equal(t, "Sam", l.Employee.Name)
	assert.True(t, d("35").Equal(l.UnitPrice))
	assert.True(t, d("30").Equal(l.ListPrice))

	negative := d("-10")
	require.NoError(t, o.AssignEmployee(0, stylist, &negative))
	assert.True(t, d("35").Equal(o.Lines()[0].UnitPrice))

	err := o.AssignEmployee(1, stylist, nil)
	require.ErrorIs(t, err, ErrNotService)
	assert.Nil(t, o.Lines()[1].Employee)

	require.NoError(t, o.AssignEmployeeToItem("haircut", line.Employee{ID: "e2", Name: "Kim"}, nil))
	assert.Equal(t, "e2", o.Lines()[0].Employee.ID)
	require.ErrorIs(t, o.AssignEmployeeToItem("missing", stylist, nil), ErrLineNotFound)
}

func TestAssignEmployee_PriceOverrideRecomputesDiscount(t *testing.T) {
	o := newTestOrder(nil)
	require.NoError(t, o.SetPromotions([]promotion.Promotion{tenPercentOffFacial()}))
	require.NoError(t, o.AddItem(facial))

	price := d("60")
	require.NoError(t, o.AssignEmployee(0, line.Employee{ID: "e1"}, &price))
	assert.True(t, d("6").Equal(o.Lines()[0].PromotionDiscount))
}

func TestManualDiscountAndServiceCharge(t *testing.T) {
	o := newTestOrder(nil)
	require.NoError(t, o.AddItem(facial))

	require.NoError(t, o.SetManualDiscount(d("-5"), pricing.DiscountFixed))
	assert.True(t, o.State().ManualDiscount.Amount.IsZero())

	require.NoError(t, o.SetManualDiscount(d("10"), pricing.DiscountPercentage))
	require.NoError(t, o.SetServiceCharge(d("-2")))
	assert.True(t, o.State().ServiceCharge.IsZero())
	require.NoError(t, o.SetServiceCharge(d("3")))

	sum := o.Summary()
	assert.True(t, d("4.5").Equal(sum.ManualDiscountValue))
	assert.True(t, d("43.5").Equal(sum.GrandTotal))

	err := o.SetManualDiscount(d("1"), "half")
	require.ErrorIs(t, err, ErrInvalidDiscountType)

	require.NoError(t, o.ClearManualDiscount())
	assert.True(t, d("48").Equal(o.Summary().GrandTotal))
}

func TestSummary_UsesCustomerJurisdiction(t *testing.T) {
	agg := pricing.NewAggregator(tax.NewResolver(tax.Config{Collect: true, Mode: tax.ModeGST, Type: tax.TypeExclusive}, nil))
	o := newTestOrder(agg)
	item := facial
	item.Taxes = []tax.Component{
		{Name: "CGST", Rate: d("9")},
		{Name: "SGST", Rate: d("9")},
		{Name: "IGST", Rate: d("18")},
	}
	require.NoError(t, o.AddItem(item))

	sum := o.Summary()
	assert.Contains(t, sum.TaxBreakdown, "CGST")

	require.NoError(t, o.SetCustomer(&customer.TaxContext{CustomerID: "c1", Jurisdiction: tax.JurisdictionDifferent}))
	sum = o.Summary()
	assert.Equal(t, []string{"IGST"}, keys(sum.TaxBreakdown))
	assert.True(t, d("8.1").Equal(sum.TaxTotal))

	require.NoError(t, o.SetCustomer(nil))
	assert.Contains(t, o.Summary().TaxBreakdown, "SGST")
}

func TestSummary_Warnings(t *testing.T) {
	o := newTestOrder(nil)
	o.SetWarning("tax", "tax settings unavailable")
	o.SetWarning("promotions", "promotions unavailable")

	assert.Equal(t, []string{"promotions unavailable", "tax settings unavailable"}, o.Summary().Warnings)

	o.ClearWarning("promotions")
	assert.Equal(t, []string{"tax settings unavailable"}, o.Summary().Warnings)
}

func TestSetPromotions_NotRecorded(t *testing.T) {
	o := newTestOrder(nil)
	require.NoError(t, o.AddItem(haircut))
	require.NoError(t, o.AddItem(haircut))
	historyLen := o.history.len()

	require.NoError(t, o.SetPromotions([]promotion.Promotion{buyTwoHaircutsGetShampoo()}))
	assert.Len(t, o.Lines(), 2)
	assert.Equal(t, historyLen, o.history.len())

	require.NoError(t, o.SetPromotions(nil))
	assert.Len(t, o.Lines(), 1)
}

func TestUndoRedo(t *testing.T) {
	o := newTestOrder(nil)
	require.NoError(t, o.AddItem(haircut))
	require.NoError(t, o.AddItem(shampoo))
	require.NoError(t, o.Increment(1))

	ok, err := o.Undo()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, d("1").Equal(o.Lines()[1].Quantity))

	ok, _ = o.Undo()
	require.True(t, ok)
	assert.Len(t, o.Lines(), 1)

	ok, _ = o.Redo()
	require.True(t, ok)
	assert.Len(t, o.Lines(), 2)

	// A new mutation drops the redo tail.
	require.NoError(t, o.AddItem(facial))
	ok, _ = o.Redo()
	assert.False(t, ok)
	assert.False(t, o.CanRedo())
	assert.Len(t, o.Lines(), 3)
}

func TestUndo_ReappliesCurrentPromotions(t *testing.T) {
	o := newTestOrder(nil)
	require.NoError(t, o.AddItem(haircut))
	require.NoError(t, o.AddItem(haircut))
	require.NoError(t, o.AddItem(shampoo))

	require.NoError(t, o.SetPromotions([]promotion.Promotion{buyTwoHaircutsGetShampoo()}))

	ok, _ := o.Undo()
	require.True(t, ok)
	lines := o.Lines()
	require.Len(t, lines, 2)
	assert.True(t, lines[1].IsFree)
}

func TestUndo_Bounds(t *testing.T) {
	o := newTestOrder(nil)
	for i := 1; i <= 25; i++ {
		require.NoError(t, o.SetServiceCharge(decimal.NewFromInt(int64(i))))
	}
	assert.Equal(t, HistoryLimit, o.history.len())

	undone := 0
	for range 21 {
		ok, err := o.Undo()
		require.NoError(t, err)
		if ok {
			undone++
		}
	}

	assert.Equal(t, 19, undone)
	assert.False(t, o.CanUndo())
	// The oldest retained state is the 6th mutation.
	assert.True(t, d("6").Equal(o.State().ServiceCharge))

	ok, _ := o.Undo()
	assert.False(t, ok)

	redone := 0
	for range 25 {
		if ok, _ := o.Redo(); ok {
			redone++
		}
	}
	assert.Equal(t, 19, redone)
	assert.True(t, d("25").Equal(o.State().ServiceCharge))
}

func TestClear_Undoable(t *testing.T) {
	o := newTestOrder(nil)
	require.NoError(t, o.AddItem(haircut))
	require.NoError(t, o.SetServiceCharge(d("5")))

	require.NoError(t, o.Clear())
	assert.Empty(t, o.Lines())
	assert.True(t, o.State().ServiceCharge.IsZero())
	assert.Equal(t, testNow, o.State().OrderDate)

	ok, _ := o.Undo()
	require.True(t, ok)
	assert.Len(t, o.Lines(), 1)
	assert.True(t, d("5").Equal(o.State().ServiceCharge))

	empty := newTestOrder(nil)
	require.NoError(t, empty.Clear())
	assert.False(t, empty.CanUndo())
}

func TestRestore(t *testing.T) {
	saved := State{
		Lines:     []line.Item{catalog.Item{ID: "x", Kind: line.KindProduct, Price: d("3")}.Line()},
		OrderType: "walk_in",
	}
	o := Restore(nil, nil, saved)

	assert.Len(t, o.Lines(), 1)
	assert.Equal(t, "walk_in", o.State().OrderType)
	assert.False(t, o.State().OrderDate.IsZero())
	assert.False(t, o.CanUndo())
}

func keys(m map[string]decimal.Decimal) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
