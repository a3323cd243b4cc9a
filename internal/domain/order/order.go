// Package order implements the mutable in-progress POS order.
//
// Every mutation ends with an explicit promotion recompute: a line-scoped one
// when a single line's quantity or price changed, a full one when lines were
// added or removed. Pricing is derived on read and never cached.
package order

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/salon-pos/internal/domain/catalog"
	"github.com/xenking/salon-pos/internal/domain/customer"
	"github.com/xenking/salon-pos/internal/domain/line"
	"github.com/xenking/salon-pos/internal/domain/pricing"
	"github.com/xenking/salon-pos/internal/domain/promotion"
)

var one = decimal.NewFromInt(1)

// Order is the aggregate root of one POS session. It is safe for concurrent
// use; operations are serialized.
type Order struct {
	mu sync.Mutex

	engine *promotion.Engine
	agg    *pricing.Aggregator
	now    func() time.Time

	state    State
	history  *history
	promos   []promotion.Promotion
	selected int
	warnings map[string]string
	busy     bool
}

// New creates an empty order.
func New(engine *promotion.Engine, agg *pricing.Aggregator) *Order {
	return newOrder(engine, agg, time.Now, State{})
}

// Restore creates an order from a saved snapshot. The snapshot becomes the
// oldest history entry.
func Restore(engine *promotion.Engine, agg *pricing.Aggregator, s State) *Order {
	return newOrder(engine, agg, time.Now, s)
}

func newOrder(engine *promotion.Engine, agg *pricing.Aggregator, now func() time.Time, s State) *Order {
	if engine == nil {
		engine = promotion.NewEngine()
	}
	if agg == nil {
		agg = pricing.NewAggregator(nil)
	}
	s = s.Clone()
	if s.OrderDate.IsZero() {
		s.OrderDate = now()
	}
	return &Order{
		engine:   engine,
		agg:      agg,
		now:      now,
		state:    s,
		history:  newHistory(s, HistoryLimit),
		selected: -1,
		warnings: map[string]string{},
	}
}

// mutate applies fn to a copy of the state. The copy replaces the state and is
// committed to history only when fn reports a change without error.
func (o *Order) mutate(fn func(s *State) (bool, error)) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.busy {
		return ErrBusy
	}

	next := o.state.Clone()
	changed, err := fn(&next)
	if err != nil || !changed {
		return err
	}

	o.state = next
	o.history.push(next)
	return nil
}

// lineAt returns the line at i or a validation error.
func lineAt(op string, s *State, i int) (*line.Item, error) {
	if i < 0 || i >= len(s.Lines) {
		return nil, invalid(op, ErrLineNotFound)
	}
	return &s.Lines[i], nil
}

func (o *Order) recomputeLine(s *State, i int) {
	s.Lines = o.engine.RecomputeLine(s.Lines, i, o.promos)
}

func (o *Order) recomputeAll(s *State) {
	s.Lines = o.engine.ApplyToOrder(s.Lines, o.promos)
}

// AddItem adds one unit of a catalog item. An existing paid line of the same
// item is incremented instead of adding a new line.
func (o *Order) AddItem(it catalog.Item) error {
	const op = "add item"
	if it.ID == "" || !it.Kind.Valid() {
		return invalid(op, ErrInvalidItem)
	}
	if it.Price.IsNegative() {
		return invalid(op, ErrInvalidPrice)
	}

	return o.mutate(func(s *State) (bool, error) {
		for i := range s.Lines {
			if s.Lines[i].IsFree || s.Lines[i].ID != it.ID {
				continue
			}
			s.Lines[i].Quantity = s.Lines[i].Quantity.Add(one)
			o.recomputeLine(s, i)
			return true, nil
		}

		s.Lines = append(s.Lines, it.Line())
		o.recomputeAll(s)
		return true, nil
	})
}

// UpdateQuantity sets the quantity of a paid line. Free lines are ignored.
func (o *Order) UpdateQuantity(i int, qty decimal.Decimal) error {
	const op = "update quantity"
	return o.mutate(func(s *State) (bool, error) {
		l, err := lineAt(op, s, i)
		if err != nil {
			return false, err
		}
		if l.IsFree {
			return false, nil
		}
		if !qty.IsPositive() {
			return false, invalid(op, ErrInvalidQuantity)
		}
		if l.Quantity.Equal(qty) {
			return false, nil
		}
		l.Quantity = qty
		o.recomputeLine(s, i)
		return true, nil
	})
}

// Increment adds one unit to a paid line.
func (o *Order) Increment(i int) error {
	return o.mutate(func(s *State) (bool, error) {
		l, err := lineAt("increment", s, i)
		if err != nil {
			return false, err
		}
		if l.IsFree {
			return false, nil
		}
		l.Quantity = l.Quantity.Add(one)
		o.recomputeLine(s, i)
		return true, nil
	})
}

// Decrement removes one unit from a paid line. It never goes below 1; use
// RemoveItem to drop the line.
func (o *Order) Decrement(i int) error {
	return o.mutate(func(s *State) (bool, error) {
		l, err := lineAt("decrement", s, i)
		if err != nil {
			return false, err
		}
		if l.IsFree {
			return false, nil
		}
		next := l.Quantity.Sub(one)
		if next.LessThan(one) {
			return false, nil
		}
		l.Quantity = next
		o.recomputeLine(s, i)
		return true, nil
	})
}

// RemoveItem deletes a paid line and clears the selection.
func (o *Order) RemoveItem(i int) error {
	return o.mutate(func(s *State) (bool, error) {
		l, err := lineAt("remove item", s, i)
		if err != nil {
			return false, err
		}
		if l.IsFree {
			return false, nil
		}
		s.Lines = slices.Delete(s.Lines, i, i+1)
		o.recomputeAll(s)
		o.selected = -1
		return true, nil
	})
}

// AssignEmployee sets the employee performing the service on line i. A
// non-nil, non-negative price replaces the unit price.
func (o *Order) AssignEmployee(i int, e line.Employee, price *decimal.Decimal) error {
	return o.mutate(func(s *State) (bool, error) {
		return o.assignEmployee(s, i, e, price)
	})
}

// AssignEmployeeToItem is AssignEmployee addressed by catalog item id. The
// first paid line of that item is used.
func (o *Order) AssignEmployeeToItem(itemID string, e line.Employee, price *decimal.Decimal) error {
	return o.mutate(func(s *State) (bool, error) {
		for i := range s.Lines {
			if !s.Lines[i].IsFree && s.Lines[i].ID == itemID {
				return o.assignEmployee(s, i, e, price)
			}
		}
		return false, invalid("assign employee", ErrLineNotFound)
	})
}

func (o *Order) assignEmployee(s *State, i int, e line.Employee, price *decimal.Decimal) (bool, error) {
	const op = "assign employee"
	l, err := lineAt(op, s, i)
	if err != nil {
		return false, err
	}
	if l.IsFree {
		return false, nil
	}
	if l.Kind != line.KindService {
		return false, invalid(op, ErrNotService)
	}

	l.Employee = &line.Employee{ID: e.ID, Name: e.Name}
	if price != nil && !price.IsNegative() {
		l.UnitPrice = *price
	}
	o.recomputeLine(s, i)
	return true, nil
}

// SetLineNote attaches a free-text note to a paid line.
func (o *Order) SetLineNote(i int, note string) error {
	return o.mutate(func(s *State) (bool, error) {
		l, err := lineAt("set note", s, i)
		if err != nil {
			return false, err
		}
		if l.IsFree || l.Note == note {
			return false, nil
		}
		l.Note = note
		return true, nil
	})
}

// SetManualDiscount sets the order-level discount. Negative amounts are
// treated as zero.
func (o *Order) SetManualDiscount(amount decimal.Decimal, typ pricing.DiscountType) error {
	if _, err := pricing.ParseDiscountType(string(typ)); err != nil {
		return invalid("set discount", err)
	}
	return o.mutate(func(s *State) (bool, error) {
		next := pricing.ManualDiscount{Amount: floorAtZero(amount), Type: typ}
		if s.ManualDiscount.Type == next.Type && s.ManualDiscount.Amount.Equal(next.Amount) {
			return false, nil
		}
		s.ManualDiscount = next
		return true, nil
	})
}

// ClearManualDiscount removes the order-level discount.
func (o *Order) ClearManualDiscount() error {
	return o.mutate(func(s *State) (bool, error) {
		if s.ManualDiscount.Amount.IsZero() && s.ManualDiscount.Type == "" {
			return false, nil
		}
		s.ManualDiscount = pricing.ManualDiscount{Amount: decimal.Zero}
		return true, nil
	})
}

// SetServiceCharge sets the flat service charge. Negative amounts are
// treated as zero.
func (o *Order) SetServiceCharge(amount decimal.Decimal) error {
	return o.mutate(func(s *State) (bool, error) {
		amount = floorAtZero(amount)
		if s.ServiceCharge.Equal(amount) {
			return false, nil
		}
		s.ServiceCharge = amount
		return true, nil
	})
}

// SetCustomer selects the customer, or clears it when c is nil. The customer
// jurisdiction drives GST component selection.
func (o *Order) SetCustomer(c *customer.TaxContext) error {
	return o.mutate(func(s *State) (bool, error) {
		if c == nil {
			if s.Customer == nil {
				return false, nil
			}
			s.Customer = nil
			return true, nil
		}
		if s.Customer != nil && *s.Customer == *c {
			return false, nil
		}
		cc := *c
		s.Customer = &cc
		return true, nil
	})
}

// SetEmployee sets the employee responsible for the whole order.
func (o *Order) SetEmployee(e *line.Employee) error {
	return o.mutate(func(s *State) (bool, error) {
		if e == nil {
			if s.Employee == nil {
				return false, nil
			}
			s.Employee = nil
			return true, nil
		}
		if s.Employee != nil && *s.Employee == *e {
			return false, nil
		}
		ee := *e
		s.Employee = &ee
		return true, nil
	})
}

// SetOrderType records the order type.
func (o *Order) SetOrderType(t string) error {
	return o.mutate(func(s *State) (bool, error) {
		if s.OrderType == t {
			return false, nil
		}
		s.OrderType = t
		return true, nil
	})
}

// SetOrderDate records the order date.
func (o *Order) SetOrderDate(t time.Time) error {
	return o.mutate(func(s *State) (bool, error) {
		if s.OrderDate.Equal(t) {
			return false, nil
		}
		s.OrderDate = t
		return true, nil
	})
}

// Clear empties the order. It can be undone.
func (o *Order) Clear() error {
	return o.mutate(func(s *State) (bool, error) {
		if s.IsEmpty() {
			return false, nil
		}
		*s = State{OrderDate: o.now()}
		o.selected = -1
		return true, nil
	})
}

// Undo restores the previous snapshot. It reports false at the oldest entry.
func (o *Order) Undo() (bool, error) {
	return o.travel((*history).undo)
}

// Redo re-applies the next snapshot. It reports false at the newest entry.
func (o *Order) Redo() (bool, error) {
	return o.travel((*history).redo)
}

func (o *Order) travel(step func(*history) (State, bool)) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.busy {
		return false, ErrBusy
	}
	s, ok := step(o.history)
	if !ok {
		return false, nil
	}
	// Promotions may have changed since the snapshot was taken.
	o.recomputeAll(&s)
	o.state = s
	o.selected = -1
	return true, nil
}

// CanUndo reports whether Undo would move.
func (o *Order) CanUndo() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.history.canUndo()
}

// CanRedo reports whether Redo would move.
func (o *Order) CanRedo() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.history.canRedo()
}

// SetPromotions replaces the promotion list and re-applies it to the whole
// order. It is not recorded in history.
func (o *Order) SetPromotions(promos []promotion.Promotion) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.busy {
		return ErrBusy
	}
	o.promos = slices.Clone(promos)
	o.recomputeAll(&o.state)
	return nil
}

// SetAggregator swaps the pricing aggregator, typically after the tax
// settings were reloaded.
func (o *Order) SetAggregator(agg *pricing.Aggregator) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.agg = agg
}

// Select focuses line i. An out of range index clears the selection.
func (o *Order) Select(i int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if i < 0 || i >= len(o.state.Lines) {
		i = -1
	}
	o.selected = i
}

// Selected returns the focused line index or -1.
func (o *Order) Selected() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.selected
}

// SetWarning records a non-blocking warning surfaced with the summary.
func (o *Order) SetWarning(source, msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.warnings[source] = msg
}

// ClearWarning removes the warning recorded for source.
func (o *Order) ClearWarning(source string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.warnings, source)
}

// Busy reports whether a submission is in flight.
func (o *Order) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.busy
}

// Lines returns a snapshot of the order lines.
func (o *Order) Lines() []line.Item {
	o.mu.Lock()
	defer o.mu.Unlock()
	return line.CloneAll(o.state.Lines)
}

// State returns a snapshot of the whole order.
func (o *Order) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Clone()
}

// Summary computes the order totals rounded for display.
func (o *Order) Summary() pricing.Summary {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.summaryLocked().Round(2)
}

func (o *Order) summaryLocked() pricing.Summary {
	sum := o.agg.Summarize(pricing.Input{
		Lines:          o.state.Lines,
		ManualDiscount: o.state.ManualDiscount,
		ServiceCharge:  o.state.ServiceCharge,
		Jurisdiction:   o.state.Jurisdiction(),
	})
	for _, src := range slices.Sorted(maps.Keys(o.warnings)) {
		sum.Warnings = append(sum.Warnings, o.warnings[src])
	}
	return sum
}

func floorAtZero(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}
