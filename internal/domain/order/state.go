package order

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/salon-pos/internal/domain/customer"
	"github.com/xenking/salon-pos/internal/domain/line"
	"github.com/xenking/salon-pos/internal/domain/pricing"
	"github.com/xenking/salon-pos/internal/domain/tax"
)

// State is a full snapshot of an in-progress order.
type State struct {
	Lines          []line.Item            `json:"lines"`
	OrderType      string                 `json:"order_type"`
	Customer       *customer.TaxContext   `json:"customer,omitempty"`
	Employee       *line.Employee         `json:"employee,omitempty"`
	ManualDiscount pricing.ManualDiscount `json:"manual_discount"`
	ServiceCharge  decimal.Decimal        `json:"service_charge"`
	OrderDate      time.Time              `json:"order_date"`
}

// Jurisdiction returns the customer's jurisdiction, or same state when no
// customer is selected.
func (s State) Jurisdiction() tax.Jurisdiction {
	if s.Customer == nil || s.Customer.Jurisdiction == "" {
		return customer.Default().Jurisdiction
	}
	return s.Customer.Jurisdiction
}

// IsEmpty reports whether the order carries nothing worth keeping.
func (s State) IsEmpty() bool {
	return len(s.Lines) == 0 &&
		s.Customer == nil &&
		s.Employee == nil &&
		s.OrderType == "" &&
		s.ManualDiscount.Amount.IsZero() &&
		s.ServiceCharge.IsZero()
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	out.Lines = line.CloneAll(s.Lines)
	if s.Customer != nil {
		c := *s.Customer
		out.Customer = &c
	}
	if s.Employee != nil {
		e := *s.Employee
		out.Employee = &e
	}
	return out
}
