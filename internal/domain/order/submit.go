package order

import (
	"context"
	"time"

	"github.com/xenking/salon-pos/internal/domain/customer"
	"github.com/xenking/salon-pos/internal/domain/line"
	"github.com/xenking/salon-pos/internal/domain/pricing"
)

// Status is the state the sale is stored with.
type Status string

const (
	StatusDraft   Status = "draft"
	StatusRunning Status = "running"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusDraft || s == StatusRunning
}

// Payload is the finalized order handed to the persistence bridge. Amounts
// carry three decimal places to match the sale schema.
type Payload struct {
	Lines    []line.Item          `json:"lines"`
	Summary  pricing.Summary      `json:"summary"`
	Customer *customer.TaxContext `json:"customer"`
	Employee *line.Employee       `json:"employee"`
	Type     string               `json:"type"`
	Date     time.Time            `json:"date"`

	// Set by the caller that owns the terminal.
	BranchID   string `json:"branch_id,omitempty"`
	TerminalID string `json:"terminal_id,omitempty"`
}

// Receipt is the bridge's answer to a submission.
type Receipt struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ID      string `json:"id"`
}

// Bridge persists submitted orders.
type Bridge interface {
	SubmitOrder(ctx context.Context, p Payload, status Status) (*Receipt, error)
}

func (o *Order) payloadLocked() Payload {
	s := o.state.Clone()
	return Payload{
		Lines:    s.Lines,
		Summary:  o.summaryLocked().Round(3),
		Customer: s.Customer,
		Employee: s.Employee,
		Type:     s.OrderType,
		Date:     s.OrderDate,
	}
}

// Submit hands the order to bridge. Other mutations fail with ErrBusy while
// the call is in flight. On success the order is cleared and its history
// reset; on failure it is left untouched.
func (o *Order) Submit(ctx context.Context, bridge Bridge, status Status) (*Receipt, error) {
	const op = "submit"

	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return nil, ErrBusy
	}
	if !status.Valid() {
		o.mu.Unlock()
		return nil, invalid(op, ErrInvalidStatus)
	}
	if len(o.state.Lines) == 0 {
		o.mu.Unlock()
		return nil, invalid(op, ErrEmptyOrder)
	}
	payload := o.payloadLocked()
	o.busy = true
	o.mu.Unlock()

	receipt, err := bridge.SubmitOrder(ctx, payload, status)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.busy = false

	if err != nil {
		return nil, &SubmissionError{Err: err}
	}
	if receipt == nil || !receipt.Success {
		msg := ""
		if receipt != nil {
			msg = receipt.Message
		}
		return nil, &SubmissionError{Message: msg}
	}

	o.state = State{OrderDate: o.now()}
	o.history = newHistory(o.state, HistoryLimit)
	o.selected = -1
	return receipt, nil
}
