package order

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/salon-pos/internal/domain/pricing"
)

// Sentinel errors for order validation.
var (
	ErrEmptyOrder          = errors.New("order has no items")
	ErrInvalidQuantity     = errors.New("quantity must be greater than 0")
	ErrInvalidPrice        = errors.New("price must not be negative")
	ErrInvalidItem         = errors.New("invalid catalog item")
	ErrLineNotFound        = errors.New("line not found")
	ErrNotService          = errors.New("employees can only be assigned to services")
	ErrInvalidStatus       = errors.New("invalid submit status")
	ErrInvalidDiscountType = pricing.ErrInvalidDiscountType
)

// ErrBusy is returned for mutations attempted while a submission is in flight.
var ErrBusy = errors.New("order is being submitted")

// ValidationError rejects a mutation because of its input. The order is left
// unchanged.
type ValidationError struct {
	Op  string
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(op string, err error) error {
	return &ValidationError{Op: op, Err: err}
}

// SubmissionError reports a failed hand-off to the persistence bridge. The
// order is left intact for retry.
type SubmissionError struct {
	Message string
	Err     error
}

func (e *SubmissionError) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("submit order: %s: %s", e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("submit order: %s", e.Err)
	case e.Message != "":
		return fmt.Sprintf("submit order: %s", e.Message)
	default:
		return "submit order: rejected"
	}
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}
