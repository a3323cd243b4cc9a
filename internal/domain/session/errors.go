package session

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned for unknown session ids.
	ErrNotFound = errors.New("session not found")
	// ErrInvalidTerminal is returned when opening a session without a branch
	// or terminal id.
	ErrInvalidTerminal = errors.New("branch and terminal ids are required")
)

// Warning sources recorded on the order when a lookup degrades.
const (
	SourcePromotions = "promotions"
	SourceCustomer   = "customer"
	SourceSettings   = "settings"
)

// ExternalServiceError wraps a failed collaborator lookup.
type ExternalServiceError struct {
	Source string
	Err    error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s lookup: %s", e.Source, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}
