// Package customer resolves the tax context of the customer on an order.
package customer

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/salon-pos/internal/domain/tax"
)

// ErrNotFound is returned when a customer does not exist.
var ErrNotFound = errors.New("customer not found")

// TaxContext is the customer's position relative to the selling branch.
type TaxContext struct {
	CustomerID   string           `json:"id"`
	Name         string           `json:"name"`
	Jurisdiction tax.Jurisdiction `json:"jurisdiction"`
}

// Default is the context used when no customer is selected.
func Default() TaxContext {
	return TaxContext{Jurisdiction: tax.JurisdictionSame}
}

// Repository looks up customer tax contexts.
type Repository interface {
	GetTaxContext(ctx context.Context, branchID, customerID string) (*TaxContext, error)
}
