// Package ledger persists settled payments, one entry per gateway reference.
package ledger

import (
	"context"
	"errors"

	"github.com/phillip/membership-portal-go/models"
)

// ErrDuplicate is returned when an entry for the reference already exists.
var ErrDuplicate = errors.New("payment already recorded")

// Tx is the read-then-conditionally-write scope handed out by RunInTransaction.
type Tx interface {
	// Get returns the entry for reference or apperrors.ErrNotFound.
	Get(ctx context.Context, reference string) (*models.Payment, error)

	// Create stages a new entry. It returns ErrDuplicate if one exists.
	Create(ctx context.Context, payment models.Payment) error
}

// Store is the payment ledger.
type Store interface {
	// RunInTransaction runs fn atomically with respect to every other transaction on the same
	// reference. Writes made through tx are committed only if fn returns nil.
	// Conflicting transactions are retried by the store, never by the caller.
	RunInTransaction(ctx context.Context, reference string, fn func(ctx context.Context, tx Tx) error) error

	// Get reads a committed entry outside any transaction.
	Get(ctx context.Context, reference string) (*models.Payment, error)

	// List returns committed entries newest first.
	List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, error)
}
