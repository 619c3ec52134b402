package reconcile

import (
	"context"
	"errors"

	"github.com/phillip/membership-portal-go/models"
)

// Notifier is told about each newly recorded payment. Failures never undo the entry.
type Notifier interface {
	PaymentSettled(ctx context.Context, payment models.Payment) error
}

// Notifiers fans out to every notifier and joins their errors.
type Notifiers []Notifier

func (n Notifiers) PaymentSettled(ctx context.Context, payment models.Payment) error {
	var errs []error
	for _, notifier := range n {
		if notifier == nil {
			continue
		}
		if err := notifier.PaymentSettled(ctx, payment); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
