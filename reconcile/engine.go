// Package reconcile records settled payments exactly once, whichever of the
// verification call or the gateway webhook arrives first.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/phillip/membership-portal-go/apperrors"
	"github.com/phillip/membership-portal-go/ledger"
	"github.com/phillip/membership-portal-go/models"
	"github.com/phillip/membership-portal-go/paystack"
)

const (
	DefaultDescription = "Paystack payment"
	DefaultCategory    = "general"
)

// Gateway confirms a transaction with the payment provider.
type Gateway interface {
	VerifyTransaction(ctx context.Context, reference string) (*paystack.Transaction, error)
}

type Options struct {
	// MinorUnitFactor divides gateway amounts into the major unit. Defaults to 100.
	MinorUnitFactor int64
	// Notifier is told about newly created entries only.
	Notifier Notifier
	// NotifyTimeout bounds how long notifiers may hold a response. Defaults to 3s.
	NotifyTimeout time.Duration
	Now           func() time.Time
}

const defaultNotifyTimeout = 3 * time.Second

// Engine is the only writer of ledger entries.
type Engine struct {
	store         ledger.Store
	gateway       Gateway
	notifier      Notifier
	notifyTimeout time.Duration
	log           *logrus.Logger
	factor        decimal.Decimal
	now           func() time.Time
}

func NewEngine(store ledger.Store, gateway Gateway, log *logrus.Logger, opts Options) *Engine {
	if opts.MinorUnitFactor <= 0 {
		opts.MinorUnitFactor = 100
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = defaultNotifyTimeout
	}

	return &Engine{
		store:         store,
		gateway:       gateway,
		notifier:      opts.Notifier,
		notifyTimeout: opts.NotifyTimeout,
		log:           log,
		factor:        decimal.NewFromInt(opts.MinorUnitFactor),
		now:           opts.Now,
	}
}

// Settlement is the confirmed payment data both entry points reduce to.
type Settlement struct {
	Reference   string
	AmountMinor int64
	Currency    string
	Confirmed   bool
	PayerID     string
	PayerEmail  string
	Description string
	Category    string
	Origin      string
	Metadata    map[string]interface{}
}

type Result struct {
	Payment         models.Payment
	AlreadyRecorded bool
	// Ignored is set when a webhook was acknowledged without touching the ledger.
	Ignored bool
}

// Settle creates the ledger entry for s.Reference unless one already exists.
// Finding an existing entry is a success, reported through AlreadyRecorded.
func (e *Engine) Settle(ctx context.Context, s Settlement) (*Result, error) {
	s.Reference = strings.TrimSpace(s.Reference)
	if s.Reference == "" {
		return nil, fmt.Errorf("%w: reference is required", apperrors.ErrValidation)
	}
	if !s.Confirmed {
		return nil, fmt.Errorf("%w: transaction %s is not confirmed successful", apperrors.ErrGatewayRejected, s.Reference)
	}

	entry := e.log.WithFields(logrus.Fields{
		"reference": s.Reference,
		"origin":    s.Origin,
	})

	var result Result
	err := e.store.RunInTransaction(ctx, s.Reference, func(ctx context.Context, tx ledger.Tx) error {
		// the store may rerun this on conflict
		result = Result{}

		existing, err := tx.Get(ctx, s.Reference)
		if err == nil {
			result = Result{Payment: *existing, AlreadyRecorded: true}
			return nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return err
		}

		payment := e.newPayment(s)
		if err := tx.Create(ctx, payment); err != nil {
			return err
		}
		result = Result{Payment: payment}
		return nil
	})

	// A concurrent writer won outside the store's conflict retry; converge on its entry.
	if errors.Is(err, ledger.ErrDuplicate) {
		existing, getErr := e.store.Get(ctx, s.Reference)
		if getErr != nil {
			entry.WithError(getErr).Error("failed to read winning ledger entry")
			return nil, getErr
		}
		result = Result{Payment: *existing, AlreadyRecorded: true}
		err = nil
	}
	if err != nil {
		entry.WithError(err).Error("ledger transaction failed")
		return nil, err
	}

	if result.AlreadyRecorded {
		entry.WithField("recorded_by", result.Payment.Origin).Info("payment already recorded")
		return &result, nil
	}

	entry.WithFields(logrus.Fields{
		"payer_id": result.Payment.PayerID,
		"amount":   result.Payment.Amount.String(),
	}).Info("payment recorded")
	e.notify(ctx, result.Payment)

	return &result, nil
}

func (e *Engine) newPayment(s Settlement) models.Payment {
	now := e.now().UTC()
	return models.Payment{
		Reference:       s.Reference,
		PayerID:         s.PayerID,
		PayerEmail:      s.PayerEmail,
		Amount:          decimal.NewFromInt(s.AmountMinor).Div(e.factor),
		Currency:        s.Currency,
		Description:     firstNonEmpty(s.Description, DefaultDescription),
		Category:        firstNonEmpty(s.Category, DefaultCategory),
		Status:          models.PaymentStatusSuccessful,
		Provider:        models.ProviderPaystack,
		Origin:          s.Origin,
		TransactionDate: now,
		CreatedAt:       now,
		Metadata:        s.Metadata,
	}
}

// notify runs detached from the request's cancellation but never longer than notifyTimeout.
func (e *Engine) notify(ctx context.Context, payment models.Payment) {
	if e.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.notifyTimeout)
	defer cancel()

	if err := e.notifier.PaymentSettled(ctx, payment); err != nil {
		e.log.WithError(err).WithField("reference", payment.Reference).Warn("payment settled notification failed")
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
