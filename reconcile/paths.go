package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/phillip/membership-portal-go/apperrors"
	"github.com/phillip/membership-portal-go/models"
	"github.com/phillip/membership-portal-go/paystack"
)

// member-identifying metadata keys, in lookup order
var payerKeys = []string{"member_id", "user_id"}

// VerifyRequest comes from an authenticated member after checkout.
// Description and Category are optional and override gateway metadata.
// PayerEmail is used only when the gateway has no customer email.
type VerifyRequest struct {
	Reference   string
	PayerID     string
	PayerEmail  string
	Description string
	Category    string
}

// Verify confirms the reference with the gateway and settles it. The caller's
// own claim of success is never trusted.
func (e *Engine) Verify(ctx context.Context, req VerifyRequest) (*Result, error) {
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return nil, fmt.Errorf("%w: reference is required", apperrors.ErrValidation)
	}
	if req.PayerID == "" {
		return nil, fmt.Errorf("%w: caller identity is required", apperrors.ErrUnauthenticated)
	}

	entry := e.log.WithFields(logrus.Fields{"reference": reference, "origin": models.OriginVerify})

	tx, err := e.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		entry.WithError(err).Warn("gateway verification failed")
		return nil, err
	}
	if tx.Reference != reference {
		return nil, fmt.Errorf("%w: gateway answered for %q", apperrors.ErrGatewayRejected, tx.Reference)
	}
	if !tx.Successful() {
		entry.WithField("gateway_status", tx.Status).Info("payment rejected")
		return nil, fmt.Errorf("%w: transaction %s is %q", apperrors.ErrGatewayRejected, reference, tx.Status)
	}

	md := paystack.ParseMetadata(tx.Metadata)
	return e.Settle(ctx, Settlement{
		Reference:   reference,
		AmountMinor: tx.Amount,
		Currency:    tx.Currency,
		Confirmed:   true,
		PayerID:     req.PayerID,
		PayerEmail:  firstNonEmpty(tx.Customer.Email, req.PayerEmail),
		Description: firstNonEmpty(req.Description, md.Lookup("description")),
		Category:    firstNonEmpty(req.Category, md.Lookup("category")),
		Origin:      models.OriginVerify,
		Metadata:    md.Map(),
	})
}

// HandleWebhook settles a signature-verified gateway event. Event types other than
// charge.success and unsuccessful charges are acknowledged without writing.
func (e *Engine) HandleWebhook(ctx context.Context, evt paystack.Event) (*Result, error) {
	entry := e.log.WithFields(logrus.Fields{
		"event":     evt.Event,
		"reference": evt.Data.Reference,
		"origin":    models.OriginWebhook,
	})

	if evt.Event != paystack.EventChargeSuccess {
		entry.Debug("webhook event ignored")
		return &Result{Ignored: true}, nil
	}

	data := evt.Data
	if strings.TrimSpace(data.Reference) == "" {
		return nil, fmt.Errorf("%w: webhook data has no reference", apperrors.ErrValidation)
	}
	if !data.Successful() {
		entry.WithField("gateway_status", data.Status).Info("payment rejected")
		return &Result{Ignored: true}, nil
	}

	md := paystack.ParseMetadata(data.Metadata)
	return e.Settle(ctx, Settlement{
		Reference:   data.Reference,
		AmountMinor: data.Amount,
		Currency:    data.Currency,
		Confirmed:   true,
		PayerID:     ResolvePayer(md, data.Customer.Email),
		PayerEmail:  data.Customer.Email,
		Description: md.Lookup("description"),
		Category:    md.Lookup("category"),
		Origin:      models.OriginWebhook,
		Metadata:    md.Map(),
	})
}

// ResolvePayer picks the member tag, then the customer email, then models.UnknownPayer.
func ResolvePayer(md paystack.Metadata, email string) string {
	for _, key := range payerKeys {
		if v := md.Lookup(key); v != "" {
			return v
		}
	}
	return firstNonEmpty(email, models.UnknownPayer)
}
