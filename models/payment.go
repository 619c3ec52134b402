package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentStatusSuccessful = "successful"
	ProviderPaystack        = "paystack"

	OriginVerify  = "verify"
	OriginWebhook = "webhook"

	// UnknownPayer is recorded when a webhook carries no member tag and no customer email.
	UnknownPayer = "unknown"
)

// Payment is a ledger entry: one settled payment, keyed by the gateway reference.
// It is written once and never updated.
type Payment struct {
	Reference       string                 `bson:"_id" json:"reference"`
	PayerID         string                 `bson:"payer_id" json:"payer_id"`
	PayerEmail      string                 `bson:"payer_email,omitempty" json:"payer_email,omitempty"`
	Amount          decimal.Decimal        `bson:"-" json:"amount"`
	Currency        string                 `bson:"currency,omitempty" json:"currency,omitempty"`
	Description     string                 `bson:"description" json:"description"`
	Category        string                 `bson:"category" json:"category"`
	Status          string                 `bson:"status" json:"status"`     // always "successful"
	Provider        string                 `bson:"provider" json:"provider"` // "paystack"
	Origin          string                 `bson:"origin" json:"origin"`     // verify, webhook
	TransactionDate time.Time              `bson:"transaction_date" json:"transaction_date"`
	CreatedAt       time.Time              `bson:"created_at" json:"created_at"`
	Metadata        map[string]interface{} `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

// PaymentFilter narrows payment history listings. Zero values match everything.
type PaymentFilter struct {
	PayerID  string
	Category string
	Origin   string
	From     *time.Time
	To       *time.Time
	Limit    int64
}
