// Package events publishes ledger changes to Kafka for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/phillip/membership-portal-go/models"
)

// PaymentSettled is the message published for each newly recorded payment.
type PaymentSettled struct {
	Reference string    `json:"reference"`
	PayerID   string    `json:"payer_id"`
	Amount    string    `json:"amount"`
	Currency  string    `json:"currency,omitempty"`
	Category  string    `json:"category"`
	Origin    string    `json:"origin"`
	CreatedAt time.Time `json:"created_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	writer messageWriter
}

// NewPublisher builds a synchronous writer. Each settlement writes one message,
// so the batch timeout is kept short instead of waiting for a batch to fill.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
			MaxAttempts:            3,
			WriteTimeout:           2 * time.Second,
		},
	}
}

// PaymentSettled publishes the payment keyed by reference, so all messages
// for one reference land on one partition.
func (p *Publisher) PaymentSettled(ctx context.Context, payment models.Payment) error {
	msg, err := newMessage(payment)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

func newMessage(payment models.Payment) (kafka.Message, error) {
	data, err := json.Marshal(PaymentSettled{
		Reference: payment.Reference,
		PayerID:   payment.PayerID,
		Amount:    payment.Amount.String(),
		Currency:  payment.Currency,
		Category:  payment.Category,
		Origin:    payment.Origin,
		CreatedAt: payment.CreatedAt,
	})
	if err != nil {
		return kafka.Message{}, err
	}

	return kafka.Message{
		Key:   []byte(payment.Reference),
		Value: data,
	}, nil
}
