package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/phillip/membership-portal-go/apperrors"
	"github.com/phillip/membership-portal-go/models"
)

const PaymentsCollection = "payments"

// writeConflictCode is the server's WriteConflict error code.
const writeConflictCode = 112

// MongoStore keeps one document per reference, using the reference as _id.
// The unique _id plus session transactions give the at-most-once write.
type MongoStore struct {
	client *mongo.Client
	col    *mongo.Collection
}

// NewMongoStore decodes nested metadata as maps whatever BSON options the client carries.
func NewMongoStore(client *mongo.Client, dbName string) *MongoStore {
	colOpts := options.Collection().SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})
	return &MongoStore{
		client: client,
		col:    client.Database(dbName).Collection(PaymentsCollection, colOpts),
	}
}

// paymentDocument stores the amount as Decimal128 so no precision is lost.
type paymentDocument struct {
	models.Payment `bson:",inline"`
	Amount         primitive.Decimal128 `bson:"amount"`
}

func toDocument(p models.Payment) (paymentDocument, error) {
	amount, err := primitive.ParseDecimal128(p.Amount.String())
	if err != nil {
		return paymentDocument{}, fmt.Errorf("invalid amount %s: %w", p.Amount, err)
	}
	return paymentDocument{Payment: p, Amount: amount}, nil
}

func (d paymentDocument) toPayment() (models.Payment, error) {
	amount, err := decimal.NewFromString(d.Amount.String())
	if err != nil {
		return models.Payment{}, fmt.Errorf("stored amount for %q: %w", d.Reference, err)
	}
	p := d.Payment
	p.Amount = amount
	return p, nil
}

// EnsureIndexes creates the indexes used by payment history listings.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "payer_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "category", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

// RunInTransaction uses the driver's WithTransaction, which retries on
// TransientTransactionError and UnknownTransactionCommitResult.
func (s *MongoStore) RunInTransaction(ctx context.Context, reference string, fn func(ctx context.Context, tx Tx) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return classify(err)
	}
	defer session.EndSession(ctx)

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, &mongoTx{col: s.col, reference: reference})
	}, txnOpts)
	if err != nil {
		return classify(err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, reference string) (*models.Payment, error) {
	return findPayment(ctx, s.col, reference)
}

func (s *MongoStore) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, error) {
	query := bson.M{}
	if filter.PayerID != "" {
		query["payer_id"] = filter.PayerID
	}
	if filter.Category != "" {
		query["category"] = filter.Category
	}
	if filter.Origin != "" {
		query["origin"] = filter.Origin
	}
	if filter.From != nil || filter.To != nil {
		created := bson.M{}
		if filter.From != nil {
			created["$gte"] = *filter.From
		}
		if filter.To != nil {
			created["$lte"] = *filter.To
		}
		query["created_at"] = created
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(filter.Limit)
	}

	cursor, err := s.col.Find(ctx, query, opts)
	if err != nil {
		return nil, classify(err)
	}

	var docs []paymentDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classify(err)
	}

	payments := make([]models.Payment, 0, len(docs))
	for _, d := range docs {
		p, err := d.toPayment()
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, nil
}

type mongoTx struct {
	col       *mongo.Collection
	reference string
}

// Errors from the driver are wrapped with %w so WithTransaction can still see their labels.
func (t *mongoTx) Get(ctx context.Context, reference string) (*models.Payment, error) {
	return findPayment(ctx, t.col, reference)
}

func (t *mongoTx) Create(ctx context.Context, payment models.Payment) error {
	if payment.Reference != t.reference {
		return fmt.Errorf("%w: transaction is scoped to %q, got %q", apperrors.ErrValidation, t.reference, payment.Reference)
	}

	doc, err := toDocument(payment)
	if err != nil {
		return err
	}
	if _, err := t.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert payment %q: %w", payment.Reference, err)
	}
	return nil
}

func findPayment(ctx context.Context, col *mongo.Collection, reference string) (*models.Payment, error) {
	var doc paymentDocument
	err := col.FindOne(ctx, bson.M{"_id": reference}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: payment %q", apperrors.ErrNotFound, reference)
	}
	if err != nil {
		return nil, fmt.Errorf("find payment %q: %w", reference, err)
	}

	p, err := doc.toPayment()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// classify maps driver failures onto the store taxonomy. Ledger and taxonomy
// errors pass through untouched.
func classify(err error) error {
	if errors.Is(err, ErrDuplicate) ||
		errors.Is(err, apperrors.ErrNotFound) ||
		errors.Is(err, apperrors.ErrValidation) ||
		errors.Is(err, apperrors.ErrStoreConflict) ||
		errors.Is(err, apperrors.ErrStoreUnavailable) {
		return err
	}

	var se mongo.ServerError
	if errors.As(err, &se) && (se.HasErrorLabel("TransientTransactionError") || se.HasErrorCode(writeConflictCode)) {
		return fmt.Errorf("%w: %v", apperrors.ErrStoreConflict, err)
	}
	return fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
}

var _ Store = (*MongoStore)(nil)
