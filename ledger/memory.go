package ledger

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/phillip/membership-portal-go/apperrors"
	"github.com/phillip/membership-portal-go/models"
)

// MemoryStore is an in-process ledger for tests and local runs.
// A mutex per reference makes each transaction the single writer for its key.
// Reference locks live only while a transaction holds or waits on them.
type MemoryStore struct {
	mu       sync.RWMutex
	payments map[string]models.Payment

	locksMu sync.Mutex
	locks   map[string]*referenceLock
}

type referenceLock struct {
	sync.Mutex
	refs int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		payments: make(map[string]models.Payment),
		locks:    make(map[string]*referenceLock),
	}
}

func (m *MemoryStore) lockReference(reference string) {
	m.locksMu.Lock()
	lock, ok := m.locks[reference]
	if !ok {
		lock = &referenceLock{}
		m.locks[reference] = lock
	}
	lock.refs++
	m.locksMu.Unlock()

	lock.Lock()
}

func (m *MemoryStore) unlockReference(reference string) {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()

	lock := m.locks[reference]
	lock.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(m.locks, reference)
	}
}

func (m *MemoryStore) RunInTransaction(ctx context.Context, reference string, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
	}

	m.lockReference(reference)
	defer m.unlockReference(reference)

	tx := &memoryTx{store: m, reference: reference}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if tx.staged == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.payments[reference]; exists {
		return ErrDuplicate
	}
	m.payments[reference] = *tx.staged
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, reference string) (*models.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.payments[reference]
	if !ok {
		return nil, fmt.Errorf("%w: payment %q", apperrors.ErrNotFound, reference)
	}
	p = clonePayment(p)
	return &p, nil
}

func (m *MemoryStore) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]models.Payment, 0)
	for _, p := range m.payments {
		if !matches(p, filter) {
			continue
		}
		result = append(result, clonePayment(p))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if filter.Limit > 0 && int64(len(result)) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// Len reports the number of committed entries.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.payments)
}

func matches(p models.Payment, f models.PaymentFilter) bool {
	if f.PayerID != "" && p.PayerID != f.PayerID {
		return false
	}
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.Origin != "" && p.Origin != f.Origin {
		return false
	}
	if f.From != nil && p.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && p.CreatedAt.After(*f.To) {
		return false
	}
	return true
}

func clonePayment(p models.Payment) models.Payment {
	p.Metadata = maps.Clone(p.Metadata)
	return p
}

type memoryTx struct {
	store     *MemoryStore
	reference string
	staged    *models.Payment
}

func (t *memoryTx) Get(ctx context.Context, reference string) (*models.Payment, error) {
	if t.staged != nil && t.staged.Reference == reference {
		p := clonePayment(*t.staged)
		return &p, nil
	}
	return t.store.Get(ctx, reference)
}

func (t *memoryTx) Create(ctx context.Context, payment models.Payment) error {
	if payment.Reference != t.reference {
		return fmt.Errorf("%w: transaction is scoped to %q, got %q", apperrors.ErrValidation, t.reference, payment.Reference)
	}
	if t.staged != nil {
		return ErrDuplicate
	}
	if _, err := t.store.Get(ctx, payment.Reference); err == nil {
		return ErrDuplicate
	}

	p := clonePayment(payment)
	t.staged = &p
	return nil
}

var _ Store = (*MemoryStore)(nil)
