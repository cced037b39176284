package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/uniedit/payflow/internal/domain/payment"
)

// PaymentStore is an in-memory implementation of payment.Repository and
// payment.TransactionRepository.
type PaymentStore struct {
	mu           sync.RWMutex
	payments     map[uuid.UUID]*payment.Payment
	transactions map[uuid.UUID][]payment.Transaction
}

// NewPaymentStore creates an empty store.
func NewPaymentStore() *PaymentStore {
	return &PaymentStore{
		payments:     make(map[uuid.UUID]*payment.Payment),
		transactions: make(map[uuid.UUID][]payment.Transaction),
	}
}

// snapshot copies p without its pending events, optionally at another version.
func snapshot(p *payment.Payment, version int) *payment.Payment {
	var completedAt = p.CompletedAt()
	if completedAt != nil {
		t := *completedAt
		completedAt = &t
	}
	return payment.RestorePayment(
		p.ID(), p.OrderID(), p.Amount(), p.Status(),
		p.Provider(), p.ExternalID(), p.CheckoutURL(), p.FailureReason(),
		version, p.CreatedAt(), p.UpdatedAt(), completedAt,
	)
}

func (s *PaymentStore) Create(_ context.Context, p *payment.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.payments[p.ID()] = snapshot(p, p.Version())
	return nil
}

func (s *PaymentStore) Update(_ context.Context, p *payment.Payment, appended ...*payment.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.payments[p.ID()]
	if !ok {
		return payment.ErrPaymentNotFound
	}
	if stored.Version() != p.Version() {
		return payment.ErrConcurrentModification
	}

	s.payments[p.ID()] = snapshot(p, p.Version()+1)
	for _, txn := range appended {
		s.transactions[p.ID()] = append(s.transactions[p.ID()], *txn)
	}
	return nil
}

func (s *PaymentStore) FindByID(_ context.Context, id uuid.UUID) (*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payments[id]
	if !ok {
		return nil, payment.ErrPaymentNotFound
	}
	return snapshot(p, p.Version()), nil
}

func (s *PaymentStore) FindByExternalID(_ context.Context, provider, externalID string) (*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.payments {
		if p.Provider() == provider && p.ExternalID() == externalID && externalID != "" {
			return snapshot(p, p.Version()), nil
		}
	}
	return nil, payment.ErrPaymentNotFound
}

func (s *PaymentStore) FindLatestByOrderID(_ context.Context, orderID string) (*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *payment.Payment
	for _, p := range s.payments {
		if p.OrderID() != orderID {
			continue
		}
		if latest == nil || p.CreatedAt().After(latest.CreatedAt()) {
			latest = p
		}
	}
	if latest == nil {
		return nil, payment.ErrPaymentNotFound
	}
	return snapshot(latest, latest.Version()), nil
}

func (s *PaymentStore) List(_ context.Context, filter payment.Filter) ([]*payment.Payment, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*payment.Payment
	for _, p := range s.payments {
		if filter.OrderID != "" && p.OrderID() != filter.OrderID {
			continue
		}
		if filter.Status != "" && p.Status() != filter.Status {
			continue
		}
		if filter.Provider != "" && p.Provider() != filter.Provider {
			continue
		}
		matched = append(matched, snapshot(p, p.Version()))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt().After(matched[j].CreatedAt()) })

	total := int64(len(matched))
	offset := filter.Offset()
	if offset >= len(matched) {
		return []*payment.Payment{}, total, nil
	}
	end := offset + filter.Limit()
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

// Transactions returns the ledger view over the same data.
func (s *PaymentStore) Transactions() *TransactionStore {
	return &TransactionStore{store: s}
}

// TransactionStore implements payment.TransactionRepository over a PaymentStore.
type TransactionStore struct {
	store *PaymentStore
}

func (t *TransactionStore) ListByPayment(_ context.Context, paymentID uuid.UUID) ([]*payment.Transaction, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	rows := t.store.transactions[paymentID]
	out := make([]*payment.Transaction, len(rows))
	for i := range rows {
		txn := rows[i]
		out[i] = &txn
	}
	return out, nil
}

func (t *TransactionStore) FindByExternalID(_ context.Context, externalID string) (*payment.Transaction, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	for _, rows := range t.store.transactions {
		for i := range rows {
			if rows[i].ExternalID == externalID && externalID != "" {
				txn := rows[i]
				return &txn, nil
			}
		}
	}
	return nil, payment.ErrTransactionNotFound
}

func (t *TransactionStore) UpdateStatus(_ context.Context, id uuid.UUID, status payment.TransactionStatus, failureReason string) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	for _, rows := range t.store.transactions {
		for i := range rows {
			if rows[i].ID != id {
				continue
			}
			if !rows[i].CanUpdateStatus(status) {
				return payment.ErrInvalidTransactionStatus
			}
			rows[i].Status = status
			rows[i].FailureReason = failureReason
			return nil
		}
	}
	return payment.ErrTransactionNotFound
}

// Compile-time checks
var (
	_ payment.Repository            = (*PaymentStore)(nil)
	_ payment.TransactionRepository = (*TransactionStore)(nil)
)
