package payment

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType classifies ledger rows.
type TransactionType string

const (
	TransactionCharge  TransactionType = "charge"
	TransactionRefund  TransactionType = "refund"
	TransactionDispute TransactionType = "dispute"
)

// TransactionStatus is the settlement state of a ledger row.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionSucceeded TransactionStatus = "succeeded"
	TransactionFailed    TransactionStatus = "failed"
)

// Transaction is an append-only audit row. After creation only its status
// may be corrected, and only away from pending.
type Transaction struct {
	ID            uuid.UUID
	PaymentID     uuid.UUID
	Type          TransactionType
	Amount        Money
	Status        TransactionStatus
	ExternalID    string
	FailureReason string
	Timestamp     time.Time
}

// NewTransaction creates a ledger row for a payment.
func NewTransaction(p *Payment, typ TransactionType, status TransactionStatus, externalID, failureReason string) *Transaction {
	return &Transaction{
		ID:            uuid.New(),
		PaymentID:     p.ID(),
		Type:          typ,
		Amount:        p.Amount(),
		Status:        status,
		ExternalID:    externalID,
		FailureReason: failureReason,
		Timestamp:     timeNow(),
	}
}

// CanUpdateStatus reports whether the correction path allows moving to status.
func (t *Transaction) CanUpdateStatus(status TransactionStatus) bool {
	return t.Status == TransactionPending && (status == TransactionSucceeded || status == TransactionFailed)
}
