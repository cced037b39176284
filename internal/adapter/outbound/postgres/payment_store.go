package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/uniedit/payflow/internal/domain/payment"
	"github.com/uniedit/payflow/internal/infra/persistence/entity"
	"gorm.io/gorm"
)

// paymentAdapter implements payment.Repository.
type paymentAdapter struct {
	db *gorm.DB
}

// NewPaymentAdapter creates a new payment database adapter.
func NewPaymentAdapter(db *gorm.DB) payment.Repository {
	return &paymentAdapter{db: db}
}

func (a *paymentAdapter) Create(ctx context.Context, p *payment.Payment) error {
	if err := a.db.WithContext(ctx).Create(entity.FromDomainPayment(p)).Error; err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

func (a *paymentAdapter) Update(ctx context.Context, p *payment.Payment, appended ...*payment.Transaction) error {
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&entity.PaymentEntity{}).
			Where("id = ? AND version = ?", p.ID(), p.Version()).
			Updates(map[string]interface{}{
				"status":         p.Status(),
				"external_id":    p.ExternalID(),
				"checkout_url":   p.CheckoutURL(),
				"failure_reason": p.FailureReason(),
				"completed_at":   p.CompletedAt(),
				"updated_at":     p.UpdatedAt(),
				"version":        p.Version() + 1,
			})
		if res.Error != nil {
			return fmt.Errorf("update payment: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return payment.ErrConcurrentModification
		}

		if len(appended) == 0 {
			return nil
		}
		rows := make([]*entity.PaymentTransactionEntity, len(appended))
		for i, txn := range appended {
			rows[i] = entity.FromDomainTransaction(txn)
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("append transactions: %w", err)
		}
		return nil
	})
}

func (a *paymentAdapter) FindByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	var ent entity.PaymentEntity
	if err := a.db.WithContext(ctx).First(&ent, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, payment.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return ent.ToDomain(), nil
}

func (a *paymentAdapter) FindByExternalID(ctx context.Context, provider, externalID string) (*payment.Payment, error) {
	var ent entity.PaymentEntity
	err := a.db.WithContext(ctx).
		Where("provider = ? AND external_id = ?", provider, externalID).
		Order("created_at DESC").
		First(&ent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, payment.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment by external id: %w", err)
	}
	return ent.ToDomain(), nil
}

func (a *paymentAdapter) FindLatestByOrderID(ctx context.Context, orderID string) (*payment.Payment, error) {
	var ent entity.PaymentEntity
	err := a.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		First(&ent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, payment.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment by order id: %w", err)
	}
	return ent.ToDomain(), nil
}

func (a *paymentAdapter) List(ctx context.Context, filter payment.Filter) ([]*payment.Payment, int64, error) {
	query := a.db.WithContext(ctx).Model(&entity.PaymentEntity{})
	if filter.OrderID != "" {
		query = query.Where("order_id = ?", filter.OrderID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Provider != "" {
		query = query.Where("provider = ?", filter.Provider)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}

	var entities []*entity.PaymentEntity
	err := query.
		Order("created_at DESC").
		Offset(filter.Offset()).
		Limit(filter.Limit()).
		Find(&entities).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}

	payments := make([]*payment.Payment, len(entities))
	for i, ent := range entities {
		payments[i] = ent.ToDomain()
	}
	return payments, total, nil
}

// transactionAdapter implements payment.TransactionRepository.
type transactionAdapter struct {
	db *gorm.DB
}

// NewTransactionAdapter creates a new payment transaction database adapter.
func NewTransactionAdapter(db *gorm.DB) payment.TransactionRepository {
	return &transactionAdapter{db: db}
}

func (a *transactionAdapter) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]*payment.Transaction, error) {
	var entities []*entity.PaymentTransactionEntity
	err := a.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("occurred_at ASC").
		Find(&entities).Error
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	txns := make([]*payment.Transaction, len(entities))
	for i, ent := range entities {
		txns[i] = ent.ToDomain()
	}
	return txns, nil
}

func (a *transactionAdapter) FindByExternalID(ctx context.Context, externalID string) (*payment.Transaction, error) {
	var ent entity.PaymentTransactionEntity
	if err := a.db.WithContext(ctx).First(&ent, "external_id = ?", externalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, payment.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("get transaction by external id: %w", err)
	}
	return ent.ToDomain(), nil
}

func (a *transactionAdapter) UpdateStatus(ctx context.Context, id uuid.UUID, status payment.TransactionStatus, failureReason string) error {
	res := a.db.WithContext(ctx).
		Model(&entity.PaymentTransactionEntity{}).
		Where("id = ? AND status = ?", id, payment.TransactionPending).
		Updates(map[string]interface{}{
			"status":         status,
			"failure_reason": failureReason,
		})
	if res.Error != nil {
		return fmt.Errorf("update transaction status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return payment.ErrInvalidTransactionStatus
	}
	return nil
}

// Compile-time checks
var (
	_ payment.Repository            = (*paymentAdapter)(nil)
	_ payment.TransactionRepository = (*transactionAdapter)(nil)
)
