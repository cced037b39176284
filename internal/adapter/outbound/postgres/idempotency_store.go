package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uniedit/payflow/internal/domain/idempotency"
	"github.com/uniedit/payflow/internal/infra/persistence/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// idempotencyStore implements idempotency.Store.
type idempotencyStore struct {
	db *gorm.DB
}

// NewIdempotencyStore creates a new idempotency key database adapter.
func NewIdempotencyStore(db *gorm.DB) idempotency.Store {
	return &idempotencyStore{db: db}
}

func (a *idempotencyStore) Create(ctx context.Context, r *idempotency.Record) error {
	res := a.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(entity.FromDomainIdempotencyRecord(r))
	if res.Error != nil {
		return fmt.Errorf("create idempotency key: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return idempotency.ErrDuplicateKey
	}
	return nil
}

func (a *idempotencyStore) Get(ctx context.Context, key string) (*idempotency.Record, error) {
	var ent entity.IdempotencyKeyEntity
	if err := a.db.WithContext(ctx).First(&ent, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, idempotency.ErrRecordNotFound
		}
		return nil, fmt.Errorf("get idempotency key: %w", err)
	}
	return ent.ToDomain(), nil
}

func (a *idempotencyStore) Complete(ctx context.Context, r *idempotency.Record) error {
	return a.finalize(ctx, r)
}

func (a *idempotencyStore) Fail(ctx context.Context, r *idempotency.Record) error {
	return a.finalize(ctx, r)
}

func (a *idempotencyStore) finalize(ctx context.Context, r *idempotency.Record) error {
	res := a.db.WithContext(ctx).
		Model(&entity.IdempotencyKeyEntity{}).
		Where("key = ? AND id = ? AND status = ?", r.Key, r.ID, idempotency.StatusProcessing).
		Updates(map[string]interface{}{
			"status":      r.Status,
			"response":    r.Response,
			"status_code": r.StatusCode,
		})
	if res.Error != nil {
		return fmt.Errorf("finalize idempotency key: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return idempotency.ErrRecordFinalized
	}
	return nil
}

func (a *idempotencyStore) Delete(ctx context.Context, key string, id uuid.UUID) error {
	res := a.db.WithContext(ctx).
		Where("key = ? AND id = ?", key, id).
		Delete(&entity.IdempotencyKeyEntity{})
	if res.Error != nil {
		return fmt.Errorf("delete idempotency key: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return idempotency.ErrRecordNotFound
	}
	return nil
}

func (a *idempotencyStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := a.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&entity.IdempotencyKeyEntity{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete expired idempotency keys: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Compile-time check
var _ idempotency.Store = (*idempotencyStore)(nil)
