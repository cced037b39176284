package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uniedit/payflow/internal/domain/webhook"
	"github.com/uniedit/payflow/internal/infra/persistence/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// webhookEventStore implements webhook.Repository.
type webhookEventStore struct {
	db *gorm.DB
}

// NewWebhookEventStore creates a new webhook event database adapter.
func NewWebhookEventStore(db *gorm.DB) webhook.Repository {
	return &webhookEventStore{db: db}
}

func (a *webhookEventStore) CreateIfAbsent(ctx context.Context, e *webhook.Event) (*webhook.Event, bool, error) {
	ent, err := entity.FromDomainWebhookEvent(e)
	if err != nil {
		return nil, false, fmt.Errorf("encode webhook event: %w", err)
	}

	res := a.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "external_event_id"}},
			DoNothing: true,
		}).
		Create(ent)
	if res.Error != nil {
		return nil, false, fmt.Errorf("create webhook event: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return e, true, nil
	}

	var existing entity.WebhookEventEntity
	err = a.db.WithContext(ctx).
		Where("provider = ? AND external_event_id = ?", e.Provider, e.ExternalEventID).
		First(&existing).Error
	if err != nil {
		return nil, false, fmt.Errorf("get existing webhook event: %w", err)
	}
	stored, err := existing.ToDomain()
	if err != nil {
		return nil, false, fmt.Errorf("decode webhook event: %w", err)
	}
	return stored, false, nil
}

func (a *webhookEventStore) FindByID(ctx context.Context, id uuid.UUID) (*webhook.Event, error) {
	var ent entity.WebhookEventEntity
	if err := a.db.WithContext(ctx).First(&ent, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, webhook.ErrEventNotFound
		}
		return nil, fmt.Errorf("get webhook event: %w", err)
	}
	e, err := ent.ToDomain()
	if err != nil {
		return nil, fmt.Errorf("decode webhook event: %w", err)
	}
	return e, nil
}

func (a *webhookEventStore) FindDue(ctx context.Context, now, staleBefore time.Time, limit int) ([]*webhook.Event, error) {
	var entities []*entity.WebhookEventEntity
	err := a.db.WithContext(ctx).
		Where("(status = ? AND next_retry_at <= ?) OR (status IN ? AND updated_at <= ?)",
			webhook.StatusRetrying, now,
			[]webhook.Status{webhook.StatusPending, webhook.StatusProcessing}, staleBefore,
		).
		Order("COALESCE(next_retry_at, updated_at) ASC").
		Limit(limit).
		Find(&entities).Error
	if err != nil {
		return nil, fmt.Errorf("find due webhook events: %w", err)
	}
	return toDomainEvents(entities)
}

func (a *webhookEventStore) Update(ctx context.Context, e *webhook.Event) error {
	res := a.db.WithContext(ctx).
		Model(&entity.WebhookEventEntity{}).
		Where("id = ? AND version = ?", e.ID, e.Version).
		Updates(map[string]interface{}{
			"status":        e.Status,
			"retry_count":   e.RetryCount,
			"next_retry_at": e.NextRetryAt,
			"last_error":    e.LastError,
			"processed_at":  e.ProcessedAt,
			"replay_count":  e.ReplayCount,
			"updated_at":    e.UpdatedAt,
			"version":       e.Version + 1,
		})
	if res.Error != nil {
		return fmt.Errorf("update webhook event: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return webhook.ErrEventClaimed
	}
	e.Version++
	return nil
}

func (a *webhookEventStore) ListByStatus(ctx context.Context, status webhook.Status, offset, limit int) ([]*webhook.Event, int64, error) {
	query := a.db.WithContext(ctx).Model(&entity.WebhookEventEntity{}).Where("status = ?", status)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count webhook events: %w", err)
	}

	var entities []*entity.WebhookEventEntity
	if err := query.Order("updated_at DESC").Offset(offset).Limit(limit).Find(&entities).Error; err != nil {
		return nil, 0, fmt.Errorf("list webhook events: %w", err)
	}
	events, err := toDomainEvents(entities)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

func toDomainEvents(entities []*entity.WebhookEventEntity) ([]*webhook.Event, error) {
	events := make([]*webhook.Event, len(entities))
	for i, ent := range entities {
		e, err := ent.ToDomain()
		if err != nil {
			return nil, fmt.Errorf("decode webhook event %s: %w", ent.ID, err)
		}
		events[i] = e
	}
	return events, nil
}

// Compile-time check
var _ webhook.Repository = (*webhookEventStore)(nil)
