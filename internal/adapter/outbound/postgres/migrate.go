package postgres

import (
	"fmt"

	"github.com/uniedit/payflow/internal/infra/persistence/entity"
	"gorm.io/gorm"
)

// AutoMigrate creates or updates the payments, payment_transactions,
// webhook_events and idempotency_keys tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(entity.All()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
