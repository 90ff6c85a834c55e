package migrate

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/oneman/oneman-backend/pkg/db/models"
)

// Models lists every persisted model in dependency order.
func Models() []any {
	return []any{
		&models.User{},
		&models.GroupRecord{},
		&models.GroupMember{},
		&models.GroupMessage{},
		&models.MaterialTransfer{},
		&models.OutboxEvent{},
	}
}

// AutoMigrateModels builds the schema from the gorm models. It backs the sqlite
// driver, where the Postgres SQL migrations do not apply.
func AutoMigrateModels(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
