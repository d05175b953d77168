package db

import (
	"fmt"

	"github.com/campuspay/subsidy-engine/internal/models"
	"gorm.io/gorm"
)

// Migrate creates or updates the engine's tables.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	return conn.AutoMigrate(
		&models.SubsidyRule{},
		&models.SubsidyRuleCondition{},
		&models.SubsidyRuleLog{},
		&models.UserSubsidyRecord{},
		&models.Account{},
	)
}
