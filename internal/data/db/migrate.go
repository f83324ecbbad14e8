package db

import (
	"gorm.io/gorm"

	"github.com/yungbote/provenance-updater/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.FailedMessage{},
	)
}
