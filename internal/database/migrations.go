package database

import (
	"gorm.io/gorm"

	"github.com/lazynerd-007/lpv1-sub000/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Notification{},
		&models.NotificationPreference{},
	)
}

// SeedData inserts the bootstrap system account used as the sender identity
// for platform announcements. Regular users are provisioned by the account
// service upstream.
func SeedData(db *gorm.DB) error {
	system := models.User{
		ID:          "system",
		Username:    "system",
		Email:       "system@localhost",
		DisplayName: "System",
		IsAdmin:     true,
		IsActive:    true,
	}

	return db.Where(models.User{ID: system.ID}).Attrs(system).FirstOrCreate(&models.User{}).Error
}
