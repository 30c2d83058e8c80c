package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/studio-homework-api/internal/models"
)

// Migrate creates or updates every table owned by the homework engine.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.TrainingModule{},
		&models.Homework{},
		&models.AutomationFlow{},
		&models.HomeworkSubmission{},
		&models.SubmissionProgress{},
		&models.AttributionEvent{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}
