package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/studio-homework-api/internal/models"
)

// HomeworkRepository exposes read operations over the curriculum catalog.
type HomeworkRepository interface {
	GetByID(ctx context.Context, id uint) (models.Homework, error)
	ListModules(ctx context.Context) ([]models.TrainingModule, error)
}

type homeworkRepository struct {
	db *gorm.DB
}

// NewHomeworkRepository constructs a homework catalog repository.
func NewHomeworkRepository(db *gorm.DB) HomeworkRepository {
	return &homeworkRepository{db: db}
}

func (r *homeworkRepository) GetByID(ctx context.Context, id uint) (models.Homework, error) {
	var homework models.Homework
	if err := conn(ctx, r.db).Preload("Module").First(&homework, id).Error; err != nil {
		return models.Homework{}, err
	}

	return homework, nil
}

func (r *homeworkRepository) ListModules(ctx context.Context) ([]models.TrainingModule, error) {
	var modules []models.TrainingModule
	if err := conn(ctx, r.db).
		Preload("Homeworks", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		Order("sequence ASC").
		Order("id ASC").
		Find(&modules).Error; err != nil {
		return nil, err
	}

	return modules, nil
}
