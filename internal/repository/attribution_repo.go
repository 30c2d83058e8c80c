package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/studio-homework-api/internal/models"
)

// AttributionEventRepository appends attribution events and aggregates them.
type AttributionEventRepository interface {
	Create(ctx context.Context, event *models.AttributionEvent) error
	CountByKind(ctx context.Context, trackingCode string) (map[models.AttributionKind]int64, error)
}

type attributionEventRepository struct {
	db *gorm.DB
}

// NewAttributionEventRepository constructs the event repository.
func NewAttributionEventRepository(db *gorm.DB) AttributionEventRepository {
	return &attributionEventRepository{db: db}
}

func (r *attributionEventRepository) Create(ctx context.Context, event *models.AttributionEvent) error {
	return conn(ctx, r.db).Create(event).Error
}

func (r *attributionEventRepository) CountByKind(ctx context.Context, trackingCode string) (map[models.AttributionKind]int64, error) {
	var rows []struct {
		Kind  string
		Total int64
	}

	if err := conn(ctx, r.db).Model(&models.AttributionEvent{}).
		Select("kind, COUNT(*) AS total").
		Where("tracking_code = ?", trackingCode).
		Group("kind").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[models.AttributionKind]int64, len(rows))
	for _, row := range rows {
		counts[models.AttributionKind(row.Kind)] = row.Total
	}

	return counts, nil
}
