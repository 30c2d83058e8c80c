package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/studio-homework-api/internal/models"
)

// FlowRepository persists automation flows and their counters.
type FlowRepository interface {
	Create(ctx context.Context, flow *models.AutomationFlow) error
	GetByID(ctx context.Context, id uint) (models.AutomationFlow, error)
	ListByTeacher(ctx context.Context, teacherID uint) ([]models.AutomationFlow, error)
	SetActive(ctx context.Context, id uint, active bool) error
	IncrementTriggered(ctx context.Context, id uint) (bool, error)
	IncrementBooked(ctx context.Context, id uint) (bool, error)
}

type flowRepository struct {
	db *gorm.DB
}

// NewFlowRepository constructs a flow repository.
func NewFlowRepository(db *gorm.DB) FlowRepository {
	return &flowRepository{db: db}
}

func (r *flowRepository) Create(ctx context.Context, flow *models.AutomationFlow) error {
	return conn(ctx, r.db).Create(flow).Error
}

func (r *flowRepository) GetByID(ctx context.Context, id uint) (models.AutomationFlow, error) {
	var flow models.AutomationFlow
	if err := conn(ctx, r.db).First(&flow, id).Error; err != nil {
		return models.AutomationFlow{}, err
	}

	return flow, nil
}

func (r *flowRepository) ListByTeacher(ctx context.Context, teacherID uint) ([]models.AutomationFlow, error) {
	var flows []models.AutomationFlow
	if err := conn(ctx, r.db).
		Where("teacher_id = ?", teacherID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&flows).Error; err != nil {
		return nil, err
	}

	return flows, nil
}

func (r *flowRepository) SetActive(ctx context.Context, id uint, active bool) error {
	return conn(ctx, r.db).Model(&models.AutomationFlow{}).
		Where("id = ?", id).
		Update("is_active", active).Error
}

func (r *flowRepository) IncrementTriggered(ctx context.Context, id uint) (bool, error) {
	return r.increment(ctx, id, "total_triggered")
}

func (r *flowRepository) IncrementBooked(ctx context.Context, id uint) (bool, error) {
	return r.increment(ctx, id, "total_booked")
}

func (r *flowRepository) increment(ctx context.Context, id uint, column string) (bool, error) {
	result := conn(ctx, r.db).Model(&models.AutomationFlow{}).
		Where("id = ?", id).
		UpdateColumn(column, gorm.Expr(column+" + ?", 1))
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}
