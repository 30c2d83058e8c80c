package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/studio-homework-api/internal/models"
)

// SubmissionRepository defines data operations for homework submissions.
//
// State changes are conditional on the row still being active so that a
// concurrent transition is never overwritten; the boolean result reports
// whether the row was changed.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.HomeworkSubmission) error
	GetByID(ctx context.Context, id uint) (models.HomeworkSubmission, error)
	GetByIDForUpdate(ctx context.Context, id uint) (models.HomeworkSubmission, error)
	GetByTrackingCode(ctx context.Context, code string) (models.HomeworkSubmission, error)
	FindActiveByTeacher(ctx context.Context, teacherID uint) (models.HomeworkSubmission, error)
	LatestForTeacherHomework(ctx context.Context, teacherID, homeworkID uint) (models.HomeworkSubmission, error)
	ListByTeacher(ctx context.Context, teacherID uint) ([]models.HomeworkSubmission, error)
	ListProgress(ctx context.Context, submissionID uint) ([]models.SubmissionProgress, error)
	IncrementProgress(ctx context.Context, submissionID uint, metric string, delta int64) error
	Transition(ctx context.Context, id uint, to models.SubmissionStatus, at time.Time) (bool, error)
	UpdateEvidence(ctx context.Context, id uint, urls datatypes.JSON) (bool, error)
	UpdateAttachedFlow(ctx context.Context, id uint, flowID *uint) (bool, error)
	IncrementAttribution(ctx context.Context, id uint, kind models.AttributionKind) error
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) baseQuery(ctx context.Context) *gorm.DB {
	return conn(ctx, r.db).Model(&models.HomeworkSubmission{}).
		Preload("Homework").
		Preload("Homework.Module").
		Preload("Progress")
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.HomeworkSubmission) error {
	return conn(ctx, r.db).Omit(clause.Associations).Create(submission).Error
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.HomeworkSubmission, error) {
	var submission models.HomeworkSubmission
	if err := r.baseQuery(ctx).First(&submission, id).Error; err != nil {
		return models.HomeworkSubmission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) GetByIDForUpdate(ctx context.Context, id uint) (models.HomeworkSubmission, error) {
	var submission models.HomeworkSubmission
	if err := conn(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&submission, id).Error; err != nil {
		return models.HomeworkSubmission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) GetByTrackingCode(ctx context.Context, code string) (models.HomeworkSubmission, error) {
	var submission models.HomeworkSubmission
	if err := conn(ctx, r.db).
		Where("tracking_code = ?", code).
		First(&submission).Error; err != nil {
		return models.HomeworkSubmission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) FindActiveByTeacher(ctx context.Context, teacherID uint) (models.HomeworkSubmission, error) {
	var submission models.HomeworkSubmission
	if err := conn(ctx, r.db).
		Where("teacher_id = ?", teacherID).
		Where("status = ?", string(models.SubmissionStatusActive)).
		First(&submission).Error; err != nil {
		return models.HomeworkSubmission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) LatestForTeacherHomework(ctx context.Context, teacherID, homeworkID uint) (models.HomeworkSubmission, error) {
	var submission models.HomeworkSubmission
	if err := conn(ctx, r.db).
		Where("teacher_id = ?", teacherID).
		Where("homework_id = ?", homeworkID).
		Order("id DESC").
		First(&submission).Error; err != nil {
		return models.HomeworkSubmission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) ListByTeacher(ctx context.Context, teacherID uint) ([]models.HomeworkSubmission, error) {
	var submissions []models.HomeworkSubmission
	if err := r.baseQuery(ctx).
		Where("teacher_id = ?", teacherID).
		Order("started_at DESC").
		Order("id DESC").
		Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

func (r *submissionRepository) ListProgress(ctx context.Context, submissionID uint) ([]models.SubmissionProgress, error) {
	var rows []models.SubmissionProgress
	if err := conn(ctx, r.db).
		Where("submission_id = ?", submissionID).
		Order("metric ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	return rows, nil
}

// IncrementProgress adds delta in place so concurrent deliveries never lose updates.
func (r *submissionRepository) IncrementProgress(ctx context.Context, submissionID uint, metric string, delta int64) error {
	row := models.SubmissionProgress{
		SubmissionID: submissionID,
		Metric:       metric,
		Total:        delta,
	}

	return conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "submission_id"}, {Name: "metric"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"total":      gorm.Expr("submission_progress.total + ?", delta),
			"updated_at": time.Now().UTC(),
		}),
	}).Create(&row).Error
}

func (r *submissionRepository) Transition(ctx context.Context, id uint, to models.SubmissionStatus, at time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":            string(to),
		"active_teacher_id": nil,
		"updated_at":        at,
	}

	switch to {
	case models.SubmissionStatusCompleted:
		updates["completed_at"] = at
	case models.SubmissionStatusCancelled:
		updates["cancelled_at"] = at
	case models.SubmissionStatusActive:
		return false, fmt.Errorf("cannot transition submission %d back to active", id)
	}

	result := r.activeRow(ctx, id).Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}

func (r *submissionRepository) UpdateEvidence(ctx context.Context, id uint, urls datatypes.JSON) (bool, error) {
	result := r.activeRow(ctx, id).Updates(map[string]interface{}{
		"submission_urls": urls,
		"updated_at":      time.Now().UTC(),
	})
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}

func (r *submissionRepository) UpdateAttachedFlow(ctx context.Context, id uint, flowID *uint) (bool, error) {
	var value interface{}
	if flowID != nil {
		value = *flowID
	}

	result := r.activeRow(ctx, id).Updates(map[string]interface{}{
		"attached_flow_id": value,
		"updated_at":       time.Now().UTC(),
	})
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}

func (r *submissionRepository) IncrementAttribution(ctx context.Context, id uint, kind models.AttributionKind) error {
	var column string
	switch kind {
	case models.AttributionClick:
		column = "click_count"
	case models.AttributionConversion:
		column = "conversion_count"
	default:
		return fmt.Errorf("unsupported attribution kind %q", kind)
	}

	return conn(ctx, r.db).Model(&models.HomeworkSubmission{}).
		Where("id = ?", id).
		UpdateColumn(column, gorm.Expr(column+" + ?", 1)).Error
}

func (r *submissionRepository) activeRow(ctx context.Context, id uint) *gorm.DB {
	return conn(ctx, r.db).Model(&models.HomeworkSubmission{}).
		Where("id = ?", id).
		Where("status = ?", string(models.SubmissionStatusActive))
}
