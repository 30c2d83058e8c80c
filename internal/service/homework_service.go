package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/studio-homework-api/internal/dto"
	"github.com/noah-isme/studio-homework-api/internal/models"
	"github.com/noah-isme/studio-homework-api/internal/observability"
	"github.com/noah-isme/studio-homework-api/internal/repository"
)

const (
	defaultMaxEvidenceLinks = 20
	defaultMaxCodeAttempts  = 5
)

// HomeworkService drives the submission lifecycle:
// none -> active -> completed | cancelled, with restart creating a new active attempt.
type HomeworkService interface {
	Start(ctx context.Context, teacherID, homeworkID uint, flowID *uint) (dto.SubmissionResponse, error)
	Restart(ctx context.Context, teacherID, homeworkID uint, flowID *uint) (dto.SubmissionResponse, error)
	RecordProgress(ctx context.Context, submissionID uint, metric string, delta int64) (dto.SubmissionResponse, error)
	SaveEvidence(ctx context.Context, teacherID, submissionID uint, urls []string) (dto.SubmissionResponse, error)
	AttachFlow(ctx context.Context, teacherID, submissionID uint, flowID *uint) (dto.SubmissionResponse, error)
	Cancel(ctx context.Context, teacherID, submissionID uint) (dto.SubmissionResponse, error)
	Get(ctx context.Context, teacherID, submissionID uint) (dto.SubmissionResponse, error)
	ListForTeacher(ctx context.Context, teacherID uint) (dto.TeacherSubmissionsResponse, error)
}

// HomeworkServiceConfig bounds evidence lists and tracking code retries.
type HomeworkServiceConfig struct {
	MaxEvidenceLinks int
	MaxCodeAttempts  int
}

type homeworkService struct {
	submissions repository.SubmissionRepository
	uow         repository.UnitOfWork
	catalog     HomeworkCatalog
	flows       FlowRegistry
	codes       TrackingCodeGenerator
	events      EventPublisher
	maxEvidence int
	maxAttempts int
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewHomeworkService wires the submission engine.
func NewHomeworkService(
	submissions repository.SubmissionRepository,
	uow repository.UnitOfWork,
	catalog HomeworkCatalog,
	flows FlowRegistry,
	codes TrackingCodeGenerator,
	events EventPublisher,
	cfg HomeworkServiceConfig,
	logger zerolog.Logger,
) HomeworkService {
	maxEvidence := cfg.MaxEvidenceLinks
	if maxEvidence <= 0 {
		maxEvidence = defaultMaxEvidenceLinks
	}
	maxAttempts := cfg.MaxCodeAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxCodeAttempts
	}

	return &homeworkService{
		submissions: submissions,
		uow:         uow,
		catalog:     catalog,
		flows:       flows,
		codes:       codes,
		events:      events,
		maxEvidence: maxEvidence,
		maxAttempts: maxAttempts,
		logger:      logger.With().Str("component", "homework_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/studio-homework-api/internal/service/homework"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *homeworkService) Start(ctx context.Context, teacherID, homeworkID uint, flowID *uint) (dto.SubmissionResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "homework.start", trace.WithAttributes(
		attribute.Int64("homework.teacher_id", int64(teacherID)),
		attribute.Int64("homework.id", int64(homeworkID)),
	))
	defer span.End()

	response, err := s.create(spanCtx, teacherID, homeworkID, flowID, nil)
	if err != nil {
		span.RecordError(err)
		return dto.SubmissionResponse{}, err
	}

	observability.HomeworkTransitions().WithLabelValues("started").Inc()
	s.publish(spanCtx, EventHomeworkStarted, response)
	s.logger.Info().Uint("teacher_id", teacherID).Uint("submission_id", response.ID).Uint("homework_id", homeworkID).Msg("homework started")

	return response, nil
}

func (s *homeworkService) Restart(ctx context.Context, teacherID, homeworkID uint, flowID *uint) (dto.SubmissionResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "homework.restart", trace.WithAttributes(
		attribute.Int64("homework.teacher_id", int64(teacherID)),
		attribute.Int64("homework.id", int64(homeworkID)),
	))
	defer span.End()

	latest, err := s.submissions.LatestForTeacherHomework(spanCtx, teacherID, homeworkID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrRestartNotAllowed
		}
		span.RecordError(err)
		return dto.SubmissionResponse{}, fmt.Errorf("failed to load previous submission: %w", err)
	}
	if latest.Status != models.SubmissionStatusCancelled {
		return dto.SubmissionResponse{}, ErrRestartNotAllowed
	}

	previousID := latest.ID
	response, err := s.create(spanCtx, teacherID, homeworkID, flowID, &previousID)
	if err != nil {
		span.RecordError(err)
		return dto.SubmissionResponse{}, err
	}

	observability.HomeworkTransitions().WithLabelValues("restarted").Inc()
	s.publish(spanCtx, EventHomeworkRestarted, response)
	s.logger.Info().Uint("teacher_id", teacherID).Uint("submission_id", response.ID).Uint("supersedes_id", previousID).Msg("homework restarted")

	return response, nil
}

// create inserts a new active submission. The unique index on
// active_teacher_id settles races between concurrent starts; a collision on
// the tracking code is retried with a fresh code.
func (s *homeworkService) create(ctx context.Context, teacherID, homeworkID uint, flowID *uint, supersedes *uint) (dto.SubmissionResponse, error) {
	homework, err := s.catalog.GetHomework(ctx, homeworkID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	if flowID != nil {
		if _, err := s.flows.AssertOwnership(ctx, *flowID, teacherID); err != nil {
			return dto.SubmissionResponse{}, err
		}
	}

	if err := s.ensureNoActive(ctx, teacherID); err != nil {
		return dto.SubmissionResponse{}, err
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		link, err := s.codes.Generate(ctx, teacherID)
		if err != nil {
			return dto.SubmissionResponse{}, err
		}

		activeTeacher := teacherID
		submission := models.HomeworkSubmission{
			TeacherID:       teacherID,
			HomeworkID:      homework.ID,
			Status:          models.SubmissionStatusActive,
			ActiveTeacherID: &activeTeacher,
			TrackingCode:    link.Code,
			TrackingURL:     link.URL,
			AttachedFlowID:  flowID,
			SupersedesID:    supersedes,
			StartedAt:       s.now(),
		}
		submission.SetEvidence(nil)

		err = s.submissions.Create(ctx, &submission)
		if err == nil {
			return dto.NewSubmissionResponse(submission, homework), nil
		}
		if !repository.IsDuplicateKey(err) {
			return dto.SubmissionResponse{}, fmt.Errorf("failed to create submission: %w", err)
		}

		if err := s.ensureNoActive(ctx, teacherID); err != nil {
			return dto.SubmissionResponse{}, err
		}

		s.logger.Warn().Uint("teacher_id", teacherID).Int("attempt", attempt).Msg("tracking code collision, retrying")
	}

	return dto.SubmissionResponse{}, ErrCodeGenerationExhausted
}

func (s *homeworkService) ensureNoActive(ctx context.Context, teacherID uint) error {
	_, err := s.submissions.FindActiveByTeacher(ctx, teacherID)
	if err == nil {
		return ErrActiveHomeworkExists
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}

	return fmt.Errorf("failed to check active homework: %w", err)
}

// RecordProgress adds delta to one metric and completes the submission once
// every requirement is met. Completion never records a booking.
func (s *homeworkService) RecordProgress(ctx context.Context, submissionID uint, metric string, delta int64) (dto.SubmissionResponse, error) {
	metric = strings.TrimSpace(metric)
	if delta < 0 || delta > models.MaxProgressDelta {
		return dto.SubmissionResponse{}, ErrInvalidProgressDelta
	}

	spanCtx, span := s.tracer.Start(ctx, "homework.record_progress", trace.WithAttributes(
		attribute.Int64("homework.submission_id", int64(submissionID)),
		attribute.String("homework.metric", metric),
		attribute.Int64("homework.delta", delta),
	))
	defer span.End()

	var (
		submission models.HomeworkSubmission
		homework   models.Homework
		completed  bool
	)

	err := s.uow.WithinTx(spanCtx, func(txCtx context.Context) error {
		var err error
		submission, err = s.submissions.GetByIDForUpdate(txCtx, submissionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSubmissionNotFound
			}
			return err
		}
		if !submission.IsActive() {
			return ErrSubmissionNotActive
		}

		homework, err = s.catalog.GetHomework(txCtx, submission.HomeworkID)
		if err != nil {
			return err
		}

		requirements := homework.RequirementList()
		if len(requirements) > 0 && !homework.TracksMetric(metric) {
			return ErrUnknownProgressMetric
		}

		current, err := s.submissions.ListProgress(txCtx, submissionID)
		if err != nil {
			return err
		}
		submission.Progress = current
		if submission.ProgressMap()[metric] > models.MaxProgressTotal-delta {
			return ErrProgressLimitExceeded
		}

		if err := s.submissions.IncrementProgress(txCtx, submissionID, metric, delta); err != nil {
			return fmt.Errorf("failed to increment progress: %w", err)
		}

		submission.Progress, err = s.submissions.ListProgress(txCtx, submissionID)
		if err != nil {
			return err
		}

		if !models.RequirementsMet(requirements, submission.ProgressMap()) {
			return nil
		}

		at := s.now()
		changed, err := s.submissions.Transition(txCtx, submissionID, models.SubmissionStatusCompleted, at)
		if err != nil {
			return fmt.Errorf("failed to complete submission: %w", err)
		}
		if !changed {
			return ErrSubmissionNotActive
		}

		submission.Status = models.SubmissionStatusCompleted
		submission.ActiveTeacherID = nil
		submission.CompletedAt = &at
		completed = true
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return dto.SubmissionResponse{}, err
	}

	response := dto.NewSubmissionResponse(submission, homework)
	if completed {
		observability.HomeworkTransitions().WithLabelValues("completed").Inc()
		s.publish(spanCtx, EventHomeworkCompleted, response)
		s.logger.Info().Uint("teacher_id", submission.TeacherID).Uint("submission_id", submissionID).Int("points", homework.Points).Msg("homework completed")
	}

	return response, nil
}

func (s *homeworkService) SaveEvidence(ctx context.Context, teacherID, submissionID uint, urls []string) (dto.SubmissionResponse, error) {
	cleaned := make([]string, 0, len(urls))
	for _, raw := range urls {
		if value := strings.TrimSpace(raw); value != "" {
			cleaned = append(cleaned, value)
		}
	}
	if len(cleaned) > s.maxEvidence {
		return dto.SubmissionResponse{}, ErrTooManyEvidenceLinks
	}

	submission, err := s.ownedSubmission(ctx, teacherID, submissionID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	if !submission.IsActive() {
		return dto.SubmissionResponse{}, ErrSubmissionNotActive
	}

	submission.SetEvidence(cleaned)
	changed, err := s.submissions.UpdateEvidence(ctx, submissionID, submission.SubmissionURLs)
	if err != nil {
		return dto.SubmissionResponse{}, fmt.Errorf("failed to save evidence: %w", err)
	}
	if !changed {
		return dto.SubmissionResponse{}, ErrSubmissionNotActive
	}

	return dto.NewSubmissionResponse(submission, submission.Homework), nil
}

func (s *homeworkService) AttachFlow(ctx context.Context, teacherID, submissionID uint, flowID *uint) (dto.SubmissionResponse, error) {
	submission, err := s.ownedSubmission(ctx, teacherID, submissionID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	if !submission.IsActive() {
		return dto.SubmissionResponse{}, ErrSubmissionNotActive
	}

	if flowID != nil {
		if _, err := s.flows.AssertOwnership(ctx, *flowID, teacherID); err != nil {
			return dto.SubmissionResponse{}, err
		}
	}

	changed, err := s.submissions.UpdateAttachedFlow(ctx, submissionID, flowID)
	if err != nil {
		return dto.SubmissionResponse{}, fmt.Errorf("failed to attach flow: %w", err)
	}
	if !changed {
		return dto.SubmissionResponse{}, ErrSubmissionNotActive
	}

	submission.AttachedFlowID = flowID
	return dto.NewSubmissionResponse(submission, submission.Homework), nil
}

// Cancel keeps progress and evidence; a second cancel fails without changes.
func (s *homeworkService) Cancel(ctx context.Context, teacherID, submissionID uint) (dto.SubmissionResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "homework.cancel", trace.WithAttributes(
		attribute.Int64("homework.submission_id", int64(submissionID)),
	))
	defer span.End()

	submission, err := s.ownedSubmission(spanCtx, teacherID, submissionID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	if !submission.IsActive() {
		return dto.SubmissionResponse{}, ErrSubmissionNotActive
	}

	at := s.now()
	changed, err := s.submissions.Transition(spanCtx, submissionID, models.SubmissionStatusCancelled, at)
	if err != nil {
		span.RecordError(err)
		return dto.SubmissionResponse{}, fmt.Errorf("failed to cancel submission: %w", err)
	}
	if !changed {
		return dto.SubmissionResponse{}, ErrSubmissionNotActive
	}

	submission.Status = models.SubmissionStatusCancelled
	submission.ActiveTeacherID = nil
	submission.CancelledAt = &at

	response := dto.NewSubmissionResponse(submission, submission.Homework)
	observability.HomeworkTransitions().WithLabelValues("cancelled").Inc()
	s.publish(spanCtx, EventHomeworkCancelled, response)
	s.logger.Info().Uint("teacher_id", teacherID).Uint("submission_id", submissionID).Msg("homework cancelled")

	return response, nil
}

func (s *homeworkService) Get(ctx context.Context, teacherID, submissionID uint) (dto.SubmissionResponse, error) {
	submission, err := s.ownedSubmission(ctx, teacherID, submissionID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	return dto.NewSubmissionResponse(submission, submission.Homework), nil
}

func (s *homeworkService) ListForTeacher(ctx context.Context, teacherID uint) (dto.TeacherSubmissionsResponse, error) {
	submissions, err := s.submissions.ListByTeacher(ctx, teacherID)
	if err != nil {
		return dto.TeacherSubmissionsResponse{}, fmt.Errorf("failed to list submissions: %w", err)
	}

	response := dto.TeacherSubmissionsResponse{
		Submissions: make([]dto.SubmissionResponse, 0, len(submissions)),
	}
	for _, submission := range submissions {
		if submission.IsActive() {
			homeworkID := submission.HomeworkID
			submissionID := submission.ID
			response.ActiveHomeworkID = &homeworkID
			response.ActiveSubmissionID = &submissionID
		}
		response.Submissions = append(response.Submissions, dto.NewSubmissionResponse(submission, submission.Homework))
	}

	return response, nil
}

// ownedSubmission hides other teachers' submissions behind ErrSubmissionNotFound.
func (s *homeworkService) ownedSubmission(ctx context.Context, teacherID, submissionID uint) (models.HomeworkSubmission, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.HomeworkSubmission{}, ErrSubmissionNotFound
		}
		return models.HomeworkSubmission{}, fmt.Errorf("failed to load submission %d: %w", submissionID, err)
	}
	if submission.TeacherID != teacherID {
		return models.HomeworkSubmission{}, ErrSubmissionNotFound
	}

	return submission, nil
}

func (s *homeworkService) publish(ctx context.Context, eventType string, submission dto.SubmissionResponse) {
	if s.events == nil {
		return
	}

	s.events.Publish(ctx, HomeworkEvent{
		Type:         eventType,
		TeacherID:    submission.TeacherID,
		SubmissionID: submission.ID,
		HomeworkID:   submission.HomeworkID,
		TrackingCode: submission.TrackingCode,
		FlowID:       submission.AttachedFlowID,
		OccurredAt:   s.now(),
	})
}
