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

// AttributionLedger records clicks and conversions against tracking codes.
type AttributionLedger interface {
	RecordEvent(ctx context.Context, trackingCode string, kind models.AttributionKind) (dto.AttributionResult, error)
	StatsFor(ctx context.Context, trackingCode string) (dto.TrackingStatsResponse, error)
	Reconcile(ctx context.Context, trackingCode string) (dto.ReconcileReport, error)
}

type attributionLedger struct {
	submissions repository.SubmissionRepository
	events      repository.AttributionEventRepository
	uow         repository.UnitOfWork
	flows       FlowRegistry
	publisher   EventPublisher
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewAttributionLedger constructs the ledger. Running counters on the
// submission are written in the same transaction as the event row.
func NewAttributionLedger(
	submissions repository.SubmissionRepository,
	events repository.AttributionEventRepository,
	uow repository.UnitOfWork,
	flows FlowRegistry,
	publisher EventPublisher,
	logger zerolog.Logger,
) AttributionLedger {
	return &attributionLedger{
		submissions: submissions,
		events:      events,
		uow:         uow,
		flows:       flows,
		publisher:   publisher,
		logger:      logger.With().Str("component", "attribution_ledger").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/studio-homework-api/internal/service/attribution"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// RecordEvent attributes one event. ErrUnknownTrackingCode is returned
// alongside a non-attributed result so callers can treat it as a miss.
func (l *attributionLedger) RecordEvent(ctx context.Context, trackingCode string, kind models.AttributionKind) (dto.AttributionResult, error) {
	code := strings.TrimSpace(trackingCode)
	result := dto.AttributionResult{TrackingCode: code, Kind: string(kind)}

	if _, ok := models.ParseAttributionKind(string(kind)); !ok {
		return result, fmt.Errorf("unsupported attribution kind %q", kind)
	}

	spanCtx, span := l.tracer.Start(ctx, "attribution.record_event", trace.WithAttributes(
		attribute.String("attribution.tracking_code", code),
		attribute.String("attribution.kind", string(kind)),
	))
	defer span.End()

	var submission models.HomeworkSubmission
	err := l.uow.WithinTx(spanCtx, func(txCtx context.Context) error {
		var err error
		submission, err = l.submissions.GetByTrackingCode(txCtx, code)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUnknownTrackingCode
			}
			return err
		}

		event := models.AttributionEvent{
			TrackingCode: submission.TrackingCode,
			SubmissionID: submission.ID,
			FlowID:       submission.AttachedFlowID,
			Kind:         kind,
			OccurredAt:   l.now(),
		}
		if err := l.events.Create(txCtx, &event); err != nil {
			return fmt.Errorf("failed to append attribution event: %w", err)
		}

		if err := l.submissions.IncrementAttribution(txCtx, submission.ID, kind); err != nil {
			return fmt.Errorf("failed to update attribution counter: %w", err)
		}

		if kind == models.AttributionConversion && submission.AttachedFlowID != nil {
			err := l.flows.RecordBooking(txCtx, *submission.AttachedFlowID)
			switch {
			case errors.Is(err, ErrFlowNotFound):
				l.logger.Warn().
					Uint("flow_id", *submission.AttachedFlowID).
					Str("tracking_code", submission.TrackingCode).
					Msg("attached flow missing, booking not counted")
			case err != nil:
				return err
			}
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUnknownTrackingCode) {
			observability.AttributionEvents().WithLabelValues(string(kind), "unknown_code").Inc()
			l.logger.Warn().Str("tracking_code", code).Str("kind", string(kind)).Msg("attribution event for unknown tracking code")
			return result, ErrUnknownTrackingCode
		}
		span.RecordError(err)
		observability.AttributionEvents().WithLabelValues(string(kind), "error").Inc()
		return result, err
	}

	result.Attributed = true
	result.SubmissionID = submission.ID
	result.FlowID = submission.AttachedFlowID

	observability.AttributionEvents().WithLabelValues(string(kind), "recorded").Inc()
	if l.publisher != nil {
		l.publisher.Publish(spanCtx, HomeworkEvent{
			Type:         EventAttributionRecorded,
			TeacherID:    submission.TeacherID,
			SubmissionID: submission.ID,
			HomeworkID:   submission.HomeworkID,
			TrackingCode: submission.TrackingCode,
			FlowID:       submission.AttachedFlowID,
			Kind:         string(kind),
		})
	}

	return result, nil
}

func (l *attributionLedger) StatsFor(ctx context.Context, trackingCode string) (dto.TrackingStatsResponse, error) {
	submission, err := l.resolve(ctx, trackingCode)
	if err != nil {
		return dto.TrackingStatsResponse{}, err
	}

	return dto.TrackingStatsResponse{
		TrackingCode: submission.TrackingCode,
		SubmissionID: submission.ID,
		TeacherID:    submission.TeacherID,
		Clicks:       submission.ClickCount,
		Conversions:  submission.ConversionCount,
	}, nil
}

// Reconcile recomputes the counts from the event log and compares them with
// the running counters.
func (l *attributionLedger) Reconcile(ctx context.Context, trackingCode string) (dto.ReconcileReport, error) {
	submission, err := l.resolve(ctx, trackingCode)
	if err != nil {
		return dto.ReconcileReport{}, err
	}

	counts, err := l.events.CountByKind(ctx, submission.TrackingCode)
	if err != nil {
		return dto.ReconcileReport{}, fmt.Errorf("failed to count attribution events: %w", err)
	}

	report := dto.ReconcileReport{
		TrackingCode:       submission.TrackingCode,
		CounterClicks:      submission.ClickCount,
		CounterConversions: submission.ConversionCount,
		EventClicks:        counts[models.AttributionClick],
		EventConversions:   counts[models.AttributionConversion],
	}
	report.Consistent = report.CounterClicks == report.EventClicks && report.CounterConversions == report.EventConversions

	if !report.Consistent {
		l.logger.Error().
			Str("tracking_code", report.TrackingCode).
			Int64("counter_clicks", report.CounterClicks).
			Int64("event_clicks", report.EventClicks).
			Int64("counter_conversions", report.CounterConversions).
			Int64("event_conversions", report.EventConversions).
			Msg("attribution counters diverged from event log")
	}

	return report, nil
}

func (l *attributionLedger) resolve(ctx context.Context, trackingCode string) (models.HomeworkSubmission, error) {
	submission, err := l.submissions.GetByTrackingCode(ctx, strings.TrimSpace(trackingCode))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.HomeworkSubmission{}, ErrUnknownTrackingCode
		}
		return models.HomeworkSubmission{}, fmt.Errorf("failed to resolve tracking code: %w", err)
	}

	return submission, nil
}
