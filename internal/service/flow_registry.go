package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/studio-homework-api/internal/dto"
	"github.com/noah-isme/studio-homework-api/internal/models"
	"github.com/noah-isme/studio-homework-api/internal/observability"
	"github.com/noah-isme/studio-homework-api/internal/repository"
)

// FlowRegistry owns automation flows and their trigger/booking counters.
type FlowRegistry interface {
	Get(ctx context.Context, flowID uint) (models.AutomationFlow, error)
	ListByTeacher(ctx context.Context, teacherID uint) ([]dto.FlowResponse, error)
	Create(ctx context.Context, teacherID uint, payload dto.FlowCreateRequest) (dto.FlowResponse, error)
	SetActive(ctx context.Context, teacherID, flowID uint, active bool) (dto.FlowResponse, error)
	AssertOwnership(ctx context.Context, flowID, teacherID uint) (models.AutomationFlow, error)
	RecordTrigger(ctx context.Context, flowID uint) error
	HandleInbound(ctx context.Context, flowID uint, text string) (bool, error)
	RecordBooking(ctx context.Context, flowID uint) error
}

type flowRegistry struct {
	flows     repository.FlowRepository
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewFlowRegistry constructs the flow registry.
func NewFlowRegistry(flows repository.FlowRepository, validate *validator.Validate, logger zerolog.Logger) FlowRegistry {
	return &flowRegistry{
		flows:     flows,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "flow_registry").Logger(),
	}
}

func (r *flowRegistry) Get(ctx context.Context, flowID uint) (models.AutomationFlow, error) {
	flow, err := r.flows.GetByID(ctx, flowID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.AutomationFlow{}, ErrFlowNotFound
		}
		return models.AutomationFlow{}, fmt.Errorf("failed to load flow %d: %w", flowID, err)
	}

	return flow, nil
}

func (r *flowRegistry) ListByTeacher(ctx context.Context, teacherID uint) ([]dto.FlowResponse, error) {
	flows, err := r.flows.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}

	return dto.NewFlowResponseSlice(flows), nil
}

func (r *flowRegistry) Create(ctx context.Context, teacherID uint, payload dto.FlowCreateRequest) (dto.FlowResponse, error) {
	if err := r.validator.Struct(payload); err != nil {
		return dto.FlowResponse{}, err
	}

	triggerType, ok := models.ParseTriggerType(payload.TriggerType)
	if !ok {
		return dto.FlowResponse{}, ErrInvalidTriggerType
	}

	name := strings.TrimSpace(r.sanitizer.Sanitize(payload.Name))
	if name == "" {
		return dto.FlowResponse{}, errors.New("flow name empty after sanitization")
	}

	flow := models.AutomationFlow{
		TeacherID:       teacherID,
		SocialAccountID: strings.TrimSpace(payload.SocialAccountID),
		Name:            name,
		TriggerType:     triggerType,
		ResponseMessage: strings.TrimSpace(r.sanitizer.Sanitize(payload.ResponseMessage)),
		IsActive:        true,
	}
	flow.SetKeywords(payload.Keywords)

	if triggerType.RequiresKeywords() && len(flow.KeywordList()) == 0 {
		return dto.FlowResponse{}, fmt.Errorf("%w: %s requires at least one keyword", ErrInvalidTriggerType, triggerType)
	}

	if err := r.flows.Create(ctx, &flow); err != nil {
		return dto.FlowResponse{}, err
	}

	r.logger.Info().Uint("flow_id", flow.ID).Uint("teacher_id", teacherID).Str("trigger_type", string(triggerType)).Msg("flow created")

	return dto.NewFlowResponse(flow), nil
}

func (r *flowRegistry) SetActive(ctx context.Context, teacherID, flowID uint, active bool) (dto.FlowResponse, error) {
	flow, err := r.AssertOwnership(ctx, flowID, teacherID)
	if err != nil {
		return dto.FlowResponse{}, err
	}

	if err := r.flows.SetActive(ctx, flowID, active); err != nil {
		return dto.FlowResponse{}, err
	}
	flow.IsActive = active

	return dto.NewFlowResponse(flow), nil
}

func (r *flowRegistry) AssertOwnership(ctx context.Context, flowID, teacherID uint) (models.AutomationFlow, error) {
	flow, err := r.Get(ctx, flowID)
	if err != nil {
		return models.AutomationFlow{}, err
	}

	if flow.TeacherID != teacherID {
		return models.AutomationFlow{}, ErrFlowOwnershipMismatch
	}

	return flow, nil
}

// RecordTrigger counts one trigger. Deduplicating webhook deliveries is the caller's job.
func (r *flowRegistry) RecordTrigger(ctx context.Context, flowID uint) error {
	changed, err := r.flows.IncrementTriggered(ctx, flowID)
	if err != nil {
		return fmt.Errorf("failed to record trigger for flow %d: %w", flowID, err)
	}
	if !changed {
		observability.FlowTriggers().WithLabelValues("unknown_flow").Inc()
		return ErrFlowNotFound
	}

	observability.FlowTriggers().WithLabelValues("recorded").Inc()
	return nil
}

// HandleInbound counts a platform-fired trigger. Raw event text, when present,
// must still match the flow before it is counted.
func (r *flowRegistry) HandleInbound(ctx context.Context, flowID uint, text string) (bool, error) {
	if strings.TrimSpace(text) == "" {
		if err := r.RecordTrigger(ctx, flowID); err != nil {
			return false, err
		}
		return true, nil
	}

	flow, err := r.Get(ctx, flowID)
	if err != nil {
		return false, err
	}

	if !flow.Matches(text) {
		observability.FlowTriggers().WithLabelValues("ignored").Inc()
		r.logger.Debug().Uint("flow_id", flowID).Bool("active", flow.IsActive).Msg("inbound event did not match flow")
		return false, nil
	}

	if err := r.RecordTrigger(ctx, flowID); err != nil {
		return false, err
	}

	return true, nil
}

func (r *flowRegistry) RecordBooking(ctx context.Context, flowID uint) error {
	changed, err := r.flows.IncrementBooked(ctx, flowID)
	if err != nil {
		return fmt.Errorf("failed to record booking for flow %d: %w", flowID, err)
	}
	if !changed {
		return ErrFlowNotFound
	}

	return nil
}
