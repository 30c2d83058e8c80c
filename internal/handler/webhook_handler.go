package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/studio-homework-api/internal/dto"
	"github.com/noah-isme/studio-homework-api/internal/models"
	"github.com/noah-isme/studio-homework-api/internal/service"
	"github.com/noah-isme/studio-homework-api/internal/utils"
)

// WebhookHandler receives social triggers, booking attribution and progress
// reports from the ingestion collaborators.
type WebhookHandler struct {
	flows     service.FlowRegistry
	ledger    service.AttributionLedger
	homework  service.HomeworkService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewWebhookHandler builds a webhook handler instance.
func NewWebhookHandler(flows service.FlowRegistry, ledger service.AttributionLedger, homework service.HomeworkService, validator *validator.Validate, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		flows:     flows,
		ledger:    ledger,
		homework:  homework,
		validator: validator,
		logger:    logger.With().Str("component", "webhook_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *WebhookHandler) Register(router fiber.Router) {
	router.Post("/flows/:id/trigger", h.trigger)
	router.Post("/tracking/:code/click", h.click)
	router.Post("/tracking/:code/conversion", h.conversion)
	router.Post("/submissions/:id/progress", h.progress)
}

func (h *WebhookHandler) trigger(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.FlowTriggerRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
		}
	}
	if err := h.validator.Struct(payload); err != nil {
		return respondError(c, h.logger, err)
	}

	recorded, err := h.flows.HandleInbound(requestContext(c), id, payload.Text)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "trigger received", dto.FlowTriggerResponse{
		FlowID:   id,
		Recorded: recorded,
	})
}

func (h *WebhookHandler) click(c *fiber.Ctx) error {
	return h.attribute(c, models.AttributionClick)
}

func (h *WebhookHandler) conversion(c *fiber.Ctx) error {
	return h.attribute(c, models.AttributionConversion)
}

// attribute never fails the caller on an unknown tracking code.
func (h *WebhookHandler) attribute(c *fiber.Ctx, kind models.AttributionKind) error {
	result, err := h.ledger.RecordEvent(requestContext(c), c.Params("code"), kind)
	if err != nil {
		if errors.Is(err, service.ErrUnknownTrackingCode) {
			return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "tracking code not recognised", result)
		}
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, string(kind)+" recorded", result)
}

func (h *WebhookHandler) progress(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ProgressRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return respondError(c, h.logger, err)
	}

	submission, err := h.homework.RecordProgress(requestContext(c), id, payload.Metric, payload.Delta)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "progress recorded", submission)
}
