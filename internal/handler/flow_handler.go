package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/studio-homework-api/internal/dto"
	"github.com/noah-isme/studio-homework-api/internal/service"
	"github.com/noah-isme/studio-homework-api/internal/utils"
)

// FlowHandler manages a teacher's automation flows.
type FlowHandler struct {
	flows     service.FlowRegistry
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewFlowHandler builds a flow handler instance.
func NewFlowHandler(flows service.FlowRegistry, validator *validator.Validate, logger zerolog.Logger) *FlowHandler {
	return &FlowHandler{
		flows:     flows,
		validator: validator,
		logger:    logger.With().Str("component", "flow_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *FlowHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Post("", h.create)
	router.Patch("/:id", h.update)
}

func (h *FlowHandler) list(c *fiber.Ctx) error {
	flows, err := h.flows.ListByTeacher(requestContext(c), userIDFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.OK(c, flows, "flows retrieved", fiber.Map{"total": len(flows)})
}

func (h *FlowHandler) create(c *fiber.Ctx) error {
	var payload dto.FlowCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	flow, err := h.flows.Create(requestContext(c), userIDFromContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "flow created", flow)
}

func (h *FlowHandler) update(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.FlowUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return respondError(c, h.logger, err)
	}

	flow, err := h.flows.SetActive(requestContext(c), userIDFromContext(c), id, *payload.IsActive)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "flow updated", flow)
}
