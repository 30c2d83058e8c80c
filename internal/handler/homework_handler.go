package handler

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/studio-homework-api/internal/dto"
	"github.com/noah-isme/studio-homework-api/internal/service"
	"github.com/noah-isme/studio-homework-api/internal/utils"
)

// HomeworkHandler serves the teacher-facing catalog and submission endpoints.
type HomeworkHandler struct {
	catalog   service.HomeworkCatalog
	homework  service.HomeworkService
	ledger    service.AttributionLedger
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewHomeworkHandler builds a homework handler instance.
func NewHomeworkHandler(catalog service.HomeworkCatalog, homework service.HomeworkService, ledger service.AttributionLedger, validator *validator.Validate, logger zerolog.Logger) *HomeworkHandler {
	return &HomeworkHandler{
		catalog:   catalog,
		homework:  homework,
		ledger:    ledger,
		validator: validator,
		logger:    logger.With().Str("component", "homework_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *HomeworkHandler) Register(router fiber.Router) {
	router.Get("/modules", h.listModules)
	router.Get("/homeworks/:id", h.getHomework)

	router.Get("/submissions", h.listSubmissions)
	router.Post("/submissions", h.start)
	router.Post("/submissions/restart", h.restart)
	router.Get("/submissions/:id", h.getSubmission)
	router.Post("/submissions/:id/cancel", h.cancel)
	router.Put("/submissions/:id/evidence", h.saveEvidence)
	router.Put("/submissions/:id/flow", h.attachFlow)

	router.Get("/tracking/:code/stats", h.trackingStats)
}

func (h *HomeworkHandler) listModules(c *fiber.Ctx) error {
	modules, err := h.catalog.ListModules(requestContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.OK(c, modules, "modules retrieved", fiber.Map{"total": len(modules)})
}

func (h *HomeworkHandler) getHomework(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	homework, err := h.catalog.GetHomework(requestContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "homework retrieved", dto.NewHomeworkResponse(homework))
}

func (h *HomeworkHandler) listSubmissions(c *fiber.Ctx) error {
	listing, err := h.homework.ListForTeacher(requestContext(c), userIDFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submissions retrieved", listing)
}

func (h *HomeworkHandler) getSubmission(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submission, err := h.homework.Get(requestContext(c), userIDFromContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submission retrieved", submission)
}

func (h *HomeworkHandler) start(c *fiber.Ctx) error {
	return h.createSubmission(c, h.homework.Start, "homework started")
}

func (h *HomeworkHandler) restart(c *fiber.Ctx) error {
	return h.createSubmission(c, h.homework.Restart, "homework restarted")
}

type submissionCreator func(ctx context.Context, teacherID, homeworkID uint, flowID *uint) (dto.SubmissionResponse, error)

func (h *HomeworkHandler) createSubmission(c *fiber.Ctx, create submissionCreator, message string) error {
	var payload dto.StartHomeworkRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return respondError(c, h.logger, err)
	}

	submission, err := create(requestContext(c), userIDFromContext(c), payload.HomeworkID, payload.FlowID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, message, submission)
}

func (h *HomeworkHandler) cancel(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submission, err := h.homework.Cancel(requestContext(c), userIDFromContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "homework cancelled", submission)
}

func (h *HomeworkHandler) saveEvidence(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.SaveEvidenceRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return respondError(c, h.logger, err)
	}

	submission, err := h.homework.SaveEvidence(requestContext(c), userIDFromContext(c), id, payload.URLs)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "evidence saved", submission)
}

func (h *HomeworkHandler) attachFlow(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.AttachFlowRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return respondError(c, h.logger, err)
	}

	submission, err := h.homework.AttachFlow(requestContext(c), userIDFromContext(c), id, payload.FlowID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	message := "flow attached"
	if payload.FlowID == nil {
		message = "flow detached"
	}
	return utils.SendSuccess(c, message, submission)
}

func (h *HomeworkHandler) trackingStats(c *fiber.Ctx) error {
	stats, err := h.ledger.StatsFor(requestContext(c), c.Params("code"))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	if stats.TeacherID != userIDFromContext(c) {
		return respondError(c, h.logger, service.ErrUnknownTrackingCode)
	}

	return utils.SendSuccess(c, "tracking stats retrieved", stats)
}
