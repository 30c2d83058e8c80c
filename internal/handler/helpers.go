package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/studio-homework-api/internal/middleware"
	"github.com/noah-isme/studio-homework-api/internal/service"
	"github.com/noah-isme/studio-homework-api/internal/utils"
)

const (
	activeHomeworkMessage   = "finish or cancel your current homework first"
	inactiveHomeworkMessage = "this homework is no longer active"
)

func parseUintParam(c *fiber.Ctx, key string) (uint, error) {
	value := strings.TrimSpace(c.Params(key))
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil || parsed == 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return uint(parsed), nil
}

func userIDFromContext(c *fiber.Ctx) uint {
	switch id := c.Locals("user_id").(type) {
	case uint:
		return id
	case int:
		if id > 0 {
			return uint(id)
		}
	}
	return 0
}

// requestContext carries the correlation id into service calls.
func requestContext(c *fiber.Ctx) context.Context {
	return middleware.ContextWithCorrelation(c.UserContext(), middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

// respondError maps engine errors onto HTTP statuses.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrors):
		return utils.Fail(c, fiber.StatusBadRequest, "invalid request payload", validationDetails(validationErrors))
	case errors.Is(err, service.ErrActiveHomeworkExists):
		return utils.SendError(c, fiber.StatusConflict, activeHomeworkMessage)
	case errors.Is(err, service.ErrSubmissionNotActive):
		return utils.Fail(c, fiber.StatusConflict, inactiveHomeworkMessage, fiber.Map{"reason": err.Error()})
	case errors.Is(err, service.ErrRestartNotAllowed):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrSubmissionNotFound),
		errors.Is(err, service.ErrHomeworkNotFound),
		errors.Is(err, service.ErrFlowNotFound),
		errors.Is(err, service.ErrUnknownTrackingCode):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrFlowOwnershipMismatch):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrInvalidProgressDelta),
		errors.Is(err, service.ErrProgressLimitExceeded),
		errors.Is(err, service.ErrUnknownProgressMetric),
		errors.Is(err, service.ErrTooManyEvidenceLinks),
		errors.Is(err, service.ErrInvalidTriggerType):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrCodeGenerationExhausted):
		requestLogger(logger, c).Error().Err(err).Msg("tracking code generation exhausted")
		return utils.SendError(c, fiber.StatusServiceUnavailable, "could not allocate a tracking link, please retry")
	default:
		requestLogger(logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error, please retry")
	}
}

func validationDetails(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fieldErr := range errs {
		details[strings.ToLower(fieldErr.Field())] = fieldErr.Tag()
	}
	return details
}
