package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/studio-homework-api/internal/utils"
)

// WebhookTokenHeader carries the shared secret on inbound webhook calls.
const WebhookTokenHeader = "X-Webhook-Token"

// WebhookToken rejects requests whose shared secret does not match.
func WebhookToken(secret string) fiber.Handler {
	expected := []byte(strings.TrimSpace(secret))

	return func(c *fiber.Ctx) error {
		provided := []byte(strings.TrimSpace(c.Get(WebhookTokenHeader)))
		if len(expected) == 0 || subtle.ConstantTimeCompare(provided, expected) != 1 {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid webhook token")
		}
		return c.Next()
	}
}
