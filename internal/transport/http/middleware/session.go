package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	SessionHeader    = "X-Session-ID"
	sessionLocalsKey = "sessionID"
	maxSessionLength = 128
)

// NewSessionMiddleware resolves the cart session from X-Session-ID and issues a new one
// in the response header when the client sent none.
func NewSessionMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		sessionID := c.Get(SessionHeader)
		if len(sessionID) > maxSessionLength {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "session id is too long"})
		}

		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		c.Set(SessionHeader, sessionID)
		c.Locals(sessionLocalsKey, sessionID)
		return c.Next()
	}
}

func SessionID(c *fiber.Ctx) string {
	sessionID, _ := c.Locals(sessionLocalsKey).(string)
	return sessionID
}
