package middleware

import (
	"strings"

	"mailbridge/auth"
	"mailbridge/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/nicksnyder/go-i18n/v2/i18n"
)

// UserIDKey is the Locals key holding the verified caller's user id.
const UserIDKey = "user_id"

// BearerAuth verifies the Authorization bearer token, or the token query
// parameter for clients that cannot set headers such as websockets, and
// stores the user id under UserIDKey.
func BearerAuth(v auth.Verifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := ""
		if h := c.Get(fiber.HeaderAuthorization); len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			token = strings.TrimSpace(h[7:])
		}
		if token == "" {
			token = c.Query("token")
		}

		localizer, _ := c.Locals("localizer").(*i18n.Localizer)
		if token == "" {
			return utils.UnauthorizedError(utils.T(localizer, "error_unauthorized"), nil)
		}

		userID, err := v.Verify(c.UserContext(), token)
		if err != nil {
			return utils.UnauthorizedError(utils.T(localizer, "error_unauthorized"), err)
		}

		c.Locals(UserIDKey, userID)
		return c.Next()
	}
}

// UserID returns the id BearerAuth stored, or "".
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(UserIDKey).(string)
	return id
}
