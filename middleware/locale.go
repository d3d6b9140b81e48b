package middleware

import (
	"mailbridge/utils"

	"github.com/gofiber/fiber/v2"
)

// LocaleMiddleware detects and sets the user's locale
func LocaleMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Query parameter, then cookie, then Accept-Language; the matcher
		// skips empty and unsupported entries.
		lang := utils.MatchLanguage(c.Query("lang"), c.Cookies("lang"), c.Get(fiber.HeaderAcceptLanguage))

		c.Locals("localizer", utils.GetLocalizer(lang))
		c.Locals("lang", lang)

		utils.Log.Debug("Locale detected: %s for path: %s", lang, c.Path())

		return c.Next()
	}
}
