package api

import (
	"mailbridge/utils"

	"github.com/gofiber/fiber/v2"
)

// translationKeys are the messages exposed to clients
var translationKeys = []string{
	"message_sent_success",
	"send_status_unrecorded",
	"connection_ok",
	"new_email",
	"error_validation",
	"error_config",
	"error_not_found",
	"error_forbidden",
	"error_unauthorized",
	"error_crypto",
	"error_imap",
	"error_smtp",
	"error_timeout",
	"error_store",
	"error_busy",
	"error_internal",
	"error_rate_limit",
	"error_404",
}

// I18nHandler handles i18n-related requests
type I18nHandler struct{}

// GetTranslations returns the client-side message table for a language.
// Unsupported languages fall back to English.
func (h *I18nHandler) GetTranslations(c *fiber.Ctx) error {
	lang := utils.MatchLanguage(c.Params("lang"))
	localizer := utils.GetLocalizer(lang)

	translations := make(map[string]string, len(translationKeys))
	for _, key := range translationKeys {
		translations[key] = utils.T(localizer, key)
	}

	return c.JSON(fiber.Map{
		"lang":         lang,
		"translations": translations,
	})
}
