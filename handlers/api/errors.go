package api

import (
	"errors"

	"mailbridge/mailerr"
	"mailbridge/middleware"
	"mailbridge/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/nicksnyder/go-i18n/v2/i18n"
)

// localizer returns the request's localizer set by LocaleMiddleware.
func localizer(c *fiber.Ctx) *i18n.Localizer {
	l, _ := c.Locals("localizer").(*i18n.Localizer)
	return l
}

// toAppError maps a domain error to its HTTP status and a localized generic
// message. The cause stays on AppError.Err for logging.
func toAppError(c *fiber.Ctx, err error) *utils.AppError {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	l := localizer(c)
	var (
		validation *mailerr.ValidationError
		config     *mailerr.ConfigError
		notFound   *mailerr.NotFoundError
		authz      *mailerr.AuthorizationError
		crypto     *mailerr.CryptoError
		imapErr    *mailerr.IMAPError
		smtpErr    *mailerr.SMTPError
		timeout    *mailerr.TimeoutError
		store      *mailerr.StoreError
		busy       *mailerr.BusyError
	)
	switch {
	case errors.As(err, &validation):
		return utils.BadRequestError(utils.T(l, "error_validation"), err).With("field", validation.Field)
	case errors.As(err, &authz):
		return utils.ForbiddenError(utils.T(l, "error_forbidden"), err)
	case errors.As(err, &notFound):
		return utils.NotFoundError(utils.T(l, "error_not_found"), err)
	case errors.As(err, &config):
		return utils.BadRequestError(utils.T(l, "error_config"), err)
	case errors.As(err, &busy):
		return utils.ConflictError(utils.T(l, "error_busy"), err)
	case errors.As(err, &timeout):
		return utils.GatewayTimeoutError(utils.T(l, "error_timeout"), err).With("stage", string(timeout.Stage))
	case errors.As(err, &imapErr):
		return utils.BadGatewayError(utils.T(l, "error_imap"), err).With("stage", string(imapErr.Stage))
	case errors.As(err, &smtpErr):
		return utils.BadGatewayError(utils.T(l, "error_smtp"), err).With("stage", string(smtpErr.Stage))
	case errors.As(err, &crypto):
		return utils.InternalServerError(utils.T(l, "error_crypto"), err)
	case errors.As(err, &store):
		return utils.InternalServerError(utils.T(l, "error_store"), err)
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		if fe.Code == fiber.StatusNotFound {
			return utils.NotFoundError(utils.T(l, "error_404"), err)
		}
		return utils.NewAppError(fe.Code, fe.Message, err)
	}
	return utils.InternalServerError(utils.T(l, "error_internal"), err)
}

// ErrorHandler is the Fiber error handler. Clients only ever receive
// {"error": message}; the cause is logged.
func ErrorHandler(c *fiber.Ctx, err error) error {
	appErr := toAppError(c, err)

	log := utils.Log.WithFields(map[string]interface{}{
		"status": appErr.Code,
		"path":   c.Path(),
		"user":   middleware.UserID(c),
	})
	for k, v := range appErr.Fields {
		log = log.WithField(k, v)
	}
	if appErr.Code >= fiber.StatusInternalServerError {
		log.WithError(appErr.Err).Error("Request failed")
	} else {
		log.WithError(appErr.Err).Warn("Request rejected")
	}

	return c.Status(appErr.Code).JSON(fiber.Map{
		"error": appErr.Message,
	})
}

// NotFound answers undefined routes.
func NotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": utils.T(localizer(c), "error_404"),
	})
}

// authorizedUser returns the verified caller, rejecting a body userId that
// names someone else.
func authorizedUser(c *fiber.Ctx, claimed string) (string, error) {
	userID := middleware.UserID(c)
	if userID == "" {
		return "", utils.UnauthorizedError(utils.T(localizer(c), "error_unauthorized"), nil)
	}
	if claimed != "" && claimed != userID {
		return "", &mailerr.AuthorizationError{UserID: userID, Resource: "user " + claimed}
	}
	return userID, nil
}
