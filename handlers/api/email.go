package api

import (
	"context"

	"mailbridge/models"
	"mailbridge/utils"

	"github.com/gofiber/fiber/v2"
)

// Mailbox reads and flags stored emails. *service.MailboxService implements it.
type Mailbox interface {
	List(ctx context.Context, userID string, folder models.Folder, page, pageSize int) (*models.PaginatedEmails, error)
	Select(ctx context.Context, userID string, ids []string, selected bool) error
}

// EmailHandler serves stored emails
type EmailHandler struct {
	mailbox Mailbox
}

// NewEmailHandler creates a new email handler
func NewEmailHandler(mailbox Mailbox) *EmailHandler {
	return &EmailHandler{mailbox: mailbox}
}

// ListEmails returns one page of a folder, newest first
func (h *EmailHandler) ListEmails(c *fiber.Ctx) error {
	userID, err := authorizedUser(c, "")
	if err != nil {
		return err
	}

	folder := models.Folder(c.Query("folder", string(models.FolderInbox)))
	page := c.QueryInt("page", 1)
	pageSize := c.QueryInt("pageSize", 50)

	result, err := h.mailbox.List(c.UserContext(), userID, folder, page, pageSize)
	if err != nil {
		return toAppError(c, err)
	}
	return c.JSON(result)
}

// SelectRequest is the body of POST /api/emails/select
type SelectRequest struct {
	EmailIDs []string `json:"emailIds"`
	Selected bool     `json:"selected"`
}

// SelectEmails sets or clears the selected flag on several emails at once
func (h *EmailHandler) SelectEmails(c *fiber.Ctx) error {
	var req SelectRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequestError(utils.T(localizer(c), "error_validation"), err)
	}

	userID, err := authorizedUser(c, "")
	if err != nil {
		return err
	}

	if err := h.mailbox.Select(c.UserContext(), userID, req.EmailIDs, req.Selected); err != nil {
		return toAppError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"count":   len(req.EmailIDs),
	})
}
