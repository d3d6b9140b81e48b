package api

import (
	"context"

	"mailbridge/models"
	"mailbridge/service"
	"mailbridge/utils"

	"github.com/gofiber/fiber/v2"
)

// AccountManager manages a user's mail accounts. *service.AccountService
// implements it.
type AccountManager interface {
	Create(ctx context.Context, userID string, in *service.NewAccount) (*models.AccountView, error)
	List(ctx context.Context, userID string) ([]models.AccountView, error)
	Delete(ctx context.Context, userID, accountID string) error
	Test(ctx context.Context, userID, accountID, kind string) error
}

// AccountHandler handles account management
type AccountHandler struct {
	accounts AccountManager
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(accounts AccountManager) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// CreateAccount creates a new email account
func (h *AccountHandler) CreateAccount(c *fiber.Ctx) error {
	var req service.NewAccount
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequestError(utils.T(localizer(c), "error_validation"), err)
	}

	userID, err := authorizedUser(c, "")
	if err != nil {
		return err
	}

	account, err := h.accounts.Create(c.UserContext(), userID, &req)
	if err != nil {
		return toAppError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"account": account,
	})
}

// GetAccounts retrieves all accounts for the current user
func (h *AccountHandler) GetAccounts(c *fiber.Ctx) error {
	userID, err := authorizedUser(c, "")
	if err != nil {
		return err
	}

	accounts, err := h.accounts.List(c.UserContext(), userID)
	if err != nil {
		return toAppError(c, err)
	}

	return c.JSON(fiber.Map{
		"accounts": accounts,
	})
}

// DeleteAccount deletes an account
func (h *AccountHandler) DeleteAccount(c *fiber.Ctx) error {
	userID, err := authorizedUser(c, "")
	if err != nil {
		return err
	}

	if err := h.accounts.Delete(c.UserContext(), userID, c.Params("id")); err != nil {
		return toAppError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
	})
}

// TestConnection opens an IMAP or SMTP session with the stored credentials
func (h *AccountHandler) TestConnection(c *fiber.Ctx) error {
	var req struct {
		Type string `json:"type"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequestError(utils.T(localizer(c), "error_validation"), err)
	}

	userID, err := authorizedUser(c, "")
	if err != nil {
		return err
	}

	if err := h.accounts.Test(c.UserContext(), userID, c.Params("id"), req.Type); err != nil {
		return toAppError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": utils.T(localizer(c), "connection_ok"),
	})
}
