package api

import (
	"context"

	"mailbridge/models"
	"mailbridge/utils"

	"github.com/gofiber/fiber/v2"
)

// Syncer runs a mailbox sync. *service.SyncService implements it.
type Syncer interface {
	Sync(ctx context.Context, userID, accountID string) (*models.SyncResult, error)
}

// SyncHandler handles mailbox sync requests
type SyncHandler struct {
	syncer Syncer
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(syncer Syncer) *SyncHandler {
	return &SyncHandler{syncer: syncer}
}

// SyncRequest is the body of POST /api/sync
type SyncRequest struct {
	UserID    string `json:"userId"`
	AccountID string `json:"accountId"`
}

// HandleSync fetches new mail for one account and stores it
func (h *SyncHandler) HandleSync(c *fiber.Ctx) error {
	var req SyncRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequestError(utils.T(localizer(c), "error_validation"), err)
	}

	userID, err := authorizedUser(c, req.UserID)
	if err != nil {
		return toAppError(c, err)
	}

	result, err := h.syncer.Sync(c.UserContext(), userID, req.AccountID)
	if err != nil {
		return toAppError(c, err)
	}
	return c.JSON(result)
}
