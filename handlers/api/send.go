package api

import (
	"context"
	"encoding/base64"

	"mailbridge/mailerr"
	"mailbridge/models"
	"mailbridge/service"
	"mailbridge/utils"

	"github.com/gofiber/fiber/v2"
)

// Sender sends mail on behalf of a user. *service.SendService implements it.
type Sender interface {
	Send(ctx context.Context, userID string, req *service.SendRequest) (*models.SendResult, error)
}

// SendHandler handles email sending
type SendHandler struct {
	sender Sender
}

// NewSendHandler creates a new send handler
func NewSendHandler(sender Sender) *SendHandler {
	return &SendHandler{sender: sender}
}

// AttachmentUpload is one attachment in a send request
type AttachmentUpload struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Content     string `json:"content"` // base64
}

// SendRequest represents an email send request
type SendRequest struct {
	UserID      string             `json:"userId"`
	AccountID   string             `json:"accountId"`
	EmailID     string             `json:"emailId"`
	To          string             `json:"to"`
	Subject     string             `json:"subject"`
	Content     string             `json:"content"`
	Attachments []AttachmentUpload `json:"attachments"`
}

// HandleSend handles the email send request
func (h *SendHandler) HandleSend(c *fiber.Ctx) error {
	var req SendRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequestError(utils.T(localizer(c), "error_validation"), err)
	}

	userID, err := authorizedUser(c, req.UserID)
	if err != nil {
		return toAppError(c, err)
	}

	attachments := make([]models.Attachment, 0, len(req.Attachments))
	for _, a := range req.Attachments {
		content, err := base64.StdEncoding.DecodeString(a.Content)
		if err != nil {
			return toAppError(c, &mailerr.ValidationError{Field: "attachments", Reason: a.Filename + " is not valid base64"})
		}
		attachments = append(attachments, models.Attachment{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Size:        len(content),
			Content:     content,
		})
	}

	result, err := h.sender.Send(c.UserContext(), userID, &service.SendRequest{
		AccountID:   req.AccountID,
		EmailID:     req.EmailID,
		To:          req.To,
		Subject:     req.Subject,
		Content:     req.Content,
		Attachments: attachments,
	})
	if err != nil {
		if result != nil && result.Success {
			// The message went out; only its status record failed.
			utils.Log.WithError(err).Error("Email %s sent but status not recorded", result.EmailID)
			return c.JSON(fiber.Map{
				"success":   true,
				"messageId": result.MessageID,
				"emailId":   result.EmailID,
				"warning":   utils.T(localizer(c), "send_status_unrecorded"),
			})
		}
		return toAppError(c, err)
	}

	utils.Log.Info("Email sent successfully: to=%s subject=%s", req.To, req.Subject)

	return c.JSON(fiber.Map{
		"success":   true,
		"messageId": result.MessageID,
		"emailId":   result.EmailID,
		"message":   utils.T(localizer(c), "message_sent_success"),
	})
}
