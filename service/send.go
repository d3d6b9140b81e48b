package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mailbridge/mailer"
	"mailbridge/mailerr"
	"mailbridge/models"
	"mailbridge/utils"
)

// SendRequest is one outbound message from a user's account.
type SendRequest struct {
	AccountID string
	// EmailID names an existing StoredEmail to track. When empty a record is
	// created in the sent folder.
	EmailID     string
	To          string
	Subject     string
	Content     string // HTML
	Attachments []models.Attachment
}

// SendService submits mail and tracks its delivery status on a StoredEmail.
type SendService struct {
	accounts AccountRepository
	emails   EmailRepository
	sender   Sender
	sealer   Sealer
	notifier Notifier
	now      func() time.Time
}

// NewSendService wires a SendService. notifier may be nil.
func NewSendService(accounts AccountRepository, emails EmailRepository, sender Sender, sealer Sealer, notifier Notifier) *SendService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &SendService{
		accounts: accounts,
		emails:   emails,
		sender:   sender,
		sealer:   sealer,
		notifier: notifier,
		now:      time.Now,
	}
}

// Send submits req from the account and records the outcome on the tracked
// email: sent with the protocol Message-ID, or error with the failure text.
//
// A send failure is always returned. If recording it also fails, both errors
// are joined. If the send succeeded but the status write failed, the result
// still reports Success and the StoreError is returned next to it.
func (s *SendService) Send(ctx context.Context, userID string, req *SendRequest) (*models.SendResult, error) {
	to, err := s.validate(req)
	if err != nil {
		return nil, err
	}
	acct, err := ownedAccount(ctx, s.accounts, userID, req.AccountID)
	if err != nil {
		return nil, err
	}
	email, err := s.track(ctx, userID, acct, req)
	if err != nil {
		return nil, err
	}

	log := utils.Log.WithFields(map[string]interface{}{"user": userID, "account": acct.ID, "email": email.ID})

	messageID, sendErr := s.submit(ctx, acct, to, req)
	if sendErr != nil {
		log.WithError(sendErr).Warn("Send failed")
		if storeErr := s.emails.UpdateStatus(ctx, email.ID, models.StatusError, "", sendErr.Error()); storeErr != nil {
			log.WithError(storeErr).Error("Recording send failure failed")
			sendErr = errors.Join(sendErr, storeErr)
		}
		s.notifyStatus(userID, email.ID, models.StatusError)
		return &models.SendResult{Success: false, Error: sendErr.Error(), EmailID: email.ID}, sendErr
	}

	result := &models.SendResult{Success: true, MessageID: messageID, EmailID: email.ID}
	if storeErr := s.emails.UpdateStatus(ctx, email.ID, models.StatusSent, messageID, ""); storeErr != nil {
		log.WithError(storeErr).Error("Message %s was sent but its status was not recorded", messageID)
		return result, storeErr
	}
	s.notifyStatus(userID, email.ID, models.StatusSent)
	log.Info("Sent message %s", messageID)
	return result, nil
}

func (s *SendService) validate(req *SendRequest) ([]*mailer.Address, error) {
	if req == nil {
		return nil, &mailerr.ValidationError{Reason: "request body is required"}
	}
	if strings.TrimSpace(req.To) == "" {
		return nil, &mailerr.ValidationError{Field: "to", Reason: "is required"}
	}
	to, err := mailer.ParseRecipients(req.To)
	if err != nil {
		return nil, &mailerr.ValidationError{Field: "to", Reason: err.Error()}
	}
	if len(to) == 0 {
		return nil, &mailerr.ValidationError{Field: "to", Reason: "is required"}
	}
	return to, nil
}

// track returns the StoredEmail that follows this send, moved to sending.
func (s *SendService) track(ctx context.Context, userID string, acct *models.MailAccount, req *SendRequest) (*models.StoredEmail, error) {
	if req.EmailID != "" {
		email, err := s.emails.Get(ctx, req.EmailID)
		if err != nil {
			return nil, err
		}
		if email.UserID != userID {
			return nil, &mailerr.AuthorizationError{UserID: userID, Resource: fmt.Sprintf("email %q", req.EmailID)}
		}
		if err := s.emails.UpdateStatus(ctx, email.ID, models.StatusSending, "", ""); err != nil {
			return nil, err
		}
		return email, nil
	}

	attachments := make([]models.Attachment, 0, len(req.Attachments))
	for _, a := range req.Attachments {
		attachments = append(attachments, models.Attachment{Filename: a.Filename, ContentType: a.ContentType, Size: len(a.Content)})
	}
	email := &models.StoredEmail{
		UserID:      userID,
		AccountID:   acct.ID,
		From:        acct.Email,
		To:          req.To,
		Subject:     req.Subject,
		Content:     req.Content,
		Timestamp:   s.now().UTC(),
		Read:        true,
		Folder:      models.FolderSent,
		Status:      models.StatusSending,
		Attachments: attachments,
	}
	if err := s.emails.Create(ctx, email); err != nil {
		return nil, err
	}
	return email, nil
}

func (s *SendService) submit(ctx context.Context, acct *models.MailAccount, to []*mailer.Address, req *SendRequest) (string, error) {
	pw, err := password(s.sealer, acct)
	if err != nil {
		return "", err
	}
	return s.sender.Send(ctx, acct, pw, &mailer.OutboundMessage{
		To:          to,
		Subject:     req.Subject,
		HTML:        req.Content,
		Attachments: req.Attachments,
	})
}

func (s *SendService) notifyStatus(userID, emailID string, status models.Status) {
	s.notifier.Notify(userID, models.Notification{
		Type:    models.NotificationStatusChange,
		Message: string(status),
		Data: map[string]interface{}{
			"emailId": emailID,
			"status":  status,
		},
	})
}
