package service

import (
	"context"

	"mailbridge/mailerr"
	"mailbridge/models"
)

// MailboxService reads and flags a user's stored emails.
type MailboxService struct {
	emails EmailRepository
}

// NewMailboxService wires a MailboxService.
func NewMailboxService(emails EmailRepository) *MailboxService {
	return &MailboxService{emails: emails}
}

// List returns one page of userID's emails in folder, newest first.
func (s *MailboxService) List(ctx context.Context, userID string, folder models.Folder, page, pageSize int) (*models.PaginatedEmails, error) {
	if folder == "" {
		folder = models.FolderInbox
	}
	if !folder.Valid() {
		return nil, &mailerr.ValidationError{Field: "folder", Reason: "unknown folder " + string(folder)}
	}
	emails, err := s.emails.ListByFolder(ctx, userID, folder)
	if err != nil {
		return nil, err
	}
	return models.Paginate(emails, page, pageSize), nil
}

// Select sets the selected flag on every id. Nothing is written unless all
// of them belong to userID.
func (s *MailboxService) Select(ctx context.Context, userID string, ids []string, selected bool) error {
	if len(ids) == 0 {
		return &mailerr.ValidationError{Field: "emailIds", Reason: "at least one id is required"}
	}
	return s.emails.SetSelected(ctx, userID, ids, selected)
}
