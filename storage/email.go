package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"mailbridge/mailerr"
	"mailbridge/models"
	"mailbridge/utils"
)

// EmailStore reads and writes StoredEmail documents.
type EmailStore struct {
	store DocumentStore
}

// NewEmailStore creates a new email store over s
func NewEmailStore(s DocumentStore) *EmailStore {
	return &EmailStore{store: s}
}

// ExistingMessageIDs returns the message ids of fetched emails already stored
// for userID, read with a single query. Outbound records carry a delivery
// status and are left out, so a message sent to one of the user's own
// mailboxes is still imported when it arrives.
func (s *EmailStore) ExistingMessageIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	docs, err := s.store.Query(ctx, CollectionEmails, []Filter{Where("userId", userID)}, nil)
	if err != nil {
		return nil, &mailerr.StoreError{Op: "load message ids", Err: err}
	}

	ids := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		var ref struct {
			MessageID string        `json:"messageId"`
			Status    models.Status `json:"status"`
		}
		if err := doc.Decode(&ref); err != nil {
			return nil, &mailerr.StoreError{Op: "load message ids", Err: errors.Wrapf(err, "email %s", doc.ID)}
		}
		if ref.MessageID != "" && ref.Status == "" {
			ids[ref.MessageID] = struct{}{}
		}
	}
	return ids, nil
}

// InsertBatch assigns ids and writes every email in one atomic batch.
// On failure nothing is written and the emails keep their new ids.
func (s *EmailStore) InsertBatch(ctx context.Context, emails []*models.StoredEmail) error {
	if len(emails) == 0 {
		return nil
	}
	ops := make([]Op, 0, len(emails))
	for _, e := range emails {
		if e.ID == "" {
			e.ID = s.store.NewID()
		}
		if err := e.Validate(); err != nil {
			return err
		}
		ops = append(ops, SetOp(CollectionEmails, e.ID, e))
	}
	if err := s.store.Batch(ctx, ops); err != nil {
		return &mailerr.StoreError{Op: "insert emails", Err: err}
	}
	return nil
}

// Create stores a single email.
func (s *EmailStore) Create(ctx context.Context, e *models.StoredEmail) error {
	if e.ID == "" {
		e.ID = s.store.NewID()
	}
	if err := e.Validate(); err != nil {
		return err
	}
	if err := s.store.Set(ctx, CollectionEmails, e.ID, e); err != nil {
		return &mailerr.StoreError{Op: "create email", Err: err}
	}
	return nil
}

// Get loads one email by id.
func (s *EmailStore) Get(ctx context.Context, id string) (*models.StoredEmail, error) {
	doc, err := s.store.Get(ctx, CollectionEmails, id)
	if errors.Is(err, ErrNotFound) {
		return nil, &mailerr.NotFoundError{Kind: "email", ID: id}
	}
	if err != nil {
		return nil, &mailerr.StoreError{Op: "load email", Err: err}
	}
	return decodeEmail(*doc)
}

// UpdateStatus records a delivery outcome on an outbound email.
func (s *EmailStore) UpdateStatus(ctx context.Context, id string, status models.Status, messageID, errMsg string) error {
	fields := map[string]interface{}{
		"status": status,
		"error":  errMsg,
	}
	if messageID != "" {
		fields["messageId"] = messageID
	}
	if status == models.StatusSent {
		fields["timestamp"] = time.Now().UTC()
	}
	if err := s.store.Update(ctx, CollectionEmails, id, fields); err != nil {
		return &mailerr.StoreError{Op: "update email status", Err: err}
	}
	return nil
}

// ListByFolder returns userID's emails in folder, newest first.
func (s *EmailStore) ListByFolder(ctx context.Context, userID string, folder models.Folder) ([]*models.StoredEmail, error) {
	docs, err := s.store.Query(ctx, CollectionEmails,
		[]Filter{Where("userId", userID), Where("folder", folder)},
		&Order{Field: "timestamp", Desc: true})
	if err != nil {
		return nil, &mailerr.StoreError{Op: "list emails", Err: err}
	}

	emails := make([]*models.StoredEmail, 0, len(docs))
	for _, doc := range docs {
		e, err := decodeEmail(doc)
		if err != nil {
			utils.Log.Warn("Skipping email %s: %v", doc.ID, err)
			continue
		}
		emails = append(emails, e)
	}
	return emails, nil
}

// SetSelected flips the selected flag on every id in one batch. Every email
// must exist and belong to userID, otherwise nothing is written.
func (s *EmailStore) SetSelected(ctx context.Context, userID string, ids []string, selected bool) error {
	ops := make([]Op, 0, len(ids))
	for _, id := range ids {
		e, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if e.UserID != userID {
			return &mailerr.AuthorizationError{UserID: userID, Resource: fmt.Sprintf("email %q", id)}
		}
		ops = append(ops, UpdateOp(CollectionEmails, id, map[string]interface{}{"selected": selected}))
	}
	if err := s.store.Batch(ctx, ops); err != nil {
		return &mailerr.StoreError{Op: "select emails", Err: err}
	}
	return nil
}

func decodeEmail(doc Document) (*models.StoredEmail, error) {
	var e models.StoredEmail
	if err := doc.Decode(&e); err != nil {
		return nil, &mailerr.ConfigError{Reason: "email record is unreadable", Err: err}
	}
	if e.ID == "" {
		e.ID = doc.ID
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}
