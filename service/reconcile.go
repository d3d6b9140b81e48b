package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"mailbridge/models"
)

// syntheticPrefix marks dedup keys computed for messages without a Message-ID.
const syntheticPrefix = "synthetic-"

// Reconciler stores the fetched messages a user does not have yet.
type Reconciler struct {
	emails EmailRepository
}

// NewReconciler creates a reconciler writing through emails.
func NewReconciler(emails EmailRepository) *Reconciler {
	return &Reconciler{emails: emails}
}

// Reconcile reads the user's stored message ids once, drops every fetched
// message already stored or repeated within fetched, and inserts the rest in
// one atomic batch. A failed batch is returned as an error and nothing is
// reported as inserted.
func (r *Reconciler) Reconcile(ctx context.Context, userID, accountID string, fetched []*models.NormalizedMessage) (*models.SyncResult, error) {
	existing, err := r.emails.ExistingMessageIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	novel := make([]*models.StoredEmail, 0, len(fetched))
	for _, m := range fetched {
		key := DedupKey(m)
		if _, ok := existing[key]; ok {
			continue
		}
		existing[key] = struct{}{}

		attachments := make([]models.Attachment, 0, len(m.Attachments))
		for _, a := range m.Attachments {
			attachments = append(attachments, models.Attachment{Filename: a.Filename, ContentType: a.ContentType, Size: a.Size})
		}
		novel = append(novel, &models.StoredEmail{
			UserID:      userID,
			AccountID:   accountID,
			MessageID:   key,
			From:        m.From,
			To:          m.To,
			Subject:     m.Subject,
			Content:     m.Body,
			Timestamp:   m.ReceivedAt.UTC(),
			Folder:      models.FolderInbox,
			Attachments: attachments,
		})
	}

	if err := r.emails.InsertBatch(ctx, novel); err != nil {
		return nil, err
	}
	return &models.SyncResult{InsertedCount: len(novel), TotalFetched: len(fetched)}, nil
}

// DedupKey returns the key a message is deduplicated by: its Message-ID, or
// for messages without one a hash of the fields that identify it. The parse
// time is left out of the hash when the message carried no date so the key
// is stable across syncs.
func DedupKey(m *models.NormalizedMessage) string {
	if id := strings.TrimSpace(m.MessageID); id != "" {
		return id
	}

	h := sha256.New()
	for _, field := range []string{m.From, m.To, m.Subject} {
		h.Write([]byte(field))
		h.Write([]byte{0})
	}
	if !m.DateMissing {
		h.Write([]byte(m.ReceivedAt.UTC().Format(time.RFC3339)))
	}
	h.Write([]byte{0})
	h.Write([]byte(m.Body))
	return syntheticPrefix + hex.EncodeToString(h.Sum(nil))
}
