package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"mailbridge/mailerr"
	"mailbridge/models"
	"mailbridge/utils"
)

// Collection names.
const (
	CollectionAccounts = "emailAccounts"
	CollectionEmails   = "emails"
)

// AccountStore reads and writes MailAccount documents. Records are validated
// as they are loaded, so callers never see a half-filled account.
type AccountStore struct {
	store DocumentStore
}

// NewAccountStore creates a new account store over s
func NewAccountStore(s DocumentStore) *AccountStore {
	return &AccountStore{store: s}
}

// Get loads one account by id.
func (s *AccountStore) Get(ctx context.Context, id string) (*models.MailAccount, error) {
	doc, err := s.store.Get(ctx, CollectionAccounts, id)
	if errors.Is(err, ErrNotFound) {
		return nil, &mailerr.NotFoundError{Kind: "account", ID: id}
	}
	if err != nil {
		return nil, &mailerr.StoreError{Op: "load account", Err: err}
	}
	return decodeAccount(*doc)
}

// ListByUser returns every valid account owned by userID. Invalid records
// are logged and skipped.
func (s *AccountStore) ListByUser(ctx context.Context, userID string) ([]*models.MailAccount, error) {
	docs, err := s.store.Query(ctx, CollectionAccounts,
		[]Filter{Where("userId", userID)}, &Order{Field: "createdAt"})
	if err != nil {
		return nil, &mailerr.StoreError{Op: "list accounts", Err: err}
	}

	accounts := make([]*models.MailAccount, 0, len(docs))
	for _, doc := range docs {
		acct, err := decodeAccount(doc)
		if err != nil {
			utils.Log.Warn("Skipping account %s: %v", doc.ID, err)
			continue
		}
		accounts = append(accounts, acct)
	}
	return accounts, nil
}

// Create stores a new account. acct.EncryptedPassword must already be sealed.
func (s *AccountStore) Create(ctx context.Context, acct *models.MailAccount) error {
	if acct.ID == "" {
		acct.ID = s.store.NewID()
	}
	now := time.Now().UTC()
	acct.CreatedAt = now
	acct.UpdatedAt = now
	acct.Normalize()

	if err := acct.Validate(); err != nil {
		return err
	}
	if err := s.store.Set(ctx, CollectionAccounts, acct.ID, acct); err != nil {
		return &mailerr.StoreError{Op: "create account", Err: err}
	}
	return nil
}

// Delete removes an account.
func (s *AccountStore) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, CollectionAccounts, id); err != nil {
		return &mailerr.StoreError{Op: "delete account", Err: err}
	}
	return nil
}

func decodeAccount(doc Document) (*models.MailAccount, error) {
	var acct models.MailAccount
	if err := doc.Decode(&acct); err != nil {
		return nil, &mailerr.ConfigError{Reason: "account record is unreadable", Err: err}
	}
	if acct.ID == "" {
		acct.ID = doc.ID
	}
	acct.Normalize()
	if err := acct.Validate(); err != nil {
		return nil, err
	}
	return &acct, nil
}
