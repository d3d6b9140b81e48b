// Package service orchestrates mailbox sync, send and account management on
// top of the mail protocol adapters and the document store.
package service

import (
	"context"
	"fmt"
	"time"

	"mailbridge/mailer"
	"mailbridge/mailerr"
	"mailbridge/models"
)

// Fetcher reads recent INBOX messages. *mailer.IMAPFetcher implements it.
type Fetcher interface {
	FetchSince(ctx context.Context, acct *models.MailAccount, password string, since time.Time,
		fn func(*models.NormalizedMessage) error) (*mailer.FetchStats, error)
	Check(ctx context.Context, acct *models.MailAccount, password string) error
}

// Sender submits outbound mail. *mailer.SMTPSender implements it.
type Sender interface {
	Send(ctx context.Context, acct *models.MailAccount, password string, msg *mailer.OutboundMessage) (string, error)
	Verify(ctx context.Context, acct *models.MailAccount, password string) error
}

// Sealer encrypts and decrypts stored mail passwords. *credentials.Cipher
// implements it.
type Sealer interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Notifier pushes events to a user's live connections.
type Notifier interface {
	Notify(userID string, n models.Notification)
}

// AccountRepository is the subset of *storage.AccountStore the services use.
type AccountRepository interface {
	Get(ctx context.Context, id string) (*models.MailAccount, error)
	ListByUser(ctx context.Context, userID string) ([]*models.MailAccount, error)
	Create(ctx context.Context, acct *models.MailAccount) error
	Delete(ctx context.Context, id string) error
}

// EmailRepository is the subset of *storage.EmailStore the services use.
type EmailRepository interface {
	ExistingMessageIDs(ctx context.Context, userID string) (map[string]struct{}, error)
	InsertBatch(ctx context.Context, emails []*models.StoredEmail) error
	Create(ctx context.Context, e *models.StoredEmail) error
	Get(ctx context.Context, id string) (*models.StoredEmail, error)
	UpdateStatus(ctx context.Context, id string, status models.Status, messageID, errMsg string) error
	ListByFolder(ctx context.Context, userID string, folder models.Folder) ([]*models.StoredEmail, error)
	SetSelected(ctx context.Context, userID string, ids []string, selected bool) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, models.Notification) {}

// ownedAccount loads accountID and checks that userID owns it. It does no
// network I/O.
func ownedAccount(ctx context.Context, accounts AccountRepository, userID, accountID string) (*models.MailAccount, error) {
	if userID == "" {
		return nil, &mailerr.ValidationError{Field: "userId", Reason: "is required"}
	}
	if accountID == "" {
		return nil, &mailerr.ValidationError{Field: "accountId", Reason: "is required"}
	}
	acct, err := accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.UserID != userID {
		return nil, &mailerr.AuthorizationError{UserID: userID, Resource: fmt.Sprintf("account %q", accountID)}
	}
	return acct, nil
}

// password decrypts the account's stored password.
func password(sealer Sealer, acct *models.MailAccount) (string, error) {
	if acct.EncryptedPassword == "" {
		return "", &mailerr.ConfigError{Reason: fmt.Sprintf("account %q has no stored password", acct.ID)}
	}
	return sealer.Decrypt(acct.EncryptedPassword)
}
