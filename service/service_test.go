package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mailbridge/credentials"
	"mailbridge/mailer"
	"mailbridge/models"
	"mailbridge/storage"
)

const testKey = "test-encryption-key"

// fakeFetcher yields a fixed set of messages and records whether it was used.
type fakeFetcher struct {
	mu       sync.Mutex
	messages []*models.NormalizedMessage
	failures int
	err      error
	block    chan struct{} // when set, FetchSince waits on it
	calls    int
	password string
}

func (f *fakeFetcher) FetchSince(ctx context.Context, acct *models.MailAccount, password string, since time.Time,
	fn func(*models.NormalizedMessage) error) (*mailer.FetchStats, error) {
	f.mu.Lock()
	f.calls++
	f.password = password
	f.mu.Unlock()

	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	for _, m := range f.messages {
		if err := fn(m); err != nil {
			return nil, err
		}
	}
	return &mailer.FetchStats{
		Matched:       len(f.messages) + f.failures,
		Fetched:       len(f.messages),
		ParseFailures: f.failures,
	}, nil
}

func (f *fakeFetcher) Check(ctx context.Context, acct *models.MailAccount, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.password = password
	return f.err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSender struct {
	messageID string
	err       error
	sent      []*mailer.OutboundMessage
	password  string
}

func (s *fakeSender) Send(ctx context.Context, acct *models.MailAccount, password string, msg *mailer.OutboundMessage) (string, error) {
	s.password = password
	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, msg)
	return s.messageID, nil
}

func (s *fakeSender) Verify(ctx context.Context, acct *models.MailAccount, password string) error {
	s.password = password
	return s.err
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []models.Notification
}

func (n *recordingNotifier) Notify(userID string, note models.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, note)
}

type fixture struct {
	accounts *storage.AccountStore
	emails   *storage.EmailStore
	cipher   *credentials.Cipher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := storage.NewBoltStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	c, err := credentials.NewCipher(testKey)
	if err != nil {
		t.Fatalf("NewCipher() error = %v", err)
	}
	return &fixture{
		accounts: storage.NewAccountStore(s),
		emails:   storage.NewEmailStore(s),
		cipher:   c,
	}
}

// account stores an account owned by userID whose password is "hunter2".
func (f *fixture) account(t *testing.T, userID string) *models.MailAccount {
	t.Helper()
	sealed, err := f.cipher.Encrypt("hunter2")
	if err != nil {
		t.Fatal(err)
	}
	acct := &models.MailAccount{
		UserID:            userID,
		Email:             userID + "@example.com",
		EncryptedPassword: sealed,
		IMAPHost:          "imap.example.com",
		SMTPHost:          "smtp.example.com",
	}
	if err := f.accounts.Create(context.Background(), acct); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return acct
}

func message(id, subject string) *models.NormalizedMessage {
	return &models.NormalizedMessage{
		MessageID:  id,
		From:       "sender@example.com",
		To:         "me@example.com",
		Subject:    subject,
		Body:       "<p>" + subject + "</p>",
		ReceivedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

// failingEmails wraps an EmailRepository and fails selected writes.
type failingEmails struct {
	EmailRepository
	failStatus error
	failInsert error
}

func (f *failingEmails) UpdateStatus(ctx context.Context, id string, status models.Status, messageID, errMsg string) error {
	if f.failStatus != nil && status != models.StatusSending {
		return f.failStatus
	}
	return f.EmailRepository.UpdateStatus(ctx, id, status, messageID, errMsg)
}

func (f *failingEmails) InsertBatch(ctx context.Context, emails []*models.StoredEmail) error {
	if f.failInsert != nil {
		return f.failInsert
	}
	return f.EmailRepository.InsertBatch(ctx, emails)
}

var errDisk = errors.New("disk full")

func (f *fixture) cipherWithKey(t *testing.T, key string) *credentials.Cipher {
	t.Helper()
	c, err := credentials.NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}
	return c
}
