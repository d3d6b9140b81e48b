package storage

import (
	"context"
	"errors"
	"testing"

	"mailbridge/mailerr"
	"mailbridge/models"
)

func TestAccountStoreCreateGet(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	as := NewAccountStore(s)

	acct := &models.MailAccount{
		UserID: "u1", Email: " me@example.com ", EncryptedPassword: "sealed",
		IMAPHost: "imap.example.com", IMAPUseTLS: true, SMTPHost: "smtp.example.com",
	}
	if err := as.Create(ctx, acct); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	got, err := as.Get(ctx, acct.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Email != "me@example.com" || got.IMAPPort != 993 || got.SMTPPort != 587 {
		t.Errorf("Get() = %+v", got)
	}

	list, err := as.ListByUser(ctx, "u1")
	if err != nil || len(list) != 1 {
		t.Errorf("ListByUser() = %v, %v", list, err)
	}

	var nf *mailerr.NotFoundError
	if _, err := as.Get(ctx, "nope"); !errors.As(err, &nf) {
		t.Errorf("Get(missing) error = %v, want NotFoundError", err)
	}
}

func TestAccountStoreRejectsIncompleteRecords(t *testing.T) {
	ctx := context.Background()
	s, err := NewBoltStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	// written behind the repository's back, without a password
	raw := map[string]interface{}{"id": "a1", "userId": "u1", "email": "x@y", "imapHost": "h", "smtpHost": "h"}
	if err := s.Set(ctx, CollectionAccounts, "a1", raw); err != nil {
		t.Fatal(err)
	}

	as := NewAccountStore(s)
	var ce *mailerr.ConfigError
	if _, err := as.Get(ctx, "a1"); !errors.As(err, &ce) {
		t.Errorf("Get(incomplete) error = %v, want ConfigError", err)
	}
	list, err := as.ListByUser(ctx, "u1")
	if err != nil || len(list) != 0 {
		t.Errorf("ListByUser() = %v, %v, want incomplete record skipped", list, err)
	}
}
