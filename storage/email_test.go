package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"mailbridge/mailerr"
	"mailbridge/models"
)

func newEmailStore(t *testing.T) *EmailStore {
	t.Helper()
	s, err := NewBoltStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewEmailStore(s)
}

func TestEmailStoreInsertAndExisting(t *testing.T) {
	ctx := context.Background()
	es := newEmailStore(t)

	emails := []*models.StoredEmail{
		{UserID: "u1", MessageID: "m1", Folder: models.FolderInbox, Timestamp: time.Now()},
		{UserID: "u1", MessageID: "m2", Folder: models.FolderInbox, Timestamp: time.Now()},
		{UserID: "u2", MessageID: "m3", Folder: models.FolderInbox, Timestamp: time.Now()},
	}
	if err := es.InsertBatch(ctx, emails); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}
	for _, e := range emails {
		if e.ID == "" {
			t.Errorf("InsertBatch() left an email without id")
		}
	}

	ids, err := es.ExistingMessageIDs(ctx, "u1")
	if err != nil {
		t.Fatalf("ExistingMessageIDs() error = %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("ExistingMessageIDs(u1) = %v, want m1 and m2", ids)
	}
	if _, ok := ids["m3"]; ok {
		t.Error("ExistingMessageIDs(u1) includes another user's message")
	}
}

func TestEmailStoreUpdateStatus(t *testing.T) {
	ctx := context.Background()
	es := newEmailStore(t)

	e := &models.StoredEmail{UserID: "u1", Folder: models.FolderSent, Status: models.StatusSending}
	if err := es.Create(ctx, e); err != nil {
		t.Fatal(err)
	}
	if err := es.UpdateStatus(ctx, e.ID, models.StatusError, "", "smtp auth: 535"); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	got, err := es.Get(ctx, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusError || got.Error != "smtp auth: 535" {
		t.Errorf("after UpdateStatus() = %+v", got)
	}

	var se *mailerr.StoreError
	if err := es.UpdateStatus(ctx, "missing", models.StatusSent, "", ""); !errors.As(err, &se) {
		t.Errorf("UpdateStatus(missing) error = %v, want StoreError", err)
	}
}

func TestEmailStoreExistingIgnoresOutbound(t *testing.T) {
	ctx := context.Background()
	es := newEmailStore(t)

	out := &models.StoredEmail{UserID: "u1", Folder: models.FolderSent, Status: models.StatusSending}
	if err := es.Create(ctx, out); err != nil {
		t.Fatal(err)
	}
	if err := es.UpdateStatus(ctx, out.ID, models.StatusSent, "out-1@example.com", ""); err != nil {
		t.Fatal(err)
	}
	if err := es.InsertBatch(ctx, []*models.StoredEmail{
		{UserID: "u1", MessageID: "in-1@example.com", Folder: models.FolderInbox, Timestamp: time.Now()},
	}); err != nil {
		t.Fatal(err)
	}

	ids, err := es.ExistingMessageIDs(ctx, "u1")
	if err != nil {
		t.Fatalf("ExistingMessageIDs() error = %v", err)
	}
	if _, ok := ids["out-1@example.com"]; ok {
		t.Error("ExistingMessageIDs() includes the id of a sent message")
	}
	if _, ok := ids["in-1@example.com"]; !ok {
		t.Error("ExistingMessageIDs() is missing a fetched message")
	}
}

func TestEmailStoreSetSelectedOwnership(t *testing.T) {
	ctx := context.Background()
	es := newEmailStore(t)

	mine := &models.StoredEmail{UserID: "u1", Folder: models.FolderInbox}
	theirs := &models.StoredEmail{UserID: "u2", Folder: models.FolderInbox}
	if err := es.InsertBatch(ctx, []*models.StoredEmail{mine, theirs}); err != nil {
		t.Fatal(err)
	}

	var ae *mailerr.AuthorizationError
	if err := es.SetSelected(ctx, "u1", []string{mine.ID, theirs.ID}, true); !errors.As(err, &ae) {
		t.Fatalf("SetSelected(foreign) error = %v, want AuthorizationError", err)
	}
	got, _ := es.Get(ctx, mine.ID)
	if got.Selected {
		t.Error("SetSelected() wrote despite ownership failure")
	}

	if err := es.SetSelected(ctx, "u1", []string{mine.ID}, true); err != nil {
		t.Fatalf("SetSelected() error = %v", err)
	}
	got, _ = es.Get(ctx, mine.ID)
	if !got.Selected {
		t.Error("SetSelected() did not set the flag")
	}
}

func TestEmailStoreListByFolder(t *testing.T) {
	ctx := context.Background()
	es := newEmailStore(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	err := es.InsertBatch(ctx, []*models.StoredEmail{
		{UserID: "u1", Subject: "older", Folder: models.FolderInbox, Timestamp: base},
		{UserID: "u1", Subject: "newer", Folder: models.FolderInbox, Timestamp: base.Add(time.Hour)},
		{UserID: "u1", Subject: "sent", Folder: models.FolderSent, Timestamp: base},
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := es.ListByFolder(ctx, "u1", models.FolderInbox)
	if err != nil {
		t.Fatalf("ListByFolder() error = %v", err)
	}
	if len(got) != 2 || got[0].Subject != "newer" || got[1].Subject != "older" {
		t.Errorf("ListByFolder() = %v", got)
	}
}
