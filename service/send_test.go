package service

import (
	"context"
	"errors"
	"testing"

	"mailbridge/mailerr"
	"mailbridge/models"
)

func TestSendSuccessMarksSent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.account(t, "u1")
	sender := &fakeSender{messageID: "generated@example.com"}
	notifier := &recordingNotifier{}
	svc := NewSendService(f.accounts, f.emails, sender, f.cipher, notifier)

	res, err := svc.Send(ctx, "u1", &SendRequest{
		AccountID: acct.ID,
		To:        "Bob <bob@example.com>",
		Subject:   "hi",
		Content:   "<p>hi</p>",
		Attachments: []models.Attachment{
			{Filename: "a.txt", ContentType: "text/plain", Content: []byte("abc")},
		},
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !res.Success || res.MessageID != "generated@example.com" || res.EmailID == "" {
		t.Fatalf("Send() = %+v", res)
	}
	if sender.password != "hunter2" {
		t.Errorf("sender got password %q", sender.password)
	}
	if len(sender.sent) != 1 || sender.sent[0].To[0].Address != "bob@example.com" {
		t.Errorf("sent = %+v", sender.sent)
	}

	stored, err := f.emails.Get(ctx, res.EmailID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.StatusSent || stored.Folder != models.FolderSent {
		t.Errorf("stored status/folder = %s/%s, want sent/sent", stored.Status, stored.Folder)
	}
	if stored.MessageID != "generated@example.com" {
		t.Errorf("stored MessageID = %q", stored.MessageID)
	}
	if len(stored.Attachments) != 1 || stored.Attachments[0].Size != 3 {
		t.Errorf("stored attachments = %+v, want metadata for a.txt", stored.Attachments)
	}
	if len(notifier.items) != 1 || notifier.items[0].Type != models.NotificationStatusChange {
		t.Errorf("notifications = %+v", notifier.items)
	}
}

func TestSendFailureMarksError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.account(t, "u1")

	draft := &models.StoredEmail{UserID: "u1", AccountID: acct.ID, Folder: models.FolderSent, Subject: "draft"}
	if err := f.emails.Create(ctx, draft); err != nil {
		t.Fatal(err)
	}

	smtpErr := &mailerr.SMTPError{Stage: mailerr.StageAuth, Err: errors.New("535 authentication failed")}
	svc := NewSendService(f.accounts, f.emails, &fakeSender{err: smtpErr}, f.cipher, nil)

	res, err := svc.Send(ctx, "u1", &SendRequest{AccountID: acct.ID, EmailID: draft.ID, To: "bob@example.com"})
	var got *mailerr.SMTPError
	if !errors.As(err, &got) || got.Stage != mailerr.StageAuth {
		t.Fatalf("Send() error = %v, want auth SMTPError", err)
	}
	if res == nil || res.Success {
		t.Errorf("Send() result = %+v, want unsuccessful", res)
	}

	stored, err := f.emails.Get(ctx, draft.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.StatusError {
		t.Errorf("Status = %q, want %q", stored.Status, models.StatusError)
	}
	if stored.Error == "" {
		t.Error("Error is empty, want the failure message")
	}
}

func TestSendFailureSurvivesStatusWriteFailure(t *testing.T) {
	f := newFixture(t)
	acct := f.account(t, "u1")
	emails := &failingEmails{EmailRepository: f.emails, failStatus: &mailerr.StoreError{Op: "update email status", Err: errDisk}}
	smtpErr := &mailerr.SMTPError{Stage: mailerr.StageSend, Err: errors.New("554 rejected")}
	svc := NewSendService(f.accounts, emails, &fakeSender{err: smtpErr}, f.cipher, nil)

	_, err := svc.Send(context.Background(), "u1", &SendRequest{AccountID: acct.ID, To: "bob@example.com"})
	var se *mailerr.SMTPError
	if !errors.As(err, &se) {
		t.Errorf("Send() error = %v, want it to carry the SMTPError", err)
	}
	var ste *mailerr.StoreError
	if !errors.As(err, &ste) {
		t.Errorf("Send() error = %v, want it to carry the StoreError", err)
	}
}

func TestSendSuccessSurfacesStatusWriteFailure(t *testing.T) {
	f := newFixture(t)
	acct := f.account(t, "u1")
	emails := &failingEmails{EmailRepository: f.emails, failStatus: &mailerr.StoreError{Op: "update email status", Err: errDisk}}
	svc := NewSendService(f.accounts, emails, &fakeSender{messageID: "m@example.com"}, f.cipher, nil)

	res, err := svc.Send(context.Background(), "u1", &SendRequest{AccountID: acct.ID, To: "bob@example.com"})
	var ste *mailerr.StoreError
	if !errors.As(err, &ste) {
		t.Errorf("Send() error = %v, want *mailerr.StoreError", err)
	}
	if res == nil || !res.Success {
		t.Errorf("Send() result = %+v, want Success since the message went out", res)
	}
}

func TestSendRejectsForeignEmailAndAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mine := f.account(t, "u1")
	theirs := f.account(t, "u2")
	sender := &fakeSender{messageID: "x"}
	svc := NewSendService(f.accounts, f.emails, sender, f.cipher, nil)

	_, err := svc.Send(ctx, "u1", &SendRequest{AccountID: theirs.ID, To: "bob@example.com"})
	var ae *mailerr.AuthorizationError
	if !errors.As(err, &ae) {
		t.Errorf("Send() with foreign account error = %v, want AuthorizationError", err)
	}

	foreign := &models.StoredEmail{UserID: "u2", Folder: models.FolderSent}
	if err := f.emails.Create(ctx, foreign); err != nil {
		t.Fatal(err)
	}
	_, err = svc.Send(ctx, "u1", &SendRequest{AccountID: mine.ID, EmailID: foreign.ID, To: "bob@example.com"})
	if !errors.As(err, &ae) {
		t.Errorf("Send() with foreign email error = %v, want AuthorizationError", err)
	}
	if len(sender.sent) != 0 {
		t.Errorf("sender used %d times, want 0", len(sender.sent))
	}
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t)
	acct := f.account(t, "u1")
	svc := NewSendService(f.accounts, f.emails, &fakeSender{}, f.cipher, nil)

	tests := []struct {
		name string
		req  *SendRequest
	}{
		{"nil request", nil},
		{"no recipient", &SendRequest{AccountID: acct.ID}},
		{"bad recipient", &SendRequest{AccountID: acct.ID, To: "not an address"}},
		{"no account", &SendRequest{To: "bob@example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Send(context.Background(), "u1", tt.req)
			var ve *mailerr.ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("Send() error = %v, want *mailerr.ValidationError", err)
			}
		})
	}
}
