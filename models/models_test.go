package models

import (
	"errors"
	"testing"

	"mailbridge/mailerr"
)

func TestMailAccountNormalize(t *testing.T) {
	tests := []struct {
		imapTLS, smtpTLS   bool
		wantIMAP, wantSMTP int
	}{
		{true, true, 993, 465},
		{false, false, 143, 587},
	}
	for _, tt := range tests {
		a := &MailAccount{IMAPUseTLS: tt.imapTLS, SMTPUseTLS: tt.smtpTLS}
		a.Normalize()
		if a.IMAPPort != tt.wantIMAP || a.SMTPPort != tt.wantSMTP {
			t.Errorf("Normalize(tls=%v/%v) ports = %d/%d, want %d/%d",
				tt.imapTLS, tt.smtpTLS, a.IMAPPort, a.SMTPPort, tt.wantIMAP, tt.wantSMTP)
		}
	}
}

func TestMailAccountValidate(t *testing.T) {
	valid := MailAccount{
		ID: "a1", UserID: "u1", Email: "me@example.com", EncryptedPassword: "x",
		IMAPHost: "imap.example.com", IMAPPort: 993, SMTPHost: "smtp.example.com", SMTPPort: 465,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	missing := valid
	missing.EncryptedPassword = ""
	var ce *mailerr.ConfigError
	if err := missing.Validate(); !errors.As(err, &ce) {
		t.Errorf("Validate() without password = %v, want ConfigError", err)
	}

	if got := valid.LoginName(); got != "me@example.com" {
		t.Errorf("LoginName() = %q, want email fallback", got)
	}
}

func TestPaginate(t *testing.T) {
	all := make([]*StoredEmail, 5)
	for i := range all {
		all[i] = &StoredEmail{}
	}
	p := Paginate(all, 2, 2)
	if len(p.Emails) != 2 || p.TotalPages != 3 || !p.HasNext || !p.HasPrev {
		t.Errorf("Paginate(5, 2, 2) = %+v", p)
	}
	p = Paginate(all, 9, 2)
	if len(p.Emails) != 0 || p.HasNext {
		t.Errorf("Paginate past end = %+v", p)
	}
}
