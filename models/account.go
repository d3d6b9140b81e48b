package models

import (
	"strings"
	"time"

	"mailbridge/mailerr"
)

// MailAccount is one IMAP/SMTP identity owned by a user.
// EncryptedPassword is only ever decrypted right before a session is opened.
type MailAccount struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userId"`
	DisplayName       string    `json:"displayName"`
	Email             string    `json:"email"`
	Username          string    `json:"username,omitempty"`
	EncryptedPassword string    `json:"encryptedPassword"`
	IMAPHost          string    `json:"imapHost"`
	IMAPPort          int       `json:"imapPort"`
	IMAPUseTLS        bool      `json:"imapUseTLS"`
	SMTPHost          string    `json:"smtpHost"`
	SMTPPort          int       `json:"smtpPort"`
	SMTPUseTLS        bool      `json:"smtpUseTLS"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// LoginName returns the name used for IMAP LOGIN and SMTP AUTH.
func (a *MailAccount) LoginName() string {
	if a.Username != "" {
		return a.Username
	}
	return a.Email
}

// Normalize trims string fields and fills in the conventional ports.
func (a *MailAccount) Normalize() {
	a.Email = strings.TrimSpace(a.Email)
	a.Username = strings.TrimSpace(a.Username)
	a.IMAPHost = strings.TrimSpace(a.IMAPHost)
	a.SMTPHost = strings.TrimSpace(a.SMTPHost)
	if a.IMAPPort == 0 {
		a.IMAPPort = 143
		if a.IMAPUseTLS {
			a.IMAPPort = 993
		}
	}
	if a.SMTPPort == 0 {
		a.SMTPPort = 587
		if a.SMTPUseTLS {
			a.SMTPPort = 465
		}
	}
}

// Validate checks the fields every sync or send depends on.
func (a *MailAccount) Validate() error {
	switch {
	case a.ID == "":
		return &mailerr.ConfigError{Reason: "account id is missing"}
	case a.UserID == "":
		return &mailerr.ConfigError{Reason: "account owner is missing"}
	case a.Email == "":
		return &mailerr.ConfigError{Reason: "account email is missing"}
	case a.EncryptedPassword == "":
		return &mailerr.ConfigError{Reason: "account password is missing"}
	case a.IMAPHost == "":
		return &mailerr.ConfigError{Reason: "imap host is missing"}
	case a.SMTPHost == "":
		return &mailerr.ConfigError{Reason: "smtp host is missing"}
	case a.IMAPPort < 1 || a.IMAPPort > 65535:
		return &mailerr.ConfigError{Reason: "imap port is out of range"}
	case a.SMTPPort < 1 || a.SMTPPort > 65535:
		return &mailerr.ConfigError{Reason: "smtp port is out of range"}
	}
	return nil
}

// AccountView is the client-facing shape of a MailAccount.
type AccountView struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Email       string    `json:"email"`
	Username    string    `json:"username,omitempty"`
	IMAPHost    string    `json:"imapHost"`
	IMAPPort    int       `json:"imapPort"`
	IMAPUseTLS  bool      `json:"imapUseTLS"`
	SMTPHost    string    `json:"smtpHost"`
	SMTPPort    int       `json:"smtpPort"`
	SMTPUseTLS  bool      `json:"smtpUseTLS"`
	CreatedAt   time.Time `json:"createdAt"`
}

// View strips the encrypted password.
func (a *MailAccount) View() AccountView {
	return AccountView{
		ID:          a.ID,
		DisplayName: a.DisplayName,
		Email:       a.Email,
		Username:    a.Username,
		IMAPHost:    a.IMAPHost,
		IMAPPort:    a.IMAPPort,
		IMAPUseTLS:  a.IMAPUseTLS,
		SMTPHost:    a.SMTPHost,
		SMTPPort:    a.SMTPPort,
		SMTPUseTLS:  a.SMTPUseTLS,
		CreatedAt:   a.CreatedAt,
	}
}
