package models

import (
	"time"

	"mailbridge/mailerr"
)

// Folder is where a StoredEmail is filed.
type Folder string

const (
	FolderInbox   Folder = "inbox"
	FolderSent    Folder = "sent"
	FolderArchive Folder = "archive"
	FolderTrash   Folder = "trash"
	FolderCustom  Folder = "custom"
)

// Valid reports whether f is one of the known folders.
func (f Folder) Valid() bool {
	switch f {
	case FolderInbox, FolderSent, FolderArchive, FolderTrash, FolderCustom:
		return true
	}
	return false
}

// Status tracks delivery of an outbound email.
type Status string

const (
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusError   Status = "error"
)

// Attachment is a file carried by a message. Content is kept out of stored
// documents; only inbound metadata is persisted.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
	Content     []byte `json:"-"`
}

// NormalizedMessage is one parsed inbound message. It lives only for the
// duration of a sync.
type NormalizedMessage struct {
	MessageID   string
	From        string
	To          string
	Subject     string
	Body        string
	ReceivedAt  time.Time
	AccountID   string
	Attachments []Attachment
	// DateMissing is set when ReceivedAt was defaulted to the parse time.
	DateMissing bool
}

// StoredEmail is the persisted record for both inbound and sent mail.
type StoredEmail struct {
	ID          string       `json:"id"`
	UserID      string       `json:"userId"`
	AccountID   string       `json:"accountId"`
	MessageID   string       `json:"messageId"`
	From        string       `json:"from"`
	To          string       `json:"to"`
	Subject     string       `json:"subject"`
	Content     string       `json:"content"`
	Timestamp   time.Time    `json:"timestamp"`
	Read        bool         `json:"read"`
	Starred     bool         `json:"starred"`
	Selected    bool         `json:"selected"`
	Folder      Folder       `json:"folder"`
	Status      Status       `json:"status,omitempty"`
	Error       string       `json:"error,omitempty"`
	Attachments []Attachment `json:"attachments"`
}

// Validate rejects records that lack the fields every reader relies on.
func (e *StoredEmail) Validate() error {
	switch {
	case e.ID == "":
		return &mailerr.ConfigError{Reason: "email id is missing"}
	case e.UserID == "":
		return &mailerr.ConfigError{Reason: "email owner is missing"}
	}
	if e.Folder == "" {
		e.Folder = FolderInbox
	}
	if !e.Folder.Valid() {
		return &mailerr.ConfigError{Reason: "email folder " + string(e.Folder) + " is unknown"}
	}
	if e.Attachments == nil {
		e.Attachments = []Attachment{}
	}
	return nil
}
