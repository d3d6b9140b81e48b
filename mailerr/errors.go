// Package mailerr defines the error taxonomy shared by the sync and send paths.
// Callers match with errors.As; the HTTP layer maps each type to a status code.
package mailerr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
)

// Stage names the protocol step a mail session failed in.
type Stage string

const (
	StageConnect   Stage = "connect"
	StageHandshake Stage = "handshake"
	StageAuth      Stage = "auth"
	StageSelect    Stage = "select"
	StageSearch    Stage = "search"
	StageFetch     Stage = "fetch"
	StageVerify    Stage = "verify"
	StageSend      Stage = "send"
)

// ValidationError reports a malformed request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// ConfigError reports a stored account or process setting that cannot be used.
type ConfigError struct {
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %v", e.Reason, e.Err)
	}
	return "config: " + e.Reason
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NotFoundError reports a missing document.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// AuthorizationError reports a caller acting on a resource owned by someone else.
type AuthorizationError struct {
	UserID   string
	Resource string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("user %q is not allowed to access %s", e.UserID, e.Resource)
}

// CryptoError reports a failed encrypt or decrypt. It never carries key
// material, ciphertext or plaintext.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("crypto %s: %v", e.Op, e.Err)
	}
	return "crypto " + e.Op + " failed"
}

func (e *CryptoError) Unwrap() error { return e.Err }

// IMAPError reports a fatal failure of an IMAP session.
type IMAPError struct {
	Stage Stage
	Err   error
}

func (e *IMAPError) Error() string {
	return fmt.Sprintf("imap %s: %v", e.Stage, e.Err)
}

func (e *IMAPError) Unwrap() error { return e.Err }

// SMTPError reports a failure of an SMTP session.
type SMTPError struct {
	Stage Stage
	Err   error
}

func (e *SMTPError) Error() string {
	return fmt.Sprintf("smtp %s: %v", e.Stage, e.Err)
}

func (e *SMTPError) Unwrap() error { return e.Err }

// ParseError reports a single message that could not be decoded.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse message: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StoreError reports a document store read or write failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// TimeoutError reports a mail session that exceeded its deadline.
type TimeoutError struct {
	Protocol string
	Stage    Stage
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s %s: timed out: %v", e.Protocol, e.Stage, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// BusyError reports that a sync for the same account is already running.
type BusyError struct {
	Key string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("operation already running for %s", e.Key)
}

// IsTimeout reports whether err was caused by an expired deadline.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IMAP wraps err as an IMAPError, or a TimeoutError when a deadline caused it.
func IMAP(stage Stage, err error) error {
	if IsTimeout(err) {
		return &TimeoutError{Protocol: "imap", Stage: stage, Err: err}
	}
	return &IMAPError{Stage: stage, Err: err}
}

// SMTP wraps err as an SMTPError, or a TimeoutError when a deadline caused it.
func SMTP(stage Stage, err error) error {
	if IsTimeout(err) {
		return &TimeoutError{Protocol: "smtp", Stage: stage, Err: err}
	}
	return &SMTPError{Stage: stage, Err: err}
}
