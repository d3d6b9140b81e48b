package service

import (
	"context"
	"strings"

	"mailbridge/mailerr"
	"mailbridge/models"
	"mailbridge/utils"
)

// NewAccount is the input for AccountService.Create.
type NewAccount struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	IMAPHost    string `json:"imapHost"`
	IMAPPort    int    `json:"imapPort"`
	IMAPUseTLS  bool   `json:"imapUseTLS"`
	SMTPHost    string `json:"smtpHost"`
	SMTPPort    int    `json:"smtpPort"`
	SMTPUseTLS  bool   `json:"smtpUseTLS"`
}

// Connection test kinds.
const (
	TestIMAP = "imap"
	TestSMTP = "smtp"
)

// AccountService manages a user's mail accounts.
type AccountService struct {
	accounts AccountRepository
	fetcher  Fetcher
	sender   Sender
	sealer   Sealer
}

// NewAccountService wires an AccountService.
func NewAccountService(accounts AccountRepository, fetcher Fetcher, sender Sender, sealer Sealer) *AccountService {
	return &AccountService{accounts: accounts, fetcher: fetcher, sender: sender, sealer: sealer}
}

// Create encrypts the password and stores a new account for userID.
func (s *AccountService) Create(ctx context.Context, userID string, in *NewAccount) (*models.AccountView, error) {
	if userID == "" {
		return nil, &mailerr.ValidationError{Field: "userId", Reason: "is required"}
	}
	if in == nil || strings.TrimSpace(in.Email) == "" {
		return nil, &mailerr.ValidationError{Field: "email", Reason: "is required"}
	}
	if in.Password == "" {
		return nil, &mailerr.ValidationError{Field: "password", Reason: "is required"}
	}
	if strings.TrimSpace(in.IMAPHost) == "" {
		return nil, &mailerr.ValidationError{Field: "imapHost", Reason: "is required"}
	}
	if strings.TrimSpace(in.SMTPHost) == "" {
		return nil, &mailerr.ValidationError{Field: "smtpHost", Reason: "is required"}
	}

	sealed, err := s.sealer.Encrypt(in.Password)
	if err != nil {
		return nil, err
	}
	acct := &models.MailAccount{
		UserID:            userID,
		DisplayName:       in.DisplayName,
		Email:             in.Email,
		Username:          in.Username,
		EncryptedPassword: sealed,
		IMAPHost:          in.IMAPHost,
		IMAPPort:          in.IMAPPort,
		IMAPUseTLS:        in.IMAPUseTLS,
		SMTPHost:          in.SMTPHost,
		SMTPPort:          in.SMTPPort,
		SMTPUseTLS:        in.SMTPUseTLS,
	}
	if err := s.accounts.Create(ctx, acct); err != nil {
		return nil, err
	}

	utils.Log.WithField("user", userID).Info("Added account %s (%s)", acct.ID, acct.Email)
	view := acct.View()
	return &view, nil
}

// List returns userID's accounts without their stored passwords.
func (s *AccountService) List(ctx context.Context, userID string) ([]models.AccountView, error) {
	accounts, err := s.accounts.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]models.AccountView, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, a.View())
	}
	return views, nil
}

// Delete removes one of userID's accounts. Stored emails are kept.
func (s *AccountService) Delete(ctx context.Context, userID, accountID string) error {
	if _, err := ownedAccount(ctx, s.accounts, userID, accountID); err != nil {
		return err
	}
	return s.accounts.Delete(ctx, accountID)
}

// Test opens a session of the given kind with the stored credentials.
func (s *AccountService) Test(ctx context.Context, userID, accountID, kind string) error {
	if kind != TestIMAP && kind != TestSMTP {
		return &mailerr.ValidationError{Field: "type", Reason: "must be imap or smtp"}
	}
	acct, err := ownedAccount(ctx, s.accounts, userID, accountID)
	if err != nil {
		return err
	}
	pw, err := password(s.sealer, acct)
	if err != nil {
		return err
	}
	if kind == TestIMAP {
		return s.fetcher.Check(ctx, acct, pw)
	}
	return s.sender.Verify(ctx, acct, pw)
}
