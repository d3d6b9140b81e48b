package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/emersion/go-message/mail"

	"mailbridge/mailerr"
	"mailbridge/models"
	"mailbridge/utils"
)

var errAuthNotOffered = errors.New("server does not offer AUTH")

// SendOptions tunes an SMTPSender.
type SendOptions struct {
	Timeout            time.Duration
	InsecureSkipVerify bool
	VerifyBeforeSend   bool // issue NOOP after the handshake
}

// SMTPSender submits messages through an account's SMTP server.
type SMTPSender struct {
	opts SendOptions
	now  func() time.Time
}

// NewSMTPSender creates a sender.
func NewSMTPSender(opts SendOptions) *SMTPSender {
	if opts.Timeout <= 0 {
		opts.Timeout = 45 * time.Second
	}
	return &SMTPSender{opts: opts, now: time.Now}
}

// Send relays msg and returns the Message-ID it was submitted with. Any
// failure is a *mailerr.SMTPError or *mailerr.TimeoutError naming the stage.
func (s *SMTPSender) Send(ctx context.Context, acct *models.MailAccount, password string, msg *OutboundMessage) (string, error) {
	if len(msg.To) == 0 {
		return "", &mailerr.ValidationError{Field: "to", Reason: "at least one recipient is required"}
	}

	var raw bytes.Buffer
	from := &mail.Address{Name: acct.DisplayName, Address: acct.Email}
	messageID, err := compose(&raw, from, msg, s.now())
	if err != nil {
		return "", &mailerr.SMTPError{Stage: mailerr.StageSend, Err: err}
	}

	err = s.session(ctx, acct, password, func(ctx context.Context, c *smtp.Client) error {
		if err := c.Mail(acct.Email); err != nil {
			return failSMTP(ctx, mailerr.StageSend, err)
		}
		for _, rcpt := range msg.To {
			if err := c.Rcpt(rcpt.Address); err != nil {
				return failSMTP(ctx, mailerr.StageSend, err)
			}
		}
		w, err := c.Data()
		if err != nil {
			return failSMTP(ctx, mailerr.StageSend, err)
		}
		if _, err := w.Write(raw.Bytes()); err != nil {
			return failSMTP(ctx, mailerr.StageSend, err)
		}
		if err := w.Close(); err != nil {
			return failSMTP(ctx, mailerr.StageSend, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	utils.Log.WithField("account", acct.ID).Info("SMTP accepted message %s for %d recipients", messageID, len(msg.To))
	return messageID, nil
}

// Verify connects, authenticates and quits without sending anything.
func (s *SMTPSender) Verify(ctx context.Context, acct *models.MailAccount, password string) error {
	return s.session(ctx, acct, password, func(context.Context, *smtp.Client) error { return nil })
}

// session runs fn on an authenticated client. The connection is closed on
// every path; QUIT is only attempted after fn succeeds.
func (s *SMTPSender) session(ctx context.Context, acct *models.MailAccount, password string,
	fn func(context.Context, *smtp.Client) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	addr := net.JoinHostPort(acct.SMTPHost, strconv.Itoa(acct.SMTPPort))
	tlsConfig := &tls.Config{
		ServerName:         acct.SMTPHost,
		InsecureSkipVerify: s.opts.InsecureSkipVerify,
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return failSMTP(ctx, mailerr.StageConnect, err)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return failSMTP(ctx, mailerr.StageConnect, err)
		}
	}

	if acct.SMTPUseTLS {
		tlsConn := tls.Client(conn, tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return failSMTP(ctx, mailerr.StageHandshake, err)
		}
		conn = tlsConn
	}

	c, err := smtp.NewClient(conn, acct.SMTPHost)
	if err != nil {
		conn.Close()
		return failSMTP(ctx, mailerr.StageConnect, err)
	}
	defer c.Close()

	if err := c.Hello(domainOf(acct.Email)); err != nil {
		return failSMTP(ctx, mailerr.StageHandshake, err)
	}
	if !acct.SMTPUseTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(tlsConfig); err != nil {
				return failSMTP(ctx, mailerr.StageHandshake, err)
			}
		}
	}
	if s.opts.VerifyBeforeSend {
		if err := c.Noop(); err != nil {
			return failSMTP(ctx, mailerr.StageVerify, err)
		}
	}
	if password != "" {
		if ok, _ := c.Extension("AUTH"); !ok {
			return failSMTP(ctx, mailerr.StageAuth, errAuthNotOffered)
		}
		auth := smtp.PlainAuth("", acct.LoginName(), password, acct.SMTPHost)
		if err := c.Auth(auth); err != nil {
			return failSMTP(ctx, mailerr.StageAuth, err)
		}
	}

	if err := fn(ctx, c); err != nil {
		return err
	}
	if err := c.Quit(); err != nil {
		utils.Log.Debug("SMTP QUIT to %s failed: %v", addr, err)
	}
	return nil
}

func failSMTP(ctx context.Context, stage mailerr.Stage, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &mailerr.TimeoutError{Protocol: "smtp", Stage: stage, Err: err}
	}
	return mailerr.SMTP(stage, err)
}
