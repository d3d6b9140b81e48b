package mailer

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"mailbridge/mailerr"
	"mailbridge/models"
	"mailbridge/utils"
)

// maxBodyBytes caps how much of a single text part is read into memory.
const maxBodyBytes = 10 << 20

// Parser turns raw RFC 5322 messages into NormalizedMessages.
type Parser struct {
	now func() time.Time
}

// NewParser creates a parser that stamps undated messages with the current time.
func NewParser() *Parser {
	return &Parser{now: time.Now}
}

// Parse reads one message. Malformed input yields a *mailerr.ParseError;
// unknown charsets are tolerated and decoded as-is.
func (p *Parser) Parse(r io.Reader) (*models.NormalizedMessage, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, &mailerr.ParseError{Err: err}
	}
	if mr == nil {
		return nil, &mailerr.ParseError{Err: errors.New("no message")}
	}
	defer mr.Close()

	h := mr.Header
	if h.Fields().Len() == 0 {
		return nil, &mailerr.ParseError{Err: errors.New("message has no header")}
	}

	msg := &models.NormalizedMessage{
		MessageID: messageID(h),
		From:      firstAddress(h, "From"),
		To:        firstAddress(h, "To"),
	}
	msg.Subject, _ = h.Subject()

	date, err := h.Date()
	if err != nil || date.IsZero() {
		date = p.now()
		msg.DateMissing = true
	}
	msg.ReceivedAt = date.UTC()

	var htmlBody, textBody string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return nil, &mailerr.ParseError{Err: err}
		}

		switch ph := part.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := ph.ContentType()
			b, err := io.ReadAll(io.LimitReader(part.Body, maxBodyBytes))
			if err != nil {
				return nil, &mailerr.ParseError{Err: fmt.Errorf("read %s part: %w", ct, err)}
			}
			switch {
			case ct == "text/html" && htmlBody == "":
				htmlBody = string(b)
			case (ct == "text/plain" || ct == "") && textBody == "":
				textBody = string(b)
			}
		case *mail.AttachmentHeader:
			filename, _ := ph.Filename()
			ct, _, _ := ph.ContentType()
			// Only metadata is kept; the bytes are counted.
			n, err := io.Copy(io.Discard, part.Body)
			if err != nil {
				return nil, &mailerr.ParseError{Err: fmt.Errorf("read attachment %q: %w", filename, err)}
			}
			msg.Attachments = append(msg.Attachments, models.Attachment{
				Filename:    filename,
				ContentType: ct,
				Size:        int(n),
			})
		}
	}

	switch {
	case strings.TrimSpace(htmlBody) != "":
		msg.Body = utils.SanitizeHTML(htmlBody)
	case textBody != "":
		msg.Body = utils.TextToHTML(textBody)
		if msg.Body == "" {
			msg.Body = textBody
		}
	}

	return msg, nil
}

// messageID returns the Message-ID without angle brackets. Ids that do not
// follow the RFC grammar are kept verbatim rather than dropped.
func messageID(h mail.Header) string {
	if id, err := h.MessageID(); err == nil && id != "" {
		return id
	}
	raw := strings.TrimSpace(h.Get("Message-Id"))
	return strings.TrimSuffix(strings.TrimPrefix(raw, "<"), ">")
}

// firstAddress renders the first address of key, or the raw field when it
// cannot be parsed.
func firstAddress(h mail.Header, key string) string {
	list, err := h.AddressList(key)
	if err != nil || len(list) == 0 {
		raw, _ := h.Text(key)
		return strings.TrimSpace(raw)
	}
	a := list[0]
	if a.Name == "" {
		return a.Address
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Address)
}
