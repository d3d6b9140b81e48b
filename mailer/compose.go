package mailer

import (
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"mailbridge/models"
	"mailbridge/utils"
)

// Address is a parsed mailbox.
type Address = mail.Address

// OutboundMessage is one message to submit.
type OutboundMessage struct {
	To          []*Address
	Subject     string
	HTML        string
	Attachments []models.Attachment
}

// ParseRecipients splits a comma separated address list.
func ParseRecipients(to string) ([]*Address, error) {
	return mail.ParseAddressList(strings.TrimSpace(to))
}

// compose writes msg as a multipart/mixed message: a multipart/alternative
// text and HTML body followed by base64 attachments. It returns the
// generated Message-ID without angle brackets.
func compose(w io.Writer, from *mail.Address, msg *OutboundMessage, now time.Time) (string, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{from})
	h.SetAddressList("To", msg.To)
	h.SetSubject(msg.Subject)
	if err := h.GenerateMessageIDWithHostname(domainOf(from.Address)); err != nil {
		return "", err
	}
	id, err := h.MessageID()
	if err != nil {
		return "", err
	}

	mw, err := mail.CreateWriter(w, h)
	if err != nil {
		return "", err
	}

	tw, err := mw.CreateInline()
	if err != nil {
		return "", err
	}
	if err := writeInline(tw, "text/plain", utils.StripHTML(msg.HTML)); err != nil {
		return "", err
	}
	if err := writeInline(tw, "text/html", msg.HTML); err != nil {
		return "", err
	}
	if err := tw.Close(); err != nil {
		return "", err
	}

	for _, att := range msg.Attachments {
		var ah mail.AttachmentHeader
		mediaType, params := contentTypeFor(att)
		ah.SetContentType(mediaType, params)
		ah.SetFilename(att.Filename)
		aw, err := mw.CreateAttachment(ah)
		if err != nil {
			return "", err
		}
		if _, err := aw.Write(att.Content); err != nil {
			return "", err
		}
		if err := aw.Close(); err != nil {
			return "", err
		}
	}

	return id, mw.Close()
}

func writeInline(tw *mail.InlineWriter, contentType, body string) error {
	var ih mail.InlineHeader
	ih.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	pw, err := tw.CreatePart(ih)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(pw, body); err != nil {
		return err
	}
	return pw.Close()
}

// contentTypeFor returns the attachment's declared type, or one guessed from
// its extension.
func contentTypeFor(att models.Attachment) (string, map[string]string) {
	ct := att.ContentType
	if ct == "" {
		ct = mime.TypeByExtension(strings.ToLower(filepath.Ext(att.Filename)))
	}
	if mediaType, params, err := mime.ParseMediaType(ct); err == nil {
		return mediaType, params
	}
	return "application/octet-stream", nil
}

// domainOf returns the part of an address after the @, or "localhost".
func domainOf(address string) string {
	if i := strings.LastIndex(address, "@"); i >= 0 && i < len(address)-1 {
		return address[i+1:]
	}
	return "localhost"
}
