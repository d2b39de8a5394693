// Package transport resolves and caches the mail transport used by bulk
// certificate sends.
//
// A Handle is built lazily on first use and shared by every job of every
// batch. Real SMTP credentials produce a pooled go-mail handle, the SES
// provider produces an SES raw-MIME handle, and the disposable test mode
// produces an SMTP handle against a throwaway Ethereal account whose
// receipts carry a preview URL.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/wneessen/go-mail"
)

// Message is one outgoing certificate email.
type Message struct {
	From           string
	To             string
	ToName         string
	Subject        string
	HTML           string
	AttachmentName string
	Attachment     []byte
}

// Receipt is what a transport reports after accepting a message.
type Receipt struct {
	MessageID  string
	PreviewURL string
}

// Handle is a configured, reusable mail transport. Implementations must be
// safe for concurrent Send calls.
type Handle interface {
	Send(ctx context.Context, m Message) (Receipt, error)
	// Verify performs a round trip that proves the credentials work.
	Verify(ctx context.Context) error
	// IsTest reports whether mail goes to a disposable test inbox.
	IsTest() bool
	Close() error
}

const pdfContentType = mail.ContentType("application/pdf")

// newMessageID returns an id of the form uuid@domain-of-from.
func newMessageID(from string) string {
	domain := "certificate-mailer.local"
	if at := strings.LastIndex(from, "@"); at >= 0 {
		if d := strings.Trim(from[at+1:], "> "); d != "" {
			domain = d
		}
	}
	return uuid.NewString() + "@" + domain
}

// buildMsg assembles the MIME message shared by every transport.
func buildMsg(m Message, messageID string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.From); err != nil {
		return nil, fmt.Errorf("invalid from address %q: %w", m.From, err)
	}
	var err error
	if m.ToName != "" {
		err = msg.AddToFormat(m.ToName, m.To)
	} else {
		err = msg.To(m.To)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(m.Subject)
	msg.SetMessageIDWithValue(messageID)
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextHTML, m.HTML)

	if len(m.Attachment) > 0 {
		name := m.AttachmentName
		if name == "" {
			name = "certificate.pdf"
		}
		if err := msg.AttachReader(name, bytes.NewReader(m.Attachment), mail.WithFileContentType(pdfContentType)); err != nil {
			return nil, fmt.Errorf("attach %s: %w", name, err)
		}
	}
	return msg, nil
}

// renderMIME returns the wire form of m, used by API transports that take
// raw messages.
func renderMIME(m Message, messageID string) ([]byte, error) {
	msg, err := buildMsg(m, messageID)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("render message: %w", err)
	}
	return buf.Bytes(), nil
}
