package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/ignite/certificate-mailer/internal/pkg/logger"
)

// SMTPSettings configures a pooled SMTP handle.
type SMTPSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	// SSL selects implicit TLS; otherwise STARTTLS is used when offered.
	SSL            bool
	MaxConnections int
	MaxMessages    int
	DialTimeout    time.Duration
	// Test marks a disposable inbox; PreviewBaseURL is its web UI.
	Test           bool
	PreviewBaseURL string
}

// SMTPHandle sends through a fixed pool of go-mail clients. Each client
// holds one connection and is redialed after MaxMessages messages or after
// any send error.
type SMTPHandle struct {
	settings SMTPSettings
	pool     chan *pooledClient
	closed   atomic.Bool
}

type pooledClient struct {
	client *mail.Client
	sent   int
}

// NewSMTPHandle builds the pool. Connections are dialed on first use.
func NewSMTPHandle(s SMTPSettings) (Handle, error) {
	if s.Host == "" || s.Port <= 0 {
		return nil, fmt.Errorf("smtp host and port are required")
	}
	if s.MaxConnections <= 0 {
		s.MaxConnections = 1
	}
	if s.MaxMessages <= 0 {
		s.MaxMessages = 100
	}
	if s.DialTimeout <= 0 {
		s.DialTimeout = 15 * time.Second
	}
	// Fail on bad options now rather than on the first send.
	if _, err := newMailClient(s); err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}

	h := &SMTPHandle{settings: s, pool: make(chan *pooledClient, s.MaxConnections)}
	for i := 0; i < s.MaxConnections; i++ {
		h.pool <- &pooledClient{}
	}
	logger.Info("[transport] SMTP pool ready",
		"host", s.Host, "port", s.Port, "ssl", s.SSL, "connections", s.MaxConnections, "test", s.Test)
	return h, nil
}

func newMailClient(s SMTPSettings) (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(s.Port),
		mail.WithTimeout(s.DialTimeout),
		// Certificate checking is relaxed for self-hosted relays.
		mail.WithTLSConfig(&tls.Config{ServerName: s.Host, InsecureSkipVerify: true, MinVersion: tls.VersionTLS12}),
	}
	if s.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.Username),
			mail.WithPassword(s.Password),
		)
	}
	if s.SSL {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	return mail.NewClient(s.Host, opts...)
}

// IsTest reports whether the pool targets a disposable inbox.
func (h *SMTPHandle) IsTest() bool { return h.settings.Test }

// Verify dials a fresh connection and authenticates.
func (h *SMTPHandle) Verify(ctx context.Context) error {
	c, err := newMailClient(h.settings)
	if err != nil {
		return err
	}
	if err := c.DialWithContext(ctx); err != nil {
		return err
	}
	return c.Close()
}

// Send delivers m on the next free pooled connection.
func (h *SMTPHandle) Send(ctx context.Context, m Message) (Receipt, error) {
	if h.closed.Load() {
		return Receipt{}, fmt.Errorf("smtp transport closed")
	}
	messageID := newMessageID(m.From)
	msg, err := buildMsg(m, messageID)
	if err != nil {
		return Receipt{}, err
	}

	var pc *pooledClient
	select {
	case pc = <-h.pool:
	case <-ctx.Done():
		return Receipt{}, ctx.Err()
	}
	defer h.release(pc)

	if err := pc.ensure(ctx, h.settings); err != nil {
		return Receipt{}, err
	}
	if err := pc.client.Send(msg); err != nil {
		pc.drop()
		return Receipt{}, err
	}
	pc.sent++

	return Receipt{MessageID: "<" + messageID + ">", PreviewURL: h.previewURL(messageID)}, nil
}

func (h *SMTPHandle) release(pc *pooledClient) {
	if h.closed.Load() {
		pc.drop()
	}
	h.pool <- pc
}

func (h *SMTPHandle) previewURL(messageID string) string {
	if !h.settings.Test || h.settings.PreviewBaseURL == "" {
		return ""
	}
	return strings.TrimRight(h.settings.PreviewBaseURL, "/") + "/message/" + messageID
}

// Close drops idle connections. Connections still in use are dropped when
// their send returns.
func (h *SMTPHandle) Close() error {
	h.closed.Store(true)
	for n := len(h.pool); n > 0; n-- {
		select {
		case pc := <-h.pool:
			pc.drop()
			h.pool <- pc
		default:
			return nil
		}
	}
	return nil
}

func (p *pooledClient) ensure(ctx context.Context, s SMTPSettings) error {
	if p.client != nil && p.sent < s.MaxMessages {
		return nil
	}
	p.drop()
	c, err := newMailClient(s)
	if err != nil {
		return err
	}
	if err := c.DialWithContext(ctx); err != nil {
		return fmt.Errorf("smtp connect: %w", err)
	}
	p.client = c
	return nil
}

func (p *pooledClient) drop() {
	if p.client != nil {
		_ = p.client.Close()
		p.client = nil
	}
	p.sent = 0
}
