package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ignite/certificate-mailer/internal/config"
	"github.com/ignite/certificate-mailer/internal/domain"
	"github.com/ignite/certificate-mailer/internal/pkg/logger"
)

// Mode is the kind of transport a Resolver builds.
type Mode string

const (
	ModeNone Mode = ""
	ModeTest Mode = "test"
	ModeSMTP Mode = "smtp"
	ModeSES  Mode = "ses"
)

// SMTPBuilder constructs an SMTP handle. Tests swap it for a fake.
type SMTPBuilder func(SMTPSettings) (Handle, error)

// SESBuilder constructs an SES handle.
type SESBuilder func(ctx context.Context, cfg config.SESConfig) (Handle, error)

// Resolver owns the process-wide transport handle. The handle is built on
// first use and reused until Reset or ForceTest discards it.
type Resolver struct {
	mail     config.MailConfig
	ses      config.SESConfig
	accounts AccountProvider
	newSMTP  SMTPBuilder
	newSES   SESBuilder
	onFall   func()

	mu        sync.Mutex
	handle    Handle
	forceTest bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithAccountProvider replaces the Ethereal client.
func WithAccountProvider(p AccountProvider) Option {
	return func(r *Resolver) { r.accounts = p }
}

// WithSMTPBuilder replaces the go-mail pool constructor.
func WithSMTPBuilder(b SMTPBuilder) Option {
	return func(r *Resolver) { r.newSMTP = b }
}

// WithSESBuilder replaces the SES constructor.
func WithSESBuilder(b SESBuilder) Option {
	return func(r *Resolver) { r.newSES = b }
}

// WithFallbackHook is called each time verification failure triggers a
// switch to the test transport.
func WithFallbackHook(fn func()) Option {
	return func(r *Resolver) { r.onFall = fn }
}

// NewResolver returns a Resolver for the given configuration.
func NewResolver(mail config.MailConfig, ses config.SESConfig, opts ...Option) *Resolver {
	r := &Resolver{
		mail:    mail,
		ses:     ses,
		newSMTP: NewSMTPHandle,
		newSES:  NewSESHandle,
		onFall:  func() {},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.accounts == nil {
		r.accounts = NewEtherealClient(mail.TestAccountAPIURL, nil)
	}
	return r
}

// Mode reports which transport the next build would produce.
func (r *Resolver) Mode() Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.modeLocked()
}

func (r *Resolver) modeLocked() Mode {
	switch {
	case r.forceTest || r.mail.UseTestAccount:
		return ModeTest
	case r.mail.Provider == "ses" && r.ses.Region != "":
		return ModeSES
	case r.mail.SMTPConfigured():
		return ModeSMTP
	default:
		return ModeNone
	}
}

// Get returns the cached handle, building it on first call.
func (r *Resolver) Get(ctx context.Context) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(ctx)
}

func (r *Resolver) getLocked(ctx context.Context) (Handle, error) {
	if r.handle != nil {
		return r.handle, nil
	}

	var (
		h   Handle
		err error
	)
	switch mode := r.modeLocked(); mode {
	case ModeTest:
		h, err = r.buildTest(ctx)
	case ModeSES:
		h, err = r.newSES(ctx, r.ses)
	case ModeSMTP:
		h, err = r.newSMTP(SMTPSettings{
			Host:           r.mail.Host,
			Port:           r.mail.Port,
			Username:       r.mail.Username,
			Password:       r.mail.Password,
			SSL:            r.mail.Port == 465,
			MaxConnections: r.mail.MaxConnections,
			MaxMessages:    r.mail.MaxMessages,
		})
	default:
		return nil, domain.Configurationf(
			"no mail transport configured: set SMTP_HOST, SMTP_PORT, SMTP_USER and SMTP_PASS, or enable ETHEREAL")
	}
	if err != nil {
		return nil, err
	}
	r.handle = h
	return h, nil
}

func (r *Resolver) buildTest(ctx context.Context) (Handle, error) {
	acct, err := r.accounts.CreateAccount(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("[transport] using disposable test account", "host", acct.SMTP.Host, "web", acct.Web)
	return r.newSMTP(SMTPSettings{
		Host:           acct.SMTP.Host,
		Port:           acct.SMTP.Port,
		Username:       acct.User,
		Password:       acct.Pass,
		SSL:            acct.SMTP.Secure,
		MaxConnections: r.mail.MaxConnections,
		MaxMessages:    r.mail.MaxMessages,
		Test:           true,
		PreviewBaseURL: acct.Web,
	})
}

// Verified returns a handle whose credentials passed a round trip. When
// verification fails and fallback is enabled, the handle is discarded and a
// test transport is built in its place; otherwise an *domain.AuthError is
// returned and the cached handle is kept.
func (r *Resolver) Verified(ctx context.Context) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, err := r.getLocked(ctx)
	if err != nil {
		return nil, err
	}
	if h.IsTest() {
		return h, nil
	}

	verr := h.Verify(ctx)
	if verr == nil {
		return h, nil
	}
	if !r.mail.FallbackToTest {
		logger.Error("[transport] verification failed", "error", verr)
		return nil, &domain.AuthError{Code: authCode(verr), Hint: domain.DefaultProviderHint, Err: verr}
	}

	logger.Warn("[transport] verification failed, falling back to test account", "error", verr)
	r.resetLocked()
	r.forceTest = true
	r.onFall()

	h, err = r.getLocked(ctx)
	if err != nil {
		return nil, fmt.Errorf("fallback to test transport: %w", err)
	}
	return h, nil
}

// Reset closes and discards the cached handle.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked()
}

// ForceTest discards the cached handle and pins the Resolver to test mode.
func (r *Resolver) ForceTest() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked()
	r.forceTest = true
}

func (r *Resolver) resetLocked() {
	if r.handle != nil {
		if err := r.handle.Close(); err != nil {
			logger.Warn("[transport] close failed", "error", err)
		}
		r.handle = nil
	}
}

// Close releases the cached handle at shutdown.
func (r *Resolver) Close() error {
	r.Reset()
	return nil
}

// codedError is satisfied by transport errors that carry a provider code,
// such as AWS API errors.
type codedError interface {
	ErrorCode() string
}

func authCode(err error) string {
	var ce codedError
	if errors.As(err, &ce) && ce.ErrorCode() != "" {
		return ce.ErrorCode()
	}
	return "EAUTH"
}
