package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ignite/certificate-mailer/internal/config"
	"github.com/ignite/certificate-mailer/internal/dispatch"
	"github.com/ignite/certificate-mailer/internal/domain"
	"github.com/ignite/certificate-mailer/internal/message"
	"github.com/ignite/certificate-mailer/internal/metrics"
	"github.com/ignite/certificate-mailer/internal/pkg/distlock"
	"github.com/ignite/certificate-mailer/internal/pkg/httputil"
	"github.com/ignite/certificate-mailer/internal/pkg/logger"
	"github.com/ignite/certificate-mailer/internal/recipient"
	"github.com/ignite/certificate-mailer/internal/transport"
)

// ParticipantStore persists participants.
type ParticipantStore interface {
	List(ctx context.Context) ([]domain.Participant, error)
	Get(ctx context.Context, id string) (domain.Participant, error)
	GetMany(ctx context.Context, ids []string) ([]domain.Participant, error)
	// Create assigns an id. A duplicate registration number returns
	// domain.ErrDuplicate.
	Create(ctx context.Context, p *domain.Participant) error
	Update(ctx context.Context, p *domain.Participant) error
	Delete(ctx context.Context, id string) error
}

// SettingsStore holds the single settings record.
type SettingsStore interface {
	// Get returns the record, creating it with defaults on first use.
	Get(ctx context.Context) (domain.Settings, error)
	Save(ctx context.Context, s domain.Settings) (domain.Settings, error)
}

// EmailLogStore reads delivery history.
type EmailLogStore interface {
	ListByParticipant(ctx context.Context, participantID string, limit int) ([]domain.EmailLog, error)
}

// TransportProvider hands out a verified transport for a batch.
type TransportProvider interface {
	Verified(ctx context.Context) (transport.Handle, error)
}

// BatchRunner executes a batch of send jobs.
type BatchRunner interface {
	Run(ctx context.Context, b dispatch.Batch) ([]domain.SendOutcome, error)
}

// LockFactory returns a fresh lock serializing bulk sends.
type LockFactory func() distlock.DistLock

// Handlers contains all HTTP handlers
type Handlers struct {
	participants ParticipantStore
	settings     SettingsStore
	emailLogs    EmailLogStore
	recipients   *recipient.Resolver
	transport    TransportProvider
	dispatcher   BatchRunner
	renderer     dispatch.Renderer
	messages     *message.Engine
	mail         config.MailConfig
	newLock      LockFactory
	lockTTL      time.Duration
	metrics      *metrics.Collector
	exposeErrors bool
}

// Deps are the collaborators of Handlers.
type Deps struct {
	Participants ParticipantStore
	Settings     SettingsStore
	EmailLogs    EmailLogStore
	Transport    TransportProvider
	Dispatcher   BatchRunner
	Renderer     dispatch.Renderer
	Mail         config.MailConfig
	// NewLock defaults to an in-process lock.
	NewLock LockFactory
	LockTTL time.Duration
	// Metrics is optional.
	Metrics *metrics.Collector
	// ExposeErrors returns internal error text to clients.
	ExposeErrors bool
}

// NewHandlers creates a new Handlers instance
func NewHandlers(d Deps) *Handlers {
	newLock := d.NewLock
	if newLock == nil {
		local := distlock.NewLocalLock(SendLockKey)
		newLock = func() distlock.DistLock { return local }
	}
	return &Handlers{
		participants: d.Participants,
		settings:     d.Settings,
		emailLogs:    d.EmailLogs,
		recipients:   recipient.NewResolver(d.Participants),
		transport:    d.Transport,
		dispatcher:   d.Dispatcher,
		renderer:     d.Renderer,
		messages:     message.NewEngine(),
		mail:         d.Mail,
		newLock:      newLock,
		lockTTL:      d.LockTTL,
		metrics:      d.Metrics,
		exposeErrors: d.ExposeErrors,
	}
}

// SendLockKey is the lock name shared by every replica.
const SendLockKey = "certmailer:send-bulk"

// Root describes the service.
func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]any{
		"ok":        true,
		"service":   "certificate-mailer",
		"endpoints": []string{"/api/health", "/api/send-bulk", "/api/participants", "/api/settings"},
	})
}

// HealthCheck returns the health status
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]bool{"ok": true})
}

// HealthAlias is a legacy alias of HealthCheck.
func (h *Handlers) HealthAlias(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]any{"ok": true, "alias": "health"})
}

const authFailedMessage = "SMTP authentication failed. Check SMTP_USER/SMTP_PASS and verified FROM."

// writeError maps domain errors to responses.
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	var authErr *domain.AuthError
	switch {
	case errors.As(err, &authErr):
		logger.Warn("[api] transport authentication failed", "code", authErr.Code, "error", authErr.Err)
		httputil.JSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error:        authFailedMessage,
			Code:         authErr.Code,
			ProviderHint: authErr.Hint,
		})
	case errors.Is(err, distlock.ErrHeld):
		httputil.Conflict(w, "another bulk send is in progress")
	case errors.Is(err, domain.ErrValidation):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		httputil.NotFound(w, "Participant not found")
	case errors.Is(err, domain.ErrDuplicate):
		httputil.BadRequest(w, "Registration number already exists")
	case errors.Is(err, domain.ErrConfiguration):
		logger.Error("[api] configuration error", "error", err)
		httputil.Error(w, http.StatusInternalServerError, err.Error())
	default:
		httputil.InternalError(w, err, h.exposeErrors)
	}
}
