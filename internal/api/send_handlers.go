package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ignite/certificate-mailer/internal/dispatch"
	"github.com/ignite/certificate-mailer/internal/domain"
	"github.com/ignite/certificate-mailer/internal/message"
	"github.com/ignite/certificate-mailer/internal/pkg/distlock"
	"github.com/ignite/certificate-mailer/internal/pkg/httputil"
	"github.com/ignite/certificate-mailer/internal/pkg/logger"
	"github.com/ignite/certificate-mailer/internal/recipient"
)

// maxSendBody allows inline recipients with pre-rendered attachments.
const maxSendBody = 50 << 20

// SendBulkRequest is the body of POST /send-bulk. ParticipantIDs takes
// precedence over Recipients when present.
type SendBulkRequest struct {
	ParticipantIDs []string          `json:"participantIds"`
	Recipients     []json.RawMessage `json:"recipients"`
	From           string            `json:"from"`
	Subject        string            `json:"subject"`
	HTML           string            `json:"html"`
}

// SendBulkResponse lists one result per resolved recipient.
type SendBulkResponse struct {
	Results []domain.SendOutcome `json:"results"`
}

func (req SendBulkRequest) recipientRequest() (recipient.Request, error) {
	if req.ParticipantIDs != nil {
		return recipient.ByID{IDs: req.ParticipantIDs}, nil
	}
	if len(req.Recipients) == 0 {
		return nil, domain.Validationf("participantIds array or recipients array required")
	}
	inline, err := recipient.ParseInline(req.Recipients)
	if err != nil {
		return nil, err
	}
	return recipient.Inline{Recipients: inline}, nil
}

// SendBulk emails certificates to a batch of recipients.
func (h *Handlers) SendBulk(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSendBody)
	var req SendBulkRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	rreq, err := req.recipientRequest()
	if err != nil {
		h.writeError(w, err)
		return
	}

	var results []domain.SendOutcome
	err = distlock.Run(r.Context(), h.newLock(), h.lockTTL, func() error {
		var err error
		results, err = h.sendBulk(r.Context(), rreq, req)
		return err
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.OK(w, SendBulkResponse{Results: results})
}

func (h *Handlers) sendBulk(ctx context.Context, rreq recipient.Request, req SendBulkRequest) ([]domain.SendOutcome, error) {
	jobs, err := h.recipients.Resolve(ctx, rreq)
	if err != nil {
		return nil, err
	}

	settings, err := h.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	tpl, err := h.messages.Compile(settings, message.Overrides{Subject: req.Subject, HTML: req.HTML})
	if err != nil {
		return nil, err
	}

	tx, err := h.transport.Verified(ctx)
	if err != nil {
		return nil, err
	}

	logger.Info("[api] bulk send", "jobs", len(jobs), "test", tx.IsTest())
	return h.dispatcher.Run(ctx, dispatch.Batch{
		Jobs:        jobs,
		Transport:   tx,
		Branding:    settings,
		Message:     tpl,
		From:        req.From,
		Concurrency: h.mail.Concurrency,
		Timeout:     h.mail.Timeout(),
	})
}
