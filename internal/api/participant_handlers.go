package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/certificate-mailer/internal/domain"
	"github.com/ignite/certificate-mailer/internal/pkg/httputil"
	"github.com/ignite/certificate-mailer/internal/pkg/logger"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
)

// participantInput is the writable subset of a participant.
type participantInput struct {
	Name       *string `json:"name"`
	FatherName *string `json:"fatherName"`
	RegNo      *string `json:"regNo"`
	Email      *string `json:"email"`
	Phone      *string `json:"phone"`
}

func (in participantInput) apply(p *domain.Participant) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&p.Name, in.Name)
	set(&p.FatherName, in.FatherName)
	set(&p.RegNo, in.RegNo)
	set(&p.Email, in.Email)
	set(&p.Phone, in.Phone)
}

// ListParticipants returns every participant, newest first.
func (h *Handlers) ListParticipants(w http.ResponseWriter, r *http.Request) {
	ps, err := h.participants.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if ps == nil {
		ps = []domain.Participant{}
	}
	httputil.OK(w, ps)
}

// GetParticipant returns one participant.
func (h *Handlers) GetParticipant(w http.ResponseWriter, r *http.Request) {
	p, err := h.participants.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.OK(w, p)
}

// CreateParticipant registers a participant.
func (h *Handlers) CreateParticipant(w http.ResponseWriter, r *http.Request) {
	var in participantInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	p, err := h.create(r, in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.Created(w, p)
}

func (h *Handlers) create(r *http.Request, in participantInput) (domain.Participant, error) {
	var p domain.Participant
	in.apply(&p)
	p.Normalize()
	if err := p.Validate(); err != nil {
		return p, err
	}
	if err := h.participants.Create(r.Context(), &p); err != nil {
		return p, err
	}
	return p, nil
}

// UpdateParticipant changes the fields present in the body.
func (h *Handlers) UpdateParticipant(w http.ResponseWriter, r *http.Request) {
	var in participantInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	p, err := h.participants.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	in.apply(&p)
	p.Normalize()
	if err := p.Validate(); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.participants.Update(r.Context(), &p); err != nil {
		h.writeError(w, err)
		return
	}
	httputil.OK(w, p)
}

// DeleteParticipant removes a participant.
func (h *Handlers) DeleteParticipant(w http.ResponseWriter, r *http.Request) {
	if err := h.participants.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"message": "Participant deleted successfully"})
}

// BulkImportResult reports one entry of a bulk import.
type BulkImportResult struct {
	Success     bool                `json:"success"`
	Participant *domain.Participant `json:"participant,omitempty"`
	Error       string              `json:"error,omitempty"`
	Data        json.RawMessage     `json:"data,omitempty"`
}

// BulkImportParticipants creates participants one by one, reporting each.
func (h *Handlers) BulkImportParticipants(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSendBody)
	var body struct {
		Participants json.RawMessage `json:"participants"`
	}
	if !httputil.Decode(w, r, &body) {
		return
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(body.Participants, &entries); err != nil || entries == nil {
		httputil.BadRequest(w, "Participants must be an array")
		return
	}

	results := make([]BulkImportResult, 0, len(entries))
	created := 0
	for _, raw := range entries {
		var in participantInput
		if err := json.Unmarshal(raw, &in); err != nil {
			results = append(results, BulkImportResult{Error: "invalid participant: " + err.Error(), Data: raw})
			continue
		}
		p, err := h.create(r, in)
		if err != nil {
			results = append(results, BulkImportResult{Error: importError(err), Data: raw})
			continue
		}
		created++
		results = append(results, BulkImportResult{Success: true, Participant: &p})
	}
	logger.Info("[api] bulk import", "received", len(entries), "created", created)
	httputil.OK(w, map[string]any{"results": results})
}

func importError(err error) string {
	switch {
	case errors.Is(err, domain.ErrDuplicate):
		return "Registration number already exists"
	case errors.Is(err, domain.ErrValidation):
		return err.Error()
	default:
		logger.Error("[api] bulk import entry failed", "error", err)
		return "Failed to create participant"
	}
}

// DownloadCertificate renders a participant's certificate.
func (h *Handlers) DownloadCertificate(w http.ResponseWriter, r *http.Request) {
	p, err := h.participants.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	settings, err := h.settings.Get(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	pdf, err := h.renderer.Render(r.Context(), domain.RenderInput{
		Name:       p.Name,
		FatherName: p.FatherName,
		RegNo:      p.RegNo,
		IssuedAt:   time.Now(),
	}, settings)
	if err != nil {
		h.writeError(w, domain.RenderError(err))
		return
	}
	httputil.PDF(w, p.AttachmentName(), pdf)
}

// ListEmailLogs returns a participant's most recent delivery attempts.
func (h *Handlers) ListEmailLogs(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLogLimit)
	}
	logs, err := h.emailLogs.ListByParticipant(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if logs == nil {
		logs = []domain.EmailLog{}
	}
	httputil.OK(w, logs)
}
