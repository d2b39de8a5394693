// Package recipient turns a bulk-send request into the ordered list of send
// jobs the dispatcher consumes.
//
// A request names either stored participants (ByID) or ad-hoc recipients
// supplied inline (Inline). Both resolve to the same []domain.SendJob so the
// dispatcher never branches on where a recipient came from.
package recipient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/certificate-mailer/internal/domain"
)

// ParticipantStore is the read side of the participant repository.
type ParticipantStore interface {
	// GetMany returns the participants with the given ids. Unknown ids are
	// omitted and the result order is unspecified.
	GetMany(ctx context.Context, ids []string) ([]domain.Participant, error)
}

// Request is either ByID or Inline.
type Request interface {
	isRequest()
}

// ByID selects stored participants.
type ByID struct {
	IDs []string
}

// Inline carries recipients that are not stored.
type Inline struct {
	Recipients []InlineRecipient
}

func (ByID) isRequest()   {}
func (Inline) isRequest() {}

// InlineRecipient is one entry of an inline recipients array.
type InlineRecipient struct {
	Email             string `json:"email"`
	Name              string `json:"name"`
	FatherName        string `json:"fatherName"`
	RegNo             string `json:"regNo"`
	Filename          string `json:"filename"`
	AttachmentPayload string `json:"attachmentPayload"`
}

// DefaultInlineFilename names inline attachments without a filename.
const DefaultInlineFilename = "certificate.pdf"

// ParseInline decodes raw recipients entries. Every entry must be a JSON
// object; entries without an email are kept.
func ParseInline(raw []json.RawMessage) ([]InlineRecipient, error) {
	out := make([]InlineRecipient, 0, len(raw))
	for i, msg := range raw {
		trimmed := strings.TrimSpace(string(msg))
		if !strings.HasPrefix(trimmed, "{") {
			return nil, domain.Validationf("recipients[%d] must be an object", i)
		}
		var rc InlineRecipient
		if err := json.Unmarshal(msg, &rc); err != nil {
			return nil, domain.Validationf("recipients[%d]: %v", i, err)
		}
		out = append(out, rc)
	}
	return out, nil
}

// Resolver builds send jobs.
type Resolver struct {
	store ParticipantStore
	now   func() time.Time
}

// NewResolver returns a Resolver reading stored participants from store.
func NewResolver(store ParticipantStore) *Resolver {
	return &Resolver{store: store, now: time.Now}
}

// Resolve returns one job per requested recipient, in request order.
func (r *Resolver) Resolve(ctx context.Context, req Request) ([]domain.SendJob, error) {
	switch req := req.(type) {
	case ByID:
		return r.resolveByID(ctx, req.IDs)
	case Inline:
		return r.resolveInline(req.Recipients)
	default:
		return nil, domain.Validationf("participantIds or recipients required")
	}
}

func (r *Resolver) resolveByID(ctx context.Context, ids []string) ([]domain.SendJob, error) {
	ordered := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ordered = append(ordered, id)
	}
	if len(ordered) == 0 {
		return nil, domain.Validationf("participantIds or recipients required")
	}

	found, err := r.store.GetMany(ctx, ordered)
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	byID := make(map[string]domain.Participant, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}

	issued := r.now()
	jobs := make([]domain.SendJob, 0, len(found))
	for _, id := range ordered {
		p, ok := byID[id]
		if !ok {
			continue
		}
		jobs = append(jobs, domain.SendJob{
			RecipientKey:   p.ID,
			ParticipantID:  p.ID,
			Email:          strings.TrimSpace(p.Email),
			DisplayName:    p.Name,
			AttachmentName: p.AttachmentName(),
			RenderInput: domain.RenderInput{
				Name:       p.Name,
				FatherName: p.FatherName,
				RegNo:      p.RegNo,
				IssuedAt:   issued,
			},
		})
	}
	if len(jobs) == 0 {
		return nil, domain.Validationf("no participants found")
	}
	return jobs, nil
}

func (r *Resolver) resolveInline(recipients []InlineRecipient) ([]domain.SendJob, error) {
	if len(recipients) == 0 {
		return nil, domain.Validationf("participantIds or recipients required")
	}

	issued := r.now()
	jobs := make([]domain.SendJob, 0, len(recipients))
	for i, rc := range recipients {
		job := domain.SendJob{
			RecipientKey:   "inline:" + strconv.Itoa(i),
			Email:          strings.ToLower(strings.TrimSpace(rc.Email)),
			DisplayName:    strings.TrimSpace(rc.Name),
			AttachmentName: strings.TrimSpace(rc.Filename),
			RenderInput: domain.RenderInput{
				Name:       strings.TrimSpace(rc.Name),
				FatherName: strings.TrimSpace(rc.FatherName),
				RegNo:      strings.TrimSpace(rc.RegNo),
				IssuedAt:   issued,
			},
		}
		if job.AttachmentName == "" {
			job.AttachmentName = DefaultInlineFilename
		}
		if rc.AttachmentPayload != "" {
			data, err := DecodeAttachment(rc.AttachmentPayload)
			if err != nil {
				return nil, domain.Validationf("recipients[%d].attachmentPayload: %v", i, err)
			}
			job.Attachment = data
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// DecodeAttachment decodes a base64 payload, accepting the data-URL form
// ("data:application/pdf;base64,....").
func DecodeAttachment(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 {
			return nil, fmt.Errorf("malformed data URL")
		}
		payload = payload[comma+1:]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	return data, nil
}
