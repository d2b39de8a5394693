// Package message composes the subject and HTML body of certificate emails.
//
// Templates are Liquid ({{ name }}, {{ regNo }}, {{ email }},
// {{ fatherName }}); the legacy {name} placeholder is still honored.
// A Template is compiled once per batch and rendered per job.
package message

import (
	"fmt"
	"html"
	"strings"

	"github.com/osteele/liquid"

	"github.com/ignite/certificate-mailer/internal/domain"
)

// DefaultName replaces an empty recipient name.
const DefaultName = "Participant"

const (
	defaultHTML  = "<p>Dear Participant,</p><p>Please find your certificate attached.</p>"
	wrapperStart = `<div style="font-family:system-ui,Segoe UI,Arial,sans-serif;line-height:1.5;white-space:pre-line">`
	wrapperEnd   = `</div>`
	legacyName   = "{name}"
)

// Overrides are per-request replacements for the stored templates.
type Overrides struct {
	Subject string
	HTML    string
}

// Engine compiles templates.
type Engine struct {
	liquid *liquid.Engine
}

// NewEngine returns an Engine with the standard Liquid filters.
func NewEngine() *Engine {
	return &Engine{liquid: liquid.NewEngine()}
}

// Template renders one batch's message for each job.
type Template struct {
	subject *liquid.Template
	body    *liquid.Template
}

// Compile picks the subject (override, stored, default) and body (override,
// stored message wrapped for plain-text line breaks, default) and parses
// both.
func (e *Engine) Compile(settings domain.Settings, o Overrides) (*Template, error) {
	subjectSrc := firstNonEmpty(o.Subject, settings.EmailSubject, domain.DefaultEmailSubject)

	var bodySrc string
	switch {
	case strings.TrimSpace(o.HTML) != "":
		bodySrc = o.HTML
	case strings.TrimSpace(settings.EmailMessage) != "":
		bodySrc = wrapperStart + settings.EmailMessage + wrapperEnd
	default:
		bodySrc = defaultHTML
	}

	subject, err := e.liquid.ParseString(subjectSrc)
	if err != nil {
		return nil, domain.Validationf("invalid subject template: %v", err)
	}
	body, err := e.liquid.ParseString(bodySrc)
	if err != nil {
		return nil, domain.Validationf("invalid message template: %v", err)
	}
	return &Template{subject: subject, body: body}, nil
}

// Build renders the message for job.
func (t *Template) Build(job domain.SendJob) (string, string, error) {
	name := strings.TrimSpace(job.DisplayName)
	if name == "" {
		name = DefaultName
	}
	plain := map[string]interface{}{
		"name":       name,
		"fatherName": job.RenderInput.FatherName,
		"regNo":      job.RenderInput.RegNo,
		"email":      job.Email,
	}
	escaped := make(map[string]interface{}, len(plain))
	for k, v := range plain {
		escaped[k] = html.EscapeString(v.(string))
	}

	subject, err := t.subject.RenderString(plain)
	if err != nil {
		return "", "", fmt.Errorf("render subject: %w", err)
	}
	body, err := t.body.RenderString(escaped)
	if err != nil {
		return "", "", fmt.Errorf("render message: %w", err)
	}

	subject = strings.ReplaceAll(subject, legacyName, name)
	body = strings.ReplaceAll(body, legacyName, html.EscapeString(name))
	return strings.TrimSpace(subject), body, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
