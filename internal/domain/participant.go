package domain

import (
	"strings"
	"time"
)

// DeliveryStatus is the last-known delivery state denormalized onto a participant.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryBounced   DeliveryStatus = "bounced"
	DeliveryFailed    DeliveryStatus = "failed"
)

// Participant is a registered event attendee who receives a certificate.
type Participant struct {
	ID                   string         `json:"id"`
	Name                 string         `json:"name"`
	FatherName           string         `json:"fatherName"`
	RegNo                string         `json:"regNo"`
	Email                string         `json:"email,omitempty"`
	Phone                string         `json:"phone,omitempty"`
	CertificateGenerated bool           `json:"certificateGenerated"`
	DeliveredStatus      DeliveryStatus `json:"deliveredStatus"`
	EmailSentAt          *time.Time     `json:"emailSentAt,omitempty"`
	EmailMessageID       string         `json:"emailMessageId,omitempty"`
	EmailError           string         `json:"emailError,omitempty"`
	CreatedAt            time.Time      `json:"createdAt"`
	UpdatedAt            time.Time      `json:"updatedAt"`
}

// Normalize trims free-text fields and lower-cases the email address.
func (p *Participant) Normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.FatherName = strings.TrimSpace(p.FatherName)
	p.RegNo = strings.TrimSpace(p.RegNo)
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	p.Phone = strings.TrimSpace(p.Phone)
	if p.DeliveredStatus == "" {
		p.DeliveredStatus = DeliveryPending
	}
}

// Validate reports the first missing required field.
func (p *Participant) Validate() error {
	switch {
	case p.Name == "":
		return Validationf("name is required")
	case p.FatherName == "":
		return Validationf("fatherName is required")
	case p.RegNo == "":
		return Validationf("regNo is required")
	}
	return nil
}

// AttachmentName is the filename used for the participant's certificate.
func (p *Participant) AttachmentName() string {
	return "certificate_" + p.RegNo + ".pdf"
}
