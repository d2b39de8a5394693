package domain

import "time"

// LogStatus is the state of a single delivery attempt in the email log.
type LogStatus string

const (
	LogPending   LogStatus = "pending"
	LogSent      LogStatus = "sent"
	LogDelivered LogStatus = "delivered"
	LogBounced   LogStatus = "bounced"
	LogFailed    LogStatus = "failed"
)

// EmailLog is one row per (participant, send attempt).
type EmailLog struct {
	ID            string     `json:"id"`
	ParticipantID string     `json:"participantId"`
	Email         string     `json:"email"`
	Subject       string     `json:"subject"`
	Status        LogStatus  `json:"status"`
	MessageID     string     `json:"messageId,omitempty"`
	Error         string     `json:"error,omitempty"`
	SentAt        *time.Time `json:"sentAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// RenderInput is the participant data the certificate renderer needs.
type RenderInput struct {
	Name       string    `json:"name"`
	FatherName string    `json:"fatherName"`
	RegNo      string    `json:"regNo"`
	IssuedAt   time.Time `json:"issuedAt"`
}

// SendJob identifies one recipient to email. Jobs are built by the recipient
// resolver and consumed exactly once by the dispatcher.
type SendJob struct {
	RecipientKey   string
	ParticipantID  string
	Email          string
	DisplayName    string
	AttachmentName string
	RenderInput    RenderInput
	// Subject is filled in by the dispatcher once the batch message is
	// rendered for this job.
	Subject string
	// Attachment holds pre-rendered certificate bytes supplied inline by the
	// caller. When set the renderer is not invoked.
	Attachment []byte
	// AttemptedAt is stamped by the dispatcher when the job starts. Status
	// writes from an older attempt never overwrite a newer one.
	AttemptedAt time.Time
}

// HasAddress reports whether the job can be sent at all.
func (j SendJob) HasAddress() bool { return j.Email != "" }

// SendOutcome is the terminal result of attempting one job.
type SendOutcome struct {
	RecipientKey  string `json:"-"`
	ParticipantID string `json:"participantId,omitempty"`
	Email         string `json:"email"`
	OK            bool   `json:"ok"`
	MessageID     string `json:"messageId,omitempty"`
	PreviewURL    string `json:"previewUrl,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Succeeded builds a successful outcome for job.
func Succeeded(job SendJob, messageID, previewURL string) SendOutcome {
	return SendOutcome{
		RecipientKey:  job.RecipientKey,
		ParticipantID: job.ParticipantID,
		Email:         job.Email,
		OK:            true,
		MessageID:     messageID,
		PreviewURL:    previewURL,
	}
}

// Failed builds a failed outcome for job carrying err's text.
func Failed(job SendJob, err error) SendOutcome {
	return SendOutcome{
		RecipientKey:  job.RecipientKey,
		ParticipantID: job.ParticipantID,
		Email:         job.Email,
		Error:         err.Error(),
	}
}
