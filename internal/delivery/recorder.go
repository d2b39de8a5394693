// Package delivery persists the outcome of each certificate send.
//
// Every attempt gets an email log row, and the participant record carries a
// denormalized copy of its latest outcome. The participant update is
// attempted even when the log write fails, so the participant's status
// always reflects the most recent send.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/certificate-mailer/internal/domain"
)

// LogStore persists email log rows.
type LogStore interface {
	// CreateLog inserts l and returns its id.
	CreateLog(ctx context.Context, l *domain.EmailLog) (string, error)
	// CompleteLog sets the final status, message id, error and sent time of
	// the row identified by l.ID.
	CompleteLog(ctx context.Context, l *domain.EmailLog) error
}

// ParticipantStatusStore updates a participant's denormalized status.
type ParticipantStatusStore interface {
	// MarkDelivered and MarkBounced ignore writes whose attemptAt is older
	// than the attempt that last set the status.
	MarkDelivered(ctx context.Context, id, messageID string, attemptAt, sentAt time.Time) error
	MarkBounced(ctx context.Context, id, reason string, attemptAt time.Time) error
}

// Recorder writes delivery attempts.
type Recorder struct {
	logs         LogStore
	participants ParticipantStatusStore
	now          func() time.Time
}

// NewRecorder returns a Recorder over the given stores.
func NewRecorder(logs LogStore, participants ParticipantStatusStore) *Recorder {
	return &Recorder{logs: logs, participants: participants, now: time.Now}
}

// RecordPending inserts a pending log row for job and returns its id. Jobs
// without a participant are not recorded.
func (r *Recorder) RecordPending(ctx context.Context, job domain.SendJob) (string, error) {
	if job.ParticipantID == "" {
		return "", nil
	}
	id, err := r.logs.CreateLog(ctx, &domain.EmailLog{
		ParticipantID: job.ParticipantID,
		Email:         job.Email,
		Subject:       job.Subject,
		Status:        domain.LogPending,
	})
	if err != nil {
		return "", domain.RecordingError(fmt.Errorf("create pending log: %w", err))
	}
	return id, nil
}

// RecordResult stores out against the attempt. With an empty attemptID a
// new row is written in its final state. Success marks the participant
// delivered; failure marks it bounced with the error text.
func (r *Recorder) RecordResult(ctx context.Context, job domain.SendJob, attemptID string, out domain.SendOutcome) error {
	if job.ParticipantID == "" {
		return nil
	}
	now := r.now()
	attemptAt := job.AttemptedAt
	if attemptAt.IsZero() {
		attemptAt = now
	}

	l := &domain.EmailLog{
		ID:            attemptID,
		ParticipantID: job.ParticipantID,
		Email:         job.Email,
		Subject:       job.Subject,
	}
	if out.OK {
		l.Status = domain.LogSent
		l.MessageID = out.MessageID
		l.SentAt = &now
	} else {
		l.Status = domain.LogFailed
		l.Error = out.Error
	}

	var logErr error
	if attemptID == "" {
		_, logErr = r.logs.CreateLog(ctx, l)
	} else {
		logErr = r.logs.CompleteLog(ctx, l)
	}
	if logErr != nil {
		logErr = fmt.Errorf("update email log: %w", logErr)
	}

	var partErr error
	if out.OK {
		partErr = r.participants.MarkDelivered(ctx, job.ParticipantID, out.MessageID, attemptAt, now)
	} else {
		partErr = r.participants.MarkBounced(ctx, job.ParticipantID, out.Error, attemptAt)
	}
	if partErr != nil {
		partErr = fmt.Errorf("update participant %s: %w", job.ParticipantID, partErr)
	}

	return domain.RecordingError(errors.Join(logErr, partErr))
}
