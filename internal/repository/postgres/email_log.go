package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/certificate-mailer/internal/domain"
)

// EmailLogRepo stores one row per send attempt.
type EmailLogRepo struct{ db *sql.DB }

// NewEmailLogRepo creates a Postgres-backed email log repository.
func NewEmailLogRepo(db *sql.DB) *EmailLogRepo { return &EmailLogRepo{db: db} }

// CreateLog inserts l with a fresh id.
func (r *EmailLogRepo) CreateLog(ctx context.Context, l *domain.EmailLog) (string, error) {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO email_logs (id, participant_id, email, subject, status, message_id, error, sent_at, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6,''), NULLIF($7,''), $8, NOW())
		RETURNING created_at
	`, l.ID, l.ParticipantID, l.Email, l.Subject, l.Status, l.MessageID, l.Error, l.SentAt).Scan(&l.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("create email log: %w", err)
	}
	return l.ID, nil
}

// CompleteLog writes the final state of the attempt l.ID.
func (r *EmailLogRepo) CompleteLog(ctx context.Context, l *domain.EmailLog) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE email_logs
		SET status = $2, message_id = NULLIF($3,''), error = NULLIF($4,''), sent_at = $5
		WHERE id = $1
	`, l.ID, l.Status, l.MessageID, l.Error, l.SentAt)
	if err != nil {
		return fmt.Errorf("complete email log: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("complete email log %s: %w", l.ID, domain.ErrNotFound)
	}
	return nil
}

// ListByParticipant returns a participant's attempts, newest first.
func (r *EmailLogRepo) ListByParticipant(ctx context.Context, participantID string, limit int) ([]domain.EmailLog, error) {
	if _, err := uuid.Parse(participantID); err != nil {
		return nil, domain.ErrNotFound
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, participant_id, email, subject, status,
		       COALESCE(message_id,''), COALESCE(error,''), sent_at, created_at
		FROM email_logs
		WHERE participant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, participantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list email logs: %w", err)
	}
	defer rows.Close()

	out := []domain.EmailLog{}
	for rows.Next() {
		var (
			l      domain.EmailLog
			sentAt sql.NullTime
		)
		if err := rows.Scan(&l.ID, &l.ParticipantID, &l.Email, &l.Subject, &l.Status,
			&l.MessageID, &l.Error, &sentAt, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan email log: %w", err)
		}
		if sentAt.Valid {
			l.SentAt = &sentAt.Time
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
