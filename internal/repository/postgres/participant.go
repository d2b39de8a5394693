package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/certificate-mailer/internal/domain"
)

const participantColumns = `
	id, name, father_name, reg_no, COALESCE(email,''), COALESCE(phone,''),
	certificate_generated, delivered_status, email_sent_at,
	COALESCE(email_message_id,''), COALESCE(email_error,''), created_at, updated_at`

// ParticipantRepo stores participants in PostgreSQL.
type ParticipantRepo struct{ db *sql.DB }

// NewParticipantRepo creates a Postgres-backed participant repository.
func NewParticipantRepo(db *sql.DB) *ParticipantRepo { return &ParticipantRepo{db: db} }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanParticipant(row rowScanner) (domain.Participant, error) {
	var (
		p      domain.Participant
		sentAt sql.NullTime
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.FatherName, &p.RegNo, &p.Email, &p.Phone,
		&p.CertificateGenerated, &p.DeliveredStatus, &sentAt,
		&p.EmailMessageID, &p.EmailError, &p.CreatedAt, &p.UpdatedAt,
	)
	if sentAt.Valid {
		p.EmailSentAt = &sentAt.Time
	}
	return p, err
}

// List returns every participant, newest first.
func (r *ParticipantRepo) List(ctx context.Context) ([]domain.Participant, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+participantColumns+` FROM participants ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	out := []domain.Participant{}
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Get returns one participant or domain.ErrNotFound.
func (r *ParticipantRepo) Get(ctx context.Context, id string) (domain.Participant, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.Participant{}, domain.ErrNotFound
	}
	p, err := scanParticipant(r.db.QueryRowContext(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Participant{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}

// GetMany returns the participants whose ids are listed. Unknown and
// malformed ids are skipped.
func (r *ParticipantRepo) GetMany(ctx context.Context, ids []string) ([]domain.Participant, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE id = ANY($1::uuid[])`, pq.Array(valid))
	if err != nil {
		return nil, fmt.Errorf("get participants: %w", err)
	}
	defer rows.Close()

	var out []domain.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Create inserts p, assigning an id. A duplicate registration number
// returns domain.ErrDuplicate.
func (r *ParticipantRepo) Create(ctx context.Context, p *domain.Participant) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO participants (id, name, father_name, reg_no, email, phone, delivered_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5,''), NULLIF($6,''), $7, NOW(), NOW())
		RETURNING created_at, updated_at
	`, p.ID, p.Name, p.FatherName, p.RegNo, p.Email, p.Phone, p.DeliveredStatus).Scan(&p.CreatedAt, &p.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: registration number already exists", domain.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("create participant: %w", err)
	}
	return nil
}

// Update replaces the editable fields of p.
func (r *ParticipantRepo) Update(ctx context.Context, p *domain.Participant) error {
	if _, err := uuid.Parse(p.ID); err != nil {
		return domain.ErrNotFound
	}
	err := r.db.QueryRowContext(ctx, `
		UPDATE participants
		SET name = $2, father_name = $3, reg_no = $4, email = NULLIF($5,''), phone = NULLIF($6,''), updated_at = NOW()
		WHERE id = $1
		RETURNING `+participantColumns,
		p.ID, p.Name, p.FatherName, p.RegNo, p.Email, p.Phone,
	).Scan(
		&p.ID, &p.Name, &p.FatherName, &p.RegNo, &p.Email, &p.Phone,
		&p.CertificateGenerated, &p.DeliveredStatus, new(sql.NullTime),
		&p.EmailMessageID, &p.EmailError, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: registration number already exists", domain.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("update participant: %w", err)
	}
	return nil
}

// Delete removes a participant and its email logs.
func (r *ParticipantRepo) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrNotFound
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM participants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete participant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkDelivered records a successful send on the participant. The write is
// skipped when a newer attempt has already set the status.
func (r *ParticipantRepo) MarkDelivered(ctx context.Context, id, messageID string, attemptAt, sentAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE participants
		SET delivered_status = 'delivered', certificate_generated = TRUE,
		    email_sent_at = $2, email_message_id = $3, email_error = NULL,
		    status_attempt_at = $4, updated_at = NOW()
		WHERE id = $1 AND (status_attempt_at IS NULL OR status_attempt_at <= $4)
	`, id, sentAt, messageID, attemptAt)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

// MarkBounced records a failed send on the participant, unless a newer
// attempt has already set the status.
func (r *ParticipantRepo) MarkBounced(ctx context.Context, id, reason string, attemptAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE participants
		SET delivered_status = 'bounced', email_error = $2,
		    status_attempt_at = $3, updated_at = NOW()
		WHERE id = $1 AND (status_attempt_at IS NULL OR status_attempt_at <= $3)
	`, id, reason, attemptAt)
	if err != nil {
		return fmt.Errorf("mark bounced: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
