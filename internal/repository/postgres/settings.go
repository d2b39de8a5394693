package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/certificate-mailer/internal/domain"
)

// SettingsRepo stores the single certificate settings row.
type SettingsRepo struct{ db *sql.DB }

// NewSettingsRepo creates a Postgres-backed settings repository.
func NewSettingsRepo(db *sql.DB) *SettingsRepo { return &SettingsRepo{db: db} }

const settingsColumns = `
	event_name, event_details, organizer_name, organizer_website, authorized_name,
	certify_text, father_prefix, completion_text, completion_sub_text,
	qr_enabled, qr_base_url, email_subject, email_message,
	logo_base64, second_logo_base64, signature_base64, signature_label,
	created_at, updated_at`

func scanSettings(row rowScanner) (domain.Settings, error) {
	var s domain.Settings
	err := row.Scan(
		&s.EventName, &s.EventDetails, &s.OrganizerName, &s.OrganizerWebsite, &s.AuthorizedName,
		&s.CertifyText, &s.FatherPrefix, &s.CompletionText, &s.CompletionSubText,
		&s.QREnabled, &s.QRBaseURL, &s.EmailSubject, &s.EmailMessage,
		&s.LogoBase64, &s.SecondLogoBase64, &s.SignatureBase64, &s.SignatureLabel,
		&s.CreatedAt, &s.UpdatedAt,
	)
	return s, err
}

// Get returns the settings, creating the default row on first read.
func (r *SettingsRepo) Get(ctx context.Context) (domain.Settings, error) {
	s, err := scanSettings(r.db.QueryRowContext(ctx, `
		WITH ins AS (
			INSERT INTO certificate_settings (id) VALUES (1)
			ON CONFLICT (id) DO NOTHING
			RETURNING `+settingsColumns+`
		)
		SELECT `+settingsColumns+` FROM ins
		UNION ALL
		SELECT `+settingsColumns+` FROM certificate_settings WHERE id = 1
		LIMIT 1
	`))
	if err != nil {
		return domain.Settings{}, fmt.Errorf("get settings: %w", err)
	}
	return s, nil
}

// Save upserts s and returns the stored row.
func (r *SettingsRepo) Save(ctx context.Context, s domain.Settings) (domain.Settings, error) {
	out, err := scanSettings(r.db.QueryRowContext(ctx, `
		INSERT INTO certificate_settings (
			id, event_name, event_details, organizer_name, organizer_website, authorized_name,
			certify_text, father_prefix, completion_text, completion_sub_text,
			qr_enabled, qr_base_url, email_subject, email_message,
			logo_base64, second_logo_base64, signature_base64, signature_label,
			created_at, updated_at
		) VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			event_name = EXCLUDED.event_name,
			event_details = EXCLUDED.event_details,
			organizer_name = EXCLUDED.organizer_name,
			organizer_website = EXCLUDED.organizer_website,
			authorized_name = EXCLUDED.authorized_name,
			certify_text = EXCLUDED.certify_text,
			father_prefix = EXCLUDED.father_prefix,
			completion_text = EXCLUDED.completion_text,
			completion_sub_text = EXCLUDED.completion_sub_text,
			qr_enabled = EXCLUDED.qr_enabled,
			qr_base_url = EXCLUDED.qr_base_url,
			email_subject = EXCLUDED.email_subject,
			email_message = EXCLUDED.email_message,
			logo_base64 = EXCLUDED.logo_base64,
			second_logo_base64 = EXCLUDED.second_logo_base64,
			signature_base64 = EXCLUDED.signature_base64,
			signature_label = EXCLUDED.signature_label,
			updated_at = NOW()
		RETURNING `+settingsColumns,
		s.EventName, s.EventDetails, s.OrganizerName, s.OrganizerWebsite, s.AuthorizedName,
		s.CertifyText, s.FatherPrefix, s.CompletionText, s.CompletionSubText,
		s.QREnabled, s.QRBaseURL, s.EmailSubject, s.EmailMessage,
		s.LogoBase64, s.SecondLogoBase64, s.SignatureBase64, s.SignatureLabel,
	))
	if err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	return out, nil
}
