package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy for the dispatch pipeline. Batch-level errors (validation,
// configuration, authentication) abort a request before any job runs;
// job-level errors become failed outcomes; recording errors are only logged.
var (
	ErrValidation     = errors.New("validation error")
	ErrConfiguration  = errors.New("configuration error")
	ErrAuthentication = errors.New("authentication error")
	ErrTimeout        = errors.New("send timeout")
	ErrRender         = errors.New("render error")
	ErrRecording      = errors.New("recording error")
	ErrNotFound       = errors.New("not found")
	ErrDuplicate      = errors.New("duplicate")

	// ErrNoAddress is reported for jobs without an email address.
	ErrNoAddress = errors.New("No email address")
)

// kindError tags a message with one of the sentinel kinds while keeping the
// message itself as the user-visible text.
type kindError struct {
	kind error
	msg  string
	err  error
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Is(target error) bool { return target == e.kind }

func (e *kindError) Unwrap() error { return e.err }

// Validationf returns an ErrValidation with a formatted message.
func Validationf(format string, args ...any) error {
	return &kindError{kind: ErrValidation, msg: fmt.Sprintf(format, args...)}
}

// Configurationf returns an ErrConfiguration with a formatted message.
func Configurationf(format string, args ...any) error {
	return &kindError{kind: ErrConfiguration, msg: fmt.Sprintf(format, args...)}
}

// RenderError marks err as a certificate rendering failure. The message is
// err's own text so it surfaces unchanged in the outcome.
func RenderError(err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: ErrRender, msg: err.Error(), err: err}
}

// RecordingError marks err as a delivery-status persistence failure.
func RecordingError(err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: ErrRecording, msg: "record delivery: " + err.Error(), err: err}
}

// AuthError is returned when the mail transport rejects its credentials and
// no fallback is permitted.
type AuthError struct {
	Code string
	Hint string
	Err  error
}

// DefaultProviderHint explains the most common SMTP credential mix-ups.
const DefaultProviderHint = "For API-key based SMTP providers (e.g. Mailjet, SendGrid) the username is " +
	"usually the API key and the password the secret key; use port 587 (STARTTLS) or 465 (SSL) " +
	"and a verified sender/domain in SMTP_FROM."

func (e *AuthError) Error() string {
	if e.Err == nil {
		return "SMTP authentication failed"
	}
	return "SMTP authentication failed: " + e.Err.Error()
}

func (e *AuthError) Is(target error) bool { return target == ErrAuthentication }

func (e *AuthError) Unwrap() error { return e.Err }
