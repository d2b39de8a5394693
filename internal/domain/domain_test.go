package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParticipant_NormalizeAndValidate(t *testing.T) {
	p := Participant{Name: " Ann ", FatherName: " Al", RegNo: " R1 ", Email: " Ann@Example.ORG "}
	p.Normalize()

	assert.Equal(t, "Ann", p.Name)
	assert.Equal(t, "Al", p.FatherName)
	assert.Equal(t, "R1", p.RegNo)
	assert.Equal(t, "ann@example.org", p.Email)
	assert.Equal(t, DeliveryPending, p.DeliveredStatus)
	assert.NoError(t, p.Validate())
	assert.Equal(t, "certificate_R1.pdf", p.AttachmentName())

	for _, tc := range []struct {
		p    Participant
		want string
	}{
		{Participant{FatherName: "x", RegNo: "1"}, "name is required"},
		{Participant{Name: "x", RegNo: "1"}, "fatherName is required"},
		{Participant{Name: "x", FatherName: "y"}, "regNo is required"},
	} {
		err := tc.p.Validate()
		assert.ErrorIs(t, err, ErrValidation)
		assert.EqualError(t, err, tc.want)
	}
}

func TestErrorKinds(t *testing.T) {
	assert.ErrorIs(t, Validationf("bad %d", 1), ErrValidation)
	assert.EqualError(t, Validationf("bad %d", 1), "bad 1")
	assert.ErrorIs(t, Configurationf("no smtp"), ErrConfiguration)
	assert.NotErrorIs(t, Configurationf("no smtp"), ErrValidation)

	cause := errors.New("font missing")
	rerr := RenderError(cause)
	assert.ErrorIs(t, rerr, ErrRender)
	assert.ErrorIs(t, rerr, cause)
	assert.EqualError(t, rerr, "font missing")
	assert.NoError(t, RenderError(nil))

	recErr := RecordingError(fmt.Errorf("insert: %w", cause))
	assert.ErrorIs(t, recErr, ErrRecording)
	assert.EqualError(t, recErr, "record delivery: insert: font missing")
	assert.NoError(t, RecordingError(nil))
}

func TestAuthError(t *testing.T) {
	err := fmt.Errorf("verify: %w", &AuthError{Code: "535", Hint: DefaultProviderHint, Err: errors.New("bad credentials")})

	assert.ErrorIs(t, err, ErrAuthentication)
	var ae *AuthError
	assert.ErrorAs(t, err, &ae)
	assert.Equal(t, "535", ae.Code)
	assert.Equal(t, "SMTP authentication failed: bad credentials", ae.Error())
	assert.Equal(t, "SMTP authentication failed", (&AuthError{}).Error())
}

func TestOutcomes(t *testing.T) {
	job := SendJob{RecipientKey: "p1", ParticipantID: "p1", Email: "a@example.org"}
	assert.True(t, job.HasAddress())
	assert.False(t, SendJob{}.HasAddress())

	ok := Succeeded(job, "<id@x>", "https://preview")
	assert.True(t, ok.OK)
	assert.Equal(t, "p1", ok.ParticipantID)
	assert.Equal(t, "https://preview", ok.PreviewURL)

	failed := Failed(job, ErrNoAddress)
	assert.False(t, failed.OK)
	assert.Equal(t, "No email address", failed.Error)
	assert.Equal(t, "a@example.org", failed.Email)
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	assert.Equal(t, DefaultCertifyText, s.CertifyText)
	assert.Equal(t, DefaultFatherPrefix, s.FatherPrefix)
	assert.Equal(t, DefaultEmailSubject, s.EmailSubject)
	assert.Equal(t, DefaultSignatureLabel, s.SignatureLabel)
	assert.False(t, s.QREnabled)
}
