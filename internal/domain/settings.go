package domain

import "time"

// Default branding values applied when a field is left empty.
const (
	DefaultCertifyText    = "This is to certify that"
	DefaultFatherPrefix   = "S/O"
	DefaultCompletionText = "has successfully completed"
	DefaultEmailSubject   = "Your Certificate"
	DefaultEmailMessage   = "Dear Participant,\n\nPlease find your certificate attached.\n\nBest regards,"
	DefaultSignatureLabel = "Authorized Signatory"
)

// Settings is the single per-deployment record holding certificate branding
// and email templates. The dispatch pipeline reads it once per batch.
type Settings struct {
	EventName         string    `json:"eventName"`
	EventDetails      string    `json:"eventDetails"`
	OrganizerName     string    `json:"organizerName"`
	OrganizerWebsite  string    `json:"organizerWebsite"`
	AuthorizedName    string    `json:"authorizedName"`
	CertifyText       string    `json:"certifyText"`
	FatherPrefix      string    `json:"fatherPrefix"`
	CompletionText    string    `json:"completionText"`
	CompletionSubText string    `json:"completionSubText"`
	QREnabled         bool      `json:"qrEnabled"`
	QRBaseURL         string    `json:"qrBaseUrl"`
	EmailSubject      string    `json:"emailSubject"`
	EmailMessage      string    `json:"emailMessage"`
	LogoBase64        string    `json:"logoBase64,omitempty"`
	SecondLogoBase64  string    `json:"secondLogoBase64,omitempty"`
	SignatureBase64   string    `json:"signatureBase64,omitempty"`
	SignatureLabel    string    `json:"signatureLabel"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// DefaultSettings returns the record created on first read.
func DefaultSettings() Settings {
	return Settings{
		CertifyText:    DefaultCertifyText,
		FatherPrefix:   DefaultFatherPrefix,
		CompletionText: DefaultCompletionText,
		EmailSubject:   DefaultEmailSubject,
		EmailMessage:   DefaultEmailMessage,
		SignatureLabel: DefaultSignatureLabel,
	}
}
