package transport

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/certificate-mailer/internal/config"
	"github.com/ignite/certificate-mailer/internal/pkg/logger"
)

// sesAPI is the subset of the SES v2 client the handle uses.
type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	GetAccount(ctx context.Context, in *sesv2.GetAccountInput, optFns ...func(*sesv2.Options)) (*sesv2.GetAccountOutput, error)
}

// SESHandle sends raw MIME messages (HTML body plus PDF attachment) through
// AWS SES v2.
type SESHandle struct {
	api    sesAPI
	region string
}

// NewSESHandle loads AWS configuration for cfg.Region. Static credentials
// are used when both keys are set, otherwise the default provider chain.
func NewSESHandle(ctx context.Context, cfg config.SESConfig) (Handle, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	logger.Info("[transport] SES client ready", "region", cfg.Region)
	return &SESHandle{api: sesv2.NewFromConfig(awsCfg), region: cfg.Region}, nil
}

// IsTest is always false for SES.
func (h *SESHandle) IsTest() bool { return false }

// Verify checks that the account can send.
func (h *SESHandle) Verify(ctx context.Context) error {
	out, err := h.api.GetAccount(ctx, &sesv2.GetAccountInput{})
	if err != nil {
		return fmt.Errorf("SES get account: %w", err)
	}
	if !out.SendingEnabled {
		return fmt.Errorf("SES sending is disabled for this account in %s", h.region)
	}
	return nil
}

// Send submits m as a raw message.
func (h *SESHandle) Send(ctx context.Context, m Message) (Receipt, error) {
	raw, err := renderMIME(m, newMessageID(m.From))
	if err != nil {
		return Receipt{}, err
	}
	out, err := h.api.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(m.From),
		Destination:      &types.Destination{ToAddresses: []string{m.To}},
		Content:          &types.EmailContent{Raw: &types.RawMessage{Data: raw}},
		EmailTags: []types.MessageTag{
			{Name: aws.String("app"), Value: aws.String("certificate-mailer")},
		},
	})
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{MessageID: aws.ToString(out.MessageId)}, nil
}

// Close is a no-op; the SDK client holds no long-lived connections of its own.
func (h *SESHandle) Close() error { return nil }
