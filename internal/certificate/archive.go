package certificate

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"regexp"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/certificate-mailer/internal/config"
	"github.com/ignite/certificate-mailer/internal/dispatch"
	"github.com/ignite/certificate-mailer/internal/domain"
	"github.com/ignite/certificate-mailer/internal/pkg/logger"
)

const archiveTimeout = 15 * time.Second

// ObjectPutter is the subset of the S3 client the archive uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ArchivingRenderer copies every rendered certificate to S3 under
// <prefix>/<regNo>.pdf. Upload failures are logged and never fail the render.
type ArchivingRenderer struct {
	next   dispatch.Renderer
	client ObjectPutter
	bucket string
	prefix string
}

// NewArchivingRenderer wraps next.
func NewArchivingRenderer(next dispatch.Renderer, client ObjectPutter, bucket, prefix string) *ArchivingRenderer {
	return &ArchivingRenderer{next: next, client: client, bucket: bucket, prefix: prefix}
}

// NewS3Archive builds an S3 client from cfg and wraps next with it.
func NewS3Archive(ctx context.Context, next dispatch.Renderer, cfg config.ArchiveConfig) (*ArchivingRenderer, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for certificate archive: %w", err)
	}
	logger.Info("[certificate] archiving to S3", "bucket", cfg.S3Bucket, "prefix", cfg.KeyPrefix)
	return NewArchivingRenderer(next, s3.NewFromConfig(awsCfg), cfg.S3Bucket, cfg.KeyPrefix), nil
}

// Render delegates to the wrapped renderer and uploads the result.
func (a *ArchivingRenderer) Render(ctx context.Context, in domain.RenderInput, b domain.Settings) ([]byte, error) {
	pdf, err := a.next.Render(ctx, in, b)
	if err != nil {
		return nil, err
	}
	if err := a.put(ctx, in, pdf); err != nil {
		logger.Warn("[certificate] archive upload failed", "regNo", in.RegNo, "error", err)
	}
	return pdf, nil
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Key returns the object key for a registration number.
func (a *ArchivingRenderer) Key(regNo string) string {
	name := unsafeKeyChars.ReplaceAllString(regNo, "_")
	if name == "" {
		name = "unknown"
	}
	return path.Join(a.prefix, name+".pdf")
}

func (a *ArchivingRenderer) put(ctx context.Context, in domain.RenderInput, pdf []byte) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()

	key := a.Key(in.RegNo)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(pdf),
		ContentType: aws.String("application/pdf"),
		Metadata:    map[string]string{"reg-no": in.RegNo},
	})
	if err != nil {
		return fmt.Errorf("S3 PutObject %s/%s: %w", a.bucket, key, err)
	}
	return nil
}
