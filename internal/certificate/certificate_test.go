package certificate

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/certificate-mailer/internal/domain"
)

func pngBase64(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func input() domain.RenderInput {
	return domain.RenderInput{
		Name:       "Zoë Quinn",
		FatherName: "Marc Quinn",
		RegNo:      "HM-042",
		IssuedAt:   time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
	}
}

func TestRender_Minimal(t *testing.T) {
	pdf, err := NewRenderer().Render(context.Background(), input(), domain.Settings{})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF-")))
}

func TestRender_FullBranding(t *testing.T) {
	b := domain.DefaultSettings()
	b.EventName = "HackFest"
	b.OrganizerName = "Ignite"
	b.OrganizerWebsite = "https://ignite.example"
	b.AuthorizedName = "Dr. Rao"
	b.LogoBase64 = "data:image/png;base64," + pngBase64(t, 120, 60)
	b.SecondLogoBase64 = pngBase64(t, 1200, 300)
	b.SignatureBase64 = pngBase64(t, 200, 50)
	b.QREnabled = true
	b.QRBaseURL = "https://verify.example/cert"

	plain, err := NewRenderer().Render(context.Background(), input(), domain.Settings{})
	require.NoError(t, err)

	pdf, err := NewRenderer().Render(context.Background(), input(), b)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF-")))
	assert.Greater(t, len(pdf), len(plain), "images should be embedded")
}

func TestRender_BadImagesAreSkipped(t *testing.T) {
	b := domain.DefaultSettings()
	b.LogoBase64 = "not-base64!!"
	b.SignatureBase64 = base64.StdEncoding.EncodeToString([]byte("plain text, not an image"))
	b.QREnabled = true
	b.QRBaseURL = "relative/path"

	pdf, err := NewRenderer().Render(context.Background(), input(), b)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF-")))
}

func TestRender_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRenderer().Render(ctx, input(), domain.Settings{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVerificationURL(t *testing.T) {
	u, err := VerificationURL("https://verify.example/cert?event=hf", input())
	require.NoError(t, err)
	assert.Equal(t, "https://verify.example/cert?event=hf&name=Zo%C3%AB+Quinn&regNo=HM-042", u)

	_, err = VerificationURL("::nope", input())
	assert.Error(t, err)
}

func TestNormalizePNG_Downscales(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1200, 400))
	data, w, h, err := normalizePNG(img)
	require.NoError(t, err)
	assert.Equal(t, maxImageWidth, w)
	assert.Equal(t, 200, h)

	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, maxImageWidth, cfg.Width)
}

type fakePutter struct {
	key  string
	body []byte
	err  error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.key = aws.ToString(in.Key)
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, f.err
}

type stubRenderer struct {
	out []byte
	err error
}

func (s stubRenderer) Render(context.Context, domain.RenderInput, domain.Settings) ([]byte, error) {
	return s.out, s.err
}

func TestArchivingRenderer_Uploads(t *testing.T) {
	putter := &fakePutter{}
	a := NewArchivingRenderer(stubRenderer{out: []byte("%PDF-x")}, putter, "bucket", "certificates")

	out, err := a.Render(context.Background(), input(), domain.Settings{})
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-x"), out)
	assert.Equal(t, "certificates/HM-042.pdf", putter.key)
	assert.Equal(t, []byte("%PDF-x"), putter.body)
}

func TestArchivingRenderer_UploadFailureIgnored(t *testing.T) {
	putter := &fakePutter{err: errors.New("access denied")}
	a := NewArchivingRenderer(stubRenderer{out: []byte("%PDF-x")}, putter, "bucket", "c")

	out, err := a.Render(context.Background(), input(), domain.Settings{})
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-x"), out)
}

func TestArchivingRenderer_RenderErrorNotUploaded(t *testing.T) {
	putter := &fakePutter{}
	a := NewArchivingRenderer(stubRenderer{err: errors.New("boom")}, putter, "bucket", "c")

	_, err := a.Render(context.Background(), input(), domain.Settings{})
	assert.Error(t, err)
	assert.Empty(t, putter.key)
}

func TestArchivingRenderer_Key(t *testing.T) {
	a := NewArchivingRenderer(nil, nil, "b", "certs")
	assert.Equal(t, "certs/A_B_..pdf", a.Key("A/B ."))
	assert.Equal(t, "certs/unknown.pdf", a.Key(""))
}
