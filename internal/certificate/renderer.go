// Package certificate renders participant certificates as single-page PDFs
// and optionally archives them to S3.
package certificate

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/ignite/certificate-mailer/internal/domain"
	"github.com/ignite/certificate-mailer/internal/pkg/logger"
)

const (
	defaultEventDetails      = "Participation Certificate"
	defaultCompletionSubText = "with exceptional engagement and dedication."
	dateLayout               = "January 2, 2006"
	qrSize                   = 88.0
	logoWidth                = 84.0
	signatureWidth           = 140.0
)

type rgb struct{ r, g, b int }

var (
	borderColor = rgb{33, 74, 135}
	accentColor = rgb{204, 166, 33}
	darkText    = rgb{51, 51, 51}
	mutedText   = rgb{77, 77, 77}
	softText    = rgb{89, 89, 89}
	faintText   = rgb{102, 102, 102}
)

// Renderer draws certificates with fpdf. It holds no per-call state and is
// safe for concurrent use.
type Renderer struct {
	now func() time.Time
}

// NewRenderer returns a Renderer.
func NewRenderer() *Renderer {
	return &Renderer{now: time.Now}
}

// page wraps an fpdf document with coordinates measured from the bottom
// edge, which keeps the layout constants readable.
type page struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
	w   float64
	h   float64
	img int
}

func (p *page) text(s string, x, y float64, style string, size float64, c rgb) {
	p.pdf.SetFont("Times", style, size)
	p.pdf.SetTextColor(c.r, c.g, c.b)
	p.pdf.Text(x, p.h-y, p.tr(s))
}

func (p *page) width(s, style string, size float64) float64 {
	p.pdf.SetFont("Times", style, size)
	return p.pdf.GetStringWidth(p.tr(s))
}

func (p *page) centered(s string, y float64, style string, size float64, c rgb) float64 {
	w := p.width(s, style, size)
	p.text(s, p.w/2-w/2, y, style, size, c)
	return w
}

func (p *page) line(x1, y1, x2, y2, thickness float64, c rgb) {
	p.pdf.SetDrawColor(c.r, c.g, c.b)
	p.pdf.SetLineWidth(thickness)
	p.pdf.Line(x1, p.h-y1, x2, p.h-y2)
}

func (p *page) rect(x, y, w, h, thickness float64, c rgb) {
	p.pdf.SetDrawColor(c.r, c.g, c.b)
	p.pdf.SetLineWidth(thickness)
	p.pdf.Rect(x, p.h-y-h, w, h, "D")
}

// image places pngBytes with its bottom-left corner at (x, y).
func (p *page) image(pngBytes []byte, x, y, w, h float64) {
	p.img++
	name := fmt.Sprintf("img%d", p.img)
	opts := fpdf.ImageOptions{ImageType: "PNG"}
	p.pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(pngBytes))
	p.pdf.ImageOptions(name, x, p.h-y-h, w, h, false, opts, 0, "")
}

// embed decodes a base64 image and draws it at width w. Failures are logged
// and the image is skipped.
func (p *page) embed(label, b64 string, w float64, place func(h float64) (x, y float64)) {
	img, err := decodeBase64Image(b64)
	if err != nil {
		logger.Warn("[certificate] skipping image", "image", label, "error", err)
		return
	}
	data, pw, ph, err := normalizePNG(img)
	if err != nil {
		logger.Warn("[certificate] skipping image", "image", label, "error", err)
		return
	}
	h := float64(ph) / float64(pw) * w
	x, y := place(h)
	p.image(data, x, y, w, h)
}

// Render produces the certificate PDF for in using branding.
func (r *Renderer) Render(ctx context.Context, in domain.RenderInput, b domain.Settings) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pdf := fpdf.New("L", "pt", "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle("Certificate", true)
	pdf.SetCreator("certificate-mailer", true)
	pdf.AddPage()

	w, h := pdf.GetPageSize()
	p := &page{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor(""), w: w, h: h}

	if b.LogoBase64 != "" {
		p.embed("logo", b.LogoBase64, logoWidth, func(ih float64) (float64, float64) {
			return 42, h - 112 - ih/2
		})
	}
	if b.SecondLogoBase64 != "" {
		p.embed("secondLogo", b.SecondLogoBase64, logoWidth, func(ih float64) (float64, float64) {
			return w - 42 - logoWidth, h - 112 - ih/2
		})
	}

	p.rect(30, 30, w-60, h-60, 3, borderColor)
	p.rect(40, 40, w-80, h-80, 1.5, accentColor)

	p.centered("CERTIFICATE", h-123, "B", 48, borderColor)
	p.centered("OF PARTICIPATION", h-162, "", 20, mutedText)
	p.line(w/2-150, h-178, w/2+150, h-178, 1, accentColor)

	eventNameY := h - 191
	if b.EventName != "" {
		p.centered(b.EventName, eventNameY, "B", 16, darkText)
	}
	eventDetailsY := eventNameY - 6 - 24
	p.centered(orDefault(b.EventDetails, defaultEventDetails), eventDetailsY, "", 24, softText)

	certifyY := eventDetailsY - 12 - 14
	p.centered(orDefault(b.CertifyText, domain.DefaultCertifyText), certifyY, "I", 14, darkText)

	nameLine := strings.TrimSpace(in.RegNo + " " + in.Name)
	nw := p.centered(nameLine, h-270, "B", 22, borderColor)
	p.line(w/2-nw/2-20, h-282, w/2+nw/2+20, h-282, 1, rgb{128, 128, 128})

	if in.FatherName != "" {
		p.centered(orDefault(b.FatherPrefix, domain.DefaultFatherPrefix)+" "+in.FatherName, h-305, "", 16, mutedText)
	}

	completion := b.CompletionText
	if completion == "" {
		completion = strings.TrimSpace(domain.DefaultCompletionText + " " + b.EventName)
	}
	p.centered(completion, h-335, "", 14, darkText)
	p.centered(orDefault(b.CompletionSubText, defaultCompletionSubText), h-357, "", 14, darkText)

	issued := in.IssuedAt
	if issued.IsZero() {
		issued = r.now()
	}
	p.text("Date:", 100, 120, "B", 12, darkText)
	p.text(issued.Format(dateLayout), 100, 100, "", 12, mutedText)

	authX := w - 260
	p.text("___________________", authX, 100, "", 12, darkText)
	label := orDefault(b.SignatureLabel, domain.DefaultSignatureLabel)
	if b.AuthorizedName != "" {
		label += " - " + b.AuthorizedName
	}
	p.text(label, authX, 80, "", 10, faintText)

	if b.OrganizerName != "" {
		p.text(b.OrganizerName, 100, 80, "B", 12, darkText)
	}
	if b.OrganizerWebsite != "" {
		p.text(b.OrganizerWebsite, 100, 64, "", 10, softText)
	}

	if b.SignatureBase64 != "" {
		p.embed("signature", b.SignatureBase64, signatureWidth, func(float64) (float64, float64) {
			return authX, 105
		})
	}

	if b.QREnabled && b.QRBaseURL != "" {
		if data, err := qrPNG(b.QRBaseURL, in); err != nil {
			logger.Warn("[certificate] skipping QR code", "regNo", in.RegNo, "error", err)
		} else {
			p.image(data, w/2-qrSize/2, 74, qrSize, qrSize)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// VerificationURL appends the participant's name and registration number to
// base as query parameters.
func VerificationURL(base string, in domain.RenderInput) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse QR base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("QR base URL %q is not absolute", base)
	}
	q := u.Query()
	q.Set("name", in.Name)
	q.Set("regNo", in.RegNo)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func qrPNG(base string, in domain.RenderInput) ([]byte, error) {
	target, err := VerificationURL(base, in)
	if err != nil {
		return nil, err
	}
	code, err := qrcode.New(target, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("encode QR: %w", err)
	}
	code.DisableBorder = true
	data, _, _, err := normalizePNG(code.Image(256))
	return data, err
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
