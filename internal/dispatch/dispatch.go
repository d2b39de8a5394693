// Package dispatch runs bulk certificate sends.
//
// A Dispatcher executes a batch of jobs on a fixed pool of worker
// goroutines pulling from a shared queue, so at most Concurrency jobs are in
// flight at any instant. Every job yields exactly one outcome; a job's
// failure (missing address, render error, send error, timeout, panic) is
// converted into a failed outcome and never aborts its siblings.
//
// Delivery recording is best-effort: the pending write happens inline and
// its failure is ignored, the result write happens asynchronously and is
// tracked so callers can Wait for it.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ignite/certificate-mailer/internal/domain"
	"github.com/ignite/certificate-mailer/internal/pkg/logger"
	"github.com/ignite/certificate-mailer/internal/transport"
)

// TestFrom is the sender used on the test transport when no other sender
// is configured.
const TestFrom = "no-reply@example.test"

// ErrInvalidBatch is returned by Run for structural precondition violations.
var ErrInvalidBatch = errors.New("invalid batch")

// Renderer produces certificate PDF bytes.
type Renderer interface {
	Render(ctx context.Context, in domain.RenderInput, branding domain.Settings) ([]byte, error)
}

// Recorder persists delivery attempts.
type Recorder interface {
	// RecordPending stores a pending attempt and returns its id.
	RecordPending(ctx context.Context, job domain.SendJob) (string, error)
	// RecordResult stores the final state of an attempt.
	RecordResult(ctx context.Context, job domain.SendJob, attemptID string, out domain.SendOutcome) error
}

// MessageBuilder produces the subject and HTML body for one job.
type MessageBuilder interface {
	Build(job domain.SendJob) (subject, html string, err error)
}

// Observer receives pipeline measurements.
type Observer interface {
	ObserveBatch(size int)
	ObserveSend(result string, elapsed time.Duration)
	RecordingFailed()
}

type nopObserver struct{}

func (nopObserver) ObserveBatch(int)                  {}
func (nopObserver) ObserveSend(string, time.Duration) {}
func (nopObserver) RecordingFailed()                  {}

// Batch is one bulk send. Branding is read once by the caller and not
// re-read while the batch runs.
type Batch struct {
	Jobs        []domain.SendJob
	Transport   transport.Handle
	Branding    domain.Settings
	Message     MessageBuilder
	From        string
	Concurrency int
	Timeout     time.Duration
}

// Dispatcher runs batches. It is safe for concurrent use.
type Dispatcher struct {
	renderer    Renderer
	recorder    Recorder
	observer    Observer
	defaultFrom string
	recordWait  time.Duration
	onRecorded  func(domain.SendOutcome, error)

	pending sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithDefaultFrom sets the configured sender used when a batch has none.
func WithDefaultFrom(from string) Option {
	return func(d *Dispatcher) { d.defaultFrom = from }
}

// WithObserver attaches metrics.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// WithRecordedHook is called after each asynchronous result write with the
// outcome and the write error, if any.
func WithRecordedHook(fn func(domain.SendOutcome, error)) Option {
	return func(d *Dispatcher) { d.onRecorded = fn }
}

// New returns a Dispatcher. recorder may be nil, in which case nothing is
// persisted.
func New(renderer Renderer, recorder Recorder, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		renderer:   renderer,
		recorder:   recorder,
		observer:   nopObserver{},
		recordWait: 30 * time.Second,
		onRecorded: func(domain.SendOutcome, error) {},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes every job and returns one outcome per job, indexed like
// b.Jobs. Only a structural problem with the batch itself is an error.
// Cancelling ctx does not abort a running batch.
func (d *Dispatcher) Run(ctx context.Context, b Batch) ([]domain.SendOutcome, error) {
	if b.Concurrency < 1 {
		return nil, fmt.Errorf("%w: concurrency must be at least 1, got %d", ErrInvalidBatch, b.Concurrency)
	}
	if b.Transport == nil {
		return nil, fmt.Errorf("%w: no transport", ErrInvalidBatch)
	}
	if b.Message == nil {
		return nil, fmt.Errorf("%w: no message builder", ErrInvalidBatch)
	}

	n := len(b.Jobs)
	outcomes := make([]domain.SendOutcome, n)
	if n == 0 {
		return outcomes, nil
	}
	ctx = context.WithoutCancel(ctx)
	d.observer.ObserveBatch(n)
	start := time.Now()

	queue := make(chan int)
	var workers sync.WaitGroup
	for w := 0; w < min(b.Concurrency, n); w++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for i := range queue {
				outcomes[i] = d.runJob(ctx, &b, b.Jobs[i])
			}
		}()
	}
	for i := range b.Jobs {
		queue <- i
	}
	close(queue)
	workers.Wait()

	sent := 0
	for _, o := range outcomes {
		if o.OK {
			sent++
		}
	}
	logger.Info("[dispatch] batch complete",
		"jobs", n, "sent", sent, "failed", n-sent,
		"concurrency", b.Concurrency, "test", b.Transport.IsTest(), "elapsed", time.Since(start).Round(time.Millisecond))
	return outcomes, nil
}

// Wait blocks until every asynchronous result write has finished.
func (d *Dispatcher) Wait() {
	d.pending.Wait()
}

func (d *Dispatcher) runJob(ctx context.Context, b *Batch, job domain.SendJob) (out domain.SendOutcome) {
	start := time.Now()
	job.AttemptedAt = start
	attemptID := ""
	unrecorded := false
	defer func() {
		if p := recover(); p != nil {
			logger.Error("[dispatch] job panicked", "recipient", job.Email, "panic", p)
			out = domain.Failed(job, fmt.Errorf("internal error: %v", p))
			if unrecorded {
				d.recordResult(ctx, job, attemptID, out)
			}
		}
		d.observer.ObserveSend(resultLabel(out), time.Since(start))
	}()

	if !job.HasAddress() {
		return domain.Failed(job, domain.ErrNoAddress)
	}
	unrecorded = true

	subject, html, err := b.Message.Build(job)
	if err != nil {
		out = domain.Failed(job, err)
	} else {
		job.Subject = subject
		attemptID = d.recordPending(ctx, job)
		out = d.attempt(ctx, b, job, html)
		if out.OK {
			logger.Debug("[dispatch] sent", "email", job.Email, "messageId", out.MessageID)
		} else {
			logger.Warn("[dispatch] send failed", "email", job.Email, "error", out.Error)
		}
	}
	unrecorded = false
	d.recordResult(ctx, job, attemptID, out)
	return out
}

func (d *Dispatcher) attempt(ctx context.Context, b *Batch, job domain.SendJob, html string) domain.SendOutcome {
	attachment := job.Attachment
	if attachment == nil {
		pdf, err := d.renderer.Render(ctx, job.RenderInput, b.Branding)
		if err != nil {
			return domain.Failed(job, domain.RenderError(err))
		}
		attachment = pdf
	}

	from, err := ResolveFrom(b.From, d.defaultFrom, b.Transport.IsTest())
	if err != nil {
		return domain.Failed(job, err)
	}

	receipt, err := sendWithTimeout(ctx, b.Transport, transport.Message{
		From:           from,
		To:             job.Email,
		ToName:         job.DisplayName,
		Subject:        job.Subject,
		HTML:           html,
		AttachmentName: job.AttachmentName,
		Attachment:     attachment,
	}, b.Timeout)
	if err != nil {
		return domain.Failed(job, err)
	}

	preview := ""
	if b.Transport.IsTest() {
		preview = receipt.PreviewURL
	}
	return domain.Succeeded(job, receipt.MessageID, preview)
}

// sendWithTimeout races the send against timeout. On timeout the send's
// context is cancelled, but a transport that ignores cancellation may still
// deliver the message; its result is discarded.
func sendWithTimeout(ctx context.Context, h transport.Handle, m transport.Message, timeout time.Duration) (transport.Receipt, error) {
	if timeout <= 0 {
		return h.Send(ctx, m)
	}
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		receipt transport.Receipt
		err     error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: fmt.Errorf("transport panicked: %v", p)}
			}
		}()
		r, err := h.Send(sendCtx, m)
		done <- result{receipt: r, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && sendCtx.Err() == context.DeadlineExceeded {
			return transport.Receipt{}, domain.ErrTimeout
		}
		return res.receipt, res.err
	case <-sendCtx.Done():
		return transport.Receipt{}, domain.ErrTimeout
	}
}

// ResolveFrom picks the sender: the batch override, then the configured
// default, then TestFrom on a test transport.
func ResolveFrom(override, configured string, test bool) (string, error) {
	for _, candidate := range []string{override, configured} {
		if s := strings.TrimSpace(candidate); s != "" {
			return s, nil
		}
	}
	if test {
		return TestFrom, nil
	}
	return "", domain.Configurationf("missing from address")
}

func (d *Dispatcher) recordPending(ctx context.Context, job domain.SendJob) string {
	if d.recorder == nil || job.ParticipantID == "" {
		return ""
	}
	id, err := d.recorder.RecordPending(ctx, job)
	if err != nil {
		d.observer.RecordingFailed()
		logger.Warn("[dispatch] record pending failed", "participant", job.ParticipantID, "error", err)
		return ""
	}
	return id
}

func (d *Dispatcher) recordResult(ctx context.Context, job domain.SendJob, attemptID string, out domain.SendOutcome) {
	if d.recorder == nil || job.ParticipantID == "" {
		return
	}
	d.pending.Add(1)
	go func() {
		defer d.pending.Done()
		rctx, cancel := context.WithTimeout(ctx, d.recordWait)
		defer cancel()

		err := d.recorder.RecordResult(rctx, job, attemptID, out)
		if err != nil {
			d.observer.RecordingFailed()
			logger.Error("[dispatch] record result failed", "participant", job.ParticipantID, "error", err)
		}
		d.onRecorded(out, err)
	}()
}

func resultLabel(out domain.SendOutcome) string {
	switch {
	case out.OK:
		return "sent"
	case out.Error == domain.ErrNoAddress.Error():
		return "no_address"
	case out.Error == domain.ErrTimeout.Error():
		return "timeout"
	default:
		return "failed"
	}
}
