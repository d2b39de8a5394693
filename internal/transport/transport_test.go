package transport

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageID(t *testing.T) {
	id := newMessageID("Events <events@example.org>")
	assert.True(t, strings.HasSuffix(id, "@example.org"), id)

	id = newMessageID("")
	assert.True(t, strings.HasSuffix(id, "@certificate-mailer.local"), id)
}

func TestRenderMIME(t *testing.T) {
	raw, err := renderMIME(Message{
		From: "events@example.org", To: "ann@example.org", ToName: "Ann Lee",
		Subject: "Your Certificate", HTML: "<p>Dear Ann</p>",
		Attachment: []byte("%PDF-1.3"),
	}, "abc@example.org")
	require.NoError(t, err)

	s := string(raw)
	assert.Contains(t, s, "Subject: Your Certificate")
	assert.Contains(t, s, "<abc@example.org>")
	assert.Contains(t, s, "<ann@example.org>")
	assert.Contains(t, s, "certificate.pdf", "default attachment name")
}

func TestBuildMsg_InvalidAddress(t *testing.T) {
	_, err := buildMsg(Message{From: "not an address", To: "ann@example.org"}, "id@x")
	assert.Error(t, err)

	_, err = buildMsg(Message{From: "events@example.org", To: "nope"}, "id@x")
	assert.Error(t, err)
}

func TestSMTPHandle_Construction(t *testing.T) {
	_, err := NewSMTPHandle(SMTPSettings{})
	assert.Error(t, err)

	h, err := NewSMTPHandle(SMTPSettings{Host: "smtp.example.org", Port: 587, MaxConnections: 2, Test: true, PreviewBaseURL: "https://ethereal.email/"})
	require.NoError(t, err)
	sh := h.(*SMTPHandle)
	assert.Equal(t, 2, cap(sh.pool))
	assert.True(t, h.IsTest())
	assert.Equal(t, "https://ethereal.email/message/abc@x", sh.previewURL("abc@x"))

	require.NoError(t, h.Close())
	_, err = h.Send(context.Background(), Message{From: "a@example.org", To: "b@example.org"})
	assert.Error(t, err)
}
