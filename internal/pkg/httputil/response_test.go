package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec, map[string]bool{"ok": true})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

func TestErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusBadRequest, ErrorResponse{Error: "auth", Code: "EAUTH", ProviderHint: "hint"})

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "auth", body["error"])
	assert.Equal(t, "EAUTH", body["code"])
	assert.Equal(t, "hint", body["providerHint"])
}

func TestInternalError_HidesDetailsByDefault(t *testing.T) {
	rec := httptest.NewRecorder()
	InternalError(rec, errors.New("pq: connection refused"), false)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pq:")

	rec = httptest.NewRecorder()
	InternalError(rec, errors.New("pq: connection refused"), true)
	assert.Contains(t, rec.Body.String(), "pq: connection refused")
}

func TestPDF(t *testing.T) {
	rec := httptest.NewRecorder()
	PDF(rec, "certificate_R-1.pdf", []byte("%PDF-1.3"))

	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="certificate_R-1.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "8", rec.Header().Get("Content-Length"))
}

func TestDecode(t *testing.T) {
	var dst struct{ Name string }

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x"}`))
	assert.True(t, Decode(httptest.NewRecorder(), req, &dst))
	assert.Equal(t, "x", dst.Name)

	rec := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	assert.False(t, Decode(rec, req, &dst))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
