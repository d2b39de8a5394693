package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/ignite/certificate-mailer/internal/pkg/httputil"
)

// maxSettingsBody leaves room for three base64 images.
const maxSettingsBody = 20 << 20

// GetSettings returns the settings, creating defaults on first use.
func (h *Handlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Get(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.OK(w, s)
}

// UpdateSettings merges the fields present in the body into the stored
// settings.
func (h *Handlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSettingsBody))
	if err != nil {
		httputil.BadRequest(w, "invalid body: "+err.Error())
		return
	}
	current, err := h.settings.Get(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	createdAt := current.CreatedAt
	if err := json.Unmarshal(body, &current); err != nil {
		httputil.BadRequest(w, "invalid JSON: "+err.Error())
		return
	}
	current.CreatedAt = createdAt

	saved, err := h.settings.Save(r.Context(), current)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.OK(w, saved)
}
