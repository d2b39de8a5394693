// Package httputil provides the JSON response and error envelopes shared by
// every certificate-mailer handler.
//
// Handlers should use these helpers instead of raw http.ResponseWriter calls
// so that error bodies keep the {error, code, providerHint} shape the
// dashboard expects.
package httputil
