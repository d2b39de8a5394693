package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEtherealClient_CreateAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "certificate-mailer", body["requestor"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "success",
			"user": "xyz@ethereal.email",
			"pass": "pw",
			"smtp": {"host": "smtp.ethereal.email", "port": 587, "secure": false},
			"web": "https://ethereal.email"
		}`))
	}))
	defer srv.Close()

	acct, err := NewEtherealClient(srv.URL, nil).CreateAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "xyz@ethereal.email", acct.User)
	assert.Equal(t, "pw", acct.Pass)
	assert.Equal(t, "smtp.ethereal.email", acct.SMTP.Host)
	assert.Equal(t, 587, acct.SMTP.Port)
	assert.False(t, acct.SMTP.Secure)
	assert.Equal(t, "https://ethereal.email", acct.Web)
}

func TestEtherealClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error","error":"rate limited"}`))
	}))
	defer srv.Close()

	_, err := NewEtherealClient(srv.URL, nil).CreateAccount(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}
