package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/certificate-mailer/internal/pkg/httpretry"
)

// TestAccount is a disposable inbox returned by the Ethereal API.
type TestAccount struct {
	User string `json:"user"`
	Pass string `json:"pass"`
	SMTP struct {
		Host   string `json:"host"`
		Port   int    `json:"port"`
		Secure bool   `json:"secure"`
	} `json:"smtp"`
	Web string `json:"web"`
}

// AccountProvider creates disposable test accounts.
type AccountProvider interface {
	CreateAccount(ctx context.Context) (TestAccount, error)
}

// EtherealClient creates accounts through the nodemailer account API.
type EtherealClient struct {
	url    string
	client *httpretry.RetryClient
}

// NewEtherealClient returns a client for url. A nil doer uses a default
// http.Client.
func NewEtherealClient(url string, doer httpretry.HTTPDoer) *EtherealClient {
	return &EtherealClient{
		url:    url,
		client: httpretry.NewRetryClient(doer, 2, httpretry.WithBackoff(500*time.Millisecond, 5*time.Second)),
	}
}

type etherealResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
	TestAccount
}

// CreateAccount requests a new disposable inbox.
func (c *EtherealClient) CreateAccount(ctx context.Context) (TestAccount, error) {
	var resp etherealResponse
	req := map[string]string{"requestor": "certificate-mailer", "version": "1.0.0"}
	if err := c.client.PostJSON(ctx, c.url, req, &resp); err != nil {
		return TestAccount{}, fmt.Errorf("create test account: %w", err)
	}
	if resp.Status != "success" {
		msg := resp.Error
		if msg == "" {
			msg = "status " + resp.Status
		}
		return TestAccount{}, fmt.Errorf("create test account: %s", msg)
	}
	if resp.SMTP.Host == "" || resp.User == "" {
		return TestAccount{}, fmt.Errorf("create test account: incomplete account in response")
	}
	return resp.TestAccount, nil
}
