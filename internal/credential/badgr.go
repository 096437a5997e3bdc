package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hintquest/apiserver/config"
)

const maxResponseBytes = 1 << 20

// ErrNotConfigured is returned when no credential API endpoint is set.
var ErrNotConfigured = errors.New("credential service not configured")

// Client issues badge assertions against a Badgr-compatible HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

type recipient struct {
	Identity string `json:"identity"`
	Type     string `json:"type"`
	Hashed   bool   `json:"hashed"`
}

type evidence struct {
	Narrative string `json:"narrative"`
}

type assertionRequest struct {
	Recipient recipient  `json:"recipient"`
	Evidence  []evidence `json:"evidence,omitempty"`
	IssuedOn  time.Time  `json:"issuedOn"`
}

// NewClient builds a client from cfg. A blank base URL yields a client whose
// Issue always fails with ErrNotConfigured.
func NewClient(cfg config.CredentialConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
	}
}

// Issue creates an assertion of badgeClassID for recipientEmail and returns
// the raw response body.
func (c *Client) Issue(ctx context.Context, recipientEmail, badgeClassID, narrative string) (string, error) {
	if c.baseURL == "" {
		return "", ErrNotConfigured
	}
	payload := assertionRequest{
		Recipient: recipient{Identity: recipientEmail, Type: "email"},
		IssuedOn:  time.Now().UTC(),
	}
	if narrative != "" {
		payload.Evidence = []evidence{{Narrative: narrative}}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/v2/badgeclasses/%s/assertions", c.baseURL, url.PathEscape(badgeClassID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("issue assertion: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read assertion response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("issue assertion: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return string(raw), nil
}
