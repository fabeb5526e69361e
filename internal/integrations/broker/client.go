// Package broker implements the HTTP client for the IAM credential broker,
// which exchanges an identity token for a temporary credential triple.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"qchat/internal/domain"
)

// exchangeRequest is the request body sent to the broker endpoint.
type exchangeRequest struct {
	IDToken string `json:"idToken"`
}

// exchangeResponse is the broker's response: either a credentials payload or
// a status string. A status containing "Exception:" is a soft failure.
type exchangeResponse struct {
	Credentials *credentialsPayload `json:"credentials,omitempty"`
	Status      string              `json:"status,omitempty"`
}

// credentialsPayload carries the triple without an expiration; the lifecycle
// manager stamps expiry locally.
type credentialsPayload struct {
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	SessionToken    string `json:"sessionToken"`
}

// SoftFailError is returned when the broker answers with an exception-like
// status string rather than credentials. It must be surfaced to the user,
// never retried silently.
type SoftFailError struct {
	Status string
}

func (e *SoftFailError) Error() string {
	return fmt.Sprintf("broker: exchange rejected: %s", e.Status)
}

// HTTPStatusError captures non-2xx broker responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("broker: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client calls the credential broker endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a broker client for the given endpoint URL.
func NewClient(endpoint string, opts ...Option) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("broker: endpoint must not be empty")
	}
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Exchange posts the identity token to the broker and returns the credential
// triple without expiration. The token travels both as the Authorization
// header and in the request body, matching the broker's contract.
func (c *Client) Exchange(ctx context.Context, identityToken string) (domain.CredentialTriple, error) {
	if strings.TrimSpace(identityToken) == "" {
		return domain.CredentialTriple{}, errors.New("broker: identity token must not be empty")
	}

	body, err := json.Marshal(exchangeRequest{IDToken: identityToken})
	if err != nil {
		return domain.CredentialTriple{}, fmt.Errorf("broker: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.CredentialTriple{}, fmt.Errorf("broker: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", identityToken)

	raw, err := c.doJSONRequest(req)
	if err != nil {
		return domain.CredentialTriple{}, fmt.Errorf("broker: exchange request failed: %w", err)
	}

	var payload exchangeResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return domain.CredentialTriple{}, fmt.Errorf("broker: decode response: %w", decErr)
	}

	if strings.Contains(payload.Status, "Exception:") {
		return domain.CredentialTriple{}, &SoftFailError{Status: payload.Status}
	}
	if payload.Credentials == nil {
		return domain.CredentialTriple{}, errors.New("broker: response carries neither credentials nor status")
	}

	triple := domain.CredentialTriple{
		AccessKeyID:     payload.Credentials.AccessKeyID,
		SecretAccessKey: payload.Credentials.SecretAccessKey,
		SessionToken:    payload.Credentials.SessionToken,
	}
	if triple.IsZero() {
		return domain.CredentialTriple{}, errors.New("broker: response credentials are empty")
	}
	return triple, nil
}

func (c *Client) doJSONRequest(req *http.Request) ([]byte, error) {
	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        c.endpoint,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 15 * time.Second}
}
