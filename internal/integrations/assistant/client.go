// Package assistant implements the HTTP client for the conversational
// assistant service. Requests are SigV4-signed with the credential triple, and
// authorization failures are surfaced as a distinguishable error type so the
// session layer can mark credentials stale.
package assistant

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/google/uuid"

	"qchat/internal/domain"
)

const (
	signingService    = "qbusiness"
	chatModeRetrieval = "RETRIEVAL_MODE"

	expiredTokenType      = "ExpiredTokenException"
	expiredTokenSignature = "The security token included in the request is expired"
)

// AuthError reports that the service rejected the credential triple. Callers
// route it to the credential lifecycle manager via IsAuthExpired.
type AuthError struct {
	Operation string
	Message   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("assistant: %s: %s: %s", e.Operation, expiredTokenType, e.Message)
}

// AuthExpired marks the error as an authorization failure for callers that
// probe via errors.As without importing this package's concrete type.
func (e *AuthError) AuthExpired() bool {
	return true
}

// IsAuthExpired reports whether err carries an expired-credential rejection.
func IsAuthExpired(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// HTTPStatusError captures non-2xx responses that are not authorization
// failures.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("assistant: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// errorBody is the service's error response shape.
type errorBody struct {
	Type    string `json:"__type,omitempty"`
	Message string `json:"message,omitempty"`
}

type conversationsResponse struct {
	Conversations []domain.ConversationSummary `json:"conversations"`
}

type messagesResponse struct {
	Messages []domain.Turn `json:"messages"`
}

// ChatInput is one chat turn request. ConversationID and ParentMessageID are
// both empty when starting a new conversation.
type ChatInput struct {
	UserMessage     string `json:"userMessage"`
	ConversationID  string `json:"conversationId,omitempty"`
	ParentMessageID string `json:"parentMessageId,omitempty"`
	ChatMode        string `json:"chatMode"`
	ClientToken     string `json:"clientToken,omitempty"`
}

// ChatReply is the assistant's answer to one turn.
type ChatReply struct {
	ConversationID     string                     `json:"conversationId"`
	UserMessageID      string                     `json:"userMessageId"`
	SystemMessageID    string                     `json:"systemMessageId"`
	SystemMessage      string                     `json:"systemMessage"`
	SourceAttributions []domain.SourceAttribution `json:"sourceAttributions,omitempty"`
}

// Client calls the assistant service for one application.
type Client struct {
	baseURL       string
	region        string
	applicationID string
	provider      aws.CredentialsProvider
	signer        *v4.Signer
	httpClient    *http.Client
	now           func() time.Time
	newToken      func() string
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithClock overrides signing time. Tests use this for determinism.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates an assistant client. The provider supplies the credential
// triple for request signing on every call, so a refreshed triple takes
// effect without rebuilding the client.
func NewClient(baseURL, region, applicationID string, provider aws.CredentialsProvider, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("assistant: base URL must not be empty")
	}
	if strings.TrimSpace(region) == "" {
		return nil, errors.New("assistant: region must not be empty")
	}
	if strings.TrimSpace(applicationID) == "" {
		return nil, errors.New("assistant: application id must not be empty")
	}
	if provider == nil {
		return nil, errors.New("assistant: credentials provider must not be nil")
	}
	c := &Client{
		baseURL:       baseURL,
		region:        region,
		applicationID: applicationID,
		provider:      provider,
		signer:        v4.NewSigner(),
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		now:           time.Now,
		newToken:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ListConversations returns up to maxResults conversation summaries.
func (c *Client) ListConversations(ctx context.Context, maxResults int) ([]domain.ConversationSummary, error) {
	query := url.Values{}
	if maxResults > 0 {
		query.Set("maxResults", strconv.Itoa(maxResults))
	}
	raw, err := c.do(ctx, "ListConversations", http.MethodGet, c.conversationsPath(), query, nil)
	if err != nil {
		return nil, err
	}
	var payload conversationsResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return nil, fmt.Errorf("assistant: decode conversations: %w", decErr)
	}
	return payload.Conversations, nil
}

// ListMessages returns up to maxResults turns for a conversation, newest
// first as the service delivers them. Callers reorder for display.
func (c *Client) ListMessages(ctx context.Context, conversationID string, maxResults int) ([]domain.Turn, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, errors.New("assistant: conversation id must not be empty")
	}
	query := url.Values{}
	if maxResults > 0 {
		query.Set("maxResults", strconv.Itoa(maxResults))
	}
	raw, err := c.do(ctx, "ListMessages", http.MethodGet, c.conversationsPath()+"/"+url.PathEscape(conversationID), query, nil)
	if err != nil {
		return nil, err
	}
	var payload messagesResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return nil, fmt.Errorf("assistant: decode messages: %w", decErr)
	}
	return payload.Messages, nil
}

// SendMessage submits one user turn and waits for the synchronous reply.
func (c *Client) SendMessage(ctx context.Context, in ChatInput) (ChatReply, error) {
	if strings.TrimSpace(in.UserMessage) == "" {
		return ChatReply{}, errors.New("assistant: user message must not be empty")
	}
	in.ChatMode = chatModeRetrieval
	if in.ClientToken == "" {
		in.ClientToken = c.newToken()
	}

	body, err := json.Marshal(in)
	if err != nil {
		return ChatReply{}, fmt.Errorf("assistant: marshal chat input: %w", err)
	}

	query := url.Values{}
	query.Set("sync", "true")
	raw, err := c.do(ctx, "SendMessage", http.MethodPost, c.conversationsPath(), query, body)
	if err != nil {
		return ChatReply{}, err
	}

	var reply ChatReply
	if decErr := json.Unmarshal(raw, &reply); decErr != nil {
		return ChatReply{}, fmt.Errorf("assistant: decode chat reply: %w", decErr)
	}
	return reply, nil
}

// DeleteConversation removes a conversation server-side.
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	if strings.TrimSpace(conversationID) == "" {
		return errors.New("assistant: conversation id must not be empty")
	}
	_, err := c.do(ctx, "DeleteConversation", http.MethodDelete, c.conversationsPath()+"/"+url.PathEscape(conversationID), nil, nil)
	return err
}

func (c *Client) conversationsPath() string {
	return "/applications/" + url.PathEscape(c.applicationID) + "/conversations"
}

func (c *Client) do(ctx context.Context, operation, method, path string, query url.Values, body []byte) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("assistant: %s: create request: %w", operation, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if err := c.sign(ctx, req, body); err != nil {
		return nil, fmt.Errorf("assistant: %s: sign request: %w", operation, err)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("assistant: %s: request failed: %w", operation, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		if authErr := classifyAuthFailure(operation, buf); authErr != nil {
			return nil, authErr
		}
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        reqURL,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("assistant: %s: read response body: %w", operation, err)
	}
	return buf, nil
}

// sign applies SigV4 using the current credential triple.
func (c *Client) sign(ctx context.Context, req *http.Request, body []byte) error {
	creds, err := c.provider.Retrieve(ctx)
	if err != nil {
		return err
	}
	payloadHash := sha256.Sum256(body)
	return c.signer.SignHTTP(ctx, creds, req, hex.EncodeToString(payloadHash[:]), signingService, c.region, c.now())
}

// classifyAuthFailure inspects an error body for the expired-token signature.
// Both the modeled __type field and the raw message text are checked, since
// gateways differ in how they relay the rejection.
func classifyAuthFailure(operation string, raw []byte) *AuthError {
	var eb errorBody
	_ = json.Unmarshal(raw, &eb)
	if strings.Contains(eb.Type, expiredTokenType) ||
		strings.Contains(eb.Message, expiredTokenSignature) ||
		strings.Contains(string(raw), expiredTokenType) {
		msg := eb.Message
		if msg == "" {
			msg = expiredTokenSignature
		}
		return &AuthError{Operation: operation, Message: msg}
	}
	return nil
}
