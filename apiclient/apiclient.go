// Package apiclient is a thin client for the affiliate marketing
// GraphQL API. Requests are signed with a SHA256 digest over app ID,
// timestamp, payload and secret. The orchestrator treats this package
// as an opaque collaborator: its errors are ordinary test failures.
package apiclient

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
	"os"
	"strconv"
	"time"
)

// DefaultEndpoint is the production GraphQL endpoint.
const DefaultEndpoint = "https://open-api.affiliate.shopee.com.br/graphql"

const defaultTimeout = 30 * time.Second

// Credential environment variables.
const (
	EnvAppID  = "SHOPEE_APP_ID"
	EnvSecret = "SHOPEE_APP_SECRET"
)

// ErrMissingCredentials is returned when no app ID or secret is
// configured.
var ErrMissingCredentials = errors.New("missing credentials: set " + EnvAppID + " and " + EnvSecret)

// APIError is a GraphQL-level error returned by the API.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %s: %s", e.Code, e.Message)
}

// Client issues signed GraphQL requests.
type Client struct {
	appID      string
	secret     string
	endpoint   string
	httpClient *http.Client
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the API endpoint.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New returns a client for the given credentials.
func New(appID, secret string, opts ...Option) (*Client, error) {
	if appID == "" || secret == "" {
		return nil, ErrMissingCredentials
	}
	c := &Client{
		appID:      appID,
		secret:     secret,
		endpoint:   DefaultEndpoint,
		httpClient: &http.Client{Timeout: defaultTimeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewFromEnv builds a client from SHOPEE_APP_ID / SHOPEE_APP_SECRET.
func NewFromEnv(opts ...Option) (*Client, error) {
	return New(os.Getenv(EnvAppID), os.Getenv(EnvSecret), opts...)
}

// sign computes hex(sha256(appID + timestamp + payload + secret)).
func (c *Client) sign(timestamp int64, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(c.appID))
	h.Write([]byte(strconv.FormatInt(timestamp, 10)))
	h.Write(payload)
	h.Write([]byte(c.secret))
	return hex.EncodeToString(h.Sum(nil))
}

type graphqlError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"extensions"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

// Request issues a GraphQL query and returns the raw data payload.
// Nil-valued variables are dropped before serialization.
func (c *Client) Request(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	body := map[string]any{"query": query}
	if cleaned := dropNil(variables); len(cleaned) > 0 {
		body["variables"] = cleaned
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	timestamp := c.now().Unix()
	signature := c.sign(timestamp, payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization",
		fmt.Sprintf("SHA256 Credential=%s, Timestamp=%d, Signature=%s", c.appID, timestamp, signature))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, truncate(raw, 200))
	}

	var parsed graphqlResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(parsed.Errors) > 0 {
		ge := parsed.Errors[0]
		code := ge.Extensions.Code
		if code == "" {
			code = "UNKNOWN"
		}
		message := ge.Extensions.Message
		if message == "" {
			message = ge.Message
		}
		return nil, &APIError{Code: code, Message: message}
	}

	return parsed.Data, nil
}

func dropNil(variables map[string]any) map[string]any {
	if len(variables) == 0 {
		return nil
	}
	out := make(map[string]any, len(variables))
	for k, v := range variables {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
