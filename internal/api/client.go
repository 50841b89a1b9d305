package api

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

	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a single HTTP attempt.
const DefaultTimeout = 15 * time.Second

// Client sends one request to the account server. Authenticated requests
// carry the session's access token. When hasResponse is false the body of a
// successful response is discarded and nil is returned.
type Client interface {
	Send(ctx context.Context, method, path string, body any, authenticated, hasResponse bool) (json.RawMessage, error)
}

// HTTPClient implements Client over net/http.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	retry      *RetryPolicy
	log        zerolog.Logger
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithAccessToken sets the bearer token for authenticated requests.
func WithAccessToken(token string) Option {
	return func(c *HTTPClient) { c.token = token }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *HTTPClient) { c.httpClient = h }
}

// WithRetry replaces the retry policy. A nil policy disables retries.
func WithRetry(r *RetryPolicy) Option {
	return func(c *HTTPClient) { c.retry = r }
}

// WithLogger sets the request logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *HTTPClient) { c.log = l }
}

// New creates an HTTPClient for baseURL.
func New(baseURL string, opts ...Option) (*HTTPClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	c := &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		retry:      DefaultRetryPolicy(),
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Send implements Client.
func (c *HTTPClient) Send(ctx context.Context, method, path string, body any, authenticated, hasResponse bool) (json.RawMessage, error) {
	if authenticated && c.token == "" {
		return nil, ErrNoToken
	}

	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		payload = data
	}

	url := c.baseURL + path
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if authenticated {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &NetworkError{Err: ctx.Err(), URL: url, Attempt: attempt}
			}
			if c.retry.allows(method, attempt) {
				c.log.Debug().Err(err).Str("method", method).Str("path", path).Int("attempt", attempt).Msg("retrying request")
				if werr := c.retry.wait(ctx, attempt); werr != nil {
					return nil, &NetworkError{Err: werr, URL: url, Attempt: attempt}
				}
				continue
			}
			return nil, &NetworkError{Err: err, URL: url, Attempt: attempt}
		}

		if transientStatus(resp.StatusCode) && c.retry.allows(method, attempt) {
			drain(resp)
			c.log.Debug().Int("status", resp.StatusCode).Str("path", path).Int("attempt", attempt).Msg("retrying request")
			if werr := c.retry.wait(ctx, attempt); werr != nil {
				return nil, &NetworkError{Err: werr, URL: url, Attempt: attempt}
			}
			continue
		}

		return c.handle(resp, hasResponse)
	}
}

func (c *HTTPClient) handle(resp *http.Response, hasResponse bool) (json.RawMessage, error) {
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: fmt.Errorf("read response: %w", err), URL: resp.Request.URL.String()}
	}
	if resp.StatusCode >= 300 {
		return nil, parseErrorResponse(resp.StatusCode, data)
	}
	if !hasResponse || len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	if !json.Valid(data) {
		return nil, errors.New("decode response: invalid json")
	}
	return json.RawMessage(data), nil
}

func parseErrorResponse(status int, body []byte) error {
	var errResp struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil {
		msg := errResp.Message
		if msg == "" {
			msg = errResp.Error
		}
		if msg != "" {
			return &Error{StatusCode: status, Message: msg}
		}
	}
	return &Error{StatusCode: status, Message: strings.TrimSpace(string(body))}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// Decode unmarshals raw into a T. Empty and null bodies decode to nil.
func Decode[T any](raw json.RawMessage) (*T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}
