package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"talkie/internal/auth"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultTimeout = 30 * time.Second

	// maxAuthRetries caps the refresh-and-retry cycle. The remote contract
	// promises a fresh token fixes a 419; if it keeps coming back the error
	// surfaces instead of looping.
	maxAuthRetries = 1
)

// Client executes prepared routes against the remote service. With an
// authenticator it adapts requests and recovers expired access tokens; a
// bare client is the unauthenticated path used by login and refresh.
type Client struct {
	baseURL string
	http    *http.Client
	auth    *auth.Authenticator
	log     zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithAuthenticator(a *auth.Authenticator) Option {
	return func(c *Client) { c.auth = a }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.log = logger }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute runs the route and decodes the response body as T.
func Execute[T any](ctx context.Context, c *Client, r Route) (T, error) {
	var out T
	body, _, err := c.do(ctx, r)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, &DecodeError{Err: err}
	}
	return out, nil
}

// ExecuteNoResponse runs the route and ignores the body. Only the defined
// success statuses count as success for this path.
func (c *Client) ExecuteNoResponse(ctx context.Context, r Route) error {
	body, status, err := c.do(ctx, r)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent, http.StatusResetContent:
		return nil
	}
	return &StatusError{Code: status, Body: string(body)}
}

// ExecuteMultipart runs a multipart route through the same pipeline and
// decodes the response body as T.
func ExecuteMultipart[T any](ctx context.Context, c *Client, r Route) (T, error) {
	if len(r.Parts) == 0 {
		var out T
		return out, ErrInvalidRequest
	}
	return Execute[T](ctx, c, r)
}

// do is the shared pipeline: build request, adapt via the authenticator,
// send, classify. A 419 triggers refresh and at most one retry of the
// original request.
func (c *Client) do(ctx context.Context, r Route) ([]byte, int, error) {
	for attempt := 0; ; attempt++ {
		req, err := r.newRequest(ctx, c.baseURL)
		if err != nil {
			return nil, 0, err
		}
		req.Header.Set("X-Request-Id", uuid.NewString())

		if c.auth != nil {
			if err := c.auth.Apply(ctx, req); err != nil {
				return nil, 0, err
			}
		}

		start := time.Now()
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, 0, &StatusError{Err: err}
		}

		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, resp.StatusCode, &StatusError{Code: resp.StatusCode, Err: err}
		}

		c.log.Debug().
			Str("method", r.Method).
			Str("path", r.Path).
			Int("status", resp.StatusCode).
			Dur("elapsed", time.Since(start)).
			Msg("request")

		status := resp.StatusCode
		if status >= 200 && status < 300 {
			return body, status, nil
		}

		if c.auth != nil {
			switch status {
			case auth.StatusTokenExpired:
				if attempt < maxAuthRetries {
					if err := c.auth.RefreshCredentials(ctx); err != nil {
						return nil, status, err
					}
					continue
				}
			case http.StatusUnauthorized, http.StatusTeapot:
				return nil, status, c.auth.Unauthorized(ctx)
			}
		}

		return nil, status, classify(status, body)
	}
}
