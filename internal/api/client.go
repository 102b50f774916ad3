// Package api is the typed REST client for the SIP, chat and agent
// backend. Calls never return a Go error; every outcome is a Response.
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

	"github.com/google/go-querystring/query"
	"github.com/google/uuid"
	"github.com/soyeahso/sipdash/internal/auth"
	"github.com/soyeahso/sipdash/internal/logging"
	"github.com/soyeahso/sipdash/internal/metrics"
	"github.com/soyeahso/sipdash/internal/version"
)

const defaultTimeout = 30 * time.Second

// Options configures a Client.
type Options struct {
	// BaseURL is the API root, e.g. http://localhost:5000/api.
	BaseURL string
	// Timeout bounds each request. Defaults to 30s.
	Timeout time.Duration
	// Tokens supplies the bearer token; nil sends requests anonymously.
	Tokens auth.Store
	// OnUnauthorized runs after a 401 has cleared the token store.
	OnUnauthorized func()
	// Transport overrides http.DefaultTransport beneath the auth layer.
	Transport http.RoundTripper
}

// Client issues REST calls against the backend.
type Client struct {
	baseURL        string
	http           *http.Client
	tokens         auth.Store
	onUnauthorized func()
	log            *logging.Logger
	metrics        *metrics.Metrics
}

// NewClient creates a Client. m may be nil.
func NewClient(opts Options, log *logging.Logger, m *metrics.Metrics) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if opts.Tokens != nil {
		transport = &auth.Transport{Source: auth.NewTokenSource(opts.Tokens), Base: transport}
	}
	return &Client{
		baseURL:        strings.TrimSuffix(opts.BaseURL, "/"),
		http:           &http.Client{Timeout: timeout, Transport: transport},
		tokens:         opts.Tokens,
		onUnauthorized: opts.OnUnauthorized,
		log:            log.Sub("api"),
		metrics:        m,
	}
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string { return c.baseURL }

func get[T any](ctx context.Context, c *Client, path string, q any) Response[T] {
	return do[T](ctx, c, http.MethodGet, path, q, nil)
}

func post[T any](ctx context.Context, c *Client, path string, body any) Response[T] {
	return do[T](ctx, c, http.MethodPost, path, nil, body)
}

func put[T any](ctx context.Context, c *Client, path string, body any) Response[T] {
	return do[T](ctx, c, http.MethodPut, path, nil, body)
}

func del[T any](ctx context.Context, c *Client, path string) Response[T] {
	return do[T](ctx, c, http.MethodDelete, path, nil, nil)
}

func do[T any](ctx context.Context, c *Client, method, path string, q, body any) Response[T] {
	req, err := c.newRequest(ctx, method, path, q, body)
	if err != nil {
		return failure[T](&ClientError{Err: err}, 0)
	}
	reqID := req.Header.Get("X-Request-ID")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RESTRequest(method, 0, time.Since(start))
		if errors.Is(err, auth.ErrTokenExpired) {
			c.unauthorized(ctx)
			return failure[T](&AuthError{Message: "session expired", Err: err}, 0)
		}
		c.log.Warn().Err(err).Str("method", method).Str("path", path).Str("request_id", reqID).Msg("request failed")
		return failure[T](&NetworkError{Err: err}, 0)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	c.metrics.RESTRequest(method, resp.StatusCode, time.Since(start))
	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Str("request_id", reqID).
		Msg("request")
	if err != nil {
		return failure[T](&NetworkError{Err: err}, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody map[string]any
		_ = json.Unmarshal(data, &errBody)
		msg := serverMessage(errBody, resp.StatusCode)
		code, _ := errBody["code"].(string)

		if resp.StatusCode == http.StatusUnauthorized {
			c.unauthorized(ctx)
			return failure[T](&AuthError{Status: resp.StatusCode, Message: msg, Code: code}, resp.StatusCode)
		}
		return failure[T](&ServerError{Status: resp.StatusCode, Message: msg, Code: code}, resp.StatusCode)
	}

	out := Response[T]{Success: true, Status: resp.StatusCode}
	if _, void := any(out.Data).(struct{}); void || len(bytes.TrimSpace(data)) == 0 {
		return out
	}
	if err := json.Unmarshal(data, &out.Data); err != nil {
		return failure[T](&ClientError{Err: fmt.Errorf("decoding %s %s: %w", method, path, err)}, resp.StatusCode)
	}
	return out
}

func (c *Client) newRequest(ctx context.Context, method, path string, q, body any) (*http.Request, error) {
	target := c.baseURL + path
	if q != nil {
		v, err := query.Values(q)
		if err != nil {
			return nil, fmt.Errorf("encoding query: %w", err)
		}
		if enc := v.Encode(); enc != "" {
			target += "?" + enc
		}
	}

	var r io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding body: %w", err)
		}
		r = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("X-Request-ID", uuid.NewString())
	return req, nil
}

// unauthorized clears the stored token and notifies the host.
func (c *Client) unauthorized(ctx context.Context) {
	if c.tokens != nil {
		if err := c.tokens.Clear(ctx); err != nil {
			c.log.Warn().Err(err).Msg("clearing token")
		}
	}
	c.log.Warn().Msg("unauthorized; token cleared")
	if c.onUnauthorized != nil {
		c.onUnauthorized()
	}
}
