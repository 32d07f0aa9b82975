// Package remote wraps the commerce backend's cart and order APIs.
//
// Clients hold no cart state and never retry. Every call is a single round
// trip whose failure is classified as Unauthorized (missing or rejected
// credential), ServerError (any other 4xx/5xx) or Unreachable (transport).
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dukerupert/cartcore/internal/domain"
	"github.com/dukerupert/cartcore/internal/middleware"
	"github.com/sony/gobreaker/v2"
)

// maxResponseBody caps how much of a response body is read.
const maxResponseBody = 1 << 20

// TokenProvider supplies the bearer credential for the current session.
// An empty token means there is no session.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenProvider.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// response is a fully read backend response.
type response struct {
	status int
	body   []byte
}

// errServerFailure marks 5xx responses so the breaker counts them as failures
// while the caller still sees the decoded response.
var errServerFailure = errors.New("server failure")

// Client issues authenticated JSON requests against one backend.
type Client struct {
	Name    string
	BaseURL *url.URL
	HTTP    *http.Client

	tokens  TokenProvider
	breaker *gobreaker.CircuitBreaker[response]
	logger  *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBreaker wraps every round trip in a circuit breaker. While open, calls
// fail immediately as Unreachable.
func WithBreaker(settings gobreaker.Settings) ClientOption {
	return func(c *Client) {
		if settings.Name == "" {
			settings.Name = c.Name
		}
		c.breaker = gobreaker.NewCircuitBreaker[response](settings)
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// DefaultBreakerSettings trips after five consecutive failures and probes
// again after timeout.
func DefaultBreakerSettings(name string, timeout time.Duration, logger *slog.Logger) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			}
		},
	}
}

// NewClient creates a client for baseURL.
func NewClient(name, baseURL string, httpClient *http.Client, tokens TokenProvider, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid %s base url %q: %w", name, baseURL, err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		Name:    name,
		BaseURL: u,
		HTTP:    httpClient,
		tokens:  tokens,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Do sends in as a JSON body (when non-nil) and decodes a 2xx body into out
// (when non-nil). headers are added to the request.
func (c *Client) Do(ctx context.Context, op, method, path string, query url.Values, in, out any, headers http.Header) error {
	token, err := c.tokens.Token(ctx)
	if err != nil || token == "" {
		return domain.Unauthorized(op, "Sign in to continue")
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return domain.Internal(err, op, "failed to encode request")
		}
		body = bytes.NewReader(data)
	}

	rel := &url.URL{Path: strings.TrimSuffix(c.BaseURL.Path, "/") + path}
	if len(query) > 0 {
		rel.RawQuery = query.Encode()
	}
	u := c.BaseURL.ResolveReference(rel)

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return domain.Internal(err, op, "failed to build request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vv := range headers {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	if id := middleware.GetRequestID(ctx); id != "" {
		req.Header.Set(middleware.RequestIDHeader, id)
	}

	var res response
	if c.breaker != nil {
		res, err = c.breaker.Execute(func() (response, error) {
			return c.roundTrip(req)
		})
	} else {
		res, err = c.roundTrip(req)
	}
	if err != nil && !errors.Is(err, errServerFailure) {
		c.logger.Debug("remote call failed", "client", c.Name, "op", op, "error", err)
		return domain.Unreachable(err, op)
	}

	switch {
	case res.status == http.StatusUnauthorized:
		return domain.Unauthorized(op, "Your session has expired")
	case res.status >= 400:
		return domain.Server(op, res.status, errorMessage(res.body))
	}

	if out != nil && len(bytes.TrimSpace(res.body)) > 0 {
		if err := json.Unmarshal(res.body, out); err != nil {
			return domain.Internal(err, op, "failed to decode response")
		}
	}
	return nil
}

func (c *Client) roundTrip(req *http.Request) (response, error) {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return response{}, err
	}

	res := response{status: resp.StatusCode, body: body}
	if res.status >= 500 {
		return res, errServerFailure
	}
	return res, nil
}

// errorMessage extracts the backend's message from an error body. Bodies of
// the form {"error": "..."} or {"message": "..."} are unwrapped; anything else
// is returned trimmed.
func errorMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return strings.TrimSpace(string(body))
}
