// Package api is the REST client for the XavLink backend. Every endpoint
// group lives in its own file; all requests funnel through do(), which owns
// timeouts, auth headers, error mapping, and the forced-logout hook.
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
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/kelvinkbk/xavlink-sub001/internal/errors"
	"github.com/kelvinkbk/xavlink-sub001/internal/logger"
	"github.com/kelvinkbk/xavlink-sub001/internal/metrics"
)

// Client talks to the backend REST API.
type Client struct {
	httpClient   *http.Client
	uploadClient *http.Client
	baseURL      string
	log          *zap.Logger

	mu             sync.Mutex
	token          string
	generation     uint64 // bumped on every token change
	firedGen       uint64 // last generation the unauthorized hook fired for
	onUnauthorized func()
}

// Options configures a Client. Timeouts fall back to sane values when zero.
type Options struct {
	BaseURL       string
	Timeout       time.Duration
	UploadTimeout time.Duration
}

// NewClient builds a REST client. The transport timeout is the client-side
// budget for every call; exceeding it yields a timeout error distinct from
// any server error.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	uploadTimeout := opts.UploadTimeout
	if uploadTimeout == 0 {
		uploadTimeout = 60 * time.Second
	}
	return &Client{
		httpClient:   &http.Client{Timeout: timeout},
		uploadClient: &http.Client{Timeout: uploadTimeout},
		baseURL:      strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		log:          logger.New("api"),
	}
}

// SetToken installs the bearer token for subsequent requests and starts a
// fresh unauthorized generation, re-arming the forced-logout hook.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.generation++
}

// ClearToken drops the bearer token (logout).
func (c *Client) ClearToken() {
	c.SetToken("")
}

// OnUnauthorized registers the hook invoked when the backend rejects the
// session. It fires at most once per token generation, no matter how many
// in-flight requests observe a 401.
func (c *Client) OnUnauthorized(hook func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = hook
}

func (c *Client) currentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// fireUnauthorized invokes the hook once per generation.
func (c *Client) fireUnauthorized() {
	c.mu.Lock()
	hook := c.onUnauthorized
	shouldFire := hook != nil && c.firedGen < c.generation
	if shouldFire {
		c.firedGen = c.generation
	}
	c.mu.Unlock()

	if shouldFire {
		c.log.Warn("unauthorized response, forcing logout")
		hook()
	}
}

// errorBody is the optional JSON error payload the backend sends with
// non-2xx statuses.
type errorBody struct {
	Message string `json:"message"`
}

// do executes one JSON request. body (when non-nil) is marshalled as the
// request body; out (when non-nil) receives the decoded response.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "ENCODE_ERROR", "encode request body")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "BUILD_REQUEST", "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(c.httpClient, req, path, out)
}

// send runs the prepared request and maps the outcome. Shared by do() and
// the multipart upload path.
func (c *Client) send(hc *http.Client, req *http.Request, operation string, out any) error {
	if token := c.currentToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := hc.Do(req)
	metrics.RESTRequestDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			metrics.RESTRequests.WithLabelValues("timeout").Inc()
			return apperrors.TimeoutError(operation, err)
		}
		metrics.RESTRequests.WithLabelValues("network").Inc()
		return apperrors.NetworkError(operation, err)
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		metrics.RESTRequests.WithLabelValues("success").Inc()
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperrors.DecodeError(operation, err)
		}
		return nil
	}

	// Error statuses may carry a {message} body for user-facing text.
	var eb errorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10)) // nolint:errcheck
	_ = json.Unmarshal(raw, &eb)                            // nolint:errcheck // absent body is fine

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		metrics.RESTRequests.WithLabelValues("unauthorized").Inc()
		c.fireUnauthorized()
		return apperrors.UnauthorizedError(operation)
	case resp.StatusCode == http.StatusForbidden:
		metrics.RESTRequests.WithLabelValues("rejected").Inc()
		return apperrors.ForbiddenError(operation)
	case resp.StatusCode == http.StatusNotFound:
		metrics.RESTRequests.WithLabelValues("rejected").Inc()
		return apperrors.NotFoundError(operation)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		metrics.RESTRequests.WithLabelValues("rejected").Inc()
		return apperrors.ValidationError(operation, eb.Message)
	default:
		metrics.RESTRequests.WithLabelValues("server").Inc()
		c.log.Warn("server error",
			zap.String("operation", operation),
			zap.Int("status", resp.StatusCode))
		return apperrors.ServerError(operation, resp.StatusCode)
	}
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	var te timeouter
	if errors.As(err, &te) {
		return te.Timeout()
	}
	return false
}

// pagePath appends cursor/limit query parameters.
func pagePath(path, cursor string, limit int) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	out := fmt.Sprintf("%s%slimit=%d", path, sep, limit)
	if cursor != "" {
		out += "&cursor=" + cursor
	}
	return out
}
