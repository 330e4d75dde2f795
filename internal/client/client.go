// Package client talks to the research server's REST API. HTTPSource
// implements fetch.Source for paginated collection endpoints.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/HerbHall/omicsview/internal/fetch"
	"github.com/HerbHall/omicsview/internal/version"
)

// HeaderRequestID carries a per-request correlation id.
const HeaderRequestID = "X-Request-ID"

// maxErrorBody bounds how much of a failed response is read for its detail.
const maxErrorBody = 64 << 10

// Client performs GET requests against one API base URL.
type Client struct {
	baseURL   string
	http      *http.Client
	limiter   *rate.Limiter
	logger    *zap.Logger
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLimiter throttles outgoing requests. A request waiting on the limiter
// aborts as soon as its context is cancelled.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithRate is WithLimiter for a requests-per-second budget; rps <= 0 leaves
// requests unthrottled.
func WithRate(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New returns a Client for baseURL, which must be an absolute http(s) URL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: 30 * time.Second},
		logger:    zap.NewNop(),
		userAgent: version.UserAgent(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Get issues GET path?params and decodes the JSON body into out. Errors are
// classified into the fetch taxonomy.
func (c *Client) Get(ctx context.Context, path string, params url.Values, out any) error {
	body, err := c.do(ctx, path, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		c.logger.Warn("malformed response payload",
			zap.String("path", path),
			zap.Error(err),
		)
		return &fetch.ServerError{Err: fmt.Errorf("decode %s: %w", path, err)}
	}
	return nil
}

func (c *Client) do(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, fetch.Classify(ctx.Err())
			}
			return nil, &fetch.NetworkError{Err: err}
		}
	}

	reqURL := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(HeaderRequestID, reqID)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fetch.Classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := checkError(resp)
		c.logger.Debug("request rejected",
			zap.String("url", reqURL),
			zap.String("request_id", reqID),
			zap.Int("status", resp.StatusCode),
		)
		return nil, serr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fetch.Classify(err)
	}
	return body, nil
}

// problem is the subset of an RFC 7807 body the client reads.
type problem struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// checkError turns a non-2xx response into a ServerError, preferring the
// problem detail when the server sent one.
func checkError(resp *http.Response) error {
	serr := &fetch.ServerError{StatusCode: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "application/problem+json" || mediaType == "application/json" {
		var p problem
		if err := json.Unmarshal(body, &p); err == nil {
			serr.Detail = p.Detail
			if serr.Detail == "" {
				serr.Detail = p.Title
			}
		}
	}
	if serr.Detail == "" {
		serr.Detail = http.StatusText(resp.StatusCode)
	}
	serr.Err = errors.New(serr.Detail)
	return serr
}
