package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/basel-ax/promptpix/internal/domain"
)

const (
	defaultTimeout       = 2 * time.Minute
	defaultMaxImageBytes = 20 << 20
	maxErrorBodyBytes    = 1 << 10
)

// Payload is the JSON body sent to the inference endpoint
type Payload struct {
	Inputs string `json:"inputs"`
}

// StatusError is returned when the inference endpoint answers with an unusable response
type StatusError struct {
	Code       int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.Code, e.Body)
}

// RateLimited reports whether the endpoint asked the caller to slow down
func (e *StatusError) RateLimited() bool {
	return e.Code == http.StatusTooManyRequests
}

// Client represents the hosted inference API client
type Client struct {
	httpClient    *http.Client
	url           string
	apiKey        string
	maxImageBytes int64
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout bounds a single request to the endpoint
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithMaxImageBytes caps the accepted response size
func WithMaxImageBytes(n int64) Option {
	return func(c *Client) {
		c.maxImageBytes = n
	}
}

// NewClient creates a new inference API client for the model at url
func NewClient(url, apiKey string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		url:           url,
		apiKey:        apiKey,
		maxImageBytes: defaultMaxImageBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Query sends a single generation request and returns the raw image.
// It never retries; a 429 comes back as a *StatusError with RateLimited set.
func (c *Client) Query(ctx context.Context, payload Payload) (*domain.Image, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &StatusError{
			Code:       resp.StatusCode,
			Body:       string(body),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(data)) > c.maxImageBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", c.maxImageBytes)
	}
	if len(data) == 0 {
		return nil, domain.ErrEmptyImage
	}

	contentType := resp.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && mediaType == "application/json" {
		// a JSON body on 200 is an error payload, not an image
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(string(data), maxErrorBodyBytes)}
	}

	return &domain.Image{
		Data:        data,
		ContentType: contentType,
	}, nil
}

// parseRetryAfter understands both delay-seconds and HTTP-date forms
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs > 0 {
			return time.Duration(secs) * time.Second
		}
		return 0
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
