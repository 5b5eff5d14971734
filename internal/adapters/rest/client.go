// Package rest fetches event metadata and assignment rosters from the
// workforce backend. The engine only reads; all writes stay with the backend.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/vigilops/livetrack/internal/domain/model"
	"github.com/vigilops/livetrack/pkg/logger"
)

// Default client tuning.
const (
	defaultTimeout      = 10 * time.Second
	maxResponseBodySize = 8 << 20
)

// Client talks to the workforce backend's read endpoints.
type Client struct {
	baseURL string
	http    *http.Client
	logger  logger.Logger
}

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a roster client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  logger.Get().Named("rest"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Event fetches the scope metadata for one event.
func (c *Client) Event(ctx context.Context, eventID string) (model.EventScope, error) {
	var scope model.EventScope
	path := "/events/" + url.PathEscape(eventID)
	if err := c.getJSON(ctx, path, &scope); err != nil {
		return model.EventScope{}, err
	}
	if scope.EventID == "" {
		scope.EventID = eventID
	}
	return scope, nil
}

// Assignments fetches the full assignment roster for one event. The caller
// filters for trackability; this returns every row the backend knows.
func (c *Client) Assignments(ctx context.Context, eventID string) ([]model.AssignmentRecord, error) {
	var out struct {
		Assignments []model.AssignmentRecord `json:"assignments"`
	}
	path := "/events/" + url.PathEscape(eventID) + "/assignments"
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	c.logger.Debug(ctx, "fetched assignment roster",
		logger.String("eventID", eventID),
		logger.Int("assignments", len(out.Assignments)),
	)
	return out.Assignments, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return fmt.Errorf("GET %s: %w", path, ErrEventNotFound)
	default:
		return fmt.Errorf("GET %s: %w: status %d", path, ErrUnexpectedReply, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
