package cache

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Invalidator is told which user's context changed so downstream caches can
// drop anything derived from the previous snapshot.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// NoopInvalidator is a no-op implementation.
type NoopInvalidator struct{}

// Invalidate performs no action.
func (NoopInvalidator) Invalidate(context.Context, string) error { return nil }

// HTTPInvalidator posts the user id to an assistant-side invalidation endpoint.
type HTTPInvalidator struct {
	client *http.Client
	url    string
	token  string
}

// NewHTTPInvalidator constructs an HTTPInvalidator.
func NewHTTPInvalidator(endpoint, token string, timeout time.Duration) *HTTPInvalidator {
	return &HTTPInvalidator{
		client: &http.Client{Timeout: timeout},
		url:    strings.TrimRight(endpoint, "/"),
		token:  token,
	}
}

// Invalidate triggers an HTTP POST whose body is the user identifier.
func (h *HTTPInvalidator) Invalidate(ctx context.Context, userID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, strings.NewReader(userID))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &InvalidationError{Status: resp.StatusCode}
	}
	return nil
}

// InvalidationError represents a non-successful invalidation response.
type InvalidationError struct {
	Status int
}

func (e *InvalidationError) Error() string {
	return "context invalidation failed with status " + http.StatusText(e.Status)
}

// MultiInvalidator fans a notification out to several invalidators and
// returns the first error after trying all of them.
type MultiInvalidator []Invalidator

// Invalidate notifies every member.
func (m MultiInvalidator) Invalidate(ctx context.Context, userID string) error {
	var first error
	for _, inv := range m {
		if err := inv.Invalidate(ctx, userID); err != nil && first == nil {
			first = err
		}
	}
	return first
}
