// Package cache purges edge-cached catalog responses when records change.
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Invalidator defines a cache invalidation contract keyed by record ID.
type Invalidator interface {
	Invalidate(ctx context.Context, key string) error
}

// NoopInvalidator is a no-op implementation.
type NoopInvalidator struct{}

// Invalidate performs no action.
func (NoopInvalidator) Invalidate(context.Context, string) error { return nil }

// HTTPInvalidator calls an upstream purge endpoint.
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

type purgeRequest struct {
	Keys []string `json:"keys"`
}

// Invalidate POSTs the record key and the collection keys it belongs to.
func (h *HTTPInvalidator) Invalidate(ctx context.Context, key string) error {
	body, err := json.Marshal(purgeRequest{Keys: PurgeKeys(key)})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &InvalidationError{Key: key, Status: resp.StatusCode}
	}
	return nil
}

// PurgeKeys lists the surrogate keys affected by a change to one record. Listing and
// match responses embed many records, so they are always purged alongside the record.
func PurgeKeys(key string) []string {
	return []string{"record:" + key, "collection:activities", "collection:patients", "collection:matches"}
}

// InvalidationError represents a non-successful purge response.
type InvalidationError struct {
	Key    string
	Status int
}

func (e *InvalidationError) Error() string {
	return fmt.Sprintf("cache invalidation for %s failed with status %s", e.Key, http.StatusText(e.Status))
}
