// Package reconcile is the client side of the workout reconciliation endpoint.
package reconcile

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

	"example.com/fittrack/pkg/workout"
)

// SyncPath is the route the server registers for batch reconciliation.
const SyncPath = "/v1/workouts/sync"

var (
	// ErrTransient marks failures worth retrying: the network, a 5xx or a
	// response body that could not be understood.
	ErrTransient = errors.New("reconcile: transient failure")
	// ErrRejected marks a non-2xx, non-5xx response. The request itself was
	// refused, so no record in it was judged.
	ErrRejected = errors.New("reconcile: request rejected")
)

// RejectedError carries the server's problem body for a refused request.
type RejectedError struct {
	Status int
	Type   string
	Detail string
}

func (e *RejectedError) Error() string {
	msg := fmt.Sprintf("sync rejected with status %d", e.Status)
	if e.Type != "" {
		msg += ": " + e.Type
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// Is reports whether target is ErrRejected.
func (e *RejectedError) Is(target error) bool { return target == ErrRejected }

// Client submits batches to the reconciliation endpoint.
type Client struct {
	client *http.Client
	url    string
	token  string
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client. The timeout passed to
// NewClient is then ignored.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.client = hc }
}

// NewClient constructs a Client. baseURL is the server origin, without the
// sync path.
func NewClient(baseURL, token string, timeout time.Duration, opts ...ClientOption) *Client {
	c := &Client{
		client: &http.Client{Timeout: timeout},
		url:    strings.TrimRight(baseURL, "/") + SyncPath,
		token:  token,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sync posts one batch. A nil error means the server judged every record and
// the response lists the ones it refused.
func (c *Client) Sync(ctx context.Context, records []workout.Record) (*workout.SyncResponse, error) {
	body, err := json.Marshal(workout.SyncRequest{Workouts: records})
	if err != nil {
		return nil, fmt.Errorf("encode sync request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build sync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransient, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrTransient, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: server responded %d", ErrTransient, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		rejected := &RejectedError{Status: resp.StatusCode}
		var problem struct {
			Type   string `json:"type"`
			Detail string `json:"detail"`
		}
		if json.Unmarshal(payload, &problem) == nil {
			rejected.Type = problem.Type
			rejected.Detail = problem.Detail
		}
		return nil, rejected
	}

	var out workout.SyncResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", ErrTransient, err)
	}
	return &out, nil
}
