// Package remote implements the HTTP client for the authoritative task store.
//
// The client issues paginated list requests plus create/update/soft-delete
// mutations. Timeouts are fixed per request; the engine treats a timeout as an
// ordinary remote failure. Decode failures are returned as ordinary errors and
// handled identically to I/O failures upstream.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kmorehouse/taskmirror/internal/cache"
	"github.com/kmorehouse/taskmirror/internal/task"
)

// Fields is a changed-fields payload for create and update calls. Only the
// keys present are touched server-side; metadata keys are merged, not
// overwritten, so unrelated metadata (tags, confidence) survives edits.
type Fields map[string]any

// Config holds client construction options.
type Config struct {
	// BaseURL is the task store endpoint, e.g. https://api.example.com.
	BaseURL string
	// Token is the bearer token attached to every request.
	Token string
	// Timeout is the fixed per-request timeout. Zero means 15s.
	Timeout time.Duration
	// UserID identifies the syncing user; sent as a header.
	UserID string
}

// Client talks to the remote task store.
type Client struct {
	base   *url.URL
	token  string
	userID string
	http   *http.Client
}

// New creates a remote store client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		base:   base,
		token:  cfg.Token,
		userID: cfg.UserID,
		http:   &http.Client{Timeout: timeout},
	}, nil
}

type listResponse struct {
	Tasks   []*task.Task `json:"tasks"`
	HasMore bool         `json:"has_more"`
}

// List fetches one page of tasks matching filter. The has_more flag comes
// from the server, which knows the true global count.
func (c *Client) List(ctx context.Context, filter cache.Filter, limit, offset int) ([]*task.Task, bool, error) {
	q := url.Values{}
	q.Set("completed", strconv.FormatBool(filter.Completed))
	q.Set("deleted", strconv.FormatBool(filter.Deleted))
	if !filter.CreatedAfter.IsZero() {
		q.Set("created_after", filter.CreatedAfter.UTC().Format(time.RFC3339))
	}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var resp listResponse
	if err := c.do(ctx, http.MethodGet, "/v1/tasks?"+q.Encode(), nil, &resp); err != nil {
		return nil, false, err
	}

	for _, t := range resp.Tasks {
		t.SetDefaults()
	}

	return resp.Tasks, resp.HasMore, nil
}

// Create creates a task and returns the server-assigned object.
func (c *Client) Create(ctx context.Context, fields Fields) (*task.Task, error) {
	var created task.Task
	if err := c.do(ctx, http.MethodPost, "/v1/tasks", fields, &created); err != nil {
		return nil, err
	}
	created.SetDefaults()
	return &created, nil
}

// Update patches a task with the changed fields and returns the updated
// server object.
func (c *Client) Update(ctx context.Context, id string, fields Fields) (*task.Task, error) {
	var updated task.Task
	if err := c.do(ctx, http.MethodPatch, "/v1/tasks/"+url.PathEscape(id), fields, &updated); err != nil {
		return nil, err
	}
	updated.SetDefaults()
	return &updated, nil
}

// SoftDelete marks a task deleted on the server, recording the actor.
func (c *Client) SoftDelete(ctx context.Context, id, actor string) (*task.Task, error) {
	body := map[string]any{"deleted": true, "deleted_by": actor}
	var deleted task.Task
	if err := c.do(ctx, http.MethodPost, "/v1/tasks/"+url.PathEscape(id)+"/delete", body, &deleted); err != nil {
		return nil, err
	}
	deleted.SetDefaults()
	return &deleted, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	ref, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("invalid request path %s: %w", path, err)
	}
	endpoint := c.base.ResolveReference(ref).String()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("remote store returned %d: %s", resp.StatusCode, string(data))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
