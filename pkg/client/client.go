package client

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

	"github.com/sonet/timeline/pkg/types"
)

// Client is a Go client for the timeline service HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a client against the given base URL, e.g.
// "http://localhost:8087".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TimelineOptions narrows a timeline read.
type TimelineOptions struct {
	Algorithm      types.Algorithm
	Limit          int
	Cursor         string
	IncludeReplies bool
	IncludeRenotes bool
}

// GetTimeline fetches one page of the viewer's home timeline.
func (c *Client) GetTimeline(ctx context.Context, viewerID string, opts TimelineOptions) (*types.TimelinePage, error) {
	q := url.Values{}
	if opts.Algorithm != "" {
		q.Set("algorithm", string(opts.Algorithm))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		q.Set("cursor", opts.Cursor)
	}
	if opts.IncludeReplies {
		q.Set("include_replies", "true")
	}
	if opts.IncludeRenotes {
		q.Set("include_renotes", "true")
	}
	return c.getPage(ctx, viewerID, "/v1/timeline?"+q.Encode())
}

// GetUserTimeline fetches one page of a single author's notes as seen
// by the viewer. Author pages are always chronological, so
// opts.Algorithm is ignored.
func (c *Client) GetUserTimeline(ctx context.Context, viewerID, authorID string, opts TimelineOptions) (*types.TimelinePage, error) {
	q := url.Values{}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		q.Set("cursor", opts.Cursor)
	}
	q.Set("include_replies", strconv.FormatBool(opts.IncludeReplies))
	q.Set("include_renotes", strconv.FormatBool(opts.IncludeRenotes))
	return c.getPage(ctx, viewerID, "/v1/users/"+url.PathEscape(authorID)+"/timeline?"+q.Encode())
}

// Refresh forces a recompute of the viewer's timeline and returns its
// first page.
func (c *Client) Refresh(ctx context.Context, viewerID string, algorithm types.Algorithm) (*types.TimelinePage, error) {
	q := url.Values{}
	if algorithm != "" {
		q.Set("algorithm", string(algorithm))
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/timeline/refresh?"+q.Encode(), viewerID, nil)
	if err != nil {
		return nil, err
	}
	return c.doPage(req)
}

// MarkRead records the viewer's read position.
func (c *Client) MarkRead(ctx context.Context, viewerID string, at time.Time) error {
	body := map[string]any{"at": at}
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/timeline/read", viewerID, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return nil
}

// PublishNote ingests a new note. Intended for trusted internal
// callers; the route is not exposed publicly.
func (c *Client) PublishNote(ctx context.Context, note *types.Note) error {
	return c.postEvent(ctx, "/internal/events/note", note)
}

// RecordEngagement applies an engagement delta to a note.
func (c *Client) RecordEngagement(ctx context.Context, noteID string, delta types.EngagementDelta) error {
	return c.postEvent(ctx, "/internal/events/engagement", map[string]any{
		"note_id": noteID,
		"delta":   delta,
	})
}

// RecordFollow reports a follow or unfollow.
func (c *Client) RecordFollow(ctx context.Context, followerID, followeeID string, followed bool) error {
	return c.postEvent(ctx, "/internal/events/follow", map[string]any{
		"follower_id": followerID,
		"followee_id": followeeID,
		"followed":    followed,
	})
}

// DeleteNote reports a note deletion.
func (c *Client) DeleteNote(ctx context.Context, noteID string) error {
	return c.postEvent(ctx, "/internal/events/note-deleted", map[string]any{
		"note_id": noteID,
	})
}

func (c *Client) postEvent(ctx context.Context, path string, body any) error {
	req, err := c.newRequest(ctx, http.MethodPost, path, "", body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return statusError(resp)
	}
	return nil
}

func (c *Client) getPage(ctx context.Context, viewerID, path string) (*types.TimelinePage, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, viewerID, nil)
	if err != nil {
		return nil, err
	}
	return c.doPage(req)
}

func (c *Client) doPage(req *http.Request) (*types.TimelinePage, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusTooManyRequests, http.StatusServiceUnavailable:
		// Page bodies are returned on these statuses; degraded and
		// failed pages carry their diagnostics inline.
	default:
		return nil, statusError(resp)
	}

	var page types.TimelinePage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decoding page: %w", err)
	}
	if resp.StatusCode != http.StatusOK && page.Error == "" {
		return &page, fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return &page, nil
}

func (c *Client) newRequest(ctx context.Context, method, path, viewerID string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if viewerID != "" {
		req.Header.Set("X-Viewer-ID", viewerID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
}
