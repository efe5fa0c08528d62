// Package search is the HTTP client for the document-search assistant
// API: the session list and detail reads, the send-query call, and the
// master-data lookups that feed the facet pickers.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/scholarchat/gateway/internal/model/chat"
)

// ErrTimeout reports that an upstream call hit its deadline.
var ErrTimeout = errors.New("upstream request timed out")

// APIError is a non-success upstream response. Message prefers the body's
// message field over the bare status text.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.Status, e.Message)
}

// Client talks to the upstream search API. Every request carries the
// configured user id verbatim in the X-User-ID header; the client never
// validates or transforms that credential.
type Client struct {
	baseURL string
	userID  string
	http    *http.Client
	log     *zap.Logger
}

// New builds a client for the given base URL. A trailing slash on the
// base URL is tolerated.
func New(baseURL, userID string, log *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		userID:  userID,
		http:    &http.Client{},
		log:     log,
	}
}

// ListSessions fetches up to limit sessions for the configured user.
func (c *Client) ListSessions(ctx context.Context, limit int) ([]chat.Session, error) {
	var sessions []chat.Session
	// The upstream redirects /sessions to /sessions/; call the canonical
	// path directly.
	path := fmt.Sprintf("/sessions/?limit=%d", limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// SessionDetail fetches the full transcript for one session.
func (c *Client) SessionDetail(ctx context.Context, id int64) (SessionDetail, error) {
	var detail SessionDetail
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/sessions/%d", id), nil, &detail)
	return detail, err
}

// Send submits a compiled query and returns the assistant answer.
func (c *Client) Send(ctx context.Context, payload QueryPayload) (QueryResponse, error) {
	var resp QueryResponse
	err := c.do(ctx, http.MethodPost, "/chat/send", payload, &resp)
	return resp, err
}

// Faculties lists the faculty facet values.
func (c *Client) Faculties(ctx context.Context) ([]string, error) {
	var out []string
	err := c.do(ctx, http.MethodGet, "/master/faculties", nil, &out)
	return out, err
}

// Departments lists the department facet values.
func (c *Client) Departments(ctx context.Context) ([]string, error) {
	var out []string
	err := c.do(ctx, http.MethodGet, "/master/departments", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", c.userID)

	c.log.Debug("upstream request", zap.String("method", method), zap.String("path", path))

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s %s: %w", method, path, ErrTimeout)
		}
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "application/json") {
		return fmt.Errorf("%s %s: upstream returned %q instead of JSON (status %d)",
			method, path, contentType, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: resp.Status}
		var body struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Message != "" {
			apiErr.Message = body.Message
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
