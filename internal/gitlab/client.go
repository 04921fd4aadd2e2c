// Package gitlab is a minimal client for the slice of the GitLab REST API
// the sync pipeline needs: project validation, issue listing, notes, and
// state transitions.
package gitlab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/scrumpilot-io/scrumpilot/pkg/protocol"
)

// Config identifies one tracker project.
type Config struct {
	BaseURL   string // e.g. https://gitlab.com; defaults when empty
	Token     string // personal access token with api scope
	ProjectID string
}

// Identity returns a stable key for this tracker configuration, used to key
// the status cache.
func (c Config) Identity() string {
	return normalizeBaseURL(c.BaseURL) + "#" + c.ProjectID
}

// Client calls the tracker REST API.
type Client struct {
	client  *http.Client
	baseURL string
	cfg     Config
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// NewClient creates a tracker client.
func NewClient(cfg Config, opts ...Option) *Client {
	c := &Client{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: normalizeBaseURL(cfg.BaseURL),
		cfg:     cfg,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether the client has enough context to call the
// tracker. An unconfigured client must never be asked to sync.
func (c *Client) Configured() bool {
	return c.cfg.Token != "" && c.cfg.ProjectID != ""
}

// Identity returns the cache key for this client's configuration.
func (c *Client) Identity() string { return c.cfg.Identity() }

// Project describes the tracker project, as returned by validation.
type Project struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Path string `json:"path_with_namespace"`
}

// Issue is a tracker issue in list responses.
type Issue struct {
	IID    int      `json:"iid"`
	Title  string   `json:"title"`
	State  string   `json:"state"`
	Labels []string `json:"labels"`
	WebURL string   `json:"web_url"`
}

// Note is a created issue comment.
type Note struct {
	ID   int    `json:"id"`
	Body string `json:"body"`
}

// ValidateProject checks credentials and project reachability.
func (c *Client) ValidateProject(ctx context.Context) (*Project, error) {
	var project Project
	path := fmt.Sprintf("/api/v4/projects/%s", url.PathEscape(c.cfg.ProjectID))
	if err := c.do(ctx, http.MethodGet, path, nil, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// ListIssues fetches project issues filtered by state
// ("opened", "closed", or "all").
func (c *Client) ListIssues(ctx context.Context, state string) ([]Issue, error) {
	if state == "" {
		state = "opened"
	}
	var issues []Issue
	path := fmt.Sprintf("/api/v4/projects/%s/issues?state=%s&per_page=50",
		url.PathEscape(c.cfg.ProjectID), url.QueryEscape(state))
	if err := c.do(ctx, http.MethodGet, path, nil, &issues); err != nil {
		return nil, err
	}
	return issues, nil
}

// FetchStatuses probes the tracker and returns its status vocabulary.
// GitLab's issue model is binary, so the descriptor set is fixed; the probe
// exists to surface auth and reachability failures to the caller.
func (c *Client) FetchStatuses(ctx context.Context) ([]protocol.StatusDescriptor, error) {
	path := fmt.Sprintf("/api/v4/projects/%s/issues?state=all&per_page=1", url.PathEscape(c.cfg.ProjectID))
	if err := c.do(ctx, http.MethodGet, path, nil, nil); err != nil {
		return nil, err
	}
	return DefaultStatuses(), nil
}

// DefaultStatuses is the hardcoded two-entry status set for a binary
// open/closed tracker. Never empty: downstream components treat an absent
// mapping as fatal.
func DefaultStatuses() []protocol.StatusDescriptor {
	return []protocol.StatusDescriptor{
		{ID: "opened", Name: "In Progress", NativeState: "opened", Color: "blue"},
		{ID: "closed", Name: "Done", NativeState: "closed", Color: "green"},
	}
}

// CreateIssueNote posts a comment on an issue. issueIID is the bare issue
// number, without the display marker.
func (c *Client) CreateIssueNote(ctx context.Context, issueIID, body string) (*Note, error) {
	var note Note
	path := fmt.Sprintf("/api/v4/projects/%s/issues/%s/notes",
		url.PathEscape(c.cfg.ProjectID), url.PathEscape(issueIID))
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"body": body}, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

// UpdateIssueState applies a state transition (and any labels that ride
// along with it) to an issue. Re-applying an already-applied transition is a
// no-op on the tracker side.
func (c *Client) UpdateIssueState(ctx context.Context, issueIID string, transition protocol.StateTransition) error {
	payload := map[string]string{"state_event": transition.Event}
	if len(transition.AddLabels) > 0 {
		payload["add_labels"] = strings.Join(transition.AddLabels, ",")
	}
	path := fmt.Sprintf("/api/v4/projects/%s/issues/%s",
		url.PathEscape(c.cfg.ProjectID), url.PathEscape(issueIID))
	return c.do(ctx, http.MethodPut, path, payload, nil)
}

// do performs one API call. A non-2xx response becomes an *APIError; out may
// be nil when the response body is not needed.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("gitlab: marshal request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("gitlab: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("gitlab: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("gitlab: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 500)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("gitlab: unmarshal response: %w", err)
		}
	}
	return nil
}

// setAuth picks the auth header by token shape: GitLab personal access
// tokens go in PRIVATE-TOKEN, everything else as a Bearer token.
func (c *Client) setAuth(req *http.Request) {
	if strings.HasPrefix(c.cfg.Token, "glpat-") {
		req.Header.Set("PRIVATE-TOKEN", c.cfg.Token)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
}

// normalizeBaseURL trims whitespace and trailing slashes and keeps only
// scheme and host, so pasted project URLs still work.
func normalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "https://gitlab.com"
	}
	raw = strings.TrimRight(raw, "/")
	parts := strings.Split(raw, "/")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return strings.Join(parts, "/")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
