package formlinesdk

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
)

// Client is a minimal Formline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Template represents the API template model (partial).
type Template struct {
	ID      string `json:"id"`
	Version string `json:"version"`
	Name    string `json:"name"`
	Status  string `json:"status"`
}

// Inspection represents one filling of a template.
type Inspection struct {
	ID              string            `json:"id"`
	TemplateID      string            `json:"template_id"`
	TemplateVersion string            `json:"template_version"`
	Sequence        *string           `json:"sequence,omitempty"`
	Status          string            `json:"status"`
	Section         int               `json:"section"`
	Answers         map[string]any    `json:"answers"`
	Errors          map[string]string `json:"errors,omitempty"`
	Score           *float64          `json:"score,omitempty"`
	MaxScore        *float64          `json:"max_score,omitempty"`
	Percentage      *float64          `json:"percentage,omitempty"`
	Passed          *bool             `json:"passed,omitempty"`
	AuthorID        string            `json:"author_id"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedInspections wraps list responses with cursors.
type PaginatedInspections struct {
	Items      []Inspection `json:"items"`
	NextCursor string       `json:"next_cursor"`
}

// PaginatedEvents wraps event listings with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// ImportTemplate stores a template document as a new version.
func (c *Client) ImportTemplate(ctx context.Context, schema any) (Template, error) {
	var resp Template
	err := c.do(ctx, http.MethodPost, "v0/templates", map[string]any{"schema": schema}, &resp)
	return resp, err
}

// ListTemplates returns the latest version of every template.
func (c *Client) ListTemplates(ctx context.Context) ([]Template, error) {
	var resp []Template
	err := c.do(ctx, http.MethodGet, "v0/templates", nil, &resp)
	return resp, err
}

// StartInspection opens a draft (or resumes the caller's open one).
func (c *Client) StartInspection(ctx context.Context, templateID string) (Inspection, error) {
	var resp Inspection
	err := c.do(ctx, http.MethodPost, "v0/inspections", map[string]any{"template_id": templateID}, &resp)
	return resp, err
}

// AnswerItem records one answer on a draft.
func (c *Client) AnswerItem(ctx context.Context, inspectionID, itemID string, value any) (Inspection, error) {
	body := map[string]any{
		"item_id": itemID,
		"value":   value,
	}
	var resp Inspection
	endpoint := fmt.Sprintf("v0/inspections/%s/answers", url.PathEscape(inspectionID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// NextSection validates the current section and advances when clean.
func (c *Client) NextSection(ctx context.Context, inspectionID string) (Inspection, error) {
	var resp Inspection
	endpoint := fmt.Sprintf("v0/inspections/%s/next", url.PathEscape(inspectionID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// PreviousSection moves back one section.
func (c *Client) PreviousSection(ctx context.Context, inspectionID string) (Inspection, error) {
	var resp Inspection
	endpoint := fmt.Sprintf("v0/inspections/%s/previous", url.PathEscape(inspectionID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Submit finalizes a draft. A 422 means validation rejected it; the
// APIError body carries the failing section and per-item messages.
func (c *Client) Submit(ctx context.Context, inspectionID string) (Inspection, error) {
	var resp Inspection
	endpoint := fmt.Sprintf("v0/inspections/%s/submit", url.PathEscape(inspectionID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// GetInspection fetches an inspection by id.
func (c *Client) GetInspection(ctx context.Context, id string) (Inspection, error) {
	var resp Inspection
	endpoint := fmt.Sprintf("v0/inspections/%s", url.PathEscape(id))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ListInspections returns a page of inspections.
func (c *Client) ListInspections(ctx context.Context, templateID, status string, limit int, cursor string) (PaginatedInspections, error) {
	q := url.Values{}
	if templateID != "" {
		q.Set("template_id", templateID)
	}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "v0/inspections"
	if encoded := q.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	var resp PaginatedInspections
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
