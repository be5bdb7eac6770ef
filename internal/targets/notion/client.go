// Package notion publishes entries as pages under a parent page of the Notion
// content service.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/monologue/internal/links"
)

const (
	DefaultBaseURL = "https://api.notion.com"
	apiVersion     = "2022-06-28"
	defaultTimeout = 30 * time.Second
)

// APIError is a non-2xx response from the Notion API.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notion: %d %s: %s", e.Status, e.Code, e.Message)
}

// IsNotFound reports whether err means the page or block no longer exists.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusNotFound || apiErr.Code == "object_not_found"
}

// Page is the subset of a Notion page object monologue uses.
type Page struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Client is a minimal Notion REST client.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at a different API host.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// NewClient creates a client authenticated with an integration token.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		http:    &http.Client{Timeout: defaultTimeout},
		baseURL: DefaultBaseURL,
		token:   token,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type titleProperty struct {
	Title []RichText `json:"title"`
}

func titleProps(title string) map[string]titleProperty {
	return map[string]titleProperty{"title": {Title: plainText(title)}}
}

// CreatePage creates a child page of parentID with the given initial children.
func (c *Client) CreatePage(ctx context.Context, parentID, title string, children []Block) (Page, error) {
	body := map[string]any{
		"parent":     map[string]string{"page_id": parentID},
		"properties": titleProps(title),
		"children":   nonNil(children),
	}
	var page Page
	if err := c.do(ctx, http.MethodPost, "/v1/pages", body, &page); err != nil {
		return Page{}, fmt.Errorf("notion: create page: %w", err)
	}
	return page, nil
}

// UpdateTitle renames a page.
func (c *Client) UpdateTitle(ctx context.Context, pageID, title string) (Page, error) {
	body := map[string]any{"properties": titleProps(title)}
	var page Page
	if err := c.do(ctx, http.MethodPatch, "/v1/pages/"+pageID, body, &page); err != nil {
		return Page{}, fmt.Errorf("notion: update page: %w", err)
	}
	return page, nil
}

// ChildIDs returns the ids of every direct child block, following pagination.
func (c *Client) ChildIDs(ctx context.Context, blockID string) ([]string, error) {
	var (
		ids    []string
		cursor string
	)
	for {
		q := url.Values{"page_size": {"100"}}
		if cursor != "" {
			q.Set("start_cursor", cursor)
		}
		var resp struct {
			Results []struct {
				ID string `json:"id"`
			} `json:"results"`
			HasMore    bool   `json:"has_more"`
			NextCursor string `json:"next_cursor"`
		}
		if err := c.do(ctx, http.MethodGet, "/v1/blocks/"+blockID+"/children?"+q.Encode(), nil, &resp); err != nil {
			return nil, fmt.Errorf("notion: list children: %w", err)
		}
		for _, r := range resp.Results {
			ids = append(ids, r.ID)
		}
		if !resp.HasMore || resp.NextCursor == "" {
			return ids, nil
		}
		cursor = resp.NextCursor
	}
}

// DeleteBlock archives a block.
func (c *Client) DeleteBlock(ctx context.Context, blockID string) error {
	if err := c.do(ctx, http.MethodDelete, "/v1/blocks/"+blockID, nil, nil); err != nil {
		return fmt.Errorf("notion: delete block: %w", err)
	}
	return nil
}

// AppendChildren appends blocks to a page in batches the API accepts.
func (c *Client) AppendChildren(ctx context.Context, blockID string, children []Block) error {
	for _, batch := range Batches(children) {
		body := map[string]any{"children": batch}
		if err := c.do(ctx, http.MethodPatch, "/v1/blocks/"+blockID+"/children", body, nil); err != nil {
			return fmt.Errorf("notion: append children: %w", err)
		}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		apiErr.Status = resp.StatusCode
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// PageIDFromURL extracts the page UUID from a page URL or bare id.
func PageIDFromURL(raw string) (uuid.UUID, error) {
	hex, ok := links.PageID(raw)
	if !ok {
		return uuid.Nil, fmt.Errorf("notion: no page id in %q", raw)
	}
	id, err := uuid.Parse(hex)
	if err != nil {
		return uuid.Nil, fmt.Errorf("notion: page id %q: %w", hex, err)
	}
	return id, nil
}

func nonNil(blocks []Block) []Block {
	if blocks == nil {
		return []Block{}
	}
	return blocks
}
