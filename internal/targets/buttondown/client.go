// Package buttondown publishes entries as newsletter drafts.
package buttondown

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
)

const (
	DefaultBaseURL = "https://api.buttondown.email"
	defaultTimeout = 30 * time.Second

	StatusDraft = "draft"
)

// APIError is a non-2xx response from the newsletter API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("buttondown: %d: %s", e.Status, e.Body)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Email is the subset of an email object monologue uses.
type Email struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Status  string `json:"status"`
}

// Client is a minimal REST client for the emails endpoint.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
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

// NewClient creates a client authenticated with an API key.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		http:    &http.Client{Timeout: defaultTimeout},
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Drafts lists every draft email, following pagination.
func (c *Client) Drafts(ctx context.Context) ([]Email, error) {
	var out []Email
	next := "/v1/emails?" + url.Values{"status": {StatusDraft}}.Encode()
	for next != "" {
		var page struct {
			Results []Email `json:"results"`
			Next    string  `json:"next"`
		}
		if err := c.do(ctx, http.MethodGet, next, nil, &page); err != nil {
			return nil, fmt.Errorf("buttondown: list drafts: %w", err)
		}
		for _, e := range page.Results {
			if e.Status == StatusDraft {
				out = append(out, e)
			}
		}
		next = ""
		if page.Next != "" {
			u, err := url.Parse(page.Next)
			if err != nil {
				return nil, fmt.Errorf("buttondown: next page: %w", err)
			}
			next = u.RequestURI()
		}
	}
	return out, nil
}

// CreateDraft creates a new draft email.
func (c *Client) CreateDraft(ctx context.Context, subject, body string) (Email, error) {
	var e Email
	req := Email{Subject: subject, Body: body, Status: StatusDraft}
	if err := c.do(ctx, http.MethodPost, "/v1/emails", req, &e); err != nil {
		return Email{}, fmt.Errorf("buttondown: create draft: %w", err)
	}
	return e, nil
}

// UpdateDraft replaces the subject and body of an existing draft.
func (c *Client) UpdateDraft(ctx context.Context, id, subject, body string) (Email, error) {
	var e Email
	req := Email{Subject: subject, Body: body, Status: StatusDraft}
	if err := c.do(ctx, http.MethodPatch, "/v1/emails/"+url.PathEscape(id), req, &e); err != nil {
		return Email{}, fmt.Errorf("buttondown: update draft: %w", err)
	}
	return e, nil
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
	req.Header.Set("Authorization", "Token "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
