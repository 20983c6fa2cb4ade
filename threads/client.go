// Package threads talks to the ticketing backend that carries all
// creditor correspondence. A parent ticket per client batch holds one
// sub-ticket per creditor; inbound mails surface as ticket events.
package threads

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

	"github.com/justLukaBB/glaeubiger-sync/outreach"
)

// Client implements outreach.ThreadStore over the REST API.
type Client struct {
	BaseURL  string
	APIToken string
	HTTP     *http.Client
}

func New(baseURL, apiToken string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		APIToken: apiToken,
		HTTP:     &http.Client{Timeout: timeout},
	}
}

type threadResponse struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

type eventsResponse struct {
	Messages []struct {
		ID          string    `json:"id"`
		Body        string    `json:"body"`
		CreatedAt   time.Time `json:"created_at"`
		Direction   string    `json:"direction"`
		FromAddress string    `json:"from_address"`
	} `json:"messages"`
	Error string `json:"error,omitempty"`
}

func (c *Client) CreateParentThread(ctx context.Context, subject, participant string) (string, error) {
	var out threadResponse
	err := c.call(ctx, http.MethodPost, "/api/v1/threads", map[string]any{
		"subject":     subject,
		"participant": participant,
	}, &out)
	if err != nil {
		return "", fmt.Errorf("creating parent thread: %w", err)
	}
	return out.ID, nil
}

func (c *Client) CreateSubThread(ctx context.Context, parentThreadID, recipient, subject, body string) (string, error) {
	var out threadResponse
	path := fmt.Sprintf("/api/v1/threads/%s/subthreads", url.PathEscape(parentThreadID))
	err := c.call(ctx, http.MethodPost, path, map[string]any{
		"recipient": recipient,
		"subject":   subject,
		"body":      body,
	}, &out)
	if err != nil {
		return "", fmt.Errorf("creating sub-thread under %s: %w", parentThreadID, err)
	}
	return out.ID, nil
}

func (c *Client) PostMessage(ctx context.Context, subThreadID, body string) error {
	path := fmt.Sprintf("/api/v1/subthreads/%s/messages", url.PathEscape(subThreadID))
	if err := c.call(ctx, http.MethodPost, path, map[string]any{"body": body}, nil); err != nil {
		return fmt.Errorf("posting to sub-thread %s: %w", subThreadID, err)
	}
	return nil
}

func (c *Client) FetchEvents(ctx context.Context, parentThreadID, subThreadID string, since time.Time) ([]outreach.Message, error) {
	path := fmt.Sprintf("/api/v1/threads/%s/subthreads/%s/events?since=%s",
		url.PathEscape(parentThreadID), url.PathEscape(subThreadID),
		url.QueryEscape(since.UTC().Format(time.RFC3339)))
	var out eventsResponse
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("fetching events for sub-thread %s: %w", subThreadID, err)
	}
	msgs := make([]outreach.Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, outreach.Message{
			ID:          m.ID,
			Body:        m.Body,
			CreatedAt:   m.CreatedAt,
			Direction:   outreach.Direction(m.Direction),
			FromAddress: m.FromAddress,
		})
	}
	return msgs, nil
}

func (c *Client) PostInternalNote(ctx context.Context, parentThreadID, body string, tags []string) error {
	path := fmt.Sprintf("/api/v1/threads/%s/notes", url.PathEscape(parentThreadID))
	payload := map[string]any{"body": body}
	if len(tags) > 0 {
		payload["tags"] = tags
	}
	if err := c.call(ctx, http.MethodPost, path, payload, nil); err != nil {
		return fmt.Errorf("posting internal note to %s: %w", parentThreadID, err)
	}
	return nil
}

func (c *Client) call(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIToken)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("threads api http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding threads api response: %w", err)
	}
	return nil
}
