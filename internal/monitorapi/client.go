package monitorapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github-monitor/internal/activity"
	"github-monitor/internal/alerts"
)

// Client is a minimal REST client for the GitHub-monitor collaborator
// backend. It consumes the historical-query endpoints; it never writes
// anything except the resolve-alert mutation.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient constructs a collaborator client.
func NewClient(baseURL, token string) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("monitorapi: empty base url")
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// page is the collaborator's page wrapper; content carries the records.
type page[T any] struct {
	Content []T `json:"content"`
}

// ListEvents lists activity records between start and end, newest pages
// first, up to size records.
func (c *Client) ListEvents(ctx context.Context, start, end time.Time, size int) ([]activity.Record, error) {
	if c == nil {
		return nil, errors.New("monitorapi: nil client")
	}
	query := url.Values{}
	if !start.IsZero() {
		query.Set("start", start.UTC().Format(time.RFC3339))
	}
	if !end.IsZero() {
		query.Set("end", end.UTC().Format(time.RFC3339))
	}
	if size > 0 {
		query.Set("size", strconv.Itoa(size))
	}
	var resp page[activity.Record]
	if err := c.doJSON(ctx, http.MethodGet, "/events?"+query.Encode(), &resp); err != nil {
		return nil, err
	}
	return resp.Content, nil
}

// ListAlerts lists up to size alerts.
func (c *Client) ListAlerts(ctx context.Context, size int) ([]alerts.Alert, error) {
	if c == nil {
		return nil, errors.New("monitorapi: nil client")
	}
	path := "/alerts"
	if size > 0 {
		path += "?size=" + strconv.Itoa(size)
	}
	var resp page[alerts.Alert]
	if err := c.doJSON(ctx, http.MethodGet, path, &resp); err != nil {
		return nil, err
	}
	return resp.Content, nil
}

// ResolveAlert marks an alert resolved. The collaborator answers with an
// empty body or the updated record; either is accepted.
func (c *Client) ResolveAlert(ctx context.Context, id string) error {
	if c == nil {
		return errors.New("monitorapi: nil client")
	}
	if id == "" {
		return errors.New("monitorapi: empty alert id")
	}
	return c.doJSON(ctx, http.MethodPost, "/alerts/"+url.PathEscape(id)+"/resolve", nil)
}

// StreamURL builds the push-channel subscription URL for a token.
func (c *Client) StreamURL(token string) string {
	return c.baseURL + "/events/stream?token=" + url.QueryEscape(token)
}

// ErrNotFound marks 404 answers from the collaborator.
var ErrNotFound = errors.New("monitorapi: not found")

func (c *Client) doJSON(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("monitorapi: http %d", resp.StatusCode)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
