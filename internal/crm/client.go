package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dealradar-io/dealradar/pkg/protocol"
)

const defaultListLimit = 500

// Client talks to the CRM records API. All reads of the full deal list
// go through the injected RecordCache; every write invalidates it
// before returning.
type Client struct {
	client  *http.Client
	baseURL string
	apiKey  string
	object  string
	cache   *RecordCache
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets a custom API base URL.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithObject sets the CRM object slug holding the deals.
func WithObject(slug string) Option {
	return func(c *Client) { c.object = slug }
}

// WithCache sets the record cache. Without one, reads always hit the API.
func WithCache(cache *RecordCache) Option {
	return func(c *Client) { c.cache = cache }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a CRM client.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: "https://api.attio.com",
		apiKey:  apiKey,
		object:  "deals",
		cache:   NewRecordCache(0),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListDeals returns every deal record, served from the cache while it
// is fresh.
func (c *Client) ListDeals(ctx context.Context) ([]protocol.Deal, error) {
	if deals, ok := c.cache.Get(); ok {
		c.logger.Debug("deal list served from cache", "count", len(deals))
		return deals, nil
	}

	body := map[string]any{"limit": defaultListLimit}
	var out struct {
		Data []wireRecord `json:"data"`
	}
	path := fmt.Sprintf("/v2/objects/%s/records/query", c.object)
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, fmt.Errorf("crm: list deals: %w", err)
	}

	deals := make([]protocol.Deal, 0, len(out.Data))
	for _, r := range out.Data {
		deals = append(deals, r.toDeal())
	}
	c.cache.Put(deals)
	c.logger.Debug("deal list fetched", "count", len(deals))
	return deals, nil
}

// GetDeal fetches a single record by id, bypassing the cache.
func (c *Client) GetDeal(ctx context.Context, id string) (*protocol.Deal, error) {
	var out struct {
		Data wireRecord `json:"data"`
	}
	path := fmt.Sprintf("/v2/objects/%s/records/%s", c.object, id)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("crm: get deal %s: %w", id, err)
	}
	d := out.Data.toDeal()
	return &d, nil
}

// updatableFields maps tool-facing field names onto CRM attributes.
var updatableFields = map[string]string{
	"probability": "probability",
	"value":       "value",
	"stage":       "stage",
	"close_date":  "close_date",
	"name":        "name",
	"owner":       "owner",
}

// UpdateDeal patches a single field on a record. The cache is
// invalidated before the call returns, so any later read sees the write.
func (c *Client) UpdateDeal(ctx context.Context, id, field string, value any) (*protocol.Deal, error) {
	attr, ok := updatableFields[field]
	if !ok {
		return nil, fmt.Errorf("crm: field %q is not updatable", field)
	}

	var attrValue any = value
	if attr == "stage" {
		attrValue = map[string]any{"status": value}
	}
	body := map[string]any{
		"data": map[string]any{
			"values": map[string]any{attr: attrValue},
		},
	}

	var out struct {
		Data wireRecord `json:"data"`
	}
	path := fmt.Sprintf("/v2/objects/%s/records/%s", c.object, id)
	err := c.do(ctx, http.MethodPatch, path, body, &out)
	c.cache.Invalidate()
	if err != nil {
		return nil, fmt.Errorf("crm: update deal %s: %w", id, err)
	}

	c.logger.Info("deal updated", "record", id, "field", field)
	d := out.Data.toDeal()
	return &d, nil
}

// AddNote appends a note to a record. Notes are append-only; calling
// this twice with the same content creates two notes.
func (c *Client) AddNote(ctx context.Context, recordID, title, content string) error {
	body := map[string]any{
		"data": map[string]any{
			"parent_object":    c.object,
			"parent_record_id": recordID,
			"title":            title,
			"format":           "plaintext",
			"content":          content,
		},
	}
	if err := c.do(ctx, http.MethodPost, "/v2/notes", body, nil); err != nil {
		return fmt.Errorf("crm: add note to %s: %w", recordID, err)
	}
	c.cache.Invalidate()
	c.logger.Info("note added", "record", recordID, "title", title)
	return nil
}

// InvalidateCache drops the cached deal list.
func (c *Client) InvalidateCache() {
	c.cache.Invalidate()
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("api error (status %d): %s", resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
