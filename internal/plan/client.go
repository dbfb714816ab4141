// Package plan talks to the production calendar, a document database
// whose pages are keyed back to CRM records through a foreign-key
// property.
package plan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dealradar-io/dealradar/pkg/protocol"
)

const apiVersion = "2022-06-28"

// Client is the document store API client.
type Client struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	databaseID string
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets a custom API base URL.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a document store client bound to one database.
func New(apiKey, databaseID string, opts ...Option) *Client {
	c := &Client{
		client:     &http.Client{Timeout: 30 * time.Second},
		baseURL:    "https://api.notion.com",
		apiKey:     apiKey,
		databaseID: databaseID,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListAll returns every page in the database, following pagination
// until the store reports no more results.
func (c *Client) ListAll(ctx context.Context) ([]protocol.PlanPage, error) {
	var pages []protocol.PlanPage
	cursor := ""
	for {
		body := map[string]any{"page_size": 100}
		if cursor != "" {
			body["start_cursor"] = cursor
		}
		var out queryResponse
		path := fmt.Sprintf("/v1/databases/%s/query", c.databaseID)
		if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
			return nil, fmt.Errorf("plan: list pages: %w", err)
		}
		for _, p := range out.Results {
			pages = append(pages, p.toPage())
		}
		if !out.HasMore || out.NextCursor == "" {
			break
		}
		cursor = out.NextCursor
	}
	return pages, nil
}

// FindByRecordID returns the page whose foreign key matches the CRM
// record, or nil when none exists.
func (c *Client) FindByRecordID(ctx context.Context, recordID string) (*protocol.PlanPage, error) {
	body := map[string]any{
		"filter": map[string]any{
			"property":  "CRM ID",
			"rich_text": map[string]any{"equals": recordID},
		},
		"page_size": 1,
	}
	var out queryResponse
	path := fmt.Sprintf("/v1/databases/%s/query", c.databaseID)
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, fmt.Errorf("plan: find page for %s: %w", recordID, err)
	}
	if len(out.Results) == 0 {
		return nil, nil
	}
	p := out.Results[0].toPage()
	return &p, nil
}

// CreatePage adds a page for a deal.
func (c *Client) CreatePage(ctx context.Context, page protocol.PlanPage) (*protocol.PlanPage, error) {
	body := map[string]any{
		"parent":     map[string]any{"database_id": c.databaseID},
		"properties": buildProperties(page),
	}
	var out wirePage
	if err := c.do(ctx, http.MethodPost, "/v1/pages", body, &out); err != nil {
		return nil, fmt.Errorf("plan: create page %q: %w", page.Title, err)
	}
	created := out.toPage()
	c.logger.Info("plan page created", "page", created.ID, "title", page.Title)
	return &created, nil
}

// UpdatePage patches an existing page's properties.
func (c *Client) UpdatePage(ctx context.Context, pageID string, page protocol.PlanPage) error {
	body := map[string]any{"properties": buildProperties(page)}
	if err := c.do(ctx, http.MethodPatch, "/v1/pages/"+pageID, body, nil); err != nil {
		return fmt.Errorf("plan: update page %s: %w", pageID, err)
	}
	c.logger.Info("plan page updated", "page", pageID)
	return nil
}

// UpsertResult reports which path an upsert took.
type UpsertResult struct {
	Page    protocol.PlanPage
	Created bool
}

// UpsertDeal writes a deal into the calendar: if a page already carries
// the deal's record id it is patched, otherwise a new page is created.
// One CRM record maps to at most one page.
func (c *Client) UpsertDeal(ctx context.Context, deal protocol.Deal) (*UpsertResult, error) {
	page := pageForDeal(deal)

	existing, err := c.FindByRecordID(ctx, deal.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := c.UpdatePage(ctx, existing.ID, page); err != nil {
			return nil, err
		}
		page.ID = existing.ID
		return &UpsertResult{Page: page, Created: false}, nil
	}

	created, err := c.CreatePage(ctx, page)
	if err != nil {
		return nil, err
	}
	return &UpsertResult{Page: *created, Created: true}, nil
}

// MarkHandedOff flags a deal's page as in progress after the handoff
// brief is posted. Missing pages are not an error.
func (c *Client) MarkHandedOff(ctx context.Context, recordID string) error {
	existing, err := c.FindByRecordID(ctx, recordID)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	existing.Status = protocol.PageStatusInProgress
	return c.UpdatePage(ctx, existing.ID, *existing)
}

// pageForDeal derives the calendar page contents from a deal. Lost
// deals go on hold; everything else starts as planned.
func pageForDeal(deal protocol.Deal) protocol.PlanPage {
	page := protocol.PlanPage{
		Title:   deal.Name,
		DealID:  deal.ID,
		Status:  protocol.PageStatusPlanned,
		DueDate: deal.CloseDate,
	}
	if strings.HasPrefix(deal.Stage, "Lost") {
		page.Status = protocol.PageStatusHold
	}
	return page
}

// --- wire format ---

type queryResponse struct {
	Results    []wirePage `json:"results"`
	HasMore    bool       `json:"has_more"`
	NextCursor string     `json:"next_cursor"`
}

type wirePage struct {
	ID         string                  `json:"id"`
	Properties map[string]wireProperty `json:"properties"`
}

type wireProperty struct {
	Title    []wireText `json:"title"`
	RichText []wireText `json:"rich_text"`
	Select   *struct {
		Name string `json:"name"`
	} `json:"select"`
	Date *struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"date"`
}

type wireText struct {
	PlainText string `json:"plain_text"`
	Text      *struct {
		Content string `json:"content"`
	} `json:"text"`
}

func textOf(parts []wireText) string {
	var b strings.Builder
	for _, p := range parts {
		if p.PlainText != "" {
			b.WriteString(p.PlainText)
		} else if p.Text != nil {
			b.WriteString(p.Text.Content)
		}
	}
	return b.String()
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func (p *wirePage) toPage() protocol.PlanPage {
	page := protocol.PlanPage{ID: p.ID}
	if prop, ok := p.Properties["Name"]; ok {
		page.Title = textOf(prop.Title)
	}
	if prop, ok := p.Properties["CRM ID"]; ok {
		page.DealID = textOf(prop.RichText)
	}
	if prop, ok := p.Properties["Status"]; ok && prop.Select != nil {
		page.Status = prop.Select.Name
	}
	if prop, ok := p.Properties["Dates"]; ok && prop.Date != nil {
		page.StartDate = parseDate(prop.Date.Start)
		page.DueDate = parseDate(prop.Date.End)
		if page.DueDate == nil {
			page.DueDate = page.StartDate
			page.StartDate = nil
		}
	}
	if prop, ok := p.Properties["Notes"]; ok {
		page.Notes = textOf(prop.RichText)
	}
	return page
}

func richText(s string) []map[string]any {
	return []map[string]any{{"text": map[string]any{"content": s}}}
}

// buildProperties renders a page into the database's property schema.
func buildProperties(page protocol.PlanPage) map[string]any {
	props := map[string]any{
		"Name":   map[string]any{"title": richText(page.Title)},
		"CRM ID": map[string]any{"rich_text": richText(page.DealID)},
	}
	if page.Status != "" {
		props["Status"] = map[string]any{"select": map[string]any{"name": page.Status}}
	}
	if page.DueDate != nil {
		date := map[string]any{"start": page.DueDate.Format("2006-01-02")}
		if page.StartDate != nil {
			date["start"] = page.StartDate.Format("2006-01-02")
			date["end"] = page.DueDate.Format("2006-01-02")
		}
		props["Dates"] = map[string]any{"date": date}
	}
	if page.Notes != "" {
		props["Notes"] = map[string]any{"rich_text": richText(page.Notes)}
	}
	return props
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
	req.Header.Set("Notion-Version", apiVersion)
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
