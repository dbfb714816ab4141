package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/dealradar-io/dealradar/internal/crm"
	"github.com/dealradar-io/dealradar/internal/plan"
	"github.com/dealradar-io/dealradar/pkg/protocol"
)

const defaultProductionCap = 15

type planSummary struct {
	PageID  string `json:"page_id"`
	Title   string `json:"title"`
	DealID  string `json:"deal_id,omitempty"`
	Status  string `json:"status"`
	Start   string `json:"start,omitempty"`
	Due     string `json:"due,omitempty"`
}

func summarizePage(p protocol.PlanPage) planSummary {
	s := planSummary{
		PageID: p.ID,
		Title:  p.Title,
		DealID: p.DealID,
		Status: p.Status,
	}
	if p.StartDate != nil {
		s.Start = p.StartDate.Format("2006-01-02")
	}
	if p.DueDate != nil {
		s.Due = p.DueDate.Format("2006-01-02")
	}
	return s
}

// --- SearchProductionCalendar ---

// SearchProductionCalendarTool filters the production calendar pages.
// MaxResults caps the output; zero means the default cap.
type SearchProductionCalendarTool struct {
	Plan       *plan.Client
	MaxResults int
}

func (t *SearchProductionCalendarTool) Name() string { return "search_production_calendar" }
func (t *SearchProductionCalendarTool) Description() string {
	return "Search the production calendar for planned delivery pages by title or status"
}
func (t *SearchProductionCalendarTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query":  map[string]any{"type": "string", "description": "Substring match on the page title"},
			"status": map[string]any{"type": "string", "description": "Exact status (Planned, In Progress, Delivered, On Hold)"},
		},
	}
}

func (t *SearchProductionCalendarTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	pages, err := t.Plan.ListAll(ctx)
	if err != nil {
		return "", fmt.Errorf("search_production_calendar: %w", err)
	}
	limit := t.MaxResults
	if limit <= 0 {
		limit = defaultProductionCap
	}
	query := strings.ToLower(getString(params, "query"))
	status := getString(params, "status")

	out := make([]planSummary, 0, limit)
	for _, p := range pages {
		if query != "" && !strings.Contains(strings.ToLower(p.Title), query) {
			continue
		}
		if status != "" && !strings.EqualFold(p.Status, status) {
			continue
		}
		out = append(out, summarizePage(p))
		if len(out) >= limit {
			break
		}
	}
	return marshalJSON(map[string]any{"count": len(out), "pages": out})
}

// --- WriteProductionPlan ---

// WriteProductionPlanTool projects a CRM deal onto the production
// calendar. A page already carrying the deal's record id is patched in
// place, otherwise a new page is created; the result says which.
type WriteProductionPlanTool struct {
	CRM  *crm.Client
	Plan *plan.Client
}

func (t *WriteProductionPlanTool) Name() string { return "write_production_plan" }
func (t *WriteProductionPlanTool) Description() string {
	return "Create or update the production calendar page for a CRM deal"
}
func (t *WriteProductionPlanTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"record_id": map[string]any{"type": "string", "description": "CRM record id of the deal to plan"},
		},
		"required": []string{"record_id"},
	}
}

func (t *WriteProductionPlanTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	recordID := getString(params, "record_id")
	if recordID == "" {
		return "", fmt.Errorf("write_production_plan: record_id is required")
	}
	deal, err := t.CRM.GetDeal(ctx, recordID)
	if err != nil {
		return "", fmt.Errorf("write_production_plan: %w", err)
	}
	res, err := t.Plan.UpsertDeal(ctx, *deal)
	if err != nil {
		return "", fmt.Errorf("write_production_plan: %w", err)
	}
	action := "updated"
	if res.Created {
		action = "created"
	}
	return marshalJSON(map[string]any{"result": action, "page": summarizePage(res.Page)})
}
