package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/dealradar-io/dealradar/internal/crm"
	"github.com/dealradar-io/dealradar/pkg/protocol"
)

const (
	defaultSearchCap   = 20
	defaultMonthsAhead = 3
	defaultMinCapacity = 60.0
)

// dealSummary is the shape deals take in tool output. Pointers stay
// pointers so a missing probability reads as null while a real zero
// reads as 0.
type dealSummary struct {
	RecordID    string   `json:"record_id"`
	Name        string   `json:"name"`
	Stage       string   `json:"stage,omitempty"`
	Probability *float64 `json:"probability"`
	Value       *float64 `json:"value"`
	CloseDate   string   `json:"close_date,omitempty"`
	Owner       string   `json:"owner,omitempty"`
}

func summarizeDeal(d protocol.Deal) dealSummary {
	s := dealSummary{
		RecordID:    d.ID,
		Name:        d.Name,
		Stage:       d.Stage,
		Probability: d.Probability,
		Value:       d.Value,
		Owner:       d.Owner,
	}
	if d.CloseDate != nil {
		s.CloseDate = d.CloseDate.Format("2006-01-02")
	}
	return s
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(b), nil
}

// --- SearchDeals ---

// SearchDealsTool filters the CRM deal list. MaxResults caps the
// output; zero means the default cap.
type SearchDealsTool struct {
	CRM        *crm.Client
	MaxResults int
}

func (t *SearchDealsTool) Name() string { return "search_deals" }
func (t *SearchDealsTool) Description() string {
	return "Search CRM deals by name, stage, probability range, or closing month"
}
func (t *SearchDealsTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":            map[string]any{"type": "string", "description": "Substring match on the deal name"},
			"stage":           map[string]any{"type": "string", "description": "Exact stage name"},
			"min_probability": map[string]any{"type": "number", "description": "Minimum close probability (0-100)"},
			"max_probability": map[string]any{"type": "number", "description": "Maximum close probability (0-100)"},
			"close_month":     map[string]any{"type": "integer", "description": "Closing month (1-12)"},
			"close_year":      map[string]any{"type": "integer", "description": "Closing year"},
			"include_closed":  map[string]any{"type": "boolean", "description": "Include won and lost deals"},
		},
	}
}

func (t *SearchDealsTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	limit := t.MaxResults
	if limit <= 0 {
		limit = defaultSearchCap
	}
	f := crm.SearchFilter{
		Name:          getString(params, "name"),
		Stage:         getString(params, "stage"),
		IncludeClosed: getBool(params, "include_closed"),
		Limit:         limit,
	}
	if v, ok := getFloat(params, "min_probability"); ok {
		f.MinProbability = &v
	}
	if v, ok := getFloat(params, "max_probability"); ok {
		f.MaxProbability = &v
	}
	if m := getIntOr(params, "close_month", 0); m >= 1 && m <= 12 {
		f.CloseMonth = time.Month(m)
	}
	f.CloseYear = getIntOr(params, "close_year", 0)

	deals, err := t.CRM.SearchDeals(ctx, f)
	if err != nil {
		return "", fmt.Errorf("search_deals: %w", err)
	}
	out := make([]dealSummary, 0, len(deals))
	for _, d := range deals {
		out = append(out, summarizeDeal(d))
	}
	return marshalJSON(map[string]any{"count": len(out), "deals": out})
}

// --- UpdateDealField ---

// UpdateDealFieldTool patches a single field on a CRM deal.
type UpdateDealFieldTool struct {
	CRM *crm.Client
}

func (t *UpdateDealFieldTool) Name() string { return "update_deal_field" }
func (t *UpdateDealFieldTool) Description() string {
	return "Update one field on a CRM deal (probability, value, stage, close_date, name, owner)"
}
func (t *UpdateDealFieldTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"record_id": map[string]any{"type": "string", "description": "CRM record id of the deal"},
			"field":     map[string]any{"type": "string", "description": "Field to update"},
			"value":     map[string]any{"description": "New value for the field"},
		},
		"required": []string{"record_id", "field", "value"},
	}
}

func (t *UpdateDealFieldTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	recordID := getString(params, "record_id")
	field := getString(params, "field")
	if recordID == "" || field == "" {
		return "", fmt.Errorf("update_deal_field: record_id and field are required")
	}
	value, ok := params["value"]
	if !ok {
		return "", fmt.Errorf("update_deal_field: value is required")
	}
	deal, err := t.CRM.UpdateDeal(ctx, recordID, field, value)
	if err != nil {
		return "", fmt.Errorf("update_deal_field: %w", err)
	}
	return marshalJSON(map[string]any{"updated": true, "deal": summarizeDeal(*deal)})
}

// --- AddDealNote ---

type AddDealNoteTool struct {
	CRM *crm.Client
}

func (t *AddDealNoteTool) Name() string { return "add_deal_note" }
func (t *AddDealNoteTool) Description() string {
	return "Append a note to a CRM deal record"
}
func (t *AddDealNoteTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"record_id": map[string]any{"type": "string", "description": "CRM record id of the deal"},
			"title":     map[string]any{"type": "string", "description": "Note title"},
			"content":   map[string]any{"type": "string", "description": "Note body"},
		},
		"required": []string{"record_id", "title", "content"},
	}
}

func (t *AddDealNoteTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	recordID := getString(params, "record_id")
	if recordID == "" {
		return "", fmt.Errorf("add_deal_note: record_id is required")
	}
	title := getStringOr(params, "title", "Note")
	if err := t.CRM.AddNote(ctx, recordID, title, getString(params, "content")); err != nil {
		return "", fmt.Errorf("add_deal_note: %w", err)
	}
	return marshalJSON(map[string]any{"logged": true, "record_id": recordID, "title": title})
}

// --- PipelineSummary ---

type PipelineSummaryTool struct {
	CRM *crm.Client
}

func (t *PipelineSummaryTool) Name() string { return "pipeline_summary" }
func (t *PipelineSummaryTool) Description() string {
	return "Summarize the active pipeline: deal count, total and probability-weighted value, per-stage counts"
}
func (t *PipelineSummaryTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"months_ahead": map[string]any{"type": "integer", "description": "How many months of closings to include (default 3)"},
		},
	}
}

func (t *PipelineSummaryTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	months := getIntOr(params, "months_ahead", defaultMonthsAhead)
	if months < 1 {
		months = defaultMonthsAhead
	}
	s, err := t.CRM.Summarize(ctx, months)
	if err != nil {
		return "", fmt.Errorf("pipeline_summary: %w", err)
	}
	return marshalJSON(map[string]any{
		"deals":          s.Deals,
		"total_value":    s.TotalValue,
		"weighted_value": s.WeightedValue,
		"by_stage":       s.ByStage,
		"months_ahead":   months,
	})
}

// --- CapacityAnalysis ---

type CapacityAnalysisTool struct {
	CRM *crm.Client
}

func (t *CapacityAnalysisTool) Name() string { return "capacity_analysis" }
func (t *CapacityAnalysisTool) Description() string {
	return "Group likely-to-close deals by delivery month and flag months with more than one"
}
func (t *CapacityAnalysisTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"min_probability": map[string]any{"type": "number", "description": "Only count deals at or above this probability (default 60)"},
		},
	}
}

func (t *CapacityAnalysisTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	minProb := getFloatOr(params, "min_probability", defaultMinCapacity)
	byMonth, err := t.CRM.CapacityByMonth(ctx, minProb)
	if err != nil {
		return "", fmt.Errorf("capacity_analysis: %w", err)
	}

	months := make([]string, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Strings(months)

	type monthLoad struct {
		Month    string        `json:"month"`
		Deals    []dealSummary `json:"deals"`
		Conflict bool          `json:"conflict"`
	}
	out := make([]monthLoad, 0, len(months))
	for _, m := range months {
		load := monthLoad{Month: m, Conflict: len(byMonth[m]) >= 2}
		for _, d := range byMonth[m] {
			load.Deals = append(load.Deals, summarizeDeal(d))
		}
		out = append(out, load)
	}
	return marshalJSON(map[string]any{"min_probability": minProb, "months": out})
}

// --- DealHistory ---

// DealHistoryTool returns the full current state of one deal, looked up
// by record id or by name.
type DealHistoryTool struct {
	CRM *crm.Client
}

func (t *DealHistoryTool) Name() string { return "deal_history" }
func (t *DealHistoryTool) Description() string {
	return "Fetch the full current state of a single CRM deal by record id or name"
}
func (t *DealHistoryTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"record_id": map[string]any{"type": "string", "description": "CRM record id of the deal"},
			"name":      map[string]any{"type": "string", "description": "Deal name to look up when the id is unknown"},
		},
	}
}

func (t *DealHistoryTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	if id := getString(params, "record_id"); id != "" {
		deal, err := t.CRM.GetDeal(ctx, id)
		if err != nil {
			return "", fmt.Errorf("deal_history: %w", err)
		}
		return marshalJSON(summarizeDeal(*deal))
	}
	name := getString(params, "name")
	if name == "" {
		return "", fmt.Errorf("deal_history: record_id or name is required")
	}
	deals, err := t.CRM.SearchDeals(ctx, crm.SearchFilter{Name: name, IncludeClosed: true, Limit: 1})
	if err != nil {
		return "", fmt.Errorf("deal_history: %w", err)
	}
	if len(deals) == 0 {
		return "", fmt.Errorf("deal_history: no deal matching %q", name)
	}
	return marshalJSON(summarizeDeal(deals[0]))
}

// --- LogSignal ---

// LogSignalTool records an extracted buying signal as a CRM note.
// Notes append without an idempotency key, so logging the same signal
// twice produces two notes.
type LogSignalTool struct {
	CRM *crm.Client
}

func (t *LogSignalTool) Name() string { return "log_signal" }
func (t *LogSignalTool) Description() string {
	return "Log a detected buying signal as a note on a CRM deal"
}
func (t *LogSignalTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"record_id":    map[string]any{"type": "string", "description": "CRM record id of the deal"},
			"title":        map[string]any{"type": "string", "description": "Short signal headline"},
			"summary":      map[string]any{"type": "string", "description": "What was observed and why it matters"},
			"key_signals":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Signal phrases spotted in the source"},
			"action_items": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Suggested follow-ups"},
		},
		"required": []string{"record_id", "title"},
	}
}

func (t *LogSignalTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	recordID := getString(params, "record_id")
	title := getString(params, "title")
	if recordID == "" || title == "" {
		return "", fmt.Errorf("log_signal: record_id and title are required")
	}
	body := getString(params, "summary")
	if signals := getStringSlice(params, "key_signals"); len(signals) > 0 {
		body += "\n\nKey signals:"
		for _, s := range signals {
			body += "\n- " + s
		}
	}
	if items := getStringSlice(params, "action_items"); len(items) > 0 {
		body += "\n\nAction items:"
		for _, s := range items {
			body += "\n- " + s
		}
	}
	if err := t.CRM.AddNote(ctx, recordID, title, body); err != nil {
		return "", fmt.Errorf("log_signal: %w", err)
	}
	return marshalJSON(map[string]any{"logged": true, "record_id": recordID, "title": title})
}

// --- CapacityWindow ---

// CapacityWindowTool lists deals whose close date falls inside a date
// window. Both endpoints count.
type CapacityWindowTool struct {
	CRM *crm.Client
}

func (t *CapacityWindowTool) Name() string { return "capacity_window" }
func (t *CapacityWindowTool) Description() string {
	return "List active deals closing within a date window (inclusive on both ends)"
}
func (t *CapacityWindowTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"start": map[string]any{"type": "string", "description": "Window start, YYYY-MM-DD"},
			"end":   map[string]any{"type": "string", "description": "Window end, YYYY-MM-DD"},
		},
		"required": []string{"start", "end"},
	}
}

func (t *CapacityWindowTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	start, err := time.Parse("2006-01-02", getString(params, "start"))
	if err != nil {
		return "", fmt.Errorf("capacity_window: bad start date: %w", err)
	}
	end, err := time.Parse("2006-01-02", getString(params, "end"))
	if err != nil {
		return "", fmt.Errorf("capacity_window: bad end date: %w", err)
	}
	if end.Before(start) {
		return "", fmt.Errorf("capacity_window: end is before start")
	}
	deals, err := t.CRM.ClosingBetween(ctx, start, end)
	if err != nil {
		return "", fmt.Errorf("capacity_window: %w", err)
	}
	out := make([]dealSummary, 0, len(deals))
	for _, d := range deals {
		out = append(out, summarizeDeal(d))
	}
	return marshalJSON(map[string]any{
		"start": start.Format("2006-01-02"),
		"end":   end.Format("2006-01-02"),
		"count": len(out),
		"deals": out,
	})
}
