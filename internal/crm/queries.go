package crm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dealradar-io/dealradar/pkg/protocol"
)

// Stage classification. CRM workspaces rename stages, but won/lost
// prefixes are stable across ours.
func StageWon(stage string) bool  { return strings.HasPrefix(stage, "Won") }
func StageLost(stage string) bool { return strings.HasPrefix(stage, "Lost") }
func StageClosed(stage string) bool {
	return StageWon(stage) || StageLost(stage)
}

// SearchFilter narrows the deal list. Zero fields match everything.
type SearchFilter struct {
	Name           string
	MinProbability *float64
	MaxProbability *float64
	Stage          string
	CloseMonth     time.Month
	CloseYear      int
	IncludeClosed  bool
	Limit          int
}

func (f SearchFilter) matches(d protocol.Deal) bool {
	if !f.IncludeClosed && StageClosed(d.Stage) {
		return false
	}
	if f.Name != "" && !strings.Contains(strings.ToLower(d.Name), strings.ToLower(f.Name)) {
		return false
	}
	if f.MinProbability != nil {
		if d.Probability == nil || *d.Probability < *f.MinProbability {
			return false
		}
	}
	if f.MaxProbability != nil {
		if d.Probability == nil || *d.Probability > *f.MaxProbability {
			return false
		}
	}
	if f.Stage != "" && !strings.EqualFold(d.Stage, f.Stage) {
		return false
	}
	if f.CloseMonth != 0 || f.CloseYear != 0 {
		if d.CloseDate == nil {
			return false
		}
		if f.CloseMonth != 0 && d.CloseDate.Month() != f.CloseMonth {
			return false
		}
		if f.CloseYear != 0 && d.CloseDate.Year() != f.CloseYear {
			return false
		}
	}
	return true
}

// SearchDeals filters the deal list client-side. Matching on names
// rather than ids keeps the tool surface forgiving for the model.
func (c *Client) SearchDeals(ctx context.Context, f SearchFilter) ([]protocol.Deal, error) {
	deals, err := c.ListDeals(ctx)
	if err != nil {
		return nil, err
	}
	var out []protocol.Deal
	for _, d := range deals {
		if !f.matches(d) {
			continue
		}
		out = append(out, d)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

// Active returns deals not yet won or lost.
func (c *Client) Active(ctx context.Context) ([]protocol.Deal, error) {
	return c.SearchDeals(ctx, SearchFilter{})
}

// Stale returns active deals not updated for more than the given number
// of days.
func (c *Client) Stale(ctx context.Context, days int) ([]protocol.Deal, error) {
	deals, err := c.Active(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().AddDate(0, 0, -days)
	var out []protocol.Deal
	for _, d := range deals {
		if !d.UpdatedAt.IsZero() && d.UpdatedAt.Before(cutoff) {
			out = append(out, d)
		}
	}
	return out, nil
}

// WonSince returns deals in a won stage whose last update is at or
// after the cutoff.
func (c *Client) WonSince(ctx context.Context, cutoff time.Time) ([]protocol.Deal, error) {
	deals, err := c.SearchDeals(ctx, SearchFilter{IncludeClosed: true})
	if err != nil {
		return nil, err
	}
	var out []protocol.Deal
	for _, d := range deals {
		if StageWon(d.Stage) && !d.UpdatedAt.Before(cutoff) {
			out = append(out, d)
		}
	}
	return out, nil
}

// ClosingBetween returns active deals whose close date falls inside the
// window. Both endpoints are inclusive.
func (c *Client) ClosingBetween(ctx context.Context, start, end time.Time) ([]protocol.Deal, error) {
	deals, err := c.Active(ctx)
	if err != nil {
		return nil, err
	}
	var out []protocol.Deal
	for _, d := range deals {
		if d.ClosingBetween(start, end) {
			out = append(out, d)
		}
	}
	return out, nil
}

// MonthWindow returns the inclusive [first day, last day] window for a
// calendar month.
func MonthWindow(year int, month time.Month) (time.Time, time.Time) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0).AddDate(0, 0, -1)
	return start, end
}

// FormatDealLine renders one deal for chat output.
func FormatDealLine(d protocol.Deal) string {
	parts := []string{fmt.Sprintf("*%s*", d.Name)}
	if d.Stage != "" {
		parts = append(parts, d.Stage)
	}
	if d.Probability != nil {
		parts = append(parts, fmt.Sprintf("%.0f%%", *d.Probability))
	}
	if d.Value != nil {
		parts = append(parts, fmt.Sprintf("$%.0f", *d.Value))
	}
	if d.CloseDate != nil {
		parts = append(parts, "closes "+d.CloseDate.Format("Jan 2"))
	}
	return strings.Join(parts, " | ")
}

// PipelineSummary aggregates the active pipeline for the next few
// months: totals, probability-weighted value, and per-stage counts.
type PipelineSummary struct {
	Deals         int
	TotalValue    float64
	WeightedValue float64
	ByStage       map[string]int
}

// Summarize builds a PipelineSummary over active deals closing within
// monthsAhead months of now.
func (c *Client) Summarize(ctx context.Context, monthsAhead int) (*PipelineSummary, error) {
	now := time.Now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, monthsAhead, 0).AddDate(0, 0, -1)

	deals, err := c.ClosingBetween(ctx, start, end)
	if err != nil {
		return nil, err
	}
	s := &PipelineSummary{ByStage: make(map[string]int)}
	for _, d := range deals {
		s.Deals++
		s.TotalValue += d.ValueOr(0)
		s.WeightedValue += d.WeightedValue()
		s.ByStage[d.Stage]++
	}
	return s, nil
}

// CapacityByMonth groups active deals at or above minProbability by
// close month. Months holding two or more are delivery conflicts.
func (c *Client) CapacityByMonth(ctx context.Context, minProbability float64) (map[string][]protocol.Deal, error) {
	deals, err := c.SearchDeals(ctx, SearchFilter{MinProbability: &minProbability})
	if err != nil {
		return nil, err
	}
	byMonth := make(map[string][]protocol.Deal)
	for _, d := range deals {
		if d.CloseDate == nil {
			continue
		}
		key := d.CloseDate.Format("2006-01")
		byMonth[key] = append(byMonth[key], d)
	}
	return byMonth, nil
}
