package automation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dealradar-io/dealradar/internal/crm"
)

// ForecastJob posts the Monday pipeline summary: totals, weighted
// value, and what closes soon.
type ForecastJob struct {
	deps Deps
}

func (j *ForecastJob) Name() string     { return "forecast" }
func (j *ForecastJob) Schedule() string { return "5 9 * * MON" }

func (j *ForecastJob) Run(ctx context.Context) error {
	summary, err := j.deps.CRM.Summarize(ctx, 3)
	if err != nil {
		return fmt.Errorf("forecast: %w", err)
	}
	weekAgo := time.Now().AddDate(0, 0, -7)
	won, err := j.deps.CRM.WonSince(ctx, weekAgo)
	if err != nil {
		return fmt.Errorf("forecast: %w", err)
	}

	var b strings.Builder
	b.WriteString("*Weekly forecast*\n")
	fmt.Fprintf(&b, "%d active deals closing in the next 3 months, $%.0f total, $%.0f weighted.\n",
		summary.Deals, summary.TotalValue, summary.WeightedValue)

	if len(summary.ByStage) > 0 {
		stages := make([]string, 0, len(summary.ByStage))
		for s := range summary.ByStage {
			stages = append(stages, s)
		}
		sort.Strings(stages)
		parts := make([]string, 0, len(stages))
		for _, s := range stages {
			parts = append(parts, fmt.Sprintf("%s %d", s, summary.ByStage[s]))
		}
		fmt.Fprintf(&b, "By stage: %s.\n", strings.Join(parts, ", "))
	}

	if len(won) > 0 {
		b.WriteString("\nWon this week:\n")
		for _, d := range won {
			fmt.Fprintf(&b, "• %s\n", crm.FormatDealLine(d))
		}
	}

	return j.deps.post(ctx, b.String())
}
