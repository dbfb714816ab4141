package automation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dealradar-io/dealradar/internal/crm"
)

// capacityMinProbability is the cutoff for deals likely enough to
// count against delivery capacity.
const capacityMinProbability = 60

// CapacityJob warns when two or more likely deals land in the same
// delivery month.
type CapacityJob struct {
	deps Deps
}

func (j *CapacityJob) Name() string     { return "capacity" }
func (j *CapacityJob) Schedule() string { return "0 8 * * *" }

func (j *CapacityJob) Run(ctx context.Context) error {
	byMonth, err := j.deps.CRM.CapacityByMonth(ctx, capacityMinProbability)
	if err != nil {
		return fmt.Errorf("capacity: %w", err)
	}

	months := make([]string, 0, len(byMonth))
	for m, deals := range byMonth {
		if len(deals) >= 2 {
			months = append(months, m)
		}
	}
	if len(months) == 0 {
		j.deps.logger().Info("capacity: no conflicts")
		return nil
	}
	sort.Strings(months)

	var b strings.Builder
	b.WriteString("*Capacity warning*: multiple likely deals land in the same month\n")
	for _, m := range months {
		fmt.Fprintf(&b, "\n%s (%d deals):\n", m, len(byMonth[m]))
		for _, d := range byMonth[m] {
			fmt.Fprintf(&b, "• %s\n", crm.FormatDealLine(d))
		}
	}
	return j.deps.post(ctx, b.String())
}
