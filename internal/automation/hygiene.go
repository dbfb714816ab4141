package automation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dealradar-io/dealradar/internal/crm"
	"github.com/dealradar-io/dealradar/pkg/protocol"
)

// staleDays is how long a deal may sit untouched before the hygiene
// report calls it out.
const staleDays = 14

// HygieneJob posts the Monday list of neglected deals, grouped by
// owner so the nagging lands on the right desk.
type HygieneJob struct {
	deps Deps
}

func (j *HygieneJob) Name() string     { return "hygiene" }
func (j *HygieneJob) Schedule() string { return "0 9 * * MON" }

func (j *HygieneJob) Run(ctx context.Context) error {
	stale, err := j.deps.CRM.Stale(ctx, staleDays)
	if err != nil {
		return fmt.Errorf("hygiene: %w", err)
	}
	if len(stale) == 0 {
		j.deps.logger().Info("hygiene: nothing stale")
		return nil
	}

	byOwner := make(map[string][]protocol.Deal)
	for _, d := range stale {
		owner := d.Owner
		if owner == "" {
			owner = "unassigned"
		}
		byOwner[owner] = append(byOwner[owner], d)
	}
	owners := make([]string, 0, len(byOwner))
	for o := range byOwner {
		owners = append(owners, o)
	}
	sort.Strings(owners)

	var b strings.Builder
	fmt.Fprintf(&b, "*CRM hygiene*: %d deals untouched for %d+ days\n", len(stale), staleDays)
	for _, owner := range owners {
		fmt.Fprintf(&b, "\n%s:\n", owner)
		for _, d := range byOwner[owner] {
			fmt.Fprintf(&b, "• %s\n", crm.FormatDealLine(d))
		}
	}
	return j.deps.post(ctx, b.String())
}
