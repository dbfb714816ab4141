package automation

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dealradar-io/dealradar/internal/crm"
	"github.com/dealradar-io/dealradar/pkg/protocol"
)

// movementThreshold is the probability swing, in points, worth a post.
const movementThreshold = 20

const movementNamespace = "movement"

// dealSnapshot is what the movement diff remembers per record between
// runs.
type dealSnapshot struct {
	Name        string     `json:"name"`
	Stage       string     `json:"stage"`
	Probability *float64   `json:"probability"`
	CloseDate   *time.Time `json:"close_date"`
}

// MovementJob diffs the pipeline against the last run and posts stage
// changes, big probability swings, and new deals. The first run only
// seeds the baseline.
type MovementJob struct {
	deps Deps
}

func (j *MovementJob) Name() string     { return "movement" }
func (j *MovementJob) Schedule() string { return "@every 15m" }

func (j *MovementJob) Run(ctx context.Context) error {
	deals, err := j.deps.CRM.SearchDeals(ctx, crm.SearchFilter{IncludeClosed: true})
	if err != nil {
		return fmt.Errorf("movement: %w", err)
	}
	current := snapshotDeals(deals)

	var previous map[string]dealSnapshot
	found, err := j.deps.State.LoadSnapshot(movementNamespace, &previous)
	if err != nil {
		return fmt.Errorf("movement: %w", err)
	}
	if !found {
		j.deps.logger().Info("movement: seeding baseline", "deals", len(current))
		return j.save(current)
	}

	changes := diffSnapshots(previous, current)
	if err := j.save(current); err != nil {
		return err
	}
	if len(changes) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("*Pipeline movement*\n")
	for _, line := range changes {
		fmt.Fprintf(&b, "• %s\n", line)
	}
	return j.deps.post(ctx, b.String())
}

func (j *MovementJob) save(snap map[string]dealSnapshot) error {
	if err := j.deps.State.SaveSnapshot(movementNamespace, snap); err != nil {
		return fmt.Errorf("movement: save snapshot: %w", err)
	}
	return nil
}

func snapshotDeals(deals []protocol.Deal) map[string]dealSnapshot {
	out := make(map[string]dealSnapshot, len(deals))
	for _, d := range deals {
		out[d.ID] = dealSnapshot{Name: d.Name, Stage: d.Stage, Probability: d.Probability, CloseDate: d.CloseDate}
	}
	return out
}

// diffSnapshots renders human-readable change lines, sorted by deal
// name so posts are stable.
func diffSnapshots(previous, current map[string]dealSnapshot) []string {
	var changes []string
	for id, now := range current {
		before, existed := previous[id]
		if !existed {
			changes = append(changes, fmt.Sprintf("New deal: *%s* (%s)", now.Name, orDash(now.Stage)))
			continue
		}
		if before.Stage != now.Stage {
			changes = append(changes, fmt.Sprintf("*%s* moved %s → %s", now.Name, orDash(before.Stage), orDash(now.Stage)))
		}
		if line, ok := probabilityChange(now.Name, before.Probability, now.Probability); ok {
			changes = append(changes, line)
		}
		if line, ok := closeDateChange(now.Name, before.CloseDate, now.CloseDate); ok {
			changes = append(changes, line)
		}
	}
	sort.Strings(changes)
	return changes
}

func probabilityChange(name string, before, now *float64) (string, bool) {
	switch {
	case before == nil && now != nil:
		return fmt.Sprintf("*%s* probability set to %.0f%%", name, *now), true
	case before != nil && now == nil:
		return fmt.Sprintf("*%s* probability cleared (was %.0f%%)", name, *before), true
	case before != nil && now != nil && math.Abs(*now-*before) >= movementThreshold:
		arrow := "up"
		if *now < *before {
			arrow = "down"
		}
		return fmt.Sprintf("*%s* probability %s %.0f%% → %.0f%%", name, arrow, *before, *now), true
	}
	return "", false
}

func closeDateChange(name string, before, now *time.Time) (string, bool) {
	const layout = "Jan 2"
	switch {
	case before == nil && now != nil:
		return fmt.Sprintf("*%s* close date set to %s", name, now.Format(layout)), true
	case before != nil && now == nil:
		return fmt.Sprintf("*%s* close date cleared (was %s)", name, before.Format(layout)), true
	case before != nil && now != nil && !before.Equal(*now):
		return fmt.Sprintf("*%s* close date moved %s → %s", name, before.Format(layout), now.Format(layout)), true
	}
	return "", false
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
