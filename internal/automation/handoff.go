package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/dealradar-io/dealradar/internal/crm"
	"github.com/dealradar-io/dealradar/pkg/protocol"
)

const handoffNamespace = "handoff"

// handoffLookback bounds how far back a win can be and still trigger a
// handoff, so a fresh install does not replay months of history.
const handoffLookback = 7 * 24 * time.Hour

// HandoffJob watches for newly won deals, runs the planner agent to put
// each on the production calendar, and announces the win with the
// planner's brief. A win is remembered only once its brief has been
// posted, so a failed run is retried on the next tick.
type HandoffJob struct {
	deps Deps
}

func (j *HandoffJob) Name() string     { return "handoff" }
func (j *HandoffJob) Schedule() string { return "@every 15m" }

func (j *HandoffJob) Run(ctx context.Context) error {
	won, err := j.deps.CRM.WonSince(ctx, time.Now().Add(-handoffLookback))
	if err != nil {
		return fmt.Errorf("handoff: %w", err)
	}
	for _, deal := range won {
		done, err := j.deps.State.IsProcessed(handoffNamespace, deal.ID)
		if err != nil {
			return fmt.Errorf("handoff: %w", err)
		}
		if done {
			continue
		}
		brief, planned := j.planBrief(ctx, deal)
		if planned {
			if err := j.deps.Plan.MarkHandedOff(ctx, deal.ID); err != nil {
				j.deps.logger().Warn("handoff: could not mark page in progress", "deal", deal.Name, "error", err)
			}
		}
		content := fmt.Sprintf(":tada: *%s* closed won (%s)\n%s", deal.Name, crm.FormatDealLine(deal), brief)
		if err := j.deps.post(ctx, content); err != nil {
			return fmt.Errorf("handoff: %w", err)
		}
		if _, err := j.deps.State.MarkProcessed(handoffNamespace, deal.ID); err != nil {
			return fmt.Errorf("handoff: %w", err)
		}
		j.deps.logger().Info("handoff: brief posted", "deal", deal.Name, "planned", planned)
	}
	return nil
}

// planBrief asks the planner agent to write the deal's production plan
// and hand back a team-facing brief. A planner failure degrades to a
// plan-it-manually message rather than losing the win announcement.
func (j *HandoffJob) planBrief(ctx context.Context, deal protocol.Deal) (string, bool) {
	prompt := fmt.Sprintf(
		"Deal %q (record id %s) just closed won. Write its production plan with write_production_plan, then reply with a short handoff brief for the team.",
		deal.Name, deal.ID)
	res, err := j.deps.Planner.Run(ctx, prompt)
	if err != nil {
		j.deps.logger().Error("handoff: planner failed", "deal", deal.Name, "error", err)
		return fmt.Sprintf("The planner could not write a production plan for *%s*. Set one up on the calendar manually.", deal.Name), false
	}
	return j.deps.Planner.Reply(res), !res.Exhausted
}
