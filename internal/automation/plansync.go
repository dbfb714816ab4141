package automation

import (
	"context"
	"fmt"

	"github.com/dealradar-io/dealradar/internal/crm"
)

const planSyncMinProbability = 60

// PlanSyncJob mirrors the pipeline onto the production calendar: likely
// and won deals get pages, and pages for lost deals flip to on hold.
// Lost deals without a page are left alone rather than creating hold
// pages for dead history.
type PlanSyncJob struct {
	deps Deps
}

func (j *PlanSyncJob) Name() string     { return "plan-sync" }
func (j *PlanSyncJob) Schedule() string { return "0 7 * * *" }

func (j *PlanSyncJob) Run(ctx context.Context) error {
	deals, err := j.deps.CRM.SearchDeals(ctx, crm.SearchFilter{IncludeClosed: true})
	if err != nil {
		return fmt.Errorf("plan-sync: %w", err)
	}

	var created, updated int
	for _, deal := range deals {
		if crm.StageLost(deal.Stage) {
			page, err := j.deps.Plan.FindByRecordID(ctx, deal.ID)
			if err != nil {
				return fmt.Errorf("plan-sync: find %s: %w", deal.Name, err)
			}
			if page == nil {
				continue
			}
		} else if !crm.StageWon(deal.Stage) && deal.ProbabilityOr(0) < planSyncMinProbability {
			continue
		}
		res, err := j.deps.Plan.UpsertDeal(ctx, deal)
		if err != nil {
			return fmt.Errorf("plan-sync: upsert %s: %w", deal.Name, err)
		}
		if res.Created {
			created++
		} else {
			updated++
		}
	}
	j.deps.logger().Info("plan-sync: done", "created", created, "updated", updated)
	if created == 0 {
		return nil
	}
	return j.deps.post(ctx, fmt.Sprintf(
		"*Production calendar sync*: %d new plan pages created, %d refreshed.", created, updated))
}
