package agent

import (
	"github.com/dealradar-io/dealradar/internal/provider"
	"github.com/dealradar-io/dealradar/internal/tool"
)

const plannerMaxTurns = 6

const plannerSystem = `You keep the production calendar in step with the sales pipeline. Use
capacity_window to find deals closing in the period you are asked about, then
write_production_plan for each one that should be on the calendar.

Guidance:
- Plan deals at or above 60% probability unless told otherwise.
- Window dates are YYYY-MM-DD and both ends count.
- Report what you did per deal: created, updated, or skipped and why.`

// NewPlanner builds the agent that projects closing deals onto the
// production calendar.
func NewPlanner(prov provider.Provider, d Deps) *Agent {
	tools := tool.NewRegistry()
	if d.CRM != nil {
		tools.Register(&tool.CapacityWindowTool{CRM: d.CRM})
		if d.Plan != nil {
			tools.Register(&tool.WriteProductionPlanTool{CRM: d.CRM, Plan: d.Plan})
		}
	}

	a := New("planner", plannerSystem, prov, tools)
	a.Model = d.Model
	a.Logger = d.logger().With("agent", "planner")
	a.MaxTurns = plannerMaxTurns
	a.ExhaustedReply = "Planning stopped before every deal was handled. Re-run with a shorter window."
	return a
}
