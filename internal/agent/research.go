package agent

import (
	"github.com/dealradar-io/dealradar/internal/provider"
	"github.com/dealradar-io/dealradar/internal/tool"
)

const researcherMaxTurns = 6

const researcherSystem = `You prepare pre-meeting briefs for a creative studio's sales team. Given a
company or deal name, pull the deal's current state from the CRM, then check
recent news and public pages for anything worth knowing before the call.

Produce a brief with these sections, skipping any that turn up nothing:
*Deal state* — stage, probability, value, close date.
*Recent news* — two or three bullets, newest first, with dates.
*Talking points* — what to bring up and what to avoid.

Stick to what the tools return. Never invent coverage or numbers.`

// NewResearcher builds the read-only research agent used ahead of
// prospect meetings.
func NewResearcher(prov provider.Provider, d Deps) *Agent {
	tools := tool.NewRegistry()
	if d.CRM != nil {
		tools.Register(&tool.DealHistoryTool{CRM: d.CRM})
	}
	tools.Register(&tool.WebSearchTool{APIKey: d.SearchAPIKey})
	tools.Register(&tool.CompanyNewsTool{APIKey: d.SearchAPIKey})
	tools.Register(&tool.FetchArticleTool{})

	a := New("researcher", researcherSystem, prov, tools)
	a.Model = d.Model
	a.Logger = d.logger().With("agent", "researcher")
	a.MaxTurns = researcherMaxTurns
	a.EmptyReply = "No useful background turned up."
	a.ExhaustedReply = "Research timed out before the brief was done. Here's what to do: check the CRM record directly."
	return a
}
