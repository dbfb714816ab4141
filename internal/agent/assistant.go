package agent

import (
	"log/slog"

	"github.com/dealradar-io/dealradar/internal/calendar"
	"github.com/dealradar-io/dealradar/internal/crm"
	"github.com/dealradar-io/dealradar/internal/plan"
	"github.com/dealradar-io/dealradar/internal/provider"
	"github.com/dealradar-io/dealradar/internal/tool"
)

// Deps bundles the collaborators the agent constructors draw their
// tools from. Nil fields simply leave the matching tools unregistered.
type Deps struct {
	CRM      *crm.Client
	Plan     *plan.Client
	Calendar *calendar.Client
	Mailbox  tool.SignalSource

	// SearchAPIKey enables the web search and news tools.
	SearchAPIKey string

	Model  string
	Logger *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

const assistantMaxTurns = 8

const assistantSystem = `You are the business operations assistant for a creative studio. You answer
questions about the sales pipeline, update deal records, and surface what
needs attention across deals, the production calendar, upcoming meetings,
and recent email.

Rules:
- Keep answers short and concrete. Lead with the fact, not the process.
- When asked to change a deal, confirm what you changed in one sentence.
- Money is in dollars, probabilities are 0-100 percent.
- If a lookup comes back empty, say so plainly instead of guessing.`

// NewAssistant builds the chat-facing agent with the full read/write
// tool set.
func NewAssistant(prov provider.Provider, d Deps) *Agent {
	tools := tool.NewRegistry()
	if d.CRM != nil {
		tools.Register(&tool.SearchDealsTool{CRM: d.CRM})
		tools.Register(&tool.UpdateDealFieldTool{CRM: d.CRM})
		tools.Register(&tool.AddDealNoteTool{CRM: d.CRM})
		tools.Register(&tool.PipelineSummaryTool{CRM: d.CRM})
		tools.Register(&tool.CapacityAnalysisTool{CRM: d.CRM})
	}
	if d.Plan != nil {
		tools.Register(&tool.SearchProductionCalendarTool{Plan: d.Plan})
	}
	if d.Calendar != nil {
		tools.Register(&tool.UpcomingMeetingsTool{Calendar: d.Calendar})
	}
	if d.Mailbox != nil {
		tools.Register(&tool.RecentEmailSignalsTool{Mailbox: d.Mailbox})
	}

	a := New("assistant", assistantSystem, prov, tools)
	a.Model = d.Model
	a.Logger = d.logger().With("agent", "assistant")
	a.MaxTurns = assistantMaxTurns
	a.ExhaustedReply = "That took more digging than I'm allowed. Try asking for one thing at a time."
	return a
}
