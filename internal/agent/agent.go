package agent

import (
	"log/slog"

	"github.com/dealradar-io/dealradar/internal/provider"
	"github.com/dealradar-io/dealradar/internal/tool"
	"github.com/dealradar-io/dealradar/pkg/protocol"
)

const defaultMaxTurns = 8

// defaultEmptyReply is substituted when the model finishes without
// producing any text.
const defaultEmptyReply = "I processed your request but couldn't generate a response."

// Agent is a single tool-calling agent: a system prompt, a capability
// set, and a turn budget around one provider.
type Agent struct {
	Name        string
	System      string
	Model       string
	Provider    provider.Provider
	Tools       *tool.Registry
	Logger      *slog.Logger
	MaxTurns    int
	Temperature float64

	// EmptyReply replaces an empty final answer. Zero value falls back
	// to defaultEmptyReply.
	EmptyReply string

	// ExhaustedReply is what surfaces to the user when the agent runs
	// out of turns without a final answer.
	ExhaustedReply string
}

const defaultExhaustedReply = "I ran out of steps before finishing that. Try a narrower request."

// New creates an Agent with sensible defaults.
func New(name, system string, prov provider.Provider, tools *tool.Registry) *Agent {
	return &Agent{
		Name:     name,
		System:   system,
		Provider: prov,
		Tools:    tools,
		Logger:   slog.Default(),
		MaxTurns: defaultMaxTurns,
	}
}

// Reply maps a loop result onto user-facing text. An exhausted run is
// not an error, it just gets the agent's fallback wording.
func (a *Agent) Reply(res protocol.LoopResult) string {
	if !res.Exhausted {
		return res.FinalText
	}
	if a.ExhaustedReply != "" {
		return a.ExhaustedReply
	}
	return defaultExhaustedReply
}
