package agent

import (
	"context"

	"github.com/dealradar-io/dealradar/internal/provider"
	"github.com/dealradar-io/dealradar/internal/tool"
	"github.com/dealradar-io/dealradar/pkg/protocol"
)

const (
	signalMaxTurns  = 5
	signalSearchCap = 10
)

const signalSystem = `You extract buying signals from text: call recaps, meeting notes, and
forwarded email. Match what you read against the CRM with search_deals, and
when you are confident which deal the text is about, log the signal with
log_signal.

Your final answer must be a single JSON object and nothing else:
{
  "deal_name": "",      // matched deal, empty when none
  "record_id": "",      // CRM record id of the match
  "confidence": "",     // high, medium, or low
  "note_title": "",     // one-line headline for the signal
  "note_body": "",      // what was said and why it matters
  "key_signals": [],    // the phrases that mattered
  "action_items": [],   // concrete follow-ups, if any
  "urgency": "",        // high, medium, or low
  "logged": false,      // true only after log_signal succeeded
  "candidates": []      // other deal names considered
}

Only log when confidence is high. With several plausible deals, list them in
candidates and leave logged false. No prose, no code fences.`

// SignalExtractor wraps the extraction agent with its structured-output
// contract.
type SignalExtractor struct {
	agent *Agent

	// AutoLog registers the log_signal tool, letting the model write
	// the CRM note itself during the run.
	AutoLog bool
}

// NewSignalExtractor builds the recap-to-CRM signal extraction agent.
// With autoLog false the extractor only reads; the caller decides what
// to do with the report.
func NewSignalExtractor(prov provider.Provider, d Deps, autoLog bool) *SignalExtractor {
	tools := tool.NewRegistry()
	if d.CRM != nil {
		tools.Register(&tool.SearchDealsTool{CRM: d.CRM, MaxResults: signalSearchCap})
		if autoLog {
			tools.Register(&tool.LogSignalTool{CRM: d.CRM})
		}
	}

	a := New("signal-extractor", signalSystem, prov, tools)
	a.Model = d.Model
	a.Logger = d.logger().With("agent", "signal-extractor")
	a.MaxTurns = signalMaxTurns
	return &SignalExtractor{agent: a, AutoLog: autoLog}
}

// Extract runs the agent over recap text and parses its final answer.
// An exhausted run or unparseable answer yields the zero report; only
// transport failures return an error.
func (e *SignalExtractor) Extract(ctx context.Context, recap string) (protocol.SignalReport, error) {
	res, err := e.agent.Run(ctx, recap)
	if err != nil {
		return protocol.SignalReport{}, err
	}
	if res.Exhausted {
		e.agent.Logger.Warn("signal extraction exhausted its turn budget")
		return protocol.SignalReport{}, nil
	}
	report, ok := ParseSignalReport(res.FinalText)
	if !ok {
		e.agent.Logger.Warn("signal extraction returned non-JSON output",
			"length", len(res.FinalText))
		return protocol.SignalReport{}, nil
	}
	return report, nil
}
