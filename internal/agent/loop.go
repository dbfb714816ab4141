package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/dealradar-io/dealradar/pkg/protocol"
)

// Run executes the tool-calling loop for a single user input: send the
// conversation to the model, execute any requested tool calls, answer
// them all in one batch, and repeat until the model finishes or the
// turn budget runs out.
func (a *Agent) Run(ctx context.Context, input string) (protocol.LoopResult, error) {
	return a.RunConversation(ctx, []protocol.ChatMessage{protocol.UserMessage(input)})
}

// RunConversation executes the loop over an existing conversation.
// The returned error covers transport-level failures only; a model that
// never finishes is reported as an Exhausted result, not an error, and
// tool failures are fed back to the model as results.
func (a *Agent) RunConversation(ctx context.Context, messages []protocol.ChatMessage) (protocol.LoopResult, error) {
	maxTurns := a.MaxTurns
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}

	toolDefs := a.Tools.Definitions()

	for turn := 0; turn < maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return protocol.LoopResult{}, fmt.Errorf("agent %s: context cancelled: %w", a.Name, err)
		}

		req := protocol.ChatRequest{
			Model:       a.Model,
			System:      a.System,
			Messages:    messages,
			Tools:       toolDefs,
			Temperature: a.Temperature,
		}

		a.Logger.Debug("agent chat request",
			"agent", a.Name,
			"turn", turn+1,
			"messages", len(messages),
		)

		resp, err := a.Provider.Chat(ctx, req)
		if err != nil {
			return protocol.LoopResult{}, fmt.Errorf("agent %s: provider error: %w", a.Name, err)
		}

		switch resp.Stop {
		case protocol.StopDone:
			text := strings.TrimSpace(resp.Content)
			if text == "" {
				text = a.EmptyReply
				if text == "" {
					text = defaultEmptyReply
				}
			}
			a.Logger.Debug("agent final response",
				"agent", a.Name,
				"turn", turn+1,
				"content_len", len(text),
			)
			return protocol.LoopResult{FinalText: text}, nil

		case protocol.StopWantsAction:
			if len(resp.ToolCalls) == 0 {
				// A tool-use stop with no calls cannot make progress.
				a.Logger.Warn("agent requested action without tool calls", "agent", a.Name)
				return protocol.LoopResult{Exhausted: true}, nil
			}

			messages = append(messages, protocol.ChatMessage{
				Role:      "assistant",
				Content:   resp.Content,
				ToolCalls: resp.ToolCalls,
			})

			// Every call gets answered, in order, in a single batch.
			// A failing call becomes an error payload and does not
			// block its siblings.
			results := make([]protocol.ToolResult, 0, len(resp.ToolCalls))
			for _, tc := range resp.ToolCalls {
				a.Logger.Info(fmt.Sprintf("tool call: %s", tc.Name),
					"agent", a.Name,
					"call_id", tc.ID,
				)
				res := a.Tools.Dispatch(ctx, tc)
				a.Logger.Debug(fmt.Sprintf("tool result: %s", tc.Name),
					"agent", a.Name,
					"call_id", tc.ID,
					"result_len", len(res.Content),
				)
				results = append(results, res)
			}
			messages = append(messages, protocol.ResultBatch(results))

		default:
			// Length limits, filters, anything unknown: stop cleanly
			// rather than feeding an undefined state back to the model.
			a.Logger.Warn("agent stopped for unexpected reason",
				"agent", a.Name,
				"stop", string(resp.Stop),
			)
			return protocol.LoopResult{Exhausted: true}, nil
		}
	}

	a.Logger.Warn("agent exhausted turn budget",
		"agent", a.Name,
		"max_turns", maxTurns,
	)
	return protocol.LoopResult{Exhausted: true}, nil
}
