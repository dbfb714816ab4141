package protocol

// StopSignal classifies why the model stopped generating. Providers map
// their wire-level stop reasons onto exactly one of these values.
type StopSignal string

const (
	// StopDone means the model produced a final answer.
	StopDone StopSignal = "done"
	// StopWantsAction means the model is requesting tool executions.
	StopWantsAction StopSignal = "wants_action"
	// StopOther covers every remaining stop reason (length limits,
	// content filters, unknown values). The loop treats it as terminal.
	StopOther StopSignal = "other"
)

// ChatMessage represents a single message in the LLM conversation.
// An assistant message may carry ToolCalls; a tool message carries the
// full batch of results answering them.
type ChatMessage struct {
	Role      string       `json:"role"`
	Content   string       `json:"content"`
	ToolCalls []ToolCall   `json:"tool_calls,omitempty"`
	Results   []ToolResult `json:"results,omitempty"`
}

// ToolCall represents the LLM requesting a tool execution.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult is the outcome of a single tool call. Content is always a
// string. Failures are encoded as {"error": "..."} JSON rather than a
// distinct shape, so the model sees them like any other result.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// UserMessage builds a user-role message.
func UserMessage(text string) ChatMessage {
	return ChatMessage{Role: "user", Content: text}
}

// ResultBatch builds the single tool-role message answering a round of
// tool calls. Each call gets exactly one result, in call order.
func ResultBatch(results []ToolResult) ChatMessage {
	return ChatMessage{Role: "tool", Results: results}
}

// ChatResponse is the parsed response from an LLM provider.
type ChatResponse struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Stop      StopSignal `json:"stop"`
	Usage     Usage      `json:"usage"`
}

// HasToolCalls returns true if the response contains tool call requests.
func (r *ChatResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// Usage tracks token consumption for a single LLM call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// TotalTokens returns the sum of prompt and completion tokens.
func (u Usage) TotalTokens() int {
	return u.PromptTokens + u.CompletionTokens
}

// ChatRequest holds parameters for an LLM chat call.
type ChatRequest struct {
	Model       string           `json:"model"`
	System      string           `json:"system,omitempty"`
	Messages    []ChatMessage    `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Temperature float64          `json:"temperature,omitempty"`
}

// LoopResult is the outcome of an agent loop run. Either the model
// finished with FinalText, or the loop stopped without a final answer
// and Exhausted is true.
type LoopResult struct {
	FinalText string `json:"final_text"`
	Exhausted bool   `json:"exhausted"`
}
