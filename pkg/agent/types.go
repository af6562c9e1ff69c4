package agent

import "strings"

// Message represents a message in the conversation.
type Message struct {
	Role       string                 `json:"role"`
	Content    string                 `json:"content"`
	ToolCalls  []ToolCall             `json:"tool_calls,omitempty"`
	ToolCallID string                 `json:"tool_call_id,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Step is one structured progress record emitted during a query: the model's
// reasoning text, the tool it invoked, the arguments, and the observation.
type Step struct {
	Thought     string                 `json:"thought,omitempty"`
	Tool        string                 `json:"tool,omitempty"`
	Args        map[string]interface{} `json:"args,omitempty"`
	Observation string                 `json:"observation,omitempty"`
}

// ProgressFunc receives steps as they occur. May be nil.
type ProgressFunc func(Step)

// Answer is the final outcome of one Ask.
type Answer struct {
	Text       string   `json:"text"`
	Iterations int      `json:"iterations"`
	ToolsUsed  []string `json:"tools_used"`
	Usage      *TokenUsage `json:"usage,omitempty"`
}

// AuthProfile represents authentication credentials for LLM providers.
type AuthProfile struct {
	ID       string `json:"id"`
	Provider string `json:"provider"` // "anthropic", "openai"
	APIKey   string `json:"api_key"`
	Priority int    `json:"priority"`
}

// IsRetryableError checks if a provider error should be retried.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()

	// Network errors
	if strings.Contains(msg, "ECONNRESET") || strings.Contains(msg, "ETIMEDOUT") {
		return true
	}

	// Rate limits
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") {
		return true
	}

	// Server errors
	for _, code := range []string{"500", "502", "503", "504"} {
		if strings.Contains(msg, code) {
			return true
		}
	}

	return false
}
