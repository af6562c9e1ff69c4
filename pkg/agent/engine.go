package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/harun/agentgate/pkg/toolset"
	"github.com/rs/zerolog/log"
)

// Agent is the per-session conversational engine handle. The session layer
// owns exactly one Agent per session and serializes queries against it.
type Agent interface {
	// Ask runs one query to completion, driving the tool loop for at most
	// maxIterations provider turns. Progress steps are reported through
	// progress as they occur (may be nil).
	Ask(ctx context.Context, prompt string, maxIterations int, progress ProgressFunc) (*Answer, error)

	// Turn returns the number of completed conversation turns.
	Turn() int

	// Reset clears the conversation history and turn counter.
	Reset()
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	Provider         LLMProvider
	ToolSet          *toolset.Set
	Model            string
	SystemPrompt     string
	Temperature      float64
	MaxTokens        int
	MaxMessages      int
	SummarizeRemoved bool
}

// Engine is the provider-backed Agent implementation.
type Engine struct {
	cfg EngineConfig

	mu      sync.Mutex
	history []Message
	turn    int
}

// NewEngine creates an Engine bound to one provider and one tool set.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.ToolSet == nil {
		return nil, fmt.Errorf("tool set is required")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-sonnet-20241022"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = fmt.Sprintf(
			"You are a helpful assistant with access to %s tools.", cfg.ToolSet.Name)
	}

	return &Engine{cfg: cfg}, nil
}

// Turn returns the number of completed conversation turns.
func (e *Engine) Turn() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.turn
}

// Reset clears the conversation history and turn counter.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = nil
	e.turn = 0
}

// Ask runs one query through the provider tool loop.
func (e *Engine) Ask(ctx context.Context, prompt string, maxIterations int, progress ProgressFunc) (*Answer, error) {
	if maxIterations <= 0 {
		maxIterations = 1
	}

	tools := e.toolDefinitions()

	// Snapshot the history and run the loop without the lock so Turn and
	// Reset stay responsive while a provider call is in flight.
	e.mu.Lock()
	messages := make([]Message, 0, len(e.history)+1)
	messages = append(messages, e.history...)
	e.mu.Unlock()
	messages = append(messages, Message{Role: "user", Content: prompt})

	toolsUsed := []string{}
	seen := map[string]bool{}
	var usage TokenUsage

	for iteration := 1; iteration <= maxIterations; iteration++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		response, err := e.cfg.Provider.Call(ctx, LLMRequest{
			Model:        e.cfg.Model,
			Messages:     messages,
			Tools:        tools,
			Temperature:  e.cfg.Temperature,
			MaxTokens:    e.cfg.MaxTokens,
			SystemPrompt: e.cfg.SystemPrompt,
		})
		if err != nil {
			return nil, err
		}
		if response.Usage != nil {
			usage.InputTokens += response.Usage.InputTokens
			usage.OutputTokens += response.Usage.OutputTokens
		}

		// No tool calls means the model produced its final answer.
		if len(response.ToolCalls) == 0 {
			if err := e.commitTurn(ctx, prompt, response.Content); err != nil {
				return nil, err
			}

			return &Answer{
				Text:       response.Content,
				Iterations: iteration,
				ToolsUsed:  toolsUsed,
				Usage:      &usage,
			}, nil
		}

		results := []Message{}
		for _, call := range response.ToolCalls {
			observation := e.executeTool(ctx, call)

			if progress != nil {
				progress(Step{
					Thought:     response.Content,
					Tool:        call.Name,
					Args:        call.Parameters,
					Observation: observation,
				})
			}
			if !seen[call.Name] {
				seen[call.Name] = true
				toolsUsed = append(toolsUsed, call.Name)
			}

			results = append(results, Message{
				Role:       "tool",
				Content:    observation,
				ToolCallID: call.ID,
			})
		}

		messages = append(messages, Message{
			Role:      "assistant",
			Content:   response.Content,
			ToolCalls: response.ToolCalls,
		})
		messages = append(messages, results...)
	}

	return nil, fmt.Errorf("maximum tool iterations (%d) exceeded", maxIterations)
}

// commitTurn appends one completed exchange to the history and advances the
// turn counter. A cancelled context discards the exchange even when the
// provider settled: the caller has already been answered with a timeout and
// the session may be serving a newer query.
func (e *Engine) commitTurn(ctx context.Context, prompt, answer string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	e.history = append(e.history,
		Message{Role: "user", Content: prompt},
		Message{Role: "assistant", Content: answer},
	)
	e.trimHistory()
	e.turn++
	return nil
}

// executeTool runs one tool call and renders its observation.
func (e *Engine) executeTool(ctx context.Context, call ToolCall) string {
	tool, ok := e.cfg.ToolSet.Tool(call.Name)
	if !ok {
		return fmt.Sprintf("error: tool not found: %s", call.Name)
	}

	output, err := tool.Handler(ctx, call.Parameters)
	if err != nil {
		log.Warn().
			Str("tool", call.Name).
			Err(err).
			Msg("Tool execution failed")
		return fmt.Sprintf("error: %s", err.Error())
	}

	rendered, err := json.Marshal(output)
	if err != nil {
		return fmt.Sprintf("%v", output)
	}
	return string(rendered)
}

// toolDefinitions renders the bound tool set in wire format.
func (e *Engine) toolDefinitions() []map[string]interface{} {
	defs := []map[string]interface{}{}

	for _, tool := range e.cfg.ToolSet.Tools() {
		properties := map[string]interface{}{}
		required := []string{}

		for _, param := range tool.Parameters {
			properties[param.Name] = map[string]interface{}{
				"type":        param.Type,
				"description": param.Description,
			}
			if param.Required {
				required = append(required, param.Name)
			}
		}

		inputSchema := map[string]interface{}{
			"type":       "object",
			"properties": properties,
		}
		if len(required) > 0 {
			inputSchema["required"] = required
		}

		defs = append(defs, map[string]interface{}{
			"name":         tool.Name,
			"description":  tool.Description,
			"input_schema": inputSchema,
		})
	}

	return defs
}

// trimHistory caps the history at MaxMessages, optionally replacing the
// removed prefix with a summary marker. Must be called with mu held.
func (e *Engine) trimHistory() {
	max := e.cfg.MaxMessages
	if max <= 0 || len(e.history) <= max {
		return
	}

	// The summary marker occupies one of the max slots.
	summarize := e.cfg.SummarizeRemoved && max > 1
	keep := max
	if summarize {
		keep = max - 1
	}

	removed := len(e.history) - keep
	trimmed := make([]Message, 0, max)
	if summarize {
		trimmed = append(trimmed, Message{
			Role:    "system",
			Content: fmt.Sprintf("[Previous conversation summary: %d messages removed]", removed),
		})
	}
	trimmed = append(trimmed, e.history[removed:]...)

	log.Debug().
		Int("removed", removed).
		Int("kept", len(trimmed)).
		Msg("Conversation history trimmed")

	e.history = trimmed
}
