// Package agent implements the conversational tool-execution engine owned by
// each session.
//
// Invariants:
// - One Engine per session; callers serialize access to it.
// - Tool calls only reach tools from the session's bound tool set.
// - The conversation turn counter advances once per completed Ask.
//
// Usage:
//
//	eng := agent.NewEngine(agent.EngineConfig{Provider: p, ToolSet: set})
//	answer, _ := eng.Ask(ctx, "list open orders", 5, nil)
//	_ = answer
package agent
