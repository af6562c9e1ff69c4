// Package query runs a single query against a session's agent under a
// deadline, guaranteeing at most one in-flight query per session.
package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harun/agentgate/internal/metrics"
	"github.com/harun/agentgate/internal/observability"
	"github.com/harun/agentgate/pkg/agent"
	"github.com/harun/agentgate/pkg/session"
	"github.com/rs/zerolog/log"
)

// MaxQueryLength is the maximum accepted query length in characters.
const MaxQueryLength = 2000

// DefaultTimeout is used when the caller passes no timeout.
const DefaultTimeout = 60 * time.Second

// Result is the outcome of one successful query.
type Result struct {
	SessionID        string   `json:"session_id"`
	Answer           string   `json:"answer"`
	ExecutionTime    float64  `json:"execution_time"`
	Iterations       int      `json:"iterations"`
	ToolsUsed        []string `json:"tools_used"`
	ConversationTurn int      `json:"conversation_turn"`
	HadContext       bool     `json:"had_context"`
}

// Executor runs queries with per-session exclusivity and a hard deadline.
type Executor struct {
	counter  *metrics.Counter
	recorder session.EventRecorder
	timeout  time.Duration
}

// NewExecutor creates an executor. recorder may be nil.
func NewExecutor(counter *metrics.Counter, recorder session.EventRecorder, timeout time.Duration) *Executor {
	observability.EnsureRegistered()

	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{
		counter:  counter,
		recorder: recorder,
		timeout:  timeout,
	}
}

type outcome struct {
	answer *agent.Answer
	err    error
}

// Execute runs one query against the session's agent. The exclusivity lock is
// taken non-blocking and released on every exit path. The agent call itself
// runs in a separate goroutine raced against the deadline; on timeout the
// caller proceeds immediately and the worker's late result is absorbed by the
// buffered channel it owns.
func (e *Executor) Execute(ctx context.Context, rec *session.Record, text string, maxIterations int, timeout time.Duration) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("session_id", rec.ID).
				Interface("panic", r).
				Msg("Query execution panicked")
			result = nil
			err = session.ExecutionError(fmt.Errorf("internal error: %v", r))
		}
	}()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" || len(trimmed) > MaxQueryLength {
		return nil, session.ErrInvalidQuery
	}
	if maxIterations <= 0 {
		maxIterations = 1
	}
	if timeout <= 0 {
		timeout = e.timeout
	}

	progress, err := rec.BeginQuery(trimmed)
	if err != nil {
		return nil, err
	}
	defer rec.EndQuery()

	e.counter.RecordQueryStart()
	hadContext := rec.Agent().Turn() > 0
	start := time.Now()

	// The worker only signals through this buffered channel and through the
	// detached progress log. It never touches the record, so a late result
	// cannot race a later query on the same session.
	done := make(chan outcome, 1)
	workCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		answer, askErr := rec.Agent().Ask(workCtx, trimmed, maxIterations, progress.Append)
		done <- outcome{answer: answer, err: askErr}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case o := <-done:
		elapsed := time.Since(start)

		if o.err != nil {
			observability.RecordQuery(rec.ToolSet, "error", elapsed)
			e.record(rec, "query_failed", o.err.Error())
			log.Warn().
				Str("session_id", rec.ID).
				Err(o.err).
				Msg("Query execution failed")
			return nil, session.ExecutionError(o.err)
		}
		if o.answer == nil {
			observability.RecordQuery(rec.ToolSet, "error", elapsed)
			return nil, session.ExecutionError(fmt.Errorf("agent returned neither result nor error"))
		}

		rec.Touch()
		e.counter.RecordQueryLatency(elapsed)
		observability.RecordQuery(rec.ToolSet, "ok", elapsed)
		e.record(rec, "query_completed", fmt.Sprintf("%.3fs", elapsed.Seconds()))

		log.Debug().
			Str("session_id", rec.ID).
			Dur("elapsed", elapsed).
			Int("iterations", o.answer.Iterations).
			Msg("Query completed")

		return &Result{
			SessionID:        rec.ID,
			Answer:           o.answer.Text,
			ExecutionTime:    elapsed.Seconds(),
			Iterations:       o.answer.Iterations,
			ToolsUsed:        o.answer.ToolsUsed,
			ConversationTurn: rec.Agent().Turn(),
			HadContext:       hadContext,
		}, nil

	case <-timer.C:
		// Best-effort cancellation: the worker is signalled but not waited
		// for. The session is released to subsequent queries immediately.
		cancel()
		elapsed := time.Since(start)
		observability.RecordQuery(rec.ToolSet, "timeout", elapsed)
		e.record(rec, "query_timeout", timeout.String())

		log.Warn().
			Str("session_id", rec.ID).
			Dur("timeout", timeout).
			Msg("Query timed out, abandoning worker")

		return nil, session.ErrTimeout

	case <-ctx.Done():
		cancel()
		observability.RecordQuery(rec.ToolSet, "canceled", time.Since(start))
		return nil, session.ExecutionError(ctx.Err())
	}
}

func (e *Executor) record(rec *session.Record, eventType, detail string) {
	if e.recorder == nil {
		return
	}
	e.recorder.RecordEvent(session.Event{
		Time:      time.Now(),
		SessionID: rec.ID,
		Owner:     rec.Owner,
		Type:      eventType,
		Detail:    detail,
	})
}
