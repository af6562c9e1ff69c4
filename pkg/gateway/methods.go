package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harun/agentgate/internal/observability"
	"github.com/harun/agentgate/pkg/session"
)

const (
	defaultMaxIterations = 5
	maxIterationsLimit   = 10
	maxOwnerLength       = 100
	maxMessagesLimit     = 200
)

// registerBuiltinMethods registers all built-in RPC methods
func (s *Server) registerBuiltinMethods() {
	_ = s.RegisterMethod("session.create", s.instrument("session.create", s.handleSessionCreate))
	_ = s.RegisterMethod("session.query", s.instrument("session.query", s.handleSessionQuery))
	_ = s.RegisterMethod("session.progress", s.instrument("session.progress", s.handleSessionProgress))
	_ = s.RegisterMethod("session.reset", s.instrument("session.reset", s.handleSessionReset))
	_ = s.RegisterMethod("session.delete", s.instrument("session.delete", s.handleSessionDelete))
	_ = s.RegisterMethod("session.list", s.instrument("session.list", s.handleSessionList))
	_ = s.RegisterMethod("gateway.status", s.instrument("gateway.status", s.handleGatewayStatus))
}

// instrument wraps a handler with request counting and per-method metrics.
func (s *Server) instrument(method string, handler RequestHandler) RequestHandler {
	return func(params map[string]interface{}) (interface{}, error) {
		s.counter.RecordRequest()

		result, err := handler(params)
		status := "ok"
		if err != nil {
			status = "error"
		}
		observability.RecordGatewayRequest(method, status)
		return result, err
	}
}

func stringParam(params map[string]interface{}, key string) (string, bool) {
	v, ok := params[key].(string)
	return v, ok
}

// intParam reads an optional integer parameter. JSON numbers decode as
// float64; fractional values are rejected rather than truncated.
func intParam(params map[string]interface{}, key string) (int, bool, error) {
	raw, present := params[key]
	if !present {
		return 0, false, nil
	}
	v, ok := raw.(float64)
	if !ok || v != float64(int(v)) {
		return 0, true, &RPCError{Code: InvalidParams, Message: fmt.Sprintf("%s must be an integer", key)}
	}
	return int(v), true, nil
}

// handleSessionCreate handles session.create RPC method
func (s *Server) handleSessionCreate(params map[string]interface{}) (interface{}, error) {
	owner, ok := stringParam(params, "owner")
	if !ok {
		return nil, &RPCError{Code: InvalidParams, Message: "owner parameter is required and must be a string"}
	}
	owner = strings.TrimSpace(owner)
	if owner == "" || len(owner) > maxOwnerLength {
		return nil, &RPCError{Code: InvalidParams, Message: fmt.Sprintf("owner must be 1-%d characters", maxOwnerLength)}
	}

	toolSet, ok := stringParam(params, "tool_set")
	if !ok {
		return nil, &RPCError{Code: InvalidParams, Message: "tool_set parameter is required and must be a string"}
	}

	cfg := session.Config{}
	maxMessages, ok, err := intParam(params, "max_messages")
	if err != nil {
		return nil, err
	}
	if ok {
		if maxMessages < 1 || maxMessages > maxMessagesLimit {
			return nil, &RPCError{Code: InvalidParams, Message: fmt.Sprintf("max_messages must be 1-%d", maxMessagesLimit)}
		}
		cfg.MaxMessages = maxMessages
	}
	if summarize, ok := params["summarize_removed"].(bool); ok {
		cfg.SummarizeRemoved = summarize
	}

	rec, err := s.registry.Create(toolSet, owner, cfg)
	if err != nil {
		return nil, err
	}

	return rec.Descriptor(), nil
}

// handleSessionQuery handles session.query RPC method
func (s *Server) handleSessionQuery(params map[string]interface{}) (interface{}, error) {
	sessionID, ok := stringParam(params, "session_id")
	if !ok {
		return nil, &RPCError{Code: InvalidParams, Message: "session_id parameter is required and must be a string"}
	}

	text, ok := stringParam(params, "query")
	if !ok {
		return nil, &RPCError{Code: InvalidParams, Message: "query parameter is required and must be a string"}
	}

	maxIterations := defaultMaxIterations
	iterations, ok, err := intParam(params, "max_iterations")
	if err != nil {
		return nil, err
	}
	if ok {
		if iterations < 1 || iterations > maxIterationsLimit {
			return nil, &RPCError{Code: InvalidParams, Message: fmt.Sprintf("max_iterations must be 1-%d", maxIterationsLimit)}
		}
		maxIterations = iterations
	}

	timeout := s.queryTimeout
	seconds, ok, err := intParam(params, "timeout_seconds")
	if err != nil {
		return nil, err
	}
	if ok && seconds > 0 {
		timeout = time.Duration(seconds) * time.Second
	}

	rec, err := s.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}

	result, err := s.executor.Execute(context.Background(), rec, text, maxIterations, timeout)
	if err != nil {
		return nil, err
	}

	return result, nil
}

// handleSessionProgress handles session.progress RPC method
func (s *Server) handleSessionProgress(params map[string]interface{}) (interface{}, error) {
	sessionID, ok := stringParam(params, "session_id")
	if !ok {
		return nil, &RPCError{Code: InvalidParams, Message: "session_id parameter is required and must be a string"}
	}

	rec, err := s.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}

	inProgress, currentQuery := rec.Processing()
	return map[string]interface{}{
		"session_id":    sessionID,
		"in_progress":   inProgress,
		"current_query": currentQuery,
		"steps":         rec.ProgressSteps(),
	}, nil
}

// handleSessionReset handles session.reset RPC method
func (s *Server) handleSessionReset(params map[string]interface{}) (interface{}, error) {
	sessionID, ok := stringParam(params, "session_id")
	if !ok {
		return nil, &RPCError{Code: InvalidParams, Message: "session_id parameter is required and must be a string"}
	}

	if _, err := s.registry.Reset(sessionID); err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"session_id": sessionID,
		"reset":      true,
	}, nil
}

// handleSessionDelete handles session.delete RPC method
func (s *Server) handleSessionDelete(params map[string]interface{}) (interface{}, error) {
	sessionID, ok := stringParam(params, "session_id")
	if !ok {
		return nil, &RPCError{Code: InvalidParams, Message: "session_id parameter is required and must be a string"}
	}

	existed := s.registry.Delete(sessionID)
	return map[string]interface{}{
		"session_id": sessionID,
		"deleted":    existed,
	}, nil
}

// handleSessionList handles session.list RPC method
func (s *Server) handleSessionList(params map[string]interface{}) (interface{}, error) {
	owner, ok := stringParam(params, "owner")
	if !ok {
		return nil, &RPCError{Code: InvalidParams, Message: "owner parameter is required and must be a string"}
	}

	records := s.registry.ListForOwner(owner)
	descriptors := make([]session.Descriptor, 0, len(records))
	for _, rec := range records {
		descriptors = append(descriptors, rec.Descriptor())
	}

	return map[string]interface{}{
		"owner":    owner,
		"sessions": descriptors,
		"count":    len(descriptors),
	}, nil
}

// handleGatewayStatus handles gateway.status RPC method
func (s *Server) handleGatewayStatus(params map[string]interface{}) (interface{}, error) {
	stats := s.counter.Snapshot()

	return map[string]interface{}{
		"active_sessions":    s.registry.CountActive(),
		"connected_clients":  s.clients.Count(),
		"total_requests":     stats.TotalRequests,
		"total_queries":      stats.TotalQueries,
		"average_query_time": stats.AverageQueryTime,
		"uptime_seconds":     int64(time.Since(s.startedAt).Seconds()),
	}, nil
}
