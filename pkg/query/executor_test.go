package query

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/agentgate/internal/metrics"
	"github.com/harun/agentgate/pkg/agent"
	"github.com/harun/agentgate/pkg/session"
	"github.com/harun/agentgate/pkg/toolset"
)

// testAgent is a configurable Agent for executor tests.
type testAgent struct {
	mu     sync.Mutex
	turn   int
	delay  time.Duration
	askErr error
	steps  []agent.Step
}

func (a *testAgent) setDelay(d time.Duration) {
	a.mu.Lock()
	a.delay = d
	a.mu.Unlock()
}

func (a *testAgent) Ask(ctx context.Context, prompt string, maxIterations int, progress agent.ProgressFunc) (*agent.Answer, error) {
	a.mu.Lock()
	delay := a.delay
	askErr := a.askErr
	steps := a.steps
	a.mu.Unlock()

	for _, step := range steps {
		if progress != nil {
			progress(step)
		}
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if askErr != nil {
		return nil, askErr
	}

	a.mu.Lock()
	a.turn++
	turn := a.turn
	a.mu.Unlock()

	text := "answer to: " + prompt
	if turn > 1 {
		text += " (with context)"
	}
	return &agent.Answer{Text: text, Iterations: 1, ToolsUsed: []string{"calculator"}}, nil
}

func (a *testAgent) Turn() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.turn
}

func (a *testAgent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.turn = 0
}

func newTestSession(t *testing.T, ag agent.Agent) (*session.Registry, *session.Record) {
	t.Helper()

	factory := func(toolSet string, cfg session.Config) (agent.Agent, error) {
		return ag, nil
	}
	r := session.NewRegistry(session.Options{}, toolset.NewRegistry(), factory, nil)
	rec, err := r.Create("general", "alice", session.Config{})
	require.NoError(t, err)
	return r, rec
}

func TestExecuteRejectsInvalidQuery(t *testing.T) {
	_, rec := newTestSession(t, &testAgent{})
	e := NewExecutor(metrics.NewCounter(), nil, time.Second)

	tests := []struct {
		name  string
		query string
	}{
		{"empty", ""},
		{"whitespace only", "   \n\t  "},
		{"too long", strings.Repeat("x", MaxQueryLength+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Execute(context.Background(), rec, tt.query, 3, 0)
			assert.True(t, errors.Is(err, session.ErrInvalidQuery))
		})
	}
}

func TestExecuteSuccess(t *testing.T) {
	counter := metrics.NewCounter()
	_, rec := newTestSession(t, &testAgent{})
	e := NewExecutor(counter, nil, time.Second)

	result, err := e.Execute(context.Background(), rec, "  what is 2+2?  ", 3, 0)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, rec.ID, result.SessionID)
	assert.Equal(t, "answer to: what is 2+2?", result.Answer)
	assert.Equal(t, 1, result.ConversationTurn)
	assert.False(t, result.HadContext)
	assert.Equal(t, []string{"calculator"}, result.ToolsUsed)
	assert.GreaterOrEqual(t, result.ExecutionTime, 0.0)

	stats := counter.Snapshot()
	assert.Equal(t, int64(1), stats.TotalQueries)
}

func TestExecuteConversationContext(t *testing.T) {
	_, rec := newTestSession(t, &testAgent{})
	e := NewExecutor(metrics.NewCounter(), nil, time.Second)

	first, err := e.Execute(context.Background(), rec, "my favorite color is blue", 3, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, first.ConversationTurn)
	assert.False(t, first.HadContext)

	second, err := e.Execute(context.Background(), rec, "what is my favorite color?", 3, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, second.ConversationTurn)
	assert.True(t, second.HadContext)
	assert.Contains(t, second.Answer, "with context")
}

func TestExecuteConcurrentQueriesFailFast(t *testing.T) {
	ag := &testAgent{delay: 200 * time.Millisecond}
	_, rec := newTestSession(t, ag)
	e := NewExecutor(metrics.NewCounter(), nil, 5*time.Second)

	const n = 8
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		successes  int
		concurrent int
	)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			_, err := e.Execute(context.Background(), rec, "question", 3, 0)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, session.ErrConcurrentQuery):
				concurrent++
				// Losers fail immediately, they never queue behind the winner.
				assert.Less(t, time.Since(start), 100*time.Millisecond)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, concurrent)
}

func TestExecuteTimeoutReleasesSession(t *testing.T) {
	ag := &testAgent{delay: 5 * time.Second}
	_, rec := newTestSession(t, ag)
	e := NewExecutor(metrics.NewCounter(), nil, time.Minute)

	start := time.Now()
	_, err := e.Execute(context.Background(), rec, "slow question", 3, time.Second)
	elapsed := time.Since(start)

	assert.True(t, errors.Is(err, session.ErrTimeout))
	assert.GreaterOrEqual(t, elapsed, time.Second)
	assert.Less(t, elapsed, 2*time.Second)

	// The exclusivity lock was released on timeout; the next query runs.
	ag.setDelay(0)
	result, err := e.Execute(context.Background(), rec, "fast question", 3, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "answer to: fast question", result.Answer)
}

// sleepyProvider ignores cancellation and answers after a fixed delay.
type sleepyProvider struct {
	delay time.Duration
}

func (p *sleepyProvider) Call(context.Context, agent.LLMRequest) (*agent.LLMResponse, error) {
	time.Sleep(p.delay)
	return &agent.LLMResponse{Content: "late answer"}, nil
}

func (p *sleepyProvider) Provider() string { return "sleepy" }

func TestExecuteTimeoutDiscardsLateResult(t *testing.T) {
	set, ok := toolset.NewRegistry().Get("general")
	require.True(t, ok)
	eng, err := agent.NewEngine(agent.EngineConfig{
		Provider: &sleepyProvider{delay: 300 * time.Millisecond},
		ToolSet:  set,
	})
	require.NoError(t, err)

	_, rec := newTestSession(t, eng)
	e := NewExecutor(metrics.NewCounter(), nil, time.Minute)

	_, err = e.Execute(context.Background(), rec, "slow question", 3, 100*time.Millisecond)
	require.ErrorIs(t, err, session.ErrTimeout)

	// Let the abandoned worker settle, then confirm it committed nothing.
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, 0, rec.Agent().Turn())

	result, err := e.Execute(context.Background(), rec, "fresh question", 3, time.Second)
	require.NoError(t, err)
	assert.False(t, result.HadContext)
	assert.Equal(t, 1, result.ConversationTurn)
}

func TestExecuteSurfacesAgentFailure(t *testing.T) {
	ag := &testAgent{askErr: errors.New("provider unavailable")}
	_, rec := newTestSession(t, ag)
	e := NewExecutor(metrics.NewCounter(), nil, time.Second)

	_, err := e.Execute(context.Background(), rec, "question", 3, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, session.ErrExecutionFailed))
	assert.Contains(t, err.Error(), "provider unavailable")

	// Failure also releases the lock.
	ag.mu.Lock()
	ag.askErr = nil
	ag.mu.Unlock()
	_, err = e.Execute(context.Background(), rec, "question", 3, 0)
	assert.NoError(t, err)
}

func TestExecuteCanceledContext(t *testing.T) {
	ag := &testAgent{delay: time.Second}
	_, rec := newTestSession(t, ag)
	e := NewExecutor(metrics.NewCounter(), nil, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := e.Execute(ctx, rec, "question", 3, 0)
	assert.True(t, errors.Is(err, session.ErrExecutionFailed))
}

func TestExecuteReportsProgress(t *testing.T) {
	ag := &testAgent{
		delay: 300 * time.Millisecond,
		steps: []agent.Step{{Tool: "calculator", Observation: "42"}},
	}
	_, rec := newTestSession(t, ag)
	e := NewExecutor(metrics.NewCounter(), nil, time.Minute)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := e.Execute(context.Background(), rec, "question", 3, 0)
		assert.NoError(t, err)
	}()

	// Mid-flight the step is visible on the record.
	assert.Eventually(t, func() bool {
		steps := rec.ProgressSteps()
		return len(steps) == 1 && steps[0].Tool == "calculator"
	}, time.Second, 10*time.Millisecond)

	<-done

	// After completion the log is detached.
	assert.Nil(t, rec.ProgressSteps())
}

func TestExecuteAverageLatency(t *testing.T) {
	counter := metrics.NewCounter()
	ag := &testAgent{delay: 20 * time.Millisecond}
	_, rec := newTestSession(t, ag)
	e := NewExecutor(counter, nil, time.Minute)

	for i := 0; i < 3; i++ {
		_, err := e.Execute(context.Background(), rec, "question", 3, 0)
		require.NoError(t, err)
	}

	stats := counter.Snapshot()
	assert.Equal(t, int64(3), stats.TotalQueries)
	assert.GreaterOrEqual(t, stats.AverageQueryTime, 0.02)
}
