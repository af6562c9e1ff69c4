package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/agentgate/pkg/agent"
	"github.com/harun/agentgate/pkg/toolset"
)

// stubAgent is a minimal Agent for registry tests.
type stubAgent struct {
	mu     sync.Mutex
	turn   int
	delay  time.Duration
	askErr error
	answer string
}

func (a *stubAgent) Ask(ctx context.Context, prompt string, maxIterations int, progress agent.ProgressFunc) (*agent.Answer, error) {
	a.mu.Lock()
	delay := a.delay
	askErr := a.askErr
	answer := a.answer
	a.mu.Unlock()

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
	a.mu.Unlock()

	if answer == "" {
		answer = "ok"
	}
	return &agent.Answer{Text: answer, Iterations: 1}, nil
}

func (a *stubAgent) Turn() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.turn
}

func (a *stubAgent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.turn = 0
}

// captureRecorder collects events for assertions.
type captureRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureRecorder) RecordEvent(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captureRecorder) typesFor(sessionID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, ev := range c.events {
		if ev.SessionID == sessionID {
			out = append(out, ev.Type)
		}
	}
	return out
}

func stubFactory(toolSet string, cfg Config) (agent.Agent, error) {
	return &stubAgent{}, nil
}

func newTestRegistry(t *testing.T, opts Options) *Registry {
	t.Helper()
	return NewRegistry(opts, toolset.NewRegistry(), stubFactory, nil)
}

func TestCreateRejectsUnknownToolSet(t *testing.T) {
	r := newTestRegistry(t, Options{})

	_, err := r.Create("finance", "alice", Config{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidToolSet))
	assert.Contains(t, err.Error(), "finance")
}

func TestCreateAndGet(t *testing.T) {
	r := newTestRegistry(t, Options{})

	rec, err := r.Create("general", "alice", Config{})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "alice", rec.Owner)
	assert.Equal(t, "general", rec.ToolSet)
	assert.Equal(t, StatusActive, rec.Status())

	got, err := r.Get(rec.ID)
	require.NoError(t, err)
	assert.Same(t, rec, got)
}

func TestCreateSurfacesFactoryFailure(t *testing.T) {
	factory := func(toolSet string, cfg Config) (agent.Agent, error) {
		return nil, errors.New("no provider configured")
	}
	r := NewRegistry(Options{}, toolset.NewRegistry(), factory, nil)

	_, err := r.Create("general", "alice", Config{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExecutionFailed))
}

func TestGetUnknownSession(t *testing.T) {
	r := newTestRegistry(t, Options{})

	_, err := r.Get("no-such-id")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestGetExpiredSession(t *testing.T) {
	r := newTestRegistry(t, Options{TTL: 20 * time.Millisecond})

	rec, err := r.Create("general", "alice", Config{})
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)

	_, err = r.Get(rec.ID)
	assert.True(t, errors.Is(err, ErrExpired))
	assert.Equal(t, StatusExpired, rec.Status())

	// The expired session is removed, so a second lookup misses entirely.
	_, err = r.Get(rec.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestGetTouchesSession(t *testing.T) {
	r := newTestRegistry(t, Options{TTL: 60 * time.Millisecond})

	rec, err := r.Create("general", "alice", Config{})
	require.NoError(t, err)

	// Keep touching inside the TTL; the session must stay alive well past
	// one TTL from creation.
	for i := 0; i < 4; i++ {
		time.Sleep(30 * time.Millisecond)
		_, err := r.Get(rec.ID)
		require.NoError(t, err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	r := newTestRegistry(t, Options{})

	rec, err := r.Create("general", "alice", Config{})
	require.NoError(t, err)

	assert.True(t, r.Delete(rec.ID))
	assert.Equal(t, StatusTerminated, rec.Status())
	assert.False(t, r.Delete(rec.ID))

	_, err = r.Get(rec.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestOwnerCapEvictsOldestFirst(t *testing.T) {
	r := newTestRegistry(t, Options{MaxSessionsPerUser: 10})

	var ids []string
	for i := 0; i < 12; i++ {
		rec, err := r.Create("general", "alice", Config{})
		require.NoError(t, err)
		ids = append(ids, rec.ID)
		// Distinct creation timestamps keep the eviction order deterministic.
		time.Sleep(time.Millisecond)
	}

	assert.Len(t, r.ListForOwner("alice"), 10)

	// The two oldest sessions were evicted.
	for _, id := range ids[:2] {
		_, err := r.Get(id)
		assert.True(t, errors.Is(err, ErrNotFound), "session %s should be evicted", id)
	}
	for _, id := range ids[2:] {
		_, err := r.Get(id)
		assert.NoError(t, err, "session %s should survive", id)
	}
}

func TestOwnerCapIsPerOwner(t *testing.T) {
	r := newTestRegistry(t, Options{MaxSessionsPerUser: 2})

	a1, err := r.Create("general", "alice", Config{})
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = r.Create("general", "alice", Config{})
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	// Bob's sessions never count against Alice.
	for i := 0; i < 3; i++ {
		_, err := r.Create("general", "bob", Config{})
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	_, err = r.Get(a1.ID)
	assert.NoError(t, err)
	assert.Len(t, r.ListForOwner("bob"), 2)
}

func TestResetClearsConversation(t *testing.T) {
	r := newTestRegistry(t, Options{})

	rec, err := r.Create("general", "alice", Config{})
	require.NoError(t, err)

	_, err = rec.Agent().Ask(context.Background(), "hello", 1, nil)
	require.NoError(t, err)
	require.Equal(t, 1, rec.Agent().Turn())

	got, err := r.Reset(rec.ID)
	require.NoError(t, err)
	assert.Same(t, rec, got)
	assert.Equal(t, 0, rec.Agent().Turn())
}

func TestResetRejectedWhileQueryInFlight(t *testing.T) {
	r := newTestRegistry(t, Options{})

	rec, err := r.Create("general", "alice", Config{})
	require.NoError(t, err)

	_, err = rec.BeginQuery("long question")
	require.NoError(t, err)
	defer rec.EndQuery()

	_, err = r.Reset(rec.ID)
	assert.True(t, errors.Is(err, ErrConcurrentQuery))
}

func TestListForOwnerOrdersByCreation(t *testing.T) {
	r := newTestRegistry(t, Options{})

	var ids []string
	for i := 0; i < 3; i++ {
		rec, err := r.Create("ecommerce", "alice", Config{})
		require.NoError(t, err)
		ids = append(ids, rec.ID)
		time.Sleep(time.Millisecond)
	}

	listed := r.ListForOwner("alice")
	require.Len(t, listed, 3)
	for i, rec := range listed {
		assert.Equal(t, ids[i], rec.ID)
	}

	assert.Empty(t, r.ListForOwner("bob"))
}

func TestExpireSweep(t *testing.T) {
	r := newTestRegistry(t, Options{TTL: 20 * time.Millisecond})

	for i := 0; i < 3; i++ {
		_, err := r.Create("general", "alice", Config{})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, r.CountActive())

	time.Sleep(40 * time.Millisecond)

	fresh, err := r.Create("general", "bob", Config{})
	require.NoError(t, err)

	removed := r.ExpireSweep()
	assert.Equal(t, 3, removed)
	assert.Equal(t, 1, r.CountActive())

	_, err = r.Get(fresh.ID)
	assert.NoError(t, err)

	// Nothing left to sweep.
	assert.Equal(t, 0, r.ExpireSweep())
}

func TestLifecycleEventsRecorded(t *testing.T) {
	recorder := &captureRecorder{}
	r := NewRegistry(Options{TTL: 20 * time.Millisecond}, toolset.NewRegistry(), stubFactory, recorder)

	rec, err := r.Create("general", "alice", Config{})
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)
	r.ExpireSweep()

	types := recorder.typesFor(rec.ID)
	assert.Equal(t, []string{"created", ReasonExpired}, types)
}

func TestConcurrentCreateAndDelete(t *testing.T) {
	r := newTestRegistry(t, Options{MaxSessionsPerUser: 5})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := r.Create("general", "alice", Config{})
			if err != nil {
				return
			}
			r.Delete(rec.ID)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, r.CountActive())
}
