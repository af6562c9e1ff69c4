package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harun/agentgate/internal/observability"
	"github.com/harun/agentgate/pkg/agent"
	"github.com/harun/agentgate/pkg/toolset"
	"github.com/rs/zerolog/log"
)

// Removal reasons, also used as audit event types.
const (
	ReasonEvicted    = "evicted"
	ReasonExpired    = "expired"
	ReasonTerminated = "terminated"
)

// Event is one session lifecycle event handed to the audit recorder.
type Event struct {
	Time      time.Time
	SessionID string
	Owner     string
	Type      string
	Detail    string
}

// EventRecorder receives lifecycle and query events. Implementations must be
// safe for concurrent use and must not block.
type EventRecorder interface {
	RecordEvent(ev Event)
}

// AgentFactory builds the conversation engine for a new session.
type AgentFactory func(toolSet string, cfg Config) (agent.Agent, error)

// Options configures a Registry.
type Options struct {
	// TTL is the idle duration after which a session is considered expired.
	TTL time.Duration
	// MaxSessionsPerUser caps an owner's active, non-expired sessions.
	MaxSessionsPerUser int
	// EvictionBatchLimit bounds how many sessions one Create call may evict.
	EvictionBatchLimit int
}

const defaultEvictionBatchLimit = 50

// Registry is the thread-safe owner of all session records. The map is
// private; all access goes through its operations.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Record

	ttl        time.Duration
	maxPerUser int
	evictLimit int

	toolsets *toolset.Registry
	newAgent AgentFactory
	recorder EventRecorder
}

// NewRegistry creates a registry. recorder may be nil.
func NewRegistry(opts Options, toolsets *toolset.Registry, factory AgentFactory, recorder EventRecorder) *Registry {
	observability.EnsureRegistered()

	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Minute
	}
	if opts.MaxSessionsPerUser <= 0 {
		opts.MaxSessionsPerUser = 10
	}
	if opts.EvictionBatchLimit <= 0 {
		opts.EvictionBatchLimit = defaultEvictionBatchLimit
	}

	return &Registry{
		sessions:   make(map[string]*Record),
		ttl:        opts.TTL,
		maxPerUser: opts.MaxSessionsPerUser,
		evictLimit: opts.EvictionBatchLimit,
		toolsets:   toolsets,
		newAgent:   factory,
		recorder:   recorder,
	}
}

// TTL returns the configured idle TTL.
func (r *Registry) TTL() time.Duration {
	return r.ttl
}

// Create validates the tool set, evicts the owner's oldest sessions if the
// per-owner cap would be exceeded, and inserts a new record atomically.
func (r *Registry) Create(toolSet, owner string, cfg Config) (*Record, error) {
	if !r.toolsets.IsSupported(toolSet) {
		return nil, InvalidToolSetError(toolSet)
	}

	eng, err := r.newAgent(toolSet, cfg)
	if err != nil {
		return nil, ExecutionError(err)
	}

	now := time.Now()
	rec := &Record{
		ID:             uuid.New().String(),
		Owner:          owner,
		ToolSet:        toolSet,
		CreatedAt:      now,
		agent:          eng,
		lastAccessedAt: now,
		status:         StatusActive,
	}

	r.mu.Lock()
	r.evictOverLimitLocked(owner, now)
	r.sessions[rec.ID] = rec
	count := r.countActiveLocked(now)
	r.mu.Unlock()

	observability.RecordSessionCreated(toolSet)
	observability.SetActiveSessions(count)
	r.record(Event{Time: now, SessionID: rec.ID, Owner: owner, Type: "created", Detail: toolSet})

	log.Info().
		Str("session_id", rec.ID).
		Str("owner", owner).
		Str("tool_set", toolSet).
		Msg("Session created")

	return rec, nil
}

// evictOverLimitLocked enforces the per-owner cap by removing the owner's
// oldest sessions first. At most evictLimit sessions are removed per call, so
// an owner far over the limit may need several Create calls to converge.
// Must be called with mu held.
func (r *Registry) evictOverLimitLocked(owner string, now time.Time) {
	var owned []*Record
	for _, rec := range r.sessions {
		if rec.Owner != owner {
			continue
		}
		if rec.Status() != StatusActive || rec.idleSince(now, r.ttl) {
			continue
		}
		owned = append(owned, rec)
	}

	if len(owned) < r.maxPerUser {
		return
	}

	sort.Slice(owned, func(i, j int) bool {
		return owned[i].CreatedAt.Before(owned[j].CreatedAt)
	})

	evict := len(owned) - r.maxPerUser + 1
	if evict > r.evictLimit {
		evict = r.evictLimit
	}

	for _, rec := range owned[:evict] {
		rec.markStatus(StatusTerminated)
		delete(r.sessions, rec.ID)
		observability.RecordSessionRemoved(ReasonEvicted)
		r.record(Event{Time: now, SessionID: rec.ID, Owner: owner, Type: ReasonEvicted, Detail: "capacity"})

		log.Info().
			Str("session_id", rec.ID).
			Str("owner", owner).
			Time("created_at", rec.CreatedAt).
			Msg("Session evicted for owner capacity")
	}
}

// Get returns the session, failing with ErrNotFound or ErrExpired. The expiry
// check, removal and access touch all happen under the registry lock so they
// cannot race a concurrent delete.
func (r *Registry) Get(id string) (*Record, error) {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}

	if rec.idleSince(now, r.ttl) {
		rec.markStatus(StatusExpired)
		delete(r.sessions, id)
		observability.RecordSessionRemoved(ReasonExpired)
		r.record(Event{Time: now, SessionID: id, Owner: rec.Owner, Type: ReasonExpired})
		return nil, ErrExpired
	}

	rec.touch(now)
	return rec, nil
}

// Delete removes the session if present and reports whether it existed.
func (r *Registry) Delete(id string) bool {
	now := time.Now()

	r.mu.Lock()
	rec, ok := r.sessions[id]
	if ok {
		rec.markStatus(StatusTerminated)
		delete(r.sessions, id)
	}
	count := r.countActiveLocked(now)
	r.mu.Unlock()

	if !ok {
		return false
	}

	observability.RecordSessionRemoved(ReasonTerminated)
	observability.SetActiveSessions(count)
	r.record(Event{Time: now, SessionID: id, Owner: rec.Owner, Type: ReasonTerminated})

	log.Info().Str("session_id", id).Msg("Session deleted")
	return true
}

// Reset clears the session's conversation state while keeping its identity.
// It takes the session's exclusivity lock so it cannot race an in-flight
// query; a busy session fails with ErrConcurrentQuery.
func (r *Registry) Reset(id string) (*Record, error) {
	rec, err := r.Get(id)
	if err != nil {
		return nil, err
	}

	if !rec.exec.TryLock() {
		return nil, ErrConcurrentQuery
	}
	defer rec.exec.Unlock()

	rec.agent.Reset()
	r.record(Event{Time: time.Now(), SessionID: id, Owner: rec.Owner, Type: "reset"})

	log.Info().Str("session_id", id).Msg("Session reset")
	return rec, nil
}

// ListForOwner returns the owner's active, non-expired sessions.
func (r *Registry) ListForOwner(owner string) []*Record {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Record
	for _, rec := range r.sessions {
		if rec.Owner != owner {
			continue
		}
		if rec.Status() != StatusActive || rec.idleSince(now, r.ttl) {
			continue
		}
		out = append(out, rec)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// CountActive returns the global active, non-expired session count.
func (r *Registry) CountActive() int {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.countActiveLocked(now)
}

func (r *Registry) countActiveLocked(now time.Time) int {
	count := 0
	for _, rec := range r.sessions {
		if rec.Status() == StatusActive && !rec.idleSince(now, r.ttl) {
			count++
		}
	}
	return count
}

// ExpireSweep removes every session whose idle time exceeds the TTL and
// returns how many were removed. It only touches record metadata, never the
// agent, so it never blocks on query execution.
func (r *Registry) ExpireSweep() int {
	now := time.Now()

	r.mu.Lock()
	var expired []*Record
	for id, rec := range r.sessions {
		if rec.idleSince(now, r.ttl) {
			rec.markStatus(StatusExpired)
			delete(r.sessions, id)
			expired = append(expired, rec)
		}
	}
	count := r.countActiveLocked(now)
	r.mu.Unlock()

	for _, rec := range expired {
		observability.RecordSessionRemoved(ReasonExpired)
		r.record(Event{Time: now, SessionID: rec.ID, Owner: rec.Owner, Type: ReasonExpired})
	}
	observability.SetActiveSessions(count)

	if len(expired) > 0 {
		log.Info().Int("expired", len(expired)).Msg("Expired sessions removed")
	}
	return len(expired)
}

func (r *Registry) record(ev Event) {
	if r.recorder == nil {
		return
	}
	r.recorder.RecordEvent(ev)
}
