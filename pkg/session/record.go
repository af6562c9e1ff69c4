package session

import (
	"sync"
	"time"

	"github.com/harun/agentgate/pkg/agent"
)

// Status is the lifecycle state of a session. Transitions are monotonic:
// active -> expired or active -> terminated.
type Status string

const (
	StatusActive     Status = "active"
	StatusExpired    Status = "expired"
	StatusTerminated Status = "terminated"
)

// Config holds per-session options supplied at creation.
type Config struct {
	MaxMessages      int  `json:"max_messages,omitempty"`
	SummarizeRemoved bool `json:"summarize_removed,omitempty"`
}

// Record is one session: immutable identity plus mutable runtime state.
type Record struct {
	ID        string
	Owner     string
	ToolSet   string
	CreatedAt time.Time

	agent agent.Agent

	// mu guards the metadata below. It is only ever acquired after the
	// registry lock, never the other way around.
	mu             sync.Mutex
	lastAccessedAt time.Time
	status         Status
	processing     bool
	currentQuery   string
	progress       *ProgressLog

	// exec serializes queries. Acquired with TryLock only; contenders fail
	// fast instead of queuing.
	exec sync.Mutex
}

// Agent returns the session's conversation engine.
func (r *Record) Agent() agent.Agent {
	return r.agent
}

// Status returns the session's lifecycle state.
func (r *Record) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// LastAccessedAt returns the last successful access time.
func (r *Record) LastAccessedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastAccessedAt
}

// Processing reports whether a query is in flight, and which one.
func (r *Record) Processing() (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.processing, r.currentQuery
}

// ProgressSteps returns the steps of the in-flight query, or nil when idle.
func (r *Record) ProgressSteps() []agent.Step {
	r.mu.Lock()
	progress := r.progress
	r.mu.Unlock()

	if progress == nil {
		return nil
	}
	return progress.Steps()
}

// BeginQuery attempts to take the exclusivity lock and mark the session as
// processing. Non-blocking: a session already executing a query fails
// immediately with ErrConcurrentQuery.
func (r *Record) BeginQuery(query string) (*ProgressLog, error) {
	if !r.exec.TryLock() {
		return nil, ErrConcurrentQuery
	}

	progress := &ProgressLog{}

	r.mu.Lock()
	r.processing = true
	r.currentQuery = query
	r.progress = progress
	r.mu.Unlock()

	return progress, nil
}

// EndQuery clears the processing state, detaches and closes the progress log,
// and releases the exclusivity lock. Must be called exactly once per
// successful BeginQuery, on every exit path.
func (r *Record) EndQuery() {
	r.mu.Lock()
	progress := r.progress
	r.processing = false
	r.currentQuery = ""
	r.progress = nil
	r.mu.Unlock()

	if progress != nil {
		progress.Close()
	}

	r.exec.Unlock()
}

// touch updates the last access time.
func (r *Record) touch(now time.Time) {
	r.mu.Lock()
	r.lastAccessedAt = now
	r.mu.Unlock()
}

// Touch updates the last access time to now.
func (r *Record) Touch() {
	r.touch(time.Now())
}

// idleSince reports whether the session has idled longer than ttl at now.
func (r *Record) idleSince(now time.Time, ttl time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return now.Sub(r.lastAccessedAt) > ttl
}

// markStatus flips the lifecycle state. Transitions out of a terminal state
// are ignored.
func (r *Record) markStatus(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != StatusActive {
		return
	}
	r.status = s
}

// Descriptor is the read-only session view handed to the service layer.
type Descriptor struct {
	ID               string    `json:"session_id"`
	ToolSet          string    `json:"tool_set"`
	Owner            string    `json:"owner"`
	CreatedAt        time.Time `json:"created_at"`
	LastAccessedAt   time.Time `json:"last_accessed_at"`
	Status           Status    `json:"status"`
	ConversationTurn int       `json:"conversation_turn"`
}

// Descriptor captures a snapshot of the record.
func (r *Record) Descriptor() Descriptor {
	r.mu.Lock()
	lastAccessed := r.lastAccessedAt
	status := r.status
	r.mu.Unlock()

	return Descriptor{
		ID:               r.ID,
		ToolSet:          r.ToolSet,
		Owner:            r.Owner,
		CreatedAt:        r.CreatedAt,
		LastAccessedAt:   lastAccessed,
		Status:           status,
		ConversationTurn: r.agent.Turn(),
	}
}
