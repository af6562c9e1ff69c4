package session

import (
	"sync"

	"github.com/harun/agentgate/pkg/agent"
)

// ProgressLog collects the structured steps of one in-flight query. It is
// detached from the record when the query ends; a worker that outlives its
// deadline keeps appending into a closed log, where writes are dropped, and
// never touches the record itself.
type ProgressLog struct {
	mu     sync.Mutex
	closed bool
	steps  []agent.Step
}

// Append records a step. Dropped once the log is closed.
func (p *ProgressLog) Append(step agent.Step) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.steps = append(p.steps, step)
}

// Steps returns a snapshot of the recorded steps.
func (p *ProgressLog) Steps() []agent.Step {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]agent.Step, len(p.steps))
	copy(out, p.steps)
	return out
}

// Close stops accepting new steps.
func (p *ProgressLog) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}
