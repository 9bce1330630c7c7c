package confirm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Imdavyking/PayperAI/pkg/session"
)

type pendingState int

const (
	stateAwaitingDecision pendingState = iota
	stateResolved
)

// Pending is one COMMAND call waiting on a human decision. It moves
// through exactly two states: awaiting a decision, then resolved.
type Pending struct {
	Call      session.ToolCall
	Message   string
	CreatedAt time.Time

	mu       sync.Mutex
	state    pendingState
	decision chan bool
}

// NewPending wraps a tool call with its confirmation message.
func NewPending(call session.ToolCall, message string) *Pending {
	return &Pending{
		Call:      call,
		Message:   message,
		CreatedAt: time.Now(),
		decision:  make(chan bool, 1),
	}
}

// Resolve records the decision. Exactly one resolve succeeds; any
// later call errors so a double-click or a racing surface cannot flip
// an already-delivered verdict.
func (p *Pending) Resolve(approved bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == stateResolved {
		return fmt.Errorf("confirmation for %s already resolved", p.Call.Name)
	}

	p.state = stateResolved
	p.decision <- approved
	return nil
}

// Abandon marks the pending resolved without a decision, so a surface
// that dequeues it later cannot approve a command whose rejection was
// already reported. Errors if a decision got there first.
func (p *Pending) Abandon() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == stateResolved {
		return fmt.Errorf("confirmation for %s already resolved", p.Call.Name)
	}

	p.state = stateResolved
	return nil
}

// Wait blocks until the decision arrives or the context ends.
func (p *Pending) Wait(ctx context.Context) (bool, error) {
	select {
	case approved := <-p.decision:
		return approved, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Resolved reports whether a decision has been recorded.
func (p *Pending) Resolved() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == stateResolved
}
