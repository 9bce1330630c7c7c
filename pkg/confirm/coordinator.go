package confirm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

const defaultQueueDepth = 64

// Coordinator is the FIFO hand-off between a dispatcher producing
// pending confirmations and a surface (CLI prompt, websocket client)
// deciding them. Pendings come out in the order they went in, so a
// turn's commands are always decided in call order.
type Coordinator struct {
	pending chan *Pending
}

// NewCoordinator creates a coordinator with the default queue depth.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		pending: make(chan *Pending, defaultQueueDepth),
	}
}

// Submit enqueues a pending confirmation for the surface.
func (c *Coordinator) Submit(p *Pending) error {
	select {
	case c.pending <- p:
		log.Debug().
			Str("tool", p.Call.Name).
			Str("message", p.Message).
			Msg("Confirmation queued")
		return nil
	default:
		return fmt.Errorf("confirmation queue full")
	}
}

// Next blocks until an undecided confirmation is available or the
// context ends. Pendings abandoned while queued are discarded so the
// surface never prompts for a dead decision.
func (c *Coordinator) Next(ctx context.Context) (*Pending, error) {
	for {
		select {
		case p := <-c.pending:
			if p.Resolved() {
				log.Debug().Str("tool", p.Call.Name).Msg("Discarding abandoned confirmation")
				continue
			}
			return p, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Pendings exposes the confirmation queue for surfaces that select
// across multiple channels. Callers must skip entries that resolved
// while queued, as Next does.
func (c *Coordinator) Pendings() <-chan *Pending {
	return c.pending
}

// Depth reports how many confirmations are waiting for a decision.
func (c *Coordinator) Depth() int {
	return len(c.pending)
}
