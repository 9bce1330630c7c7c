package confirm

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Imdavyking/PayperAI/internal/tracing"
	"github.com/Imdavyking/PayperAI/pkg/session"
	"github.com/Imdavyking/PayperAI/pkg/tools"
)

// Action runs an approved command and reports the outcome as text.
// Failures are part of the outcome, never returned as errors.
type Action func(ctx context.Context, args map[string]interface{}) string

// DispatcherConfig wires a Dispatcher.
type DispatcherConfig struct {
	Registry    *tools.Registry
	Coordinator *Coordinator
	// Actions binds COMMAND tool names to their wallet-backed
	// implementations.
	Actions map[string]Action
	// DecisionTimeout bounds how long a single confirmation may sit
	// undecided. Zero means wait indefinitely.
	DecisionTimeout time.Duration
}

// Dispatcher walks a turn's tool calls in order and produces one
// outcome string per call: QUERY calls surface their attached result,
// COMMAND calls go through the confirmation queue and, when approved,
// their bound action.
type Dispatcher struct {
	registry    *tools.Registry
	coordinator *Coordinator
	actions     map[string]Action
	timeout     time.Duration
}

// NewDispatcher validates configuration and builds the dispatcher.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if cfg.Coordinator == nil {
		return nil, fmt.Errorf("coordinator is required")
	}

	return &Dispatcher{
		registry:    cfg.Registry,
		coordinator: cfg.Coordinator,
		actions:     cfg.Actions,
		timeout:     cfg.DecisionTimeout,
	}, nil
}

// Dispatch produces outcome strings for the calls, in call order.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []session.ToolCall) []string {
	outcomes := make([]string, 0, len(calls))
	for _, call := range calls {
		outcomes = append(outcomes, d.dispatchOne(ctx, call))
	}
	return outcomes
}

func (d *Dispatcher) dispatchOne(ctx context.Context, call session.ToolCall) string {
	ctx, span := tracing.StartSpan(
		ctx,
		"payperai.confirm",
		"confirm.dispatch",
		attribute.String("tool", call.Name),
	)
	defer span.End()

	def, ok := d.registry.Resolve(call.Name)
	if !ok {
		log.Warn().Str("tool", call.Name).Msg("Unknown tool in dispatch")
		return fmt.Sprintf("Tool %s not found", call.Name)
	}

	if def.Kind == tools.KindQuery {
		return queryResult(call)
	}

	message := d.registry.ConfirmationMessage(call.Name, call.Arguments)
	pending := NewPending(call, message)

	if err := d.coordinator.Submit(pending); err != nil {
		log.Error().Err(err).Str("tool", call.Name).Msg("Failed to queue confirmation")
		return fmt.Sprintf("Rejected: %s", message)
	}

	waitCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	approved, err := pending.Wait(waitCtx)
	if err != nil {
		if pending.Abandon() == nil {
			log.Warn().
				Err(err).
				Str("tool", call.Name).
				Msg("Confirmation abandoned")
			return fmt.Sprintf("Rejected: %s", message)
		}
		// A decision raced the deadline; honor it.
		approved = <-pending.decision
	}

	if !approved {
		log.Info().Str("tool", call.Name).Msg("Command denied")
		return fmt.Sprintf("Rejected: %s", message)
	}

	action, bound := d.actions[call.Name]
	if !bound {
		log.Error().Str("tool", call.Name).Msg("Approved command has no bound action")
		return fmt.Sprintf("Tool %s not found", call.Name)
	}

	log.Info().Str("tool", call.Name).Msg("Command approved")
	return action(ctx, call.Arguments)
}

// queryResult surfaces the result attached by server-side resolution.
func queryResult(call session.ToolCall) string {
	if result, ok := call.Arguments[tools.ResultField].(string); ok {
		return result
	}
	return fmt.Sprintf("Tool %s returned no result", call.Name)
}
