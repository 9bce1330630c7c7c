// Package agent turns a free-text task into one model response with
// structured tool calls, with provider failover and per-session
// serialization.
//
// Invariants:
//   - Turns are serialized per session lane through commandqueue.
//   - The human message is appended before the model call; a model
//     failure leaves the session with that human message and nothing else.
//   - Exactly one assistant message is appended per successful turn.
//   - QUERY tool calls are resolved inline before the append; COMMAND
//     tool calls are surfaced unexecuted.
//
// Usage:
//
//	engine, _ := agent.NewEngine(agent.EngineConfig{...})
//	result, _ := engine.Turn(ctx, agent.TurnParams{
//		SessionID: "abc",
//		Task:      "send 1 MOVE to 0x1",
//	})
//	_ = result
package agent
