// Package confirm runs the client side of the command handshake. The
// agent surfaces COMMAND tool calls unexecuted; this package queues
// them for a human decision, runs approved actions through the wallet,
// and turns every decision into an outcome string for the session.
package confirm
