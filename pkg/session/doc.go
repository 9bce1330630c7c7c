// Package session stores per-session conversation logs for the paid
// agent endpoints. A session is an append-only ordered list of human,
// assistant, and tool messages keyed by a caller-supplied session ID.
//
// Two backends implement the Store interface: MemoryStore for tests and
// single-process deployments, and JSONLStore which persists one JSONL
// file per session and survives restarts.
package session
