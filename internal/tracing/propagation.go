package tracing

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
)

// HeaderTraceID is the HTTP header carrying the trace ID across services.
const HeaderTraceID = "X-Trace-Id"

// FromRequest builds a context from the incoming request headers.
// A missing trace ID gets a fresh one so every request is traceable.
func FromRequest(r *http.Request) context.Context {
	ctx := r.Context()

	traceID := r.Header.Get(HeaderTraceID)
	if traceID == "" {
		traceID = NewTraceID()
	}
	ctx = WithTraceID(ctx, traceID)

	if sessionID := r.Header.Get("X-Session-ID"); sessionID != "" {
		ctx = WithSessionID(ctx, sessionID)
	}

	return ctx
}

// InjectHeaders writes tracing information onto an outgoing request.
func InjectHeaders(ctx context.Context, h http.Header) {
	if traceID := GetTraceID(ctx); traceID != "" {
		h.Set(HeaderTraceID, traceID)
	}
}

// PropagateToLogger adds tracing context to a zerolog logger
func PropagateToLogger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)

	if tc.TraceID != "" {
		logger = logger.With().Str("trace_id", tc.TraceID).Logger()
	}
	if tc.TurnID != "" {
		logger = logger.With().Str("turn_id", tc.TurnID).Logger()
	}
	if tc.SessionID != "" {
		logger = logger.With().Str("session_id", tc.SessionID).Logger()
	}

	return logger
}

// MergeContext merges tracing information from source context into target context
func MergeContext(target, source context.Context) context.Context {
	tc := FromContext(source)

	if tc.TraceID != "" && GetTraceID(target) == "" {
		target = WithTraceID(target, tc.TraceID)
	}
	if tc.TurnID != "" && GetTurnID(target) == "" {
		target = WithTurnID(target, tc.TurnID)
	}
	if tc.SessionID != "" && GetSessionID(target) == "" {
		target = WithSessionID(target, tc.SessionID)
	}

	return target
}
