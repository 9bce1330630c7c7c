package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Imdavyking/PayperAI/internal/observability"
	"github.com/Imdavyking/PayperAI/internal/tracing"
)

// JSONLStore persists each session as one JSONL file under baseDir.
// Lines are appended and fsynced per message; corrupted lines are
// skipped on load so a torn write never poisons a whole session.
type JSONLStore struct {
	baseDir    string
	writeLocks map[string]*sync.Mutex
	locksMu    sync.RWMutex
}

// NewJSONLStore creates the store, creating baseDir if needed.
func NewJSONLStore(baseDir string) (*JSONLStore, error) {
	observability.EnsureRegistered()

	if baseDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(homeDir, ".payperai", "sessions")
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	s := &JSONLStore{
		baseDir:    baseDir,
		writeLocks: make(map[string]*sync.Mutex),
	}

	log.Info().Str("dir", baseDir).Msg("Session store initialized")
	s.updateActiveSessionsMetric()

	return s, nil
}

func (s *JSONLStore) sessionPath(sessionID string) string {
	return filepath.Join(s.baseDir, sessionID+".jsonl")
}

func (s *JSONLStore) updateActiveSessionsMetric() {
	sessions, err := s.List()
	if err != nil {
		return
	}
	observability.SetActiveSessions(len(sessions))
}

func (s *JSONLStore) writeLock(sessionID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	if lock, ok := s.writeLocks[sessionID]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	s.writeLocks[sessionID] = lock
	return lock
}

func (s *JSONLStore) releaseWriteLock(sessionID string) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	delete(s.writeLocks, sessionID)
}

// Append adds a message to the session file, creating it on first use.
func (s *JSONLStore) Append(ctx context.Context, sessionID string, msg Message) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = tracing.WithSessionID(ctx, sessionID)
	ctx, span := tracing.StartSpan(
		ctx,
		"payperai.session",
		"session.append",
		attribute.String("session_id", sessionID),
		attribute.String("role", string(msg.Role)),
	)
	defer span.End()
	logger := tracing.PropagateToLogger(ctx, log.Logger)
	start := time.Now()
	defer func() {
		observability.RecordSessionSave(time.Since(start))
	}()

	if err := ValidateSessionID(sessionID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := msg.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	lock := s.writeLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if msg.Role == RoleTool {
		history, err := s.load(ctx, sessionID)
		if err != nil {
			return err
		}
		if err := checkToolReference(history, msg); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	path := s.sessionPath(sessionID)
	created := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		created = true
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to open session file: %w", err)
	}
	defer file.Close()

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if _, err := file.Write(append(data, '\n')); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to write message: %w", err)
	}

	if err := file.Sync(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to sync session file: %w", err)
	}

	if created {
		s.updateActiveSessionsMetric()
		logger.Info().Str("session_id", sessionID).Msg("Session created")
	}

	logger.Debug().
		Str("session_id", sessionID).
		Str("role", string(msg.Role)).
		Msg("Message appended")

	return nil
}

// History returns the session's messages in append order. A session
// that was never written yields an empty history.
func (s *JSONLStore) History(ctx context.Context, sessionID string) ([]Message, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = tracing.WithSessionID(ctx, sessionID)
	ctx, span := tracing.StartSpan(
		ctx,
		"payperai.session",
		"session.history",
		attribute.String("session_id", sessionID),
	)
	defer span.End()
	start := time.Now()
	defer func() {
		observability.RecordSessionLoad(time.Since(start))
	}()

	if err := ValidateSessionID(sessionID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return s.load(ctx, sessionID)
}

func (s *JSONLStore) load(ctx context.Context, sessionID string) ([]Message, error) {
	logger := tracing.PropagateToLogger(ctx, log.Logger)

	path := s.sessionPath(sessionID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return []Message{}, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session file: %w", err)
	}
	defer file.Close()

	var messages []Message
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" {
			continue
		}

		var msg Message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			logger.Warn().
				Str("session_id", sessionID).
				Int("line", lineNum).
				Err(err).
				Msg("Failed to parse line, skipping")
			continue
		}

		if msg.Validate() != nil {
			logger.Warn().
				Str("session_id", sessionID).
				Int("line", lineNum).
				Msg("Invalid entry, skipping")
			continue
		}

		messages = append(messages, msg)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	if messages == nil {
		messages = []Message{}
	}
	return messages, nil
}

// Clear deletes the session file. Missing sessions are a no-op.
func (s *JSONLStore) Clear(ctx context.Context, sessionID string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = tracing.WithSessionID(ctx, sessionID)
	ctx, span := tracing.StartSpan(
		ctx,
		"payperai.session",
		"session.clear",
		attribute.String("session_id", sessionID),
	)
	defer span.End()
	logger := tracing.PropagateToLogger(ctx, log.Logger)

	if err := ValidateSessionID(sessionID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	lock := s.writeLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(s.sessionPath(sessionID)); err != nil && !os.IsNotExist(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to delete session file: %w", err)
	}

	s.releaseWriteLock(sessionID)
	s.updateActiveSessionsMetric()

	logger.Info().Str("session_id", sessionID).Msg("Session cleared")
	return nil
}

// List returns the IDs of all persisted sessions.
func (s *JSONLStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var sessions []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		sessions = append(sessions, strings.TrimSuffix(name, ".jsonl"))
	}

	return sessions, nil
}

// Repair rewrites a session file keeping only parseable lines.
func (s *JSONLStore) Repair(ctx context.Context, sessionID string) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}

	messages, err := s.History(ctx, sessionID)
	if err != nil {
		return err
	}

	lock := s.writeLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	path := s.sessionPath(sessionID)
	tempPath := path + ".tmp"

	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	for _, msg := range messages {
		data, err := json.Marshal(msg)
		if err != nil {
			file.Close()
			os.Remove(tempPath)
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		if _, err := file.Write(append(data, '\n')); err != nil {
			file.Close()
			os.Remove(tempPath)
			return fmt.Errorf("failed to write message: %w", err)
		}
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync file: %w", err)
	}
	file.Close()

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	log.Info().
		Str("session_id", sessionID).
		Int("messages", len(messages)).
		Msg("Session repaired")

	return nil
}
