package payment

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// SQLiteConsumedStore persists consumed proofs so replay protection
// survives restarts. The primary-key insert makes Consume atomic at the
// database level.
type SQLiteConsumedStore struct {
	db *sql.DB
}

// NewSQLiteConsumedStore opens (and migrates) the store at dbPath.
func NewSQLiteConsumedStore(dbPath string) (*SQLiteConsumedStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open consumed store: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS consumed_proofs (
			fingerprint TEXT PRIMARY KEY,
			consumed_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_consumed_at ON consumed_proofs(consumed_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize consumed store schema: %w", err)
	}

	return &SQLiteConsumedStore{db: db}, nil
}

// Consume inserts the proof fingerprint; the unique constraint turns a
// second insert into ErrAlreadyConsumed.
func (s *SQLiteConsumedStore) Consume(proof string) error {
	_, err := s.db.Exec(
		"INSERT INTO consumed_proofs (fingerprint, consumed_at) VALUES (?, ?)",
		Fingerprint(proof), time.Now().Unix(),
	)
	if err != nil {
		if sqliteErr, ok := err.(sqlite3.Error); ok && sqliteErr.Code == sqlite3.ErrConstraint {
			return ErrAlreadyConsumed
		}
		return fmt.Errorf("failed to record consumed proof: %w", err)
	}
	return nil
}

// Seen reports whether the proof was consumed before.
func (s *SQLiteConsumedStore) Seen(proof string) bool {
	var n int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM consumed_proofs WHERE fingerprint = ?",
		Fingerprint(proof),
	).Scan(&n)
	return err == nil && n > 0
}

// Sweep deletes entries older than maxAge and returns how many went.
func (s *SQLiteConsumedStore) Sweep(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge).Unix()

	result, err := s.db.Exec("DELETE FROM consumed_proofs WHERE consumed_at < ?", cutoff)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to sweep consumed proofs")
		return 0
	}

	removed, _ := result.RowsAffected()
	return int(removed)
}

// Close closes the underlying database.
func (s *SQLiteConsumedStore) Close() error {
	return s.db.Close()
}
