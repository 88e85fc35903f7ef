// Package persistence implements the write-ahead append-only log plus
// periodic snapshot compaction described in spec §4.8. It is grounded in the
// teacher's internal/storage/storage.go (SQLite opened with
// _journal_mode=WAL, single-writer connection pool, schema-on-open) and
// internal/storage/swaps.go (JSON-blob columns for the parts of a record that
// don't need their own SQL columns), generalized from the teacher's MuSig2
// swap-recovery schema to this spec's hashlock-keyed event log.
//
// On restart, orchestrators rebuild in-memory state from the latest snapshot
// plus the log tail, then reconcile by re-querying each chain (spec §4.8) —
// this package only owns the log/snapshot mechanics, not the reconciliation
// itself.
package persistence

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Store is the write-ahead log backing store.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// Open opens (creating if necessary) the SQLite-WAL backed log at dbPath.
func Open(dbPath string) (*Store, error) {
	dbPath = expandPath(dbPath)
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("persistence: create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("persistence: open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: ping db: %w", err)
	}
	// SQLite supports exactly one writer; a single pooled connection avoids
	// SQLITE_BUSY under our single-task-per-process concurrency model (spec §5).
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, dbPath: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: init schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS event_log (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id   TEXT NOT NULL,
		hashlock   TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload    TEXT NOT NULL,
		recorded_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_event_log_hashlock ON event_log(hashlock);

	CREATE TABLE IF NOT EXISTS scanned_blocks (
		chain  TEXT PRIMARY KEY,
		height INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// AppendEvent appends one event row to the write-ahead log. eventType is a
// short tag (e.g. "native_observation", "quote_observation", "preimage",
// "register") and payload is the JSON-encoded event body. The row is stamped
// with a generated event id so it can be cross-referenced against an operator
// alert (internal/alerts.Event.ID) raised around the same time.
func (s *Store) AppendEvent(hashlockHex, eventType, payloadJSON string, recordedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO event_log (event_id, hashlock, event_type, payload, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), hashlockHex, eventType, payloadJSON, recordedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("persistence: append event: %w", err)
	}
	return nil
}

// LogEvent is one row read back from the event log.
type LogEvent struct {
	Seq         int64
	EventID     string
	Hashlock    string
	EventType   string
	PayloadJSON string
	RecordedAt  time.Time
}

// TailSince returns all events with seq > afterSeq, in order. Used to replay
// the log tail on top of the last snapshot (spec §4.8).
func (s *Store) TailSince(afterSeq int64) ([]LogEvent, error) {
	rows, err := s.db.Query(
		`SELECT seq, event_id, hashlock, event_type, payload, recorded_at FROM event_log WHERE seq > ? ORDER BY seq ASC`,
		afterSeq,
	)
	if err != nil {
		return nil, fmt.Errorf("persistence: tail since: %w", err)
	}
	defer rows.Close()

	var events []LogEvent
	for rows.Next() {
		var e LogEvent
		var recordedAtUnix int64
		if err := rows.Scan(&e.Seq, &e.EventID, &e.Hashlock, &e.EventType, &e.PayloadJSON, &recordedAtUnix); err != nil {
			return nil, fmt.Errorf("persistence: scan event: %w", err)
		}
		e.RecordedAt = time.Unix(recordedAtUnix, 0)
		events = append(events, e)
	}
	return events, rows.Err()
}

// CompactBefore deletes log entries with seq <= upToSeq, called after a fresh
// snapshot has durably captured everything up to that point (spec §4.8
// "periodic compaction to a snapshot").
func (s *Store) CompactBefore(upToSeq int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM event_log WHERE seq <= ?`, upToSeq)
	if err != nil {
		return fmt.Errorf("persistence: compact: %w", err)
	}
	return nil
}

// LatestSeq returns the highest seq currently stored, or 0 if the log is empty.
func (s *Store) LatestSeq() (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRow(`SELECT MAX(seq) FROM event_log`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("persistence: latest seq: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

// SetScannedBlock records the last-scanned block height for a chain (native
// chain id "native", or an EVM chain's configured name), supporting the LP
// orchestrator's detection phase (spec §4.6 step 1: "since last_scanned_block").
func (s *Store) SetScannedBlock(chain string, height uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO scanned_blocks (chain, height) VALUES (?, ?)
		 ON CONFLICT(chain) DO UPDATE SET height = excluded.height`,
		chain, height,
	)
	if err != nil {
		return fmt.Errorf("persistence: set scanned block: %w", err)
	}
	return nil
}

// ScannedBlocks returns the last-scanned height per chain.
func (s *Store) ScannedBlocks() (map[string]uint64, error) {
	rows, err := s.db.Query(`SELECT chain, height FROM scanned_blocks`)
	if err != nil {
		return nil, fmt.Errorf("persistence: scanned blocks: %w", err)
	}
	defer rows.Close()

	out := make(map[string]uint64)
	for rows.Next() {
		var chain string
		var height uint64
		if err := rows.Scan(&chain, &height); err != nil {
			return nil, fmt.Errorf("persistence: scan scanned_blocks row: %w", err)
		}
		out[chain] = height
	}
	return out, rows.Err()
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
