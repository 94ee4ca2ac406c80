// Package persistence provides durable on-disk storage for graph snapshots
// between process restarts, adapted from the teacher's internal/storage
// SQLite backend: same connection setup, schema-bootstrap-on-open, and
// prepared-statement CRUD idiom, repointed from per-thought rows to one
// JSON snapshot blob per session.
package persistence

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"axiomforge/internal/graph"
)

// Config mirrors the teacher's storage.Config env-driven convention.
type Config struct {
	Path       string
	TimeoutMs  int
}

// DefaultConfig returns the default on-disk path, under the process's
// working directory, matching the teacher's "./data/*.db" convention.
func DefaultConfig() Config {
	return Config{Path: "./data/axiomforge.db", TimeoutMs: 5000}
}

// ConfigFromEnv overlays AXIOMFORGE_SNAPSHOT_PATH onto the default config.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if p := os.Getenv("AXIOMFORGE_SNAPSHOT_PATH"); p != "" {
		cfg.Path = p
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			log.Printf("warning: failed to create snapshot directory %s: %v", dir, err)
		}
	}
	return cfg
}

// SnapshotStore persists graph.JSONSnapshot values keyed by session id.
type SnapshotStore struct {
	db *sql.DB

	stmtUpsert *sql.Stmt
	stmtGet    *sql.Stmt
	stmtList   *sql.Stmt
}

// Open opens (creating if needed) the sqlite-backed snapshot store.
func Open(cfg Config) (*SnapshotStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("snapshot store path cannot be empty")
	}
	dsn := cfg.Path + fmt.Sprintf("?_busy_timeout=%d", cfg.TimeoutMs)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping snapshot database: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure sqlite pragmas: %w", err)
	}
	if err := initializeSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize snapshot schema: %w", err)
	}

	s := &SnapshotStore{db: db}
	if err := s.prepareStatements(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to prepare snapshot statements: %w", err)
	}
	return s, nil
}

func initializeSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS session_snapshots (
			session_id  TEXT PRIMARY KEY,
			snapshot_id INTEGER NOT NULL,
			payload     TEXT NOT NULL,
			updated_at  TIMESTAMP NOT NULL
		);
	`)
	return err
}

func (s *SnapshotStore) prepareStatements() error {
	var err error
	s.stmtUpsert, err = s.db.Prepare(`
		INSERT INTO session_snapshots (session_id, snapshot_id, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			snapshot_id=excluded.snapshot_id,
			payload=excluded.payload,
			updated_at=excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert snapshot: %w", err)
	}
	s.stmtGet, err = s.db.Prepare(`SELECT payload FROM session_snapshots WHERE session_id = ?`)
	if err != nil {
		return fmt.Errorf("prepare get snapshot: %w", err)
	}
	s.stmtList, err = s.db.Prepare(`SELECT session_id FROM session_snapshots ORDER BY updated_at DESC`)
	if err != nil {
		return fmt.Errorf("prepare list snapshots: %w", err)
	}
	return nil
}

// SaveSnapshot persists the session's current graph snapshot.
func (s *SnapshotStore) SaveSnapshot(sessionID string, snap *graph.JSONSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.stmtUpsert.Exec(sessionID, snap.SnapshotID, string(payload), time.Now())
	return err
}

// LoadSnapshot fetches the last persisted snapshot for a session.
func (s *SnapshotStore) LoadSnapshot(sessionID string) (*graph.JSONSnapshot, error) {
	var payload string
	if err := s.stmtGet.QueryRow(sessionID).Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no snapshot found for session %q", sessionID)
		}
		return nil, err
	}
	var snap graph.JSONSnapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// ListSessions returns every session id with a persisted snapshot, most
// recently updated first.
func (s *SnapshotStore) ListSessions() ([]string, error) {
	rows, err := s.stmtList.Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close releases the underlying database handle.
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}
