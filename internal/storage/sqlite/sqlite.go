package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/kerbside-labs/kerbd/internal/storage"
	_ "modernc.org/sqlite"
)

// Store implements the storage.Store interface using SQLite.
type Store struct {
	db           *sql.DB
	segmentStore *segmentStore
	ledgerStore  *ledgerStore
	sessionStore *sessionStore
}

// Open creates a new SQLite-backed storage instance.
// Use ":memory:" for in-memory databases (useful for testing).
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only allows one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{
		db:           db,
		segmentStore: &segmentStore{db: db},
		ledgerStore:  &ledgerStore{db: db},
		sessionStore: &sessionStore{db: db},
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Segments returns the SegmentStore implementation.
func (s *Store) Segments() storage.SegmentStore {
	return s.segmentStore
}

// Ledger returns the LedgerStore implementation.
func (s *Store) Ledger() storage.LedgerStore {
	return s.ledgerStore
}

// Sessions returns the SessionStore implementation.
func (s *Store) Sessions() storage.SessionStore {
	return s.sessionStore
}
