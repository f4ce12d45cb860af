package actions

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// SQLiteStore persists action metadata so dedup and pending navigations
// survive process restarts.
type SQLiteStore struct {
	db *sql.DB
}

var _ MetadataStore = &SQLiteStore{}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite metadata store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	if s == nil || s.db == nil {
		return errors.New("sqlite metadata store: db is nil")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS processed_actions (
			message_id TEXT PRIMARY KEY,
			processed_at_ms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS pending_navigation (
			slot INTEGER PRIMARY KEY CHECK (slot = 1),
			url TEXT NOT NULL,
			selector TEXT NOT NULL DEFAULT '',
			on_load_text TEXT NOT NULL DEFAULT '',
			created_at_ms INTEGER NOT NULL
		);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite metadata store: migrate")
		}
	}
	return nil
}

func (s *SQLiteStore) IsActionProcessed(ctx context.Context, messageID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, errors.New("sqlite metadata store: db is nil")
	}
	if strings.TrimSpace(messageID) == "" {
		return false, errors.New("sqlite metadata store: messageID is empty")
	}
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM processed_actions WHERE message_id = ?`, messageID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "sqlite metadata store: lookup")
	}
	return true, nil
}

func (s *SQLiteStore) MarkActionProcessed(ctx context.Context, messageID string) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite metadata store: db is nil")
	}
	if strings.TrimSpace(messageID) == "" {
		return errors.New("sqlite metadata store: messageID is empty")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO processed_actions (message_id, processed_at_ms) VALUES (?, ?)`,
		messageID, time.Now().UnixMilli())
	if err != nil {
		return errors.Wrap(err, "sqlite metadata store: mark processed")
	}
	return nil
}

func (s *SQLiteStore) SavePendingNavigation(ctx context.Context, nav PendingNavigation) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite metadata store: db is nil")
	}
	if strings.TrimSpace(nav.URL) == "" {
		return errors.New("sqlite metadata store: url is empty")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pending_navigation (slot, url, selector, on_load_text, created_at_ms)
		 VALUES (1, ?, ?, ?, ?)
		 ON CONFLICT(slot) DO UPDATE SET
			url = excluded.url,
			selector = excluded.selector,
			on_load_text = excluded.on_load_text,
			created_at_ms = excluded.created_at_ms`,
		nav.URL, nav.Selector, nav.OnLoadText, time.Now().UnixMilli())
	if err != nil {
		return errors.Wrap(err, "sqlite metadata store: save pending navigation")
	}
	return nil
}

func (s *SQLiteStore) TakePendingNavigation(ctx context.Context) (*PendingNavigation, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite metadata store: db is nil")
	}
	var nav PendingNavigation
	err := s.db.QueryRowContext(ctx,
		`SELECT url, selector, on_load_text FROM pending_navigation WHERE slot = 1`).
		Scan(&nav.URL, &nav.Selector, &nav.OnLoadText)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "sqlite metadata store: load pending navigation")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_navigation WHERE slot = 1`); err != nil {
		return nil, errors.Wrap(err, "sqlite metadata store: clear pending navigation")
	}
	return &nav, nil
}
