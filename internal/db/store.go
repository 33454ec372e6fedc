package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrSessionNotFound is returned when no redirect session matches a post-login.
var ErrSessionNotFound = errors.New("session not found")

// LoginEvent is one audited handshake step. Passwords are never stored.
type LoginEvent struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	ConnID    uint64    `json:"conn_id"`
	Remote    string    `json:"remote"`
	Account   string    `json:"account,omitempty"`
	Opcode    int       `json:"opcode"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is a redirect key issued to an account on server select.
type Session struct {
	ID        int64     `json:"id"`
	Key       uint32    `json:"key"`
	Account   string    `json:"account"`
	Remote    string    `json:"remote"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the login audit and session store.
type Store struct {
	db *Database
}

// migrations are applied in order; the index+1 is the schema version.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS login_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		conn_id INTEGER NOT NULL,
		remote TEXT NOT NULL DEFAULT '',
		account TEXT NOT NULL DEFAULT '',
		opcode INTEGER NOT NULL DEFAULT 0,
		detail TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_login_events_created ON login_events(created_at);
	CREATE INDEX IF NOT EXISTS idx_login_events_kind ON login_events(kind);`,

	`CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_key INTEGER NOT NULL,
		account TEXT NOT NULL,
		remote TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_key_account ON sessions(session_key, account);`,
}

// NewStore opens the database at path and brings its schema up to date.
func NewStore(path string) (*Store, error) {
	database, err := NewDatabase(path)
	if err != nil {
		return nil, err
	}

	s := &Store{db: database}
	if err := s.migrate(context.Background()); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate login store: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SchemaVersion returns the number of applied migrations.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRow(ctx, "PRAGMA user_version").Scan(&v)
	return v, err
}

func (s *Store) migrate(ctx context.Context) error {
	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		version := i + 1
		err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version))
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %d failed: %w", version, err)
		}
		log.Debug().Int("version", version).Msg("database schema migrated")
	}
	return nil
}

// RecordLoginEvent appends ev to the audit log and returns its id.
func (s *Store) RecordLoginEvent(ctx context.Context, ev LoginEvent) (int64, error) {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	res, err := s.db.Exec(ctx,
		`INSERT INTO login_events (kind, conn_id, remote, account, opcode, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.Kind, int64(ev.ConnID), ev.Remote, ev.Account, ev.Opcode, ev.Detail, ev.CreatedAt.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to record login event: %w", err)
	}
	return res.LastInsertId()
}

// RecentLoginEvents returns up to limit events, newest first.
func (s *Store) RecentLoginEvents(ctx context.Context, limit int) ([]LoginEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, kind, conn_id, remote, account, opcode, detail, created_at
		 FROM login_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query login events: %w", err)
	}
	defer rows.Close()

	var out []LoginEvent
	for rows.Next() {
		var (
			ev      LoginEvent
			connID  int64
			created int64
		)
		if err := rows.Scan(&ev.ID, &ev.Kind, &connID, &ev.Remote, &ev.Account, &ev.Opcode, &ev.Detail, &created); err != nil {
			return nil, err
		}
		ev.ConnID = uint64(connID)
		ev.CreatedAt = time.UnixMilli(created)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// CountByKind returns the number of audited events per kind.
func (s *Store) CountByKind(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.Query(ctx, `SELECT kind, COUNT(*) FROM login_events GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to count login events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			kind string
			n    int64
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

// PruneLoginEvents deletes events created before olderThan.
func (s *Store) PruneLoginEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.Exec(ctx, `DELETE FROM login_events WHERE created_at < ?`, olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune login events: %w", err)
	}
	return res.RowsAffected()
}

// RecordSession stores a redirect key issued to an account.
func (s *Store) RecordSession(ctx context.Context, sess Session) error {
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO sessions (session_key, account, remote, created_at) VALUES (?, ?, ?, ?)`,
		int64(sess.Key), sess.Account, sess.Remote, sess.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record session: %w", err)
	}
	return nil
}

// LookupSession returns the newest session for key and account.
func (s *Store) LookupSession(ctx context.Context, key uint32, account string) (*Session, error) {
	var (
		sess    Session
		rawKey  int64
		created int64
	)
	err := s.db.QueryRow(ctx,
		`SELECT id, session_key, account, remote, created_at FROM sessions
		 WHERE session_key = ? AND account = ? ORDER BY id DESC LIMIT 1`,
		int64(key), account).Scan(&sess.ID, &rawKey, &sess.Account, &sess.Remote, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	sess.Key = uint32(rawKey)
	sess.CreatedAt = time.UnixMilli(created)
	return &sess, nil
}

// PruneSessions deletes sessions created before olderThan.
func (s *Store) PruneSessions(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE created_at < ?`, olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}
	return res.RowsAffected()
}
