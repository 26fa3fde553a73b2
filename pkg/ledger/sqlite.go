package ledger

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	errs "fantiadl/pkg/errors"
)

// SQLite wraps *sql.DB on modernc.org/sqlite (pure Go driver)
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens the database at path and runs the idempotent schema
// migration
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errs.Wrap(errs.KindLedgerIO, err, "failed to open ledger database")
	}
	// Writes must be strictly serialized, one upsert per post
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database
func (s *SQLite) Close() error {
	return s.db.Close()
}

// migrate creates the posts table and applies additive column migrations.
// Running it against an already-initialized database is a no-op.
func (s *SQLite) migrate() error {
	const create = `CREATE TABLE IF NOT EXISTS posts (
        post_id TEXT PRIMARY KEY,
        fanclub_id TEXT,
        completed INTEGER NOT NULL DEFAULT 0,
        checked_at TIMESTAMP
    );`
	if _, err := s.db.Exec(create); err != nil {
		return errs.Wrap(errs.KindLedgerIO, err, "failed to create ledger schema")
	}

	// Older databases predate optional columns; add them without touching
	// existing rows
	existing, err := s.columns("posts")
	if err != nil {
		return err
	}
	additive := map[string]string{
		"fanclub_id": "ALTER TABLE posts ADD COLUMN fanclub_id TEXT",
		"checked_at": "ALTER TABLE posts ADD COLUMN checked_at TIMESTAMP",
	}
	for col, stmt := range additive {
		if existing[col] {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return errs.Wrap(errs.KindLedgerIO, err, "failed to migrate ledger schema")
		}
	}
	return nil
}

func (s *SQLite) columns(table string) (map[string]bool, error) {
	rows, err := s.db.Query(`SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, errs.Wrap(errs.KindLedgerIO, err, "failed to inspect ledger schema")
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errs.Wrap(errs.KindLedgerIO, err, "failed to inspect ledger schema")
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.KindLedgerIO, err, "failed to inspect ledger schema")
	}
	return cols, nil
}

// ShouldProcess reports whether postID needs processing; see Ledger
func (s *SQLite) ShouldProcess(ctx context.Context, postID string, bypass bool) (bool, error) {
	if bypass {
		return true, nil
	}

	var completed bool
	err := s.db.QueryRowContext(ctx, `SELECT completed FROM posts WHERE post_id = ?`, postID).Scan(&completed)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, errs.Wrap(errs.KindLedgerIO, err, "failed to read ledger record for post "+postID)
	}
	return !completed, nil
}

// RecordOutcome upserts the post's completion record. An empty fanclubID
// never clobbers a previously recorded one, so failure paths that do not
// know the fanclub keep the record intact.
func (s *SQLite) RecordOutcome(ctx context.Context, postID, fanclubID string, allItemsSucceeded bool) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO posts(post_id, fanclub_id, completed, checked_at)
        VALUES(?,?,?,?)
        ON CONFLICT(post_id) DO UPDATE SET
            fanclub_id=COALESCE(NULLIF(excluded.fanclub_id,''), fanclub_id),
            completed=excluded.completed,
            checked_at=excluded.checked_at`,
		postID, fanclubID, allItemsSucceeded, time.Now())
	if err != nil {
		return errs.Wrap(errs.KindLedgerIO, err, "failed to record outcome for post "+postID)
	}
	return nil
}

// Get returns the post's record, or nil when none exists
func (s *SQLite) Get(ctx context.Context, postID string) (*Record, error) {
	var rec Record
	var checkedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `SELECT post_id, COALESCE(fanclub_id,''), completed, checked_at FROM posts WHERE post_id = ?`, postID).
		Scan(&rec.PostID, &rec.FanclubID, &rec.Completed, &checkedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindLedgerIO, err, "failed to read ledger record for post "+postID)
	}
	if checkedAt.Valid {
		rec.CheckedAt = checkedAt.Time
	}
	return &rec, nil
}
