// Package ledger persists per-post completion state so repeated runs are
// incremental. It is optional middleware: without a database path the rest
// of the pipeline runs against a discard-everything stub.
package ledger

import (
	"context"
	"time"
)

// Record is one row of completion state for a post
type Record struct {
	PostID    string
	FanclubID string
	Completed bool
	CheckedAt time.Time
}

// Ledger gates post reprocessing and records processing outcomes
type Ledger interface {
	// ShouldProcess reports whether a post needs (re-)processing. It returns
	// false only when a record exists with Completed set and bypass is false;
	// bypass forces reprocessing regardless of ledger state. This check runs
	// before the post's detail payload is fetched.
	ShouldProcess(ctx context.Context, postID string, bypass bool) (bool, error)

	// RecordOutcome upserts the post's record; Completed is set to
	// allItemsSucceeded. The record always exists after this call.
	RecordOutcome(ctx context.Context, postID, fanclubID string, allItemsSucceeded bool) error

	// Get returns the post's record, or nil when none exists
	Get(ctx context.Context, postID string) (*Record, error)

	Close() error
}

// Open returns a SQLite-backed ledger at path, or the no-op stub when path
// is empty
func Open(path string) (Ledger, error) {
	if path == "" {
		return NewNop(), nil
	}
	return OpenSQLite(path)
}

// Nop is the always-process, discard-on-write ledger used when no
// persistence target is configured
type Nop struct{}

// NewNop creates a no-op ledger
func NewNop() *Nop {
	return &Nop{}
}

func (*Nop) ShouldProcess(ctx context.Context, postID string, bypass bool) (bool, error) {
	return true, nil
}

func (*Nop) RecordOutcome(ctx context.Context, postID, fanclubID string, allItemsSucceeded bool) error {
	return nil
}

func (*Nop) Get(ctx context.Context, postID string) (*Record, error) {
	return nil, nil
}

func (*Nop) Close() error {
	return nil
}
