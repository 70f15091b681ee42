// Copyright 2026 The Ptagate Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/ptagate/ptagate/lib/clock"
	"github.com/ptagate/ptagate/lib/codec"
	"github.com/ptagate/ptagate/lib/pta"
	"github.com/ptagate/ptagate/lib/sqlitepool"
)

// schema is the journal database schema, applied to every connection
// on open. A single append-mostly table; recorded_at carries the
// retention index.
const schema = `
CREATE TABLE IF NOT EXISTS decision (
    id          INTEGER PRIMARY KEY,
    recorded_at INTEGER NOT NULL,
    request_id  TEXT    NOT NULL,
    path        TEXT    NOT NULL,
    outcome     TEXT    NOT NULL,
    reason      TEXT    NOT NULL,
    source      TEXT    NOT NULL,
    generation  INTEGER NOT NULL,
    candidates  INTEGER NOT NULL,
    duration_us INTEGER NOT NULL,
    detail      BLOB
);
CREATE INDEX IF NOT EXISTS decision_recorded_at ON decision (recorded_at);
`

// Decision is one verification decision as the gateway hands it over.
type Decision struct {
	// RequestID is the per-request UUID the gateway assigned.
	RequestID string

	// Path is the request path that was verified.
	Path string

	// Outcome, Reason, and Source mirror the engine result.
	Outcome pta.Outcome
	Reason  pta.Reason
	Source  pta.Sources

	// Generation is the key generation that decrypted the decisive
	// candidate, -1 when none did.
	Generation int

	// Candidates is the number of candidate tokens examined.
	Candidates int

	// Duration is the verification wall time.
	Duration time.Duration

	// Attempts is the engine's evaluation trace.
	Attempts []pta.Attempt
}

// Attempt is the CBOR shape of one verification attempt inside a
// decision detail blob.
type Attempt struct {
	Source     string `cbor:"source"`
	Candidate  int    `cbor:"candidate"`
	Generation int    `cbor:"generation"`
	Reason     string `cbor:"reason"`
}

// Entry is a stored decision read back from the journal.
type Entry struct {
	ID         int64
	RecordedAt time.Time
	RequestID  string
	Path       string
	Outcome    string
	Reason     string
	Source     string
	Generation int
	Candidates int
	Duration   time.Duration
	Attempts   []Attempt
}

// Config holds the parameters for opening a decision journal.
type Config struct {
	// Path is the filesystem path to the SQLite database file. The
	// parent directory must exist.
	Path string

	// PoolSize is the number of connections in the pool. Defaults to
	// 4 if zero or negative.
	PoolSize int

	// Clock provides the current time for recorded_at and retention
	// decisions.
	Clock clock.Clock

	// Logger receives operational messages.
	Logger *slog.Logger
}

// Store is the decision journal. Safe for concurrent use; writes
// serialize through the SQLite pool.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// Open creates or opens the journal database and applies the schema.
// The caller must call Close when the journal is no longer needed.
func Open(cfg Config) (*Store, error) {
	if cfg.Clock == nil {
		return nil, fmt.Errorf("journal: Clock is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("journal: Logger is required")
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: poolSize,
		Logger:   cfg.Logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}

	return &Store{
		pool:   pool,
		clock:  cfg.Clock,
		logger: cfg.Logger,
	}, nil
}

// Close closes the underlying connection pool. Blocks until all
// borrowed connections are returned.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Record inserts one decision. The attempt trace is stored as a
// deterministic CBOR blob; an empty trace stores NULL.
func (s *Store) Record(ctx context.Context, decision Decision) error {
	var detail any
	if len(decision.Attempts) > 0 {
		records := make([]Attempt, len(decision.Attempts))
		for i, attempt := range decision.Attempts {
			records[i] = Attempt{
				Source:     attempt.Source.String(),
				Candidate:  attempt.Candidate,
				Generation: attempt.Generation,
				Reason:     attempt.Reason.String(),
			}
		}
		blob, err := codec.Marshal(records)
		if err != nil {
			return fmt.Errorf("journal: marshal detail: %w", err)
		}
		detail = blob
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("journal: record: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `INSERT INTO decision
		(recorded_at, request_id, path, outcome, reason, source,
		 generation, candidates, duration_us, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{
			s.clock.Now().Unix(),
			decision.RequestID,
			decision.Path,
			decision.Outcome.String(),
			decision.Reason.String(),
			decision.Source.String(),
			decision.Generation,
			decision.Candidates,
			decision.Duration.Microseconds(),
			detail,
		},
	})
	if err != nil {
		return fmt.Errorf("journal: insert decision: %w", err)
	}
	return nil
}

// Recent returns the newest decisions, most recent first. Limit
// defaults to 100 if zero or negative.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	defer s.pool.Put(conn)

	var entries []Entry
	err = sqlitex.Execute(conn, `SELECT
		id, recorded_at, request_id, path, outcome, reason, source,
		generation, candidates, duration_us, detail
		FROM decision ORDER BY id DESC LIMIT ?`, &sqlitex.ExecOptions{
		Args: []any{limit},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			entry, err := scanEntry(stmt)
			if err != nil {
				return err
			}
			entries = append(entries, entry)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	return entries, nil
}

// PruneBefore deletes decisions recorded before the cutoff. Returns
// the number of rows deleted.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("journal: prune: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, "DELETE FROM decision WHERE recorded_at < ?", &sqlitex.ExecOptions{
		Args: []any{cutoff.Unix()},
	})
	if err != nil {
		return 0, fmt.Errorf("journal: prune: %w", err)
	}
	return conn.Changes(), nil
}

// RunRetention prunes decisions older than the retention window on a
// cadence derived from the window. Blocks until ctx is cancelled.
func (s *Store) RunRetention(ctx context.Context, retention time.Duration) {
	ticker := s.clock.NewTicker(pruneInterval(retention))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tickPrune(ctx, retention)
		case <-ctx.Done():
			return
		}
	}
}

// tickPrune runs one retention pass. Failures are logged, not fatal;
// the next tick retries.
func (s *Store) tickPrune(ctx context.Context, retention time.Duration) {
	cutoff := s.clock.Now().Add(-retention)
	pruned, err := s.PruneBefore(ctx, cutoff)
	if err != nil {
		s.logger.Warn("journal retention pass failed", "error", err)
		return
	}
	if pruned > 0 {
		s.logger.Info("journal decisions pruned",
			"count", pruned,
			"cutoff", cutoff.UTC().Format(time.RFC3339),
		)
	}
}

// pruneInterval is the pruner cadence: a fraction of the retention
// window, clamped so short windows still prune promptly and long
// windows do not spin.
func pruneInterval(retention time.Duration) time.Duration {
	interval := retention / 24
	if interval < time.Minute {
		interval = time.Minute
	}
	if interval > time.Hour {
		interval = time.Hour
	}
	return interval
}

// scanEntry maps one decision row. Column order matches the SELECT in
// Recent.
func scanEntry(stmt *sqlite.Stmt) (Entry, error) {
	entry := Entry{
		ID:         stmt.ColumnInt64(0),
		RecordedAt: time.Unix(stmt.ColumnInt64(1), 0).UTC(),
		RequestID:  stmt.ColumnText(2),
		Path:       stmt.ColumnText(3),
		Outcome:    stmt.ColumnText(4),
		Reason:     stmt.ColumnText(5),
		Source:     stmt.ColumnText(6),
		Generation: stmt.ColumnInt(7),
		Candidates: stmt.ColumnInt(8),
		Duration:   time.Duration(stmt.ColumnInt64(9)) * time.Microsecond,
	}

	if !stmt.ColumnIsNull(10) {
		blob := make([]byte, stmt.ColumnLen(10))
		stmt.ColumnBytes(10, blob)
		if err := codec.Unmarshal(blob, &entry.Attempts); err != nil {
			return entry, fmt.Errorf("journal: decode detail: %w", err)
		}
	}

	return entry, nil
}
