// Copyright 2026 The Ptagate Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides a SQLite connection pool with standard
// pragmas.
//
// The decision journal is the consumer: a write-mostly audit table
// with occasional inspection reads. The package wraps
// zombiezen.com/go/sqlite with production defaults: WAL journal mode,
// NORMAL synchronous, busy timeout for write contention, and
// memory-mapped reads.
//
// The pool is built on zombiezen's sqlitex.Pool, which manages a
// fixed-size set of connections. Callers [Pool.Take] a connection,
// perform work, and [Pool.Put] it back. Connections are NOT safe for
// concurrent use; each goroutine must hold its own connection for the
// duration of its work.
//
// # Pragmas
//
// Every connection in the pool is initialized with these pragmas:
//
//   - journal_mode=WAL: concurrent readers and a single writer. Reads
//     never block writes; writes never block reads.
//   - synchronous=NORMAL: transactions survive process crashes. Not
//     durable across OS crashes or power failure, which is acceptable
//     for an audit journal derived from live traffic; the tail is not
//     worth fsync-per-commit.
//   - busy_timeout=5000: wait up to 5 seconds for a write lock instead
//     of returning SQLITE_BUSY immediately.
//   - foreign_keys=OFF: the journal schema is a single table with no
//     references to enforce.
//   - cache_size=-8192: 8 MB page cache per connection.
//   - mmap_size=268435456: 256 MB memory-mapped I/O for reads.
//   - temp_store=MEMORY: temporary tables and indexes in memory.
//
// # Usage
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:   "/var/lib/ptagate/journal.db",
//	    Logger: logger,
//	    OnConnect: func(conn *sqlite.Conn) error {
//	        return sqlitex.ExecuteScript(conn, schema, nil)
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	conn, err := pool.Take(ctx)
//	if err != nil {
//	    return err
//	}
//	defer pool.Put(conn)
//
// # Design
//
// This package is intentionally thin: it applies standard pragmas and
// exposes the underlying zombiezen types directly. There is no attempt
// to abstract away SQLite's connection model or invent a query
// builder. Consumers write SQL, use sqlitex.Execute for cached
// statements, and manage transactions with
// sqlitex.ImmediateTransaction.
package sqlitepool
