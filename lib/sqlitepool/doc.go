// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens SQLite databases with the Apronwatch
// standard pragmas.
//
// It wraps zombiezen.com/go/sqlite. Readers share a [Pool] built on
// sqlitex.Pool; a component that must own one connection for its whole
// lifetime (the telemetry writer keeps a transaction open across
// calls) uses [OpenConn] instead. Both paths apply the same pragmas.
//
// # Pragmas
//
//   - journal_mode=WAL: readers see the last committed transaction and
//     never block the writer. Uncommitted pages in the WAL are
//     discarded on recovery, which is what gives telemetry batches
//     their all-or-nothing visibility.
//   - synchronous=NORMAL: committed transactions survive a process
//     crash.
//   - busy_timeout=5000: wait up to 5 seconds on a lock.
//   - foreign_keys=OFF
//   - cache_size=-8192: 8 MB page cache per connection.
//   - mmap_size=268435456: 256 MB memory-mapped reads.
//   - temp_store=MEMORY
//
// Read-only connections skip the journal_mode pragma: they cannot
// change it, and the database is already in WAL mode once a writer has
// opened it.
//
// # Usage
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:     "Raw_Time_Series_Data/tracking_data.db",
//	    ReadOnly: true,
//	    PoolSize: 2,
//	    Logger:   logger,
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
package sqlitepool
