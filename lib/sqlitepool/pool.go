// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Config holds the parameters for opening a database.
// Path is required; all other fields have defaults.
type Config struct {
	// Path is the filesystem path to the database file. The parent
	// directory must exist. Unless ReadOnly is set, the file is
	// created if it does not exist.
	Path string

	// ReadOnly opens connections without write access. The database
	// file must already exist.
	ReadOnly bool

	// PoolSize is the number of connections in a Pool. If zero or
	// negative, defaults to max(runtime.NumCPU(), 4). Ignored by
	// OpenConn.
	PoolSize int

	// Logger receives open/close messages. If nil, a no-op logger is
	// used.
	Logger *slog.Logger

	// OnConnect is called once per connection after the standard
	// pragmas are applied: schema creation, extra pragmas. An error
	// discards the connection.
	OnConnect func(conn *sqlite.Conn) error
}

func (cfg Config) flags() sqlite.OpenFlags {
	if cfg.ReadOnly {
		// OpenWAL would issue a journal_mode pragma, which a
		// read-only connection cannot run.
		return sqlite.OpenReadOnly | sqlite.OpenURI
	}
	return sqlite.OpenReadWrite | sqlite.OpenCreate | sqlite.OpenWAL | sqlite.OpenURI
}

func (cfg Config) logger() *slog.Logger {
	if cfg.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return cfg.Logger
}

// Pool is a fixed-size pool of prepared connections. It wraps
// sqlitex.Pool and exposes the same Take/Put API.
//
// Pool is safe for concurrent use. Individual connections are not:
// each goroutine must Take its own connection and Put it back.
type Pool struct {
	inner  *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// Open creates a connection pool. Connections are initialized lazily
// on first Take. The caller must call Close.
func Open(cfg Config) (*Pool, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlitepool: Path is required")
	}
	logger := cfg.logger()

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = max(runtime.NumCPU(), 4)
	}

	inner, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		Flags:    cfg.flags(),
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			return Prepare(conn, cfg.ReadOnly, cfg.OnConnect)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: opening %s: %w", cfg.Path, err)
	}

	logger.Info("sqlite pool opened",
		"path", cfg.Path,
		"pool_size", poolSize,
		"read_only", cfg.ReadOnly,
	)

	return &Pool{
		inner:  inner,
		logger: logger,
		path:   cfg.Path,
	}, nil
}

// Take borrows a connection from the pool. Blocks until a connection
// is available or ctx is cancelled. The caller must Put it back.
func (p *Pool) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: take: %w", err)
	}
	return conn, nil
}

// Put returns a connection to the pool. Safe to call with nil.
func (p *Pool) Put(conn *sqlite.Conn) {
	p.inner.Put(conn)
}

// Close closes all connections in the pool. Blocks until all borrowed
// connections are returned.
func (p *Pool) Close() error {
	if err := p.inner.Close(); err != nil {
		p.logger.Error("sqlite pool close error",
			"path", p.path,
			"error", err,
		)
		return fmt.Errorf("sqlitepool: closing %s: %w", p.path, err)
	}
	p.logger.Info("sqlite pool closed", "path", p.path)
	return nil
}

// OpenConn opens a single prepared connection outside any pool. The
// caller owns it and must Close it.
func OpenConn(cfg Config) (*sqlite.Conn, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlitepool: Path is required")
	}
	conn, err := sqlite.OpenConn(cfg.Path, cfg.flags())
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: opening %s: %w", cfg.Path, err)
	}
	if err := Prepare(conn, cfg.ReadOnly, cfg.OnConnect); err != nil {
		conn.Close()
		return nil, err
	}
	cfg.logger().Info("sqlite connection opened",
		"path", cfg.Path,
		"read_only", cfg.ReadOnly,
	)
	return conn, nil
}

// Prepare applies the standard pragmas to conn and then calls the
// optional onConnect callback.
func Prepare(conn *sqlite.Conn, readOnly bool, onConnect func(*sqlite.Conn) error) error {
	pragmas := []string{
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=OFF",
		"PRAGMA cache_size=-8192",
		"PRAGMA mmap_size=268435456",
		"PRAGMA temp_store=MEMORY",
	}
	if !readOnly {
		// Set explicitly for databases created without the WAL flag.
		pragmas = append([]string{"PRAGMA journal_mode=WAL"}, pragmas...)
	}

	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlitepool: %s: %w", pragma, err)
		}
	}

	if onConnect != nil {
		if err := onConnect(conn); err != nil {
			return fmt.Errorf("sqlitepool: OnConnect: %w", err)
		}
	}
	return nil
}
