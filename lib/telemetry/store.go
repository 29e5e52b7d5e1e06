// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/apronwatch/apronwatch/lib/sqlitepool"
)

// DatasetName names the telemetry table.
const DatasetName = "tracking_data"

var (
	// ErrWriterActive is returned by OpenWriter when another writer
	// holds the store.
	ErrWriterActive = errors.New("telemetry store: another writer is active")

	// ErrWidthMismatch is returned when an existing store was created
	// with a different row width.
	ErrWidthMismatch = errors.New("telemetry store: row width mismatch")

	// ErrClosed is returned by Writer methods after Close.
	ErrClosed = errors.New("telemetry store: writer closed")
)

var (
	columnList   = strings.Join(Columns[:], ", ")
	insertQuery  = "INSERT INTO " + DatasetName + " (seq, " + columnList + ") VALUES (?" + strings.Repeat(", ?", Width) + ")"
	lengthQuery  = "SELECT coalesce(max(seq) + 1, 0) FROM " + DatasetName
	rangeQuery   = "SELECT " + columnList + " FROM " + DatasetName + " WHERE seq >= ? AND seq < ? ORDER BY seq"
	allRowsQuery = "SELECT " + columnList + " FROM " + DatasetName + " ORDER BY seq"
)

func schema() string {
	var columns strings.Builder
	for _, name := range Columns {
		columns.WriteString(",\n\t\t" + name + " REAL")
	}
	return fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS store_meta (
		name  TEXT PRIMARY KEY,
		width INTEGER NOT NULL
	);
	INSERT OR IGNORE INTO store_meta (name, width) VALUES ('%s', %d);
	CREATE TABLE IF NOT EXISTS %s (
		seq INTEGER PRIMARY KEY%s
	);
	`, DatasetName, Width, DatasetName, columns.String())
}

// verifyWidth checks the recorded width and the table's actual column
// count against Width.
func verifyWidth(conn *sqlite.Conn) error {
	recorded := -1
	err := sqlitex.Execute(conn, "SELECT width FROM store_meta WHERE name = ?", &sqlitex.ExecOptions{
		Args: []any{DatasetName},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			recorded = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("telemetry store: reading store_meta: %w", err)
	}

	columns := 0
	err = sqlitex.Execute(conn, "SELECT count(*) FROM pragma_table_info(?)", &sqlitex.ExecOptions{
		Args: []any{DatasetName},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			columns = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("telemetry store: reading table info: %w", err)
	}

	if recorded != Width || columns != Width+1 {
		return fmt.Errorf("%w: store has width %d (%d columns), want %d", ErrWidthMismatch, recorded, columns-1, Width)
	}
	return nil
}

func bindRow(seq int64, row Row) []any {
	args := make([]any, 0, Width+1)
	args = append(args, seq)
	for _, value := range row {
		if math.IsNaN(value) {
			args = append(args, nil)
		} else {
			args = append(args, value)
		}
	}
	return args
}

func scanRow(stmt *sqlite.Stmt) Row {
	var row Row
	for i := range Width {
		if stmt.ColumnType(i) == sqlite.TypeNull {
			row[i] = math.NaN()
		} else {
			row[i] = stmt.ColumnFloat(i)
		}
	}
	return row
}

func queryLength(conn *sqlite.Conn) (int64, error) {
	var length int64
	err := sqlitex.Execute(conn, lengthQuery, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			length = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("telemetry store: querying length: %w", err)
	}
	return length, nil
}

// WriterConfig holds the parameters for opening a Writer.
type WriterConfig struct {
	// Path is the database file. Its directory is created if needed.
	Path string

	// Logger receives operational messages. Nil discards.
	Logger *slog.Logger
}

// Writer appends rows to the store. Its methods are safe for concurrent
// use, though the pipeline calls them from one goroutine.
type Writer struct {
	mutex    sync.Mutex
	conn     *sqlite.Conn
	lockFile *os.File
	path     string
	logger   *slog.Logger

	// length is the committed row count; pending rows sit in an open
	// transaction after it.
	length  int64
	pending int64
	inTx    bool
	closed  bool
}

// OpenWriter opens or creates the store for appending. A new store is
// created with zero rows; an existing one resumes after its last row.
func OpenWriter(cfg WriterConfig) (*Writer, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("telemetry store: Path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("telemetry store: %w", err)
	}

	lockFile, err := lockWriter(cfg.Path + ".lock")
	if err != nil {
		return nil, err
	}

	conn, err := sqlitepool.OpenConn(sqlitepool.Config{
		Path:   cfg.Path,
		Logger: logger,
		OnConnect: func(conn *sqlite.Conn) error {
			if err := sqlitex.ExecuteScript(conn, schema(), nil); err != nil {
				return fmt.Errorf("telemetry store: creating schema: %w", err)
			}
			return verifyWidth(conn)
		},
	})
	if err != nil {
		lockFile.Close()
		return nil, err
	}

	length, err := queryLength(conn)
	if err != nil {
		conn.Close()
		lockFile.Close()
		return nil, err
	}

	logger.Info("telemetry store opened for writing", "path", cfg.Path, "rows", length)
	return &Writer{
		conn:     conn,
		lockFile: lockFile,
		path:     cfg.Path,
		logger:   logger,
		length:   length,
	}, nil
}

// lockWriter takes the exclusive writer lock. The lock is released
// when the file is closed or the process exits.
func lockWriter(path string) (*os.File, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("telemetry store: opening lock file: %w", err)
	}
	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w (lock %s)", ErrWriterActive, path)
		}
		return nil, fmt.Errorf("telemetry store: locking %s: %w", path, err)
	}
	return file, nil
}

// Len returns the number of committed rows.
func (w *Writer) Len() int64 {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.length
}

// Pending returns the number of rows extended since the last Flush.
func (w *Writer) Pending() int64 {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.pending
}

// Extend appends rows after the committed and pending rows. They are
// not visible to readers until Flush. If Extend fails, every row pending
// since the last Flush is discarded.
func (w *Writer) Extend(ctx context.Context, rows []Row) (err error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.closed {
		return ErrClosed
	}
	if len(rows) == 0 {
		return nil
	}

	w.conn.SetInterrupt(ctx.Done())
	defer w.conn.SetInterrupt(nil)

	if !w.inTx {
		if err := sqlitex.ExecuteTransient(w.conn, "BEGIN IMMEDIATE", nil); err != nil {
			return fmt.Errorf("telemetry store: begin transaction: %w", err)
		}
		w.inTx = true
	}
	defer func() {
		if err != nil {
			w.conn.SetInterrupt(nil)
			w.rollbackLocked()
		}
	}()

	next := w.length + w.pending
	for i, row := range rows {
		err := sqlitex.Execute(w.conn, insertQuery, &sqlitex.ExecOptions{
			Args: bindRow(next+int64(i), row),
		})
		if err != nil {
			return fmt.Errorf("telemetry store: inserting row %d: %w", next+int64(i), err)
		}
	}
	w.pending += int64(len(rows))
	return nil
}

// Flush commits the pending rows, making them visible to readers as one
// unit. Flush with nothing pending is a no-op.
func (w *Writer) Flush() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.closed {
		return ErrClosed
	}
	if !w.inTx {
		return nil
	}
	if err := sqlitex.ExecuteTransient(w.conn, "COMMIT", nil); err != nil {
		w.rollbackLocked()
		return fmt.Errorf("telemetry store: commit: %w", err)
	}
	w.inTx = false
	w.length += w.pending
	w.pending = 0

	// Passive: never waits on readers. Keeps the WAL from growing
	// without bound while a reader holds an old snapshot.
	if err := sqlitex.ExecuteTransient(w.conn, "PRAGMA wal_checkpoint(PASSIVE)", nil); err != nil {
		w.logger.Warn("wal checkpoint failed", "path", w.path, "error", err)
	}
	return nil
}

// Rollback discards rows pending since the last Flush.
func (w *Writer) Rollback() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.closed {
		return ErrClosed
	}
	return w.rollbackLocked()
}

func (w *Writer) rollbackLocked() error {
	if !w.inTx {
		return nil
	}
	w.inTx = false
	discarded := w.pending
	w.pending = 0
	if err := sqlitex.ExecuteTransient(w.conn, "ROLLBACK", nil); err != nil {
		// SQLite may already have rolled back on the failed statement.
		if w.conn.AutocommitEnabled() {
			return nil
		}
		return fmt.Errorf("telemetry store: rollback: %w", err)
	}
	w.logger.Info("pending telemetry rows discarded", "rows", discarded)
	return nil
}

// Close discards unflushed rows, closes the database, and releases the
// writer lock. Close is idempotent.
func (w *Writer) Close() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	if err := w.rollbackLocked(); err != nil {
		errs = append(errs, err)
	}
	if err := w.conn.Close(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry store: closing %s: %w", w.path, err))
	}
	if err := w.lockFile.Close(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry store: releasing lock: %w", err))
	}
	w.logger.Info("telemetry store closed", "path", w.path, "rows", w.length)
	return errors.Join(errs...)
}

// ReaderConfig holds the parameters for opening a Reader.
type ReaderConfig struct {
	// Path is the database file. It must exist.
	Path string

	// PoolSize is the number of read connections. Defaults to 2.
	PoolSize int

	// Logger receives operational messages. Nil discards.
	Logger *slog.Logger
}

// Reader reads committed rows. Any number of readers may be open
// alongside the writer.
type Reader struct {
	pool *sqlitepool.Pool
}

// OpenReader opens an existing store read-only. A missing store is an
// error wrapping os.ErrNotExist.
func OpenReader(cfg ReaderConfig) (*Reader, error) {
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, fmt.Errorf("telemetry store: %w", err)
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 2
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		ReadOnly: true,
		PoolSize: poolSize,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry store: %w", err)
	}

	reader := &Reader{pool: pool}
	conn, err := pool.Take(context.Background())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("telemetry store: %w", err)
	}
	err = verifyWidth(conn)
	pool.Put(conn)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return reader, nil
}

// Len returns the current number of committed rows.
func (r *Reader) Len(ctx context.Context) (int64, error) {
	conn, err := r.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("telemetry store: %w", err)
	}
	defer r.pool.Put(conn)
	return queryLength(conn)
}

// Read returns rows [from, to). Rows past the committed extent are not
// returned.
func (r *Reader) Read(ctx context.Context, from, to int64) ([]Row, error) {
	if from < 0 || to < from {
		return nil, fmt.Errorf("telemetry store: invalid range [%d, %d)", from, to)
	}
	return r.query(ctx, rangeQuery, from, to)
}

// ReadAll returns every committed row, read from a single snapshot.
func (r *Reader) ReadAll(ctx context.Context) ([]Row, error) {
	return r.query(ctx, allRowsQuery)
}

func (r *Reader) query(ctx context.Context, query string, args ...any) ([]Row, error) {
	conn, err := r.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("telemetry store: %w", err)
	}
	defer r.pool.Put(conn)

	var rows []Row
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			rows = append(rows, scanRow(stmt))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry store: reading rows: %w", err)
	}
	return rows, nil
}

// Close closes the reader's connections.
func (r *Reader) Close() error {
	return r.pool.Close()
}
