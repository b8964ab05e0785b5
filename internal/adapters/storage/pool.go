package storage

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Pool is the single-writer, multi-reader connection pool over the embedded
// database file. Writes go through the writer handle, which is capped at one
// connection so SQLite never sees two concurrent writers; reads go through a
// separate handle sized to half the CPU count.
type Pool struct {
	path   string
	writer *sql.DB
	reader *sql.DB
	stats  *QueryStats

	mu     sync.RWMutex
	closed bool
}

// NewPool opens the database file and configures both handles. The writer is
// opened (and pinged) first so the file exists before the read-only handle
// attaches.
func NewPool(path string) (*Pool, error) {
	writer, err := sql.Open("sqlite3", writerDSN(path))
	if err != nil {
		return nil, classify("open_writer", err)
	}
	writer.SetMaxOpenConns(1)

	if err := writer.Ping(); err != nil {
		writer.Close()
		return nil, classify("ping_writer", err)
	}

	reader, err := sql.Open("sqlite3", readerDSN(path))
	if err != nil {
		writer.Close()
		return nil, classify("open_reader", err)
	}
	readers := runtime.NumCPU() / 2
	if readers < 1 {
		readers = 1
	}
	reader.SetMaxOpenConns(readers)
	reader.SetConnMaxLifetime(time.Hour)

	if err := reader.Ping(); err != nil {
		writer.Close()
		reader.Close()
		return nil, classify("ping_reader", err)
	}

	return &Pool{
		path:   path,
		writer: writer,
		reader: reader,
		stats:  NewQueryStats(),
	}, nil
}

func writerDSN(path string) string {
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
}

func readerDSN(path string) string {
	return fmt.Sprintf("file:%s?mode=ro&_journal_mode=WAL&_busy_timeout=5000", path)
}

// Path returns the database file location.
func (p *Pool) Path() string { return p.path }

// Writer exposes the raw writer handle for layers that manage their own
// statements (the app-state ORM attaches here).
func (p *Pool) Writer() *sql.DB { return p.writer }

// Stats returns the per-verb query aggregator.
func (p *Pool) Stats() *QueryStats { return p.stats }

// Exec runs a write statement on the writer handle.
func (p *Pool) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}
	start := time.Now()
	res, err := p.writer.ExecContext(ctx, query, args...)
	p.stats.Observe(query, time.Since(start))
	if err != nil {
		return nil, classify("exec", err)
	}
	return res, nil
}

// Query runs a read statement on the reader handle.
func (p *Pool) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}
	start := time.Now()
	rows, err := p.reader.QueryContext(ctx, query, args...)
	p.stats.Observe(query, time.Since(start))
	if err != nil {
		return nil, classify("query", err)
	}
	return rows, nil
}

// QueryRow runs a single-row read on the reader handle.
func (p *Pool) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	start := time.Now()
	row := p.reader.QueryRowContext(ctx, query, args...)
	p.stats.Observe(query, time.Since(start))
	return row
}

// WithTx runs fn inside a writer transaction, committing on nil and rolling
// back on error.
func (p *Pool) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	if p.isClosed() {
		return ErrPoolClosed
	}
	start := time.Now()
	tx, err := p.writer.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		p.stats.Observe("TRANSACTION", time.Since(start))
		return classify("tx", err)
	}
	if err := tx.Commit(); err != nil {
		p.stats.Observe("TRANSACTION", time.Since(start))
		return classify("commit", err)
	}
	p.stats.Observe("TRANSACTION", time.Since(start))
	return nil
}

// Checkpoint forces a WAL checkpoint so the main file is current.
func (p *Pool) Checkpoint(ctx context.Context) error {
	_, err := p.Exec(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// IntegrityCheck runs a quick corruption probe and returns ErrCorrupt when
// the file fails it.
func (p *Pool) IntegrityCheck(ctx context.Context) error {
	var result string
	row := p.QueryRow(ctx, "PRAGMA quick_check")
	if err := row.Scan(&result); err != nil {
		return classify("integrity_check", err)
	}
	if result != "ok" {
		return &StoreError{Op: "integrity_check", Kind: ErrCorrupt, Err: fmt.Errorf("quick_check: %s", result)}
	}
	return nil
}

// Close shuts down both handles. Safe to call twice.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	rerr := p.reader.Close()
	werr := p.writer.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

func (p *Pool) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}
