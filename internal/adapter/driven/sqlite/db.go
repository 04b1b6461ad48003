package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	_ "modernc.org/sqlite"
)

const (
	writerConns = 1
	readerConns = 4
)

// commonPragmas apply to every connection. Log entries reference their job
// row, so foreign keys must be on.
var commonPragmas = []string{
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"foreign_keys(ON)",
	"cache_size(-64000)",
}

// DB provides dual reader/writer database connections. The writer is a single
// connection so that job claims and log appends never see "database is
// locked"; readers serve the log view and dashboard concurrently.
type DB struct {
	Writer *sql.DB
	Reader *sql.DB
}

// NewDB opens the database file at dbPath in WAL mode.
func NewDB(ctx context.Context, dbPath string) (*DB, error) {
	if dbPath == "" {
		return nil, errors.New("database path is empty")
	}
	return open(ctx, dsn(dbPath, "", append([]string{"journal_mode(WAL)"}, commonPragmas...)))
}

// NewMemoryDB opens a named in-memory database shared by the writer and
// reader pools. Distinct names are isolated from each other. WAL does not
// apply to memory databases.
func NewMemoryDB(ctx context.Context, name string) (*DB, error) {
	return open(ctx, dsn(url.PathEscape(name), "mode=memory&cache=shared", commonPragmas))
}

func dsn(file, params string, pragmas []string) string {
	var b strings.Builder
	b.WriteString("file:")
	b.WriteString(file)
	b.WriteByte('?')
	if params != "" {
		b.WriteString(params)
		b.WriteByte('&')
	}
	for i, p := range pragmas {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString("_pragma=")
		b.WriteString(p)
	}
	return b.String()
}

func open(ctx context.Context, dsn string) (*DB, error) {
	writer, err := openPool(ctx, dsn, writerConns)
	if err != nil {
		return nil, fmt.Errorf("writer: %w", err)
	}

	reader, err := openPool(ctx, dsn, readerConns)
	if err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("reader: %w", err)
	}

	return &DB{Writer: writer, Reader: reader}, nil
}

func openPool(ctx context.Context, dsn string, maxConns int) (*sql.DB, error) {
	pool, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	pool.SetMaxOpenConns(maxConns)

	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// Close closes both reader and writer connections. Returns the first error encountered.
func (db *DB) Close() error {
	var firstErr error

	if err := db.Reader.Close(); err != nil {
		firstErr = fmt.Errorf("close reader: %w", err)
	}

	if err := db.Writer.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close writer: %w", err)
	}

	return firstErr
}
