// Package store is the thin SQLite boundary every DAO and migration talks to.
// It opens database files, executes statements, and exposes query results
// through a positional Cursor.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	apperrors "github.com/arkilian/entitydb/internal/errors"
	"github.com/arkilian/entitydb/internal/observability"
	"github.com/arkilian/entitydb/pkg/types"
)

// ErrNoDatabase is returned by OpenExisting when the file is absent.
var ErrNoDatabase = errors.New("store: database file does not exist")

const dsnParams = "?_journal_mode=WAL&_busy_timeout=5000"

// Options configures a database handle.
type Options struct {
	// Stats receives per-table statement counts. May be nil.
	Stats *observability.Stats

	// MaxOpenConns bounds the connection pool. Defaults to 1 (single writer).
	MaxOpenConns int
}

// DB is an open SQLite database file.
type DB struct {
	conn
	sqlxDB *sqlx.DB
	path   string
	closed atomic.Bool
}

// Tx is a transaction on a DB. It exposes the same statement helpers as DB.
type Tx struct {
	conn
	tx *sqlx.Tx
}

// Open opens the database at path, creating the file and its parent directory
// if they do not exist.
func Open(path string, opts Options) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("store: failed to create directory %s: %w", dir, err)
		}
	}
	return open(path, opts)
}

// OpenExisting opens the database at path only if the file already exists.
func OpenExisting(path string, opts Options) (*DB, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoDatabase, path)
		}
		return nil, fmt.Errorf("store: failed to stat %s: %w", path, err)
	}
	return open(path, opts)
}

func open(path string, opts Options) (*DB, error) {
	sdb, err := sqlx.Open("sqlite3", path+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("store: failed to open database: %w", err)
	}
	maxConns := opts.MaxOpenConns
	if maxConns <= 0 {
		maxConns = 1
	}
	sdb.SetMaxOpenConns(maxConns)
	sdb.SetMaxIdleConns(maxConns)

	// Ping forces the file to be created.
	if err := sdb.Ping(); err != nil {
		sdb.Close()
		return nil, fmt.Errorf("store: failed to open database %s: %w", path, err)
	}

	db := &DB{sqlxDB: sdb, path: path}
	db.conn = conn{ext: sdb, stats: opts.Stats, open: db.IsOpen}
	return db, nil
}

// Path returns the file path the handle was opened with.
func (db *DB) Path() string {
	return db.path
}

// SQL returns the underlying database/sql handle for tools that need one.
func (db *DB) SQL() *sql.DB {
	return db.sqlxDB.DB
}

// Stats returns the statistics sink, or nil.
func (db *DB) Stats() *observability.Stats {
	return db.stats
}

// IsOpen reports whether Close has not yet been called.
func (db *DB) IsOpen() bool {
	return !db.closed.Load()
}

// Close closes the handle. Closing twice is a no-op.
func (db *DB) Close() error {
	if db.closed.Swap(true) {
		return nil
	}
	if err := db.sqlxDB.Close(); err != nil {
		return fmt.Errorf("store: failed to close %s: %w", db.path, err)
	}
	return nil
}

// RunInTransaction runs fn inside a transaction. The transaction is committed
// when fn returns nil and rolled back otherwise. There are no retries.
func (db *DB) RunInTransaction(ctx context.Context, fn func(tx *Tx) error) (rerr error) {
	if !db.IsOpen() {
		return errHandleClosed()
	}
	stx, err := db.sqlxDB.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.NewStoreError("failed to begin transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = stx.Rollback()
		}
	}()

	tx := &Tx{tx: stx}
	tx.conn = conn{ext: stx, stats: db.stats, open: db.IsOpen}
	if err := fn(tx); err != nil {
		return err
	}
	if err := stx.Commit(); err != nil {
		return apperrors.NewStoreError("failed to commit transaction", err)
	}
	committed = true
	return nil
}

// conn holds the statement helpers shared by DB and Tx.
type conn struct {
	ext   sqlx.ExtContext
	stats *observability.Stats
	open  func() bool
}

func errHandleClosed() error {
	return apperrors.NewInitError(apperrors.CodeHandleClosed, "database handle is closed", nil)
}

// Exec runs a raw statement.
func (c *conn) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if !c.open() {
		return nil, errHandleClosed()
	}
	res, err := c.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStoreError("exec failed", err)
	}
	return res, nil
}

// Insert inserts one row and returns its rowid. An empty value list inserts
// a row of column defaults.
func (c *conn) Insert(ctx context.Context, table string, values []types.ColumnValue) (int64, error) {
	var query string
	if len(values) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", QuoteIdent(table))
	} else {
		cols := make([]string, len(values))
		marks := make([]string, len(values))
		for i, v := range values {
			cols[i] = QuoteIdent(v.Column)
			marks[i] = "?"
		}
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			QuoteIdent(table), strings.Join(cols, ", "), strings.Join(marks, ", "))
	}

	res, err := c.Exec(ctx, query, types.Args(values)...)
	if err != nil {
		return -1, err
	}
	c.stats.RecordStatement(table, "insert")
	id, err := res.LastInsertId()
	if err != nil {
		return -1, apperrors.NewStoreError("failed to read rowid", err)
	}
	return id, nil
}

// Update sets values on rows matching where and returns the affected count.
// An empty where matches every row.
func (c *conn) Update(ctx context.Context, table string, values []types.ColumnValue, where string, whereArgs []any) (int64, error) {
	if len(values) == 0 {
		return 0, apperrors.Wrap(apperrors.ErrCategoryStore, apperrors.CodeEmptyValues,
			fmt.Sprintf("update of %s has no values", table), nil)
	}
	sets := make([]string, len(values))
	for i, v := range values {
		sets[i] = QuoteIdent(v.Column) + " = ?"
	}
	query := fmt.Sprintf("UPDATE %s SET %s", QuoteIdent(table), strings.Join(sets, ", "))
	args := types.Args(values)
	if where != "" {
		query += " WHERE " + where
		args = append(args, whereArgs...)
	}

	res, err := c.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	c.stats.RecordStatement(table, "update")
	return rowsAffected(res)
}

// Delete removes rows matching where and returns the affected count.
func (c *conn) Delete(ctx context.Context, table, where string, whereArgs []any) (int64, error) {
	query := "DELETE FROM " + QuoteIdent(table)
	if where != "" {
		query += " WHERE " + where
	}
	res, err := c.Exec(ctx, query, whereArgs...)
	if err != nil {
		return 0, err
	}
	c.stats.RecordStatement(table, "delete")
	return rowsAffected(res)
}

// Query selects every column of rows matching where. orderBy and limit are
// appended verbatim when non-empty. The caller must close the returned Cursor.
func (c *conn) Query(ctx context.Context, table, where string, whereArgs []any, orderBy, limit string) (*Cursor, error) {
	if !c.open() {
		return nil, errHandleClosed()
	}
	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(QuoteIdent(table))
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	if orderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(orderBy)
	}
	if limit != "" {
		b.WriteString(" LIMIT ")
		b.WriteString(limit)
	}

	rows, err := c.ext.QueryxContext(ctx, b.String(), whereArgs...)
	if err != nil {
		return nil, apperrors.NewStoreError("query failed", err)
	}
	c.stats.RecordStatement(table, "query")
	return newCursor(rows)
}

// Columns returns the column names the live table reports.
func (c *conn) Columns(ctx context.Context, table string) ([]string, error) {
	if !c.open() {
		return nil, errHandleClosed()
	}
	rows, err := c.ext.QueryxContext(ctx, "SELECT * FROM "+QuoteIdent(table)+" LIMIT 0")
	if err != nil {
		return nil, apperrors.NewStoreError("failed to read columns of "+table, err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, apperrors.NewStoreError("failed to read columns of "+table, err)
	}
	return cols, nil
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.NewStoreError("failed to read affected rows", err)
	}
	return n, nil
}

// QuoteIdent quotes a table or column name for use in generated SQL.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
