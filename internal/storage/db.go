package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries holds the ledger statements. Inside a transaction it counts the
// rows it changed so the caller knows whether to bump the revision.
type Queries struct {
	db      DBTX
	changed int64
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

func (q *Queries) exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	q.changed += n
	return n, nil
}

// withTx runs fn in one transaction. Nothing persists unless fn returns
// nil; the ledger revision is bumped only when fn changed at least one row.
func (l *Ledger) withTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	q := l.queries.WithTx(tx)
	if err := fn(q); err != nil {
		return err
	}
	if q.changed > 0 {
		if err := q.bumpRevision(ctx); err != nil {
			return fmt.Errorf("bump revision: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

// readTx gives fn a consistent view without writing anything.
func (l *Ledger) readTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	return fn(l.queries.WithTx(tx))
}

const bumpRevision = `UPDATE ledger_meta SET value = value + 1 WHERE key = 'revision'`

func (q *Queries) bumpRevision(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, bumpRevision)
	return err
}

const getMeta = `SELECT value FROM ledger_meta WHERE key = ?`

func (q *Queries) getMeta(ctx context.Context, key string) (int64, error) {
	var v int64
	err := q.db.QueryRowContext(ctx, getMeta, key).Scan(&v)
	return v, err
}

const setMeta = `INSERT INTO ledger_meta (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`

func (q *Queries) setMeta(ctx context.Context, key string, v int64) error {
	_, err := q.db.ExecContext(ctx, setMeta, key, v)
	return err
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

func nullStr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

// optional turns a nil pointer into SQL NULL.
func optional[T any](p *T) interface{} {
	if p == nil {
		return nil
	}
	return *p
}
