package storage

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"bossweek/internal/core"

	_ "modernc.org/sqlite"
)

// Ledger is the SQLite backed store for entities, the task catalog, price
// history and weekly completion records.
type Ledger struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
	log     *slog.Logger
}

type Option func(*Ledger)

// WithLogger sets the logger used for change events.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.log = logger }
}

// dsn enables foreign keys, WAL and a busy timeout on every pooled
// connection and makes each transaction take the write lock up front.
func dsn(dbPath string) string {
	return dbPath +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_txlock=immediate"
}

func NewSQLiteLedger(dbPath string, opts ...Option) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	l := &Ledger{
		db:      db,
		queries: New(db),
		now:     time.Now,
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

// SetClock replaces the clock used for history timestamps.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

func (l *Ledger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

// Ping is used by readiness checks.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// Revision increases with every committed change to the ledger.
func (l *Ledger) Revision(ctx context.Context) (int64, error) {
	v, err := l.queries.getMeta(ctx, "revision")
	if err != nil {
		return 0, fmt.Errorf("read revision: %w", err)
	}
	return v, nil
}

// ProjectionRevision is the revision the persisted projection was built at,
// or -1 when none was written.
func (l *Ledger) ProjectionRevision(ctx context.Context) (int64, error) {
	v, err := l.queries.getMeta(ctx, "projection_revision")
	if err != nil {
		return 0, fmt.Errorf("read projection revision: %w", err)
	}
	return v, nil
}

// SetProjectionRevision records bookkeeping only; it does not bump the
// ledger revision.
func (l *Ledger) SetProjectionRevision(ctx context.Context, rev int64) error {
	if err := l.queries.setMeta(ctx, "projection_revision", rev); err != nil {
		return fmt.Errorf("write projection revision: %w", err)
	}
	return nil
}

// Counts reports row counts per table.
type Counts struct {
	Entities int64 `json:"entities"`
	Tasks    int64 `json:"tasks"`
	History  int64 `json:"history"`
	Records  int64 `json:"records"`
}

func (l *Ledger) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := l.readTx(ctx, func(q *Queries) error {
		for _, t := range []struct {
			table string
			dst   *int64
		}{
			{"characters", &c.Entities},
			{"bosses", &c.Tasks},
			{"boss_price_history", &c.History},
			{"weekly_checks", &c.Records},
		} {
			if err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t.table).Scan(t.dst); err != nil {
				return fmt.Errorf("count %s: %w", t.table, err)
			}
		}
		return nil
	})
	return c, err
}

func (l *Ledger) logChange(ctx context.Context, msg string, args ...any) {
	l.log.InfoContext(ctx, msg, args...)
}

func recordedAt(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func validWeek(week core.WeekKey) error {
	_, err := core.ParseWeekKey(string(week))
	return err
}
