package storage

import (
	"context"
	"fmt"
	"slices"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"bossweek/internal/core"
)

// RecordFilter narrows ListRecords. Zero fields do not filter.
type RecordFilter struct {
	Week    core.WeekKey
	From    core.WeekKey // inclusive
	To      core.WeekKey // inclusive
	Entity  string
	Task    string
	Checked *bool
}

func (f RecordFilter) query() sq.SelectBuilder {
	qb := sq.Select("week_key", "character", "boss_name", "boss_price", "checked").
		From("weekly_checks").
		OrderBy("week_key", "character", "boss_price", "boss_name")

	if f.Week != "" {
		qb = qb.Where(sq.Eq{"week_key": string(f.Week)})
	}
	if f.From != "" {
		qb = qb.Where(sq.GtOrEq{"week_key": string(f.From)})
	}
	if f.To != "" {
		qb = qb.Where(sq.LtOrEq{"week_key": string(f.To)})
	}
	if f.Entity != "" {
		qb = qb.Where(sq.Eq{"character": f.Entity})
	}
	if f.Task != "" {
		qb = qb.Where(sq.Eq{"boss_name": f.Task})
	}
	if f.Checked != nil {
		qb = qb.Where(sq.Eq{"checked": boolInt(*f.Checked)})
	}
	return qb
}

func (q *Queries) ListRecords(ctx context.Context, f RecordFilter) ([]core.CompletionRecord, error) {
	query, args, err := f.query().ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.CompletionRecord
	for rows.Next() {
		var (
			r       core.CompletionRecord
			week    string
			checked int
		)
		if err := rows.Scan(&week, &r.Entity, &r.Task, &r.Price, &checked); err != nil {
			return nil, err
		}
		r.Week = core.WeekKey(week)
		r.Checked = checked != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListRecords returns completion records ordered by week, entity, price and
// task name.
func (l *Ledger) ListRecords(ctx context.Context, f RecordFilter) ([]core.CompletionRecord, error) {
	out, err := l.queries.ListRecords(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return out, nil
}

// Snapshot returns every completion record together with the revision they
// were read at, from one consistent view.
func (l *Ledger) Snapshot(ctx context.Context) ([]core.CompletionRecord, int64, error) {
	var (
		records []core.CompletionRecord
		rev     int64
	)
	err := l.readTx(ctx, func(q *Queries) error {
		var err error
		if rev, err = q.getMeta(ctx, "revision"); err != nil {
			return fmt.Errorf("read revision: %w", err)
		}
		records, err = q.ListRecords(ctx, RecordFilter{})
		return err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("snapshot records: %w", err)
	}
	return records, rev, nil
}

func sortEntityWeeks(es []core.EntityWeek) {
	slices.SortStableFunc(es, func(a, b core.EntityWeek) int {
		return strings.Compare(a.Name, b.Name)
	})
}
