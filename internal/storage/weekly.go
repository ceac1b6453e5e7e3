package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bossweek/internal/core"
)

const weekKeys = `SELECT DISTINCT week_key FROM weekly_checks ORDER BY week_key`

// WeekKeys lists every week that has at least one record, oldest first.
func (l *Ledger) WeekKeys(ctx context.Context) ([]core.WeekKey, error) {
	rows, err := l.db.QueryContext(ctx, weekKeys)
	if err != nil {
		return nil, fmt.Errorf("list week keys: %w", err)
	}
	defer rows.Close()

	var out []core.WeekKey
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan week key: %w", err)
		}
		out = append(out, core.WeekKey(k))
	}
	return out, rows.Err()
}

// WeekSnapshot returns every roster entity with its tasks for week, tasks
// ordered by price ascending. Entities without records in the week appear
// with an empty list; entities that only exist as records are included too.
func (l *Ledger) WeekSnapshot(ctx context.Context, week core.WeekKey) (core.WeekSnapshot, error) {
	snap := core.WeekSnapshot{Week: week, Entities: []core.EntityWeek{}}
	err := l.readTx(ctx, func(q *Queries) error {
		roster, err := q.ListEntities(ctx)
		if err != nil {
			return fmt.Errorf("list entities: %w", err)
		}
		records, err := q.ListRecords(ctx, RecordFilter{Week: week})
		if err != nil {
			return fmt.Errorf("list records: %w", err)
		}

		index := make(map[string]int)
		add := func(name string) int {
			if i, ok := index[name]; ok {
				return i
			}
			snap.Entities = append(snap.Entities, core.EntityWeek{Name: name, Tasks: []core.TaskCheck{}})
			index[name] = len(snap.Entities) - 1
			return index[name]
		}
		for _, e := range roster {
			add(e.Name)
		}
		// Records arrive ordered by entity, price and task name.
		for _, r := range records {
			i := add(r.Entity)
			snap.Entities[i].Tasks = append(snap.Entities[i].Tasks, core.TaskCheck{
				Task:    r.Task,
				Price:   r.Price,
				Checked: r.Checked,
			})
		}
		return nil
	})
	if err != nil {
		return core.WeekSnapshot{}, fmt.Errorf("week snapshot: %w", err)
	}
	sortEntityWeeks(snap.Entities)
	return snap, nil
}

// ToggleCompletion flips the completion flag and returns the new value.
// The snapshot price is never touched.
func (l *Ledger) ToggleCompletion(ctx context.Context, week core.WeekKey, entity, task string) (bool, error) {
	var checked bool
	err := l.withTx(ctx, func(q *Queries) error {
		n, err := q.exec(ctx, `UPDATE weekly_checks SET checked = 1 - checked
WHERE week_key = ? AND character = ? AND boss_name = ?`, string(week), entity, task)
		if err != nil {
			return fmt.Errorf("toggle completion: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("record %s/%s/%s: %w", week, entity, task, ErrNotFound)
		}
		return q.db.QueryRowContext(ctx, `SELECT checked FROM weekly_checks
WHERE week_key = ? AND character = ? AND boss_name = ?`, string(week), entity, task).Scan(&checked)
	})
	if err != nil {
		return false, err
	}
	return checked, nil
}

// SetCompletion stores an explicit completion flag.
func (l *Ledger) SetCompletion(ctx context.Context, week core.WeekKey, entity, task string, checked bool) error {
	return l.withTx(ctx, func(q *Queries) error {
		var exists int
		err := q.db.QueryRowContext(ctx, `SELECT 1 FROM weekly_checks
WHERE week_key = ? AND character = ? AND boss_name = ?`, string(week), entity, task).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("record %s/%s/%s: %w", week, entity, task, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get record: %w", err)
		}
		_, err = q.exec(ctx, `UPDATE weekly_checks SET checked = ?
WHERE week_key = ? AND character = ? AND boss_name = ? AND checked != ?`,
			boolInt(checked), string(week), entity, task, boolInt(checked))
		if err != nil {
			return fmt.Errorf("set completion: %w", err)
		}
		return nil
	})
}

// AssignTask adds one catalog task to an entity for one week at the current
// catalog price. Re-adding an assigned task is a no-op; the result reports
// whether a record was created.
func (l *Ledger) AssignTask(ctx context.Context, week core.WeekKey, entity, task string) (bool, error) {
	if err := validWeek(week); err != nil {
		return false, fmt.Errorf("assign task: %w", err)
	}
	if err := core.ValidateName("entity", entity); err != nil {
		return false, fmt.Errorf("assign task: %w", err)
	}
	var created bool
	err := l.withTx(ctx, func(q *Queries) error {
		t, err := q.GetTask(ctx, task)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("task %q: %w", task, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get task: %w", err)
		}
		n, err := q.exec(ctx, `INSERT OR IGNORE INTO weekly_checks (week_key, character, boss_name, boss_price, checked)
VALUES (?, ?, ?, ?, 0)`, string(week), entity, t.Name, t.Price)
		if err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
		created = n > 0
		return nil
	})
	return created, err
}

// UnassignTask removes one task from one entity for one week only. The
// catalog and other weeks are unaffected.
func (l *Ledger) UnassignTask(ctx context.Context, week core.WeekKey, entity, task string) error {
	return l.withTx(ctx, func(q *Queries) error {
		n, err := q.exec(ctx, `DELETE FROM weekly_checks WHERE week_key = ? AND character = ? AND boss_name = ?`,
			string(week), entity, task)
		if err != nil {
			return fmt.Errorf("delete record: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("record %s/%s/%s: %w", week, entity, task, ErrNotFound)
		}
		return nil
	})
}

// AddEntityToWeek seeds an entity's week with every catalog task at its
// current price. Existing records are kept. It returns how many were added.
func (l *Ledger) AddEntityToWeek(ctx context.Context, week core.WeekKey, entity string) (int64, error) {
	if err := validWeek(week); err != nil {
		return 0, fmt.Errorf("add entity to week: %w", err)
	}
	if err := core.ValidateName("entity", entity); err != nil {
		return 0, fmt.Errorf("add entity to week: %w", err)
	}
	var added int64
	err := l.withTx(ctx, func(q *Queries) error {
		var err error
		added, err = q.exec(ctx, `INSERT OR IGNORE INTO weekly_checks (week_key, character, boss_name, boss_price, checked)
SELECT ?, ?, name, price, 0 FROM bosses`, string(week), entity)
		if err != nil {
			return fmt.Errorf("seed week: %w", err)
		}
		return nil
	})
	return added, err
}

const copyPreviousWeek = `INSERT OR IGNORE INTO weekly_checks (week_key, character, boss_name, boss_price, checked)
SELECT ?, w.character, w.boss_name, COALESCE(b.price, w.boss_price), 0
FROM weekly_checks w
LEFT JOIN bosses b ON b.name = w.boss_name
WHERE w.week_key = ?`

// EnsureWeek rolls the ledger over into week. When week already has
// records, or no earlier week exists, nothing changes. Otherwise every
// record of the latest earlier week is copied unchecked, priced at the
// current catalog price or, for tasks no longer in the catalog, at the
// previous snapshot price. Safe to call repeatedly.
func (l *Ledger) EnsureWeek(ctx context.Context, week core.WeekKey) (core.RolloverResult, error) {
	res := core.RolloverResult{Week: week}
	if err := validWeek(week); err != nil {
		return res, fmt.Errorf("ensure week: %w", err)
	}
	err := l.withTx(ctx, func(q *Queries) error {
		var existing int64
		if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM weekly_checks WHERE week_key = ?`, string(week)).Scan(&existing); err != nil {
			return fmt.Errorf("count week records: %w", err)
		}
		if existing > 0 {
			res.Skipped = core.SkipAlreadyRolled
			return nil
		}

		var prev sql.NullString
		if err := q.db.QueryRowContext(ctx, `SELECT MAX(week_key) FROM weekly_checks WHERE week_key < ?`, string(week)).Scan(&prev); err != nil {
			return fmt.Errorf("find previous week: %w", err)
		}
		if !prev.Valid {
			res.Skipped = core.SkipNoHistory
			return nil
		}
		res.Previous = core.WeekKey(prev.String)

		n, err := q.exec(ctx, copyPreviousWeek, string(week), prev.String)
		if err != nil {
			return fmt.Errorf("copy previous week: %w", err)
		}
		res.Created = int(n)
		return nil
	})
	if err != nil {
		return core.RolloverResult{Week: week}, err
	}
	if res.Skipped == "" {
		l.logChange(ctx, "Week rolled over", "week", week, "previous", res.Previous, "created", res.Created)
	}
	return res, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
