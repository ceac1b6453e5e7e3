package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bossweek/internal/core"
)

const (
	NoteTaskAdded  = "task added"
	NoteBulkImport = "bulk import"
)

const getTask = `SELECT name, price FROM bosses WHERE name = ?`

func (q *Queries) GetTask(ctx context.Context, name string) (core.Task, error) {
	var t core.Task
	err := q.db.QueryRowContext(ctx, getTask, name).Scan(&t.Name, &t.Price)
	return t, err
}

const listTasks = `SELECT name, price FROM bosses ORDER BY price ASC, name ASC`

func (q *Queries) ListTasks(ctx context.Context) ([]core.Task, error) {
	rows, err := q.db.QueryContext(ctx, listTasks)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Task
	for rows.Next() {
		var t core.Task
		if err := rows.Scan(&t.Name, &t.Price); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const insertHistory = `INSERT INTO boss_price_history (boss_name, price, applied_from, note, recorded_at)
VALUES (?, ?, ?, ?, ?)`

func (q *Queries) InsertHistory(ctx context.Context, task string, price int64, from core.WeekKey, note string, at time.Time) error {
	_, err := q.exec(ctx, insertHistory, task, price, string(from), note, recordedAt(at))
	return err
}

const propagatePrice = `UPDATE weekly_checks SET boss_price = ? WHERE boss_name = ? AND week_key >= ?`

// PropagatePrice rewrites the snapshot price of every record of task at or
// after from. Earlier weeks are left untouched.
func (q *Queries) PropagatePrice(ctx context.Context, task string, price int64, from core.WeekKey) (int64, error) {
	return q.exec(ctx, propagatePrice, price, task, string(from))
}

const listHistory = `SELECT id, boss_name, price, applied_from, note, recorded_at
FROM boss_price_history WHERE boss_name = ? ORDER BY applied_from DESC, id DESC`

// AddTask inserts a catalog task if the name is free and logs its opening
// price at week. It reports whether the task was created.
func (l *Ledger) AddTask(ctx context.Context, t core.Task, week core.WeekKey) (bool, error) {
	if err := t.Validate(); err != nil {
		return false, fmt.Errorf("add task: %w", err)
	}
	if err := validWeek(week); err != nil {
		return false, fmt.Errorf("add task: %w", err)
	}
	var created bool
	err := l.withTx(ctx, func(q *Queries) error {
		n, err := q.exec(ctx, `INSERT OR IGNORE INTO bosses (name, price) VALUES (?, ?)`, t.Name, t.Price)
		if err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		if n == 0 {
			return nil
		}
		created = true
		if err := q.InsertHistory(ctx, t.Name, t.Price, week, NoteTaskAdded, l.now()); err != nil {
			return fmt.Errorf("insert history: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if created {
		l.logChange(ctx, "Task added", "task", t.Name, "price", t.Price, "week", week)
	}
	return created, nil
}

func (l *Ledger) GetTask(ctx context.Context, name string) (core.Task, error) {
	t, err := l.queries.GetTask(ctx, name)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Task{}, fmt.Errorf("task %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return core.Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListTasks returns the catalog ordered by price ascending.
func (l *Ledger) ListTasks(ctx context.Context) ([]core.Task, error) {
	out, err := l.queries.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return out, nil
}

// RetireTask drops the task from the catalog but keeps its completion
// records, so rollover keeps carrying its last snapshot price.
func (l *Ledger) RetireTask(ctx context.Context, name string) error {
	err := l.withTx(ctx, func(q *Queries) error {
		n, err := q.exec(ctx, `DELETE FROM bosses WHERE name = ?`, name)
		if err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("task %q: %w", name, ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return err
	}
	l.logChange(ctx, "Task retired", "task", name)
	return nil
}

// DeleteTask removes the task and all of its completion records. Price
// history is kept.
func (l *Ledger) DeleteTask(ctx context.Context, name string) error {
	var removed int64
	err := l.withTx(ctx, func(q *Queries) error {
		n, err := q.exec(ctx, `DELETE FROM weekly_checks WHERE boss_name = ?`, name)
		if err != nil {
			return fmt.Errorf("delete records: %w", err)
		}
		m, err := q.exec(ctx, `DELETE FROM bosses WHERE name = ?`, name)
		if err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		if n+m == 0 {
			return fmt.Errorf("task %q: %w", name, ErrNotFound)
		}
		removed = n
		return nil
	})
	if err != nil {
		return err
	}
	l.logChange(ctx, "Task deleted", "task", name, "records_removed", removed)
	return nil
}

// UpdatePrice sets the catalog price, appends a history entry and rewrites
// the snapshot price of records from applied onward, all in one
// transaction. It returns the number of records repriced.
func (l *Ledger) UpdatePrice(ctx context.Context, task string, price int64, applied core.WeekKey, note string) (int64, error) {
	if err := core.ValidatePrice(price); err != nil {
		return 0, fmt.Errorf("update price: %w", err)
	}
	if err := validWeek(applied); err != nil {
		return 0, fmt.Errorf("update price: %w", err)
	}
	var repriced int64
	err := l.withTx(ctx, func(q *Queries) error {
		n, err := q.exec(ctx, `UPDATE bosses SET price = ? WHERE name = ?`, price, task)
		if err != nil {
			return fmt.Errorf("update catalog price: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("task %q: %w", task, ErrNotFound)
		}
		if err := q.InsertHistory(ctx, task, price, applied, note, l.now()); err != nil {
			return fmt.Errorf("insert history: %w", err)
		}
		repriced, err = q.PropagatePrice(ctx, task, price, applied)
		if err != nil {
			return fmt.Errorf("propagate price: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	l.logChange(ctx, "Price updated", "task", task, "price", price, "applied_from", applied, "records_repriced", repriced)
	return repriced, nil
}

// PriceHistory lists the price log of a task, newest effective week first.
// Retired and deleted tasks keep their history.
func (l *Ledger) PriceHistory(ctx context.Context, task string) ([]core.PriceChange, error) {
	rows, err := l.db.QueryContext(ctx, listHistory, task)
	if err != nil {
		return nil, fmt.Errorf("list price history: %w", err)
	}
	defer rows.Close()

	var out []core.PriceChange
	for rows.Next() {
		var (
			pc       core.PriceChange
			from, at string
		)
		if err := rows.Scan(&pc.ID, &pc.Task, &pc.Price, &from, &pc.Note, &at); err != nil {
			return nil, fmt.Errorf("scan price history: %w", err)
		}
		pc.AppliedFrom = core.WeekKey(from)
		if ts, err := time.Parse(time.RFC3339Nano, at); err == nil {
			pc.RecordedAt = ts
		}
		out = append(out, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price history: %w", err)
	}
	return out, nil
}
