package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bossweek/internal/core"
)

// ImportBatch is a validated bulk payload.
type ImportBatch struct {
	Tasks    []core.Task
	Entities []core.Entity
	Records  []core.CompletionRecord
}

// ImportCounts reports rows applied per category.
type ImportCounts struct {
	Tasks    int `json:"tasks"`
	Entities int `json:"entities"`
	Records  int `json:"records"`
	// PriceChanges counts catalog prices that differed from the stored ones.
	PriceChanges int `json:"price_changes"`
}

const upsertRecord = `INSERT INTO weekly_checks (week_key, character, boss_name, boss_price, checked)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(week_key, character, boss_name) DO UPDATE SET
    boss_price = excluded.boss_price,
    checked    = excluded.checked`

// ApplyImport writes a batch in one transaction. Existing keys are
// overwritten, never duplicated. A catalog price that changes is logged and
// propagated from week like a regular price update, before the batch's own
// records are written; unchanged prices leave the history alone so that
// re-importing a payload is a no-op.
func (l *Ledger) ApplyImport(ctx context.Context, b ImportBatch, week core.WeekKey) (ImportCounts, error) {
	var c ImportCounts
	if err := validWeek(week); err != nil {
		return c, fmt.Errorf("apply import: %w", err)
	}
	err := l.withTx(ctx, func(q *Queries) error {
		for _, t := range b.Tasks {
			cur, err := q.GetTask(ctx, t.Name)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				if _, err := q.exec(ctx, `INSERT INTO bosses (name, price) VALUES (?, ?)`, t.Name, t.Price); err != nil {
					return fmt.Errorf("insert task %q: %w", t.Name, err)
				}
				if err := q.InsertHistory(ctx, t.Name, t.Price, week, NoteBulkImport, l.now()); err != nil {
					return fmt.Errorf("insert history: %w", err)
				}
			case err != nil:
				return fmt.Errorf("get task %q: %w", t.Name, err)
			case cur.Price != t.Price:
				if _, err := q.exec(ctx, `UPDATE bosses SET price = ? WHERE name = ?`, t.Price, t.Name); err != nil {
					return fmt.Errorf("update task %q: %w", t.Name, err)
				}
				if err := q.InsertHistory(ctx, t.Name, t.Price, week, NoteBulkImport, l.now()); err != nil {
					return fmt.Errorf("insert history: %w", err)
				}
				if _, err := q.PropagatePrice(ctx, t.Name, t.Price, week); err != nil {
					return fmt.Errorf("propagate price: %w", err)
				}
				c.PriceChanges++
			}
			c.Tasks++
		}

		for _, e := range b.Entities {
			if err := q.UpsertEntity(ctx, e.Name, e.Profile); err != nil {
				return fmt.Errorf("upsert entity %q: %w", e.Name, err)
			}
			c.Entities++
		}

		for _, r := range b.Records {
			if _, err := q.exec(ctx, upsertRecord, string(r.Week), r.Entity, r.Task, r.Price, boolInt(r.Checked)); err != nil {
				return fmt.Errorf("upsert record %s/%s/%s: %w", r.Week, r.Entity, r.Task, err)
			}
			c.Records++
		}
		return nil
	})
	if err != nil {
		return ImportCounts{}, err
	}
	l.logChange(ctx, "Import applied",
		"tasks", c.Tasks, "entities", c.Entities, "records", c.Records, "price_changes", c.PriceChanges)
	return c, nil
}
