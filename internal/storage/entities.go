package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bossweek/internal/core"
)

const upsertEntity = `INSERT INTO characters (name, ocid, level, job, power, image_url)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
    ocid      = COALESCE(excluded.ocid, characters.ocid),
    level     = COALESCE(excluded.level, characters.level),
    job       = COALESCE(excluded.job, characters.job),
    power     = COALESCE(excluded.power, characters.power),
    image_url = COALESCE(excluded.image_url, characters.image_url)`

func (q *Queries) UpsertEntity(ctx context.Context, name string, p core.Profile) error {
	var level *int64
	if p.Level != nil {
		level = core.Ptr(int64(*p.Level))
	}
	_, err := q.exec(ctx, upsertEntity, name, optional(p.OCID), optional(level), optional(p.Job), optional(p.Power), optional(p.ImageURL))
	return err
}

const updateProfile = `UPDATE characters
SET ocid = ?, level = ?, job = ?, power = ?, image_url = ?
WHERE name = ?`

func (q *Queries) UpdateProfile(ctx context.Context, name string, p core.Profile) (int64, error) {
	var level *int64
	if p.Level != nil {
		level = core.Ptr(int64(*p.Level))
	}
	return q.exec(ctx, updateProfile, optional(p.OCID), optional(level), optional(p.Job), optional(p.Power), optional(p.ImageURL), name)
}

const getEntity = `SELECT name, ocid, level, job, power, image_url FROM characters WHERE name = ?`

func (q *Queries) GetEntity(ctx context.Context, name string) (core.Entity, error) {
	return scanEntity(q.db.QueryRowContext(ctx, getEntity, name))
}

const listEntities = `SELECT name, ocid, level, job, power, image_url FROM characters ORDER BY name`

func (q *Queries) ListEntities(ctx context.Context) ([]core.Entity, error) {
	rows, err := q.db.QueryContext(ctx, listEntities)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntity(s scanner) (core.Entity, error) {
	var (
		e          core.Entity
		ocid, job  sql.NullString
		image      sql.NullString
		level, pow sql.NullInt64
	)
	if err := s.Scan(&e.Name, &ocid, &level, &job, &pow, &image); err != nil {
		return core.Entity{}, err
	}
	e.OCID = nullStr(ocid)
	e.Job = nullStr(job)
	e.ImageURL = nullStr(image)
	e.Power = nullInt(pow)
	if level.Valid {
		lv := int(level.Int64)
		e.Level = &lv
	}
	return e, nil
}

// CreateEntity adds a new entity and fails with ErrDuplicate if the name is
// taken.
func (l *Ledger) CreateEntity(ctx context.Context, e core.Entity) error {
	if err := core.ValidateName("entity", e.Name); err != nil {
		return fmt.Errorf("create entity: %w", err)
	}
	err := l.withTx(ctx, func(q *Queries) error {
		if _, err := q.GetEntity(ctx, e.Name); err == nil {
			return fmt.Errorf("create entity %q: %w", e.Name, ErrDuplicate)
		} else if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("get entity: %w", err)
		}
		if err := q.UpsertEntity(ctx, e.Name, e.Profile); err != nil {
			return fmt.Errorf("insert entity: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	l.logChange(ctx, "Entity created", "entity", e.Name)
	return nil
}

// UpsertEntity creates the entity or merges the provided attributes into
// the stored ones. Nil attributes never overwrite stored values.
func (l *Ledger) UpsertEntity(ctx context.Context, name string, p core.Profile) error {
	if err := core.ValidateName("entity", name); err != nil {
		return fmt.Errorf("upsert entity: %w", err)
	}
	err := l.withTx(ctx, func(q *Queries) error {
		return q.UpsertEntity(ctx, name, p)
	})
	if err != nil {
		return fmt.Errorf("upsert entity: %w", err)
	}
	return nil
}

// UpdateProfile merges p into an existing entity. It never creates one: a
// name that is not on the roster is ErrNotFound and nothing is written.
func (l *Ledger) UpdateProfile(ctx context.Context, name string, p core.Profile) error {
	err := l.withTx(ctx, func(q *Queries) error {
		cur, err := q.GetEntity(ctx, name)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("entity %q: %w", name, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get entity: %w", err)
		}
		if p.IsEmpty() {
			return nil
		}
		_, err = q.UpdateProfile(ctx, name, p.Merge(cur.Profile))
		return err
	})
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

func (l *Ledger) GetEntity(ctx context.Context, name string) (core.Entity, error) {
	e, err := l.queries.GetEntity(ctx, name)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Entity{}, fmt.Errorf("entity %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return core.Entity{}, fmt.Errorf("get entity: %w", err)
	}
	return e, nil
}

func (l *Ledger) ListEntities(ctx context.Context) ([]core.Entity, error) {
	out, err := l.queries.ListEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	return out, nil
}

// DeleteEntity removes the entity and every completion record it owns.
func (l *Ledger) DeleteEntity(ctx context.Context, name string) error {
	var removed int64
	err := l.withTx(ctx, func(q *Queries) error {
		n, err := q.exec(ctx, `DELETE FROM weekly_checks WHERE character = ?`, name)
		if err != nil {
			return fmt.Errorf("delete records: %w", err)
		}
		m, err := q.exec(ctx, `DELETE FROM characters WHERE name = ?`, name)
		if err != nil {
			return fmt.Errorf("delete entity: %w", err)
		}
		if n+m == 0 {
			return fmt.Errorf("entity %q: %w", name, ErrNotFound)
		}
		removed = n
		return nil
	})
	if err != nil {
		return err
	}
	l.logChange(ctx, "Entity deleted", "entity", name, "records_removed", removed)
	return nil
}
