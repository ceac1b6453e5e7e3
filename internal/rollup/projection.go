// Package rollup derives read-only aggregates from the ledger's completion
// records.
//
// Aggregates are computed over a projection: a columnar copy of the
// weekly_checks table that is mirrored to a parquet file. The projection is
// a cache. It carries the ledger revision it was built from and is rebuilt
// whenever that revision is behind the ledger.
package rollup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"bossweek/internal/core"
)

// row is the on-disk layout of one completion record.
type row struct {
	Week    string `parquet:"week_key"`
	Entity  string `parquet:"character"`
	Task    string `parquet:"boss_name"`
	Price   int64  `parquet:"boss_price"`
	Checked bool   `parquet:"checked"`
}

// Marker records when and from which ledger revision a projection was built.
type Marker struct {
	Revision int64     `json:"revision"`
	SyncedAt time.Time `json:"synced_at"`
}

// Projection is immutable once built; readers share it without locking.
type Projection struct {
	rows   []row
	marker Marker
}

func newProjection(records []core.CompletionRecord, rev int64, at time.Time) *Projection {
	rows := make([]row, len(records))
	for i, r := range records {
		rows[i] = row{
			Week:    string(r.Week),
			Entity:  r.Entity,
			Task:    r.Task,
			Price:   r.Price,
			Checked: r.Checked,
		}
	}
	return &Projection{rows: rows, marker: Marker{Revision: rev, SyncedAt: at}}
}

func (p *Projection) Marker() Marker { return p.marker }

func (p *Projection) Len() int { return len(p.rows) }

// writeParquet replaces the file at path atomically.
func (p *Projection) writeParquet(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create projection directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := parquet.WriteFile(tmp, p.rows); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write parquet: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace parquet: %w", err)
	}
	return nil
}

// readParquet loads a projection written by writeParquet. A missing file
// yields (nil, nil).
func readParquet(path string, rev int64, at time.Time) (*Projection, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	rows, err := parquet.ReadFile[row](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet: %w", err)
	}
	return &Projection{rows: rows, marker: Marker{Revision: rev, SyncedAt: at}}, nil
}
