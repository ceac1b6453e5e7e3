package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"bossweek/internal/core"
	"bossweek/internal/storage"
)

// Import categories used in ImportReport.Skipped.
const (
	CategoryTasks    = "tasks"
	CategoryEntities = "entities"
	CategoryWeeks    = "weeks"
	CategoryRecords  = "records"
)

const maxProblems = 50

// ImportApplier writes a validated batch.
type ImportApplier interface {
	ApplyImport(ctx context.Context, b storage.ImportBatch, week core.WeekKey) (storage.ImportCounts, error)
}

// ImportReport tells what a bulk import wrote and what it dropped.
type ImportReport struct {
	Applied  storage.ImportCounts `json:"applied"`
	Skipped  map[string]int       `json:"skipped"`
	Problems []string             `json:"problems,omitempty"`
}

func (r *ImportReport) skip(category, format string, args ...any) {
	r.Skipped[category]++
	if len(r.Problems) < maxProblems {
		r.Problems = append(r.Problems, category+": "+fmt.Sprintf(format, args...))
	}
}

// Importer loads the legacy JSON document:
//
//	{
//	  "boss_list":  [{"text": "Lucid", "value": 100}],
//	  "characters": {"name": {"ocid": "...", "level": 280, "job": "...", "power": 1, "character_image": "..."}},
//	  "weeks":      {"2025-36": {"name": {"bosses": [{"text": "Lucid", "value": 100, "checked": true}]}}}
//	}
//
// A week entry may also be the bare boss list. Malformed entries are
// skipped and counted; the rest is applied in one transaction.
type Importer struct {
	store ImportApplier
	week  func() core.WeekKey
}

// NewImporter builds an importer. week names the week new catalog prices
// take effect from.
func NewImporter(store ImportApplier, week func() core.WeekKey) *Importer {
	return &Importer{store: store, week: week}
}

type importDocument struct {
	BossList   []json.RawMessage          `json:"boss_list"`
	Characters map[string]json.RawMessage `json:"characters"`
	Weeks      map[string]json.RawMessage `json:"weeks"`
}

type importBoss struct {
	Text    string   `json:"text"`
	Value   flexInt  `json:"value"`
	Checked flexBool `json:"checked"`
}

type importCharacter struct {
	OCID           *string `json:"ocid"`
	Level          flexInt `json:"level"`
	Job            *string `json:"job"`
	Power          flexInt `json:"power"`
	CharacterImage *string `json:"character_image"`
}

// Import parses r and applies whatever is valid. Only an unreadable
// document or a store failure returns an error.
func (im *Importer) Import(ctx context.Context, r io.Reader) (ImportReport, error) {
	rep := ImportReport{Skipped: map[string]int{}}

	raw, err := io.ReadAll(r)
	if err != nil {
		return rep, fmt.Errorf("read import: %w", err)
	}
	var doc importDocument
	if err := json.Unmarshal(bytes.TrimSpace(raw), &doc); err != nil {
		return rep, &core.ValidationError{Field: "payload", Message: fmt.Sprintf("not an import document: %v", err)}
	}

	batch := storage.ImportBatch{
		Tasks:    im.parseTasks(doc.BossList, &rep),
		Entities: im.parseEntities(doc.Characters, &rep),
	}
	batch.Records = im.parseWeeks(doc.Weeks, &rep)

	known := make(map[string]bool, len(batch.Entities))
	for _, e := range batch.Entities {
		known[e.Name] = true
	}
	for _, rec := range batch.Records {
		if !known[rec.Entity] {
			known[rec.Entity] = true
			batch.Entities = append(batch.Entities, core.Entity{Name: rec.Entity})
		}
	}

	rep.Applied, err = im.store.ApplyImport(ctx, batch, im.week())
	if err != nil {
		return rep, fmt.Errorf("apply import: %w", err)
	}
	return rep, nil
}

func (im *Importer) parseTasks(list []json.RawMessage, rep *ImportReport) []core.Task {
	var out []core.Task
	seen := map[string]int{}
	for i, raw := range list {
		var b importBoss
		if err := json.Unmarshal(raw, &b); err != nil {
			rep.skip(CategoryTasks, "entry %d: %v", i, err)
			continue
		}
		if !b.Value.Set {
			rep.skip(CategoryTasks, "entry %d: missing price", i)
			continue
		}
		t := core.Task{Name: strings.TrimSpace(b.Text), Price: b.Value.V}
		if err := t.Validate(); err != nil {
			rep.skip(CategoryTasks, "entry %d: %v", i, err)
			continue
		}
		if j, ok := seen[t.Name]; ok {
			out[j] = t
			continue
		}
		seen[t.Name] = len(out)
		out = append(out, t)
	}
	return out
}

func (im *Importer) parseEntities(chars map[string]json.RawMessage, rep *ImportReport) []core.Entity {
	out := make([]core.Entity, 0, len(chars))
	for _, name := range sortedKeys(chars) {
		n := strings.TrimSpace(name)
		if err := core.ValidateName("entity", n); err != nil {
			rep.skip(CategoryEntities, "%q: %v", name, err)
			continue
		}
		var c importCharacter
		if raw := chars[name]; len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &c); err != nil {
				rep.skip(CategoryEntities, "%q: %v", name, err)
				continue
			}
		}
		e := core.Entity{Name: n, Profile: core.Profile{
			OCID:     nonEmpty(c.OCID),
			Job:      nonEmpty(c.Job),
			ImageURL: nonEmpty(c.CharacterImage),
		}}
		if c.Level.Set {
			e.Level = core.Ptr(int(c.Level.V))
		}
		if c.Power.Set {
			e.Power = core.Ptr(c.Power.V)
		}
		out = append(out, e)
	}
	return out
}

func (im *Importer) parseWeeks(weeks map[string]json.RawMessage, rep *ImportReport) []core.CompletionRecord {
	var out []core.CompletionRecord
	for _, rawKey := range sortedKeys(weeks) {
		week, err := core.NormalizeWeekKey(rawKey)
		if err != nil {
			rep.skip(CategoryWeeks, "%q: %v", rawKey, err)
			continue
		}
		var chars map[string]json.RawMessage
		if err := json.Unmarshal(weeks[rawKey], &chars); err != nil {
			rep.skip(CategoryWeeks, "%s: %v", week, err)
			continue
		}
		for _, name := range sortedKeys(chars) {
			entity := strings.TrimSpace(name)
			if err := core.ValidateName("entity", entity); err != nil {
				rep.skip(CategoryRecords, "%s/%q: %v", week, name, err)
				continue
			}
			bosses, err := weekBosses(chars[name])
			if err != nil {
				rep.skip(CategoryRecords, "%s/%s: %v", week, entity, err)
				continue
			}
			for i, raw := range bosses {
				var b importBoss
				if err := json.Unmarshal(raw, &b); err != nil {
					rep.skip(CategoryRecords, "%s/%s entry %d: %v", week, entity, i, err)
					continue
				}
				rec := core.CompletionRecord{
					Week:    week,
					Entity:  entity,
					Task:    strings.TrimSpace(b.Text),
					Price:   b.Value.V,
					Checked: b.Checked.V,
				}
				if err := core.ValidateName("task", rec.Task); err != nil {
					rep.skip(CategoryRecords, "%s/%s entry %d: %v", week, entity, i, err)
					continue
				}
				if err := core.ValidatePrice(rec.Price); err != nil {
					rep.skip(CategoryRecords, "%s/%s/%s: %v", week, entity, rec.Task, err)
					continue
				}
				out = append(out, rec)
			}
		}
	}
	return out
}

// weekBosses accepts {"bosses": [...]} or a bare list.
func weekBosses(raw json.RawMessage) ([]json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var obj struct {
		Bosses []json.RawMessage `json:"bosses"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	return obj.Bosses, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

// flexInt accepts a JSON number, a grouped numeric string or null.
type flexInt struct {
	V   int64
	Set bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		v, err := core.ParsePrice(str)
		if err != nil {
			return err
		}
		f.V, f.Set = v, true
		return nil
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		f.V, f.Set = v, true
		return nil
	}
	// Exponent forms like 1e6 are accepted when they denote a whole number
	// that fits in int64.
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not an integer: %s", s)
	}
	if v != math.Trunc(v) || v < math.MinInt64 || v >= math.MaxInt64 {
		return fmt.Errorf("not an integer: %s", s)
	}
	f.V, f.Set = int64(v), true
	return nil
}

// flexBool accepts true/false, 0/1 and null.
type flexBool struct {
	V bool
}

func (f *flexBool) UnmarshalJSON(b []byte) error {
	switch strings.TrimSpace(string(b)) {
	case "true", "1", `"true"`, `"1"`:
		f.V = true
	case "false", "0", "null", `"false"`, `"0"`, `""`:
		f.V = false
	default:
		return fmt.Errorf("not a boolean: %s", b)
	}
	return nil
}
