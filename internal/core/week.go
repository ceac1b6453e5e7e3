package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultAnchor is the weekday on which the weekly reward cycle resets.
const DefaultAnchor = time.Thursday

// WeekKey identifies a reward week as "YYYY-WW" (ISO year, zero padded ISO
// week). Plain string comparison of two keys orders them chronologically.
type WeekKey string

// WeekKeyFor returns the key of the week containing t. The week starts on
// the most recent anchor weekday at or before t; its ISO year and week
// number name the key.
func WeekKeyFor(t time.Time, anchor time.Weekday) WeekKey {
	offset := (int(t.Weekday()) - int(anchor) + 7) % 7
	start := time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, t.Location())
	year, week := start.ISOWeek()
	return formatWeekKey(year, week)
}

func formatWeekKey(year, week int) WeekKey {
	return WeekKey(fmt.Sprintf("%04d-%02d", year, week))
}

// ParseWeekKey accepts only the canonical padded form.
func ParseWeekKey(s string) (WeekKey, error) {
	s = strings.TrimSpace(s)
	if len(s) != 7 || s[4] != '-' {
		return "", &ValidationError{Field: "week", Message: fmt.Sprintf("malformed week key %q", s)}
	}
	k, err := NormalizeWeekKey(s)
	if err != nil {
		return "", err
	}
	return k, nil
}

// NormalizeWeekKey accepts both the canonical form and the legacy unpadded
// "YYYY-W" form and returns the canonical key.
func NormalizeWeekKey(s string) (WeekKey, error) {
	s = strings.TrimSpace(s)
	yearPart, weekPart, ok := strings.Cut(s, "-")
	if !ok {
		return "", &ValidationError{Field: "week", Message: fmt.Sprintf("malformed week key %q", s)}
	}
	year, err := strconv.Atoi(yearPart)
	if err != nil || len(yearPart) != 4 {
		return "", &ValidationError{Field: "week", Message: fmt.Sprintf("malformed year in %q", s)}
	}
	week, err := strconv.Atoi(weekPart)
	if err != nil || week < 1 || week > 53 || len(weekPart) > 2 {
		return "", &ValidationError{Field: "week", Message: fmt.Sprintf("malformed week in %q", s)}
	}
	return formatWeekKey(year, week), nil
}

// Year and Week split a canonical key. They return zero for malformed keys.
func (k WeekKey) Year() int {
	if len(k) != 7 {
		return 0
	}
	y, _ := strconv.Atoi(string(k[:4]))
	return y
}

func (k WeekKey) Week() int {
	if len(k) != 7 {
		return 0
	}
	w, _ := strconv.Atoi(string(k[5:]))
	return w
}

func (k WeekKey) String() string { return string(k) }

// Start returns the anchor date that opens the week, in UTC.
func (k WeekKey) Start(anchor time.Weekday) time.Time {
	// Jan 4th is always in ISO week 1.
	jan4 := time.Date(k.Year(), time.January, 4, 0, 0, 0, 0, time.UTC)
	monday := jan4.AddDate(0, 0, -((int(jan4.Weekday()) + 6) % 7))
	monday = monday.AddDate(0, 0, (k.Week()-1)*7)
	// The anchor date falls inside the ISO week it names.
	return monday.AddDate(0, 0, (int(anchor)+6)%7)
}

// Next returns the key of the following week.
func (k WeekKey) Next(anchor time.Weekday) WeekKey {
	return WeekKeyFor(k.Start(anchor).AddDate(0, 0, 7), anchor)
}

// Before reports whether k sorts strictly before other.
func (k WeekKey) Before(other WeekKey) bool { return k < other }
