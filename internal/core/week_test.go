package core

import (
	"errors"
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func TestWeekKeyFor(t *testing.T) {
	cases := []struct {
		name string
		t    time.Time
		want WeekKey
	}{
		{"thursday opens week", date(2025, time.September, 11), "2025-37"},
		{"sunday belongs to previous thursday", date(2025, time.September, 14), "2025-37"},
		{"wednesday still previous week", date(2025, time.September, 17), "2025-37"},
		{"next thursday", date(2025, time.September, 18), "2025-38"},
		{"new year wednesday stays in old year", date(2025, time.January, 1), "2024-52"},
		{"first thursday of 2025", date(2025, time.January, 2), "2025-01"},
		{"monday after christmas", date(2024, time.December, 30), "2024-52"},
		{"week 53", date(2020, time.December, 31), "2020-53"},
		{"week 53 carries into january", date(2021, time.January, 6), "2020-53"},
		{"january thursday is week one", date(2026, time.January, 1), "2026-01"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := WeekKeyFor(tc.t, DefaultAnchor); got != tc.want {
				t.Fatalf("WeekKeyFor(%s) = %q, want %q", tc.t.Format("2006-01-02 Mon"), got, tc.want)
			}
		})
	}
}

func TestWeekKeyOrderingMatchesChronology(t *testing.T) {
	for _, anchor := range []time.Weekday{time.Monday, time.Thursday, time.Sunday} {
		day := date(2018, time.December, 1)
		prev := WeekKeyFor(day, anchor)
		for i := 0; i < 365*4; i++ {
			day = day.AddDate(0, 0, 1)
			k := WeekKeyFor(day, anchor)
			if len(k) != 7 {
				t.Fatalf("key %q has wrong width", k)
			}
			if k < prev {
				t.Fatalf("anchor %s: %q (%s) sorts before earlier key %q", anchor, k, day.Format("2006-01-02"), prev)
			}
			prev = k
		}
	}
}

func TestWeekKeyStartAndNext(t *testing.T) {
	k := WeekKey("2025-37")
	if got := k.Start(DefaultAnchor); !got.Equal(time.Date(2025, time.September, 11, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("Start = %v", got)
	}
	if got := WeekKey("2024-52").Next(DefaultAnchor); got != "2025-01" {
		t.Fatalf("Next(2024-52) = %q", got)
	}
	if got := WeekKey("2020-53").Next(DefaultAnchor); got != "2021-01" {
		t.Fatalf("Next(2020-53) = %q", got)
	}
	if k.Year() != 2025 || k.Week() != 37 {
		t.Fatalf("split = %d/%d", k.Year(), k.Week())
	}
}

func TestParseAndNormalizeWeekKey(t *testing.T) {
	if k, err := NormalizeWeekKey("2025-7"); err != nil || k != "2025-07" {
		t.Fatalf("NormalizeWeekKey(2025-7) = %q, %v", k, err)
	}
	if k, err := ParseWeekKey(" 2025-07 "); err != nil || k != "2025-07" {
		t.Fatalf("ParseWeekKey = %q, %v", k, err)
	}
	for _, bad := range []string{"", "2025-7", "2025-54", "2025-00", "25-07", "2025/07", "abcd-ef"} {
		if _, err := ParseWeekKey(bad); !errors.Is(err, ErrInvalid) {
			t.Errorf("ParseWeekKey(%q) err = %v, want ErrInvalid", bad, err)
		}
	}
}
