package core

import "time"

// WeekTotal is the completed earnings of one week.
type WeekTotal struct {
	Week  WeekKey `json:"week"`
	Total int64   `json:"total"`
}

// EntityTotal is the completed earnings of one entity in a scope.
type EntityTotal struct {
	Entity string `json:"entity"`
	Total  int64  `json:"total"`
}

// TaskTotal is how much one task contributed in a scope.
type TaskTotal struct {
	Task  string `json:"task"`
	Total int64  `json:"total"`
}

type CompletionRate struct {
	Entity string  `json:"entity"`
	Done   int     `json:"done"`
	Total  int     `json:"total"`
	Rate   float64 `json:"rate"`
}

// SeriesPoint is one week of an entity's earnings history.
type SeriesPoint struct {
	Week  WeekKey `json:"week"`
	Total int64   `json:"total"`
}

// WeekReport bundles the aggregates of one week for export.
type WeekReport struct {
	Week        WeekKey          `json:"week"`
	GeneratedAt time.Time        `json:"generated_at"`
	Total       int64            `json:"total"`
	Cumulative  int64            `json:"cumulative"`
	Entities    []EntityTotal    `json:"entities"`
	Tasks       []TaskTotal      `json:"tasks"`
	Rates       []CompletionRate `json:"rates"`
}
