package google

import (
	"strconv"
	"time"

	"bossweek/internal/core"
)

const totalLabel = "합계"

func reportHeader() []interface{} {
	return []interface{}{"Week", "Start", "Character", "Earned", "Earned (meso)", "Done", "Assigned", "Rate", "Generated", "Cumulative", "Top task"}
}

// reportRows lays out one row per entity with records in the week, followed
// by a total row. Amounts are plain numbers so sheet formulas can use them.
func reportRows(rep core.WeekReport, anchor time.Weekday) [][]interface{} {
	start := rep.Week.Start(anchor).Format("2006-01-02")
	generated := rep.GeneratedAt.UTC().Format("2006-01-02 15:04:05")

	earned := make(map[string]int64, len(rep.Entities))
	for _, e := range rep.Entities {
		earned[e.Entity] = e.Total
	}

	var rows [][]interface{}
	var done, assigned int
	for _, r := range rep.Rates {
		total := earned[r.Entity]
		rows = append(rows, []interface{}{
			string(rep.Week), start, r.Entity, total, core.FormatMeso(total),
			r.Done, r.Total, percent(r.Done, r.Total), generated, "", "",
		})
		done += r.Done
		assigned += r.Total
	}

	top := ""
	if len(rep.Tasks) > 0 {
		top = rep.Tasks[0].Task
	}
	rows = append(rows, []interface{}{
		string(rep.Week), start, totalLabel, rep.Total, core.FormatMeso(rep.Total),
		done, assigned, percent(done, assigned), generated, rep.Cumulative, top,
	})
	return rows
}

func percent(done, total int) string {
	if total == 0 {
		return "0%"
	}
	return strconv.FormatFloat(float64(done)*100/float64(total), 'f', 1, 64) + "%"
}
