package root

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"bossweek/internal/core"
)

var (
	cPrimary = lipgloss.Color("63")
	cGood    = lipgloss.Color("42")
	cBad     = lipgloss.Color("196")
	cMuted   = lipgloss.Color("244")
	cGold    = lipgloss.Color("220")
)

var (
	Title = lipgloss.NewStyle().Bold(true).Foreground(cPrimary)
	Key   = lipgloss.NewStyle().Bold(true).Foreground(cPrimary)
	Good  = lipgloss.NewStyle().Bold(true).Foreground(cGood)
	Bad   = lipgloss.NewStyle().Bold(true).Foreground(cBad)
	Gold  = lipgloss.NewStyle().Bold(true).Foreground(cGold)
	Muted = lipgloss.NewStyle().Foreground(cMuted)

	Panel = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(cMuted).Padding(0, 1)
)

func labelValue(label string, value any) string {
	return fmt.Sprintf("%s %v", Key.Render(label+":"), value)
}

func meso(v int64) string {
	return Gold.Render(core.FormatMeso(v))
}

func checkMark(done bool) string {
	if done {
		return Good.Render("[x]")
	}
	return Muted.Render("[ ]")
}

// printSnapshot renders one panel per character with its tasks in price
// order and the earned total.
func printSnapshot(w io.Writer, snap core.WeekSnapshot) {
	fmt.Fprintln(w, Title.Render("Week "+snap.Week.String()))
	if len(snap.Entities) == 0 {
		fmt.Fprintln(w, Muted.Render("no characters this week"))
		return
	}
	for _, e := range snap.Entities {
		var b strings.Builder
		var earned int64
		done := 0
		for _, t := range e.Tasks {
			if t.Checked {
				earned += t.Price
				done++
			}
			fmt.Fprintf(&b, "%s %-16s %s\n", checkMark(t.Checked), t.Task, Muted.Render(core.FormatMeso(t.Price)))
		}
		fmt.Fprintf(&b, "%s %d/%d  %s", Key.Render(e.Name), done, len(e.Tasks), meso(earned))
		fmt.Fprintln(w, Panel.Render(b.String()))
	}
}

func printReport(w io.Writer, rep core.WeekReport) {
	fmt.Fprintln(w, Title.Render("Report "+rep.Week.String()))
	fmt.Fprintln(w, labelValue("Week total", meso(rep.Total)))
	fmt.Fprintln(w, labelValue("Cumulative", meso(rep.Cumulative)))
	if len(rep.Entities) > 0 {
		fmt.Fprintln(w, Key.Render("By character"))
		for _, e := range rep.Entities {
			fmt.Fprintf(w, "  %-16s %s\n", e.Entity, meso(e.Total))
		}
	}
	if len(rep.Tasks) > 0 {
		fmt.Fprintln(w, Key.Render("By boss"))
		for _, t := range rep.Tasks {
			fmt.Fprintf(w, "  %-16s %s\n", t.Task, meso(t.Total))
		}
	}
	if len(rep.Rates) > 0 {
		fmt.Fprintln(w, Key.Render("Completion"))
		for _, r := range rep.Rates {
			fmt.Fprintf(w, "  %-16s %d/%d (%.0f%%)\n", r.Entity, r.Done, r.Total, r.Rate*100)
		}
	}
}
