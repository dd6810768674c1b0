package plan

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/nadmax/nexdag/internal/graph"
	"github.com/nadmax/nexdag/internal/stats"
	"github.com/nadmax/nexdag/internal/task"
)

// Row is one task of the plan, in execution order.
type Row struct {
	Position int `json:"position"`
	Level    int `json:"level"`
	task.Detail
}

// Rows arranges details in order. Level is the length of the longest
// prerequisite chain below the task.
func Rows(order []string, details []task.Detail) []Row {
	byID := make(map[string]task.Detail, len(details))
	nodes := make([]graph.Node, 0, len(details))
	for _, d := range details {
		byID[d.ID] = d
		nodes = append(nodes, graph.Node{ID: d.ID, Dependencies: d.Dependencies})
	}
	levels := graph.Levels(nodes, order)

	rows := make([]Row, 0, len(order))
	for _, id := range order {
		d, ok := byID[id]
		if !ok {
			continue
		}
		rows = append(rows, Row{Position: len(rows) + 1, Level: levels[id], Detail: d})
	}

	return rows
}

// Render writes rows as a table. Status colours are only emitted when w is a
// terminal.
func Render(w io.Writer, rows []Row) error {
	styles := newStyles(w)

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "#\tLEVEL\tID\tNAME\tRETRIES\tSTATUS") //nolint:errcheck
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%d\t%s\n", //nolint:errcheck
			r.Position, r.Level, r.ID, r.Name, r.RetryCount, styles.status(r.Detail))
	}

	return tw.Flush()
}

// RenderStats writes the one-line summary that follows a run.
func RenderStats(w io.Writer, s stats.Stats) error {
	_, err := fmt.Fprintf(w, "total=%d completed=%d failed=%d skipped=%d pending=%d\n",
		s.Total, s.Completed, s.Failed, s.Skipped, s.Pending+s.Running+s.Retrying)
	return err
}

type styles struct {
	byStatus map[task.TaskStatus]lipgloss.Style
	note     lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)

	return styles{
		byStatus: map[task.TaskStatus]lipgloss.Style{
			task.StatusCompleted: r.NewStyle().Foreground(lipgloss.Color("2")),
			task.StatusFailed:    r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
			task.StatusSkipped:   r.NewStyle().Foreground(lipgloss.Color("3")),
			task.StatusRunning:   r.NewStyle().Foreground(lipgloss.Color("12")),
			task.StatusRetrying:  r.NewStyle().Foreground(lipgloss.Color("12")),
		},
		note: r.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

func (s styles) status(d task.Detail) string {
	label := string(d.Status)
	if style, ok := s.byStatus[d.Status]; ok {
		label = style.Render(label)
	}
	if d.Status != task.StatusSkipped || d.SkippedDueTo == "" {
		return label
	}

	notes := []string{"due to " + d.SkippedDueTo}
	if d.SkipRootCause != "" && d.SkipRootCause != d.SkippedDueTo {
		notes = append(notes, "root cause "+d.SkipRootCause)
	}
	return label + " " + s.note.Render("("+strings.Join(notes, ", ")+")")
}
