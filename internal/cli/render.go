package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/amirbrooks/tasker-recall/internal/store"
)

var (
	colorPrimary   = lipgloss.Color("205")
	colorSecondary = lipgloss.Color("241")
	colorWarning   = lipgloss.Color("214")
)

type styles struct {
	name  lipgloss.Style
	label lipgloss.Style
	id    lipgloss.Style
	tag   lipgloss.Style
}

// newStyles picks colors for w, so redirected output stays plain.
func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		name:  r.NewStyle().Foreground(colorPrimary).Bold(true),
		label: r.NewStyle().Foreground(colorSecondary),
		id:    r.NewStyle().Foreground(colorSecondary).Italic(true),
		tag:   r.NewStyle().Foreground(colorWarning),
	}
}

func (a *app) printTasks(now time.Time, tasks []store.Task) error {
	if a.jsonOut {
		if tasks == nil {
			tasks = []store.Task{}
		}
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"tasks": tasks})
	}
	for i, t := range tasks {
		if i > 0 {
			fmt.Fprintln(a.stdout)
		}
		fmt.Fprint(a.stdout, renderTask(a.styles, now, t))
	}
	return nil
}

// renderTask formats one task for the terminal, ending in a newline.
func renderTask(st styles, now time.Time, t store.Task) string {
	var b strings.Builder
	line := func(label, value string) {
		b.WriteString(st.label.Render(label+":") + " " + value + "\n")
	}

	b.WriteString(st.name.Render(t.Name()) + " " + st.id.Render(t.ID()) + "\n")
	line("Kind", string(t.Kind))
	if d := strings.TrimSpace(t.Description()); d != "" {
		b.WriteString(st.label.Render("Description:") + "\n")
		for _, l := range strings.Split(d, "\n") {
			b.WriteString("  " + l + "\n")
		}
	}
	line("Last Performed", sinceText(now, t.LastTouched()))
	line("Priority", fmt.Sprint(t.Priority()))
	if len(t.Tags) > 0 {
		tags := make([]string, len(t.Tags))
		for i, tag := range t.Tags {
			tags[i] = st.tag.Render(tag)
		}
		line("Tags", strings.Join(tags, ", "))
	}
	if at, ok := t.ClosedAt(); ok {
		line("Closed", at.Local().Format("2006-01-02 15:04"))
	}
	return b.String()
}

// sinceText renders elapsed time as "X days, Y hours ago".
func sinceText(now, then time.Time) string {
	d := now.Sub(then)
	if d < 0 {
		d = 0
	}
	hours := int64(d / time.Hour)
	return fmt.Sprintf("%d days, %d hours ago", hours/24, hours%24)
}

func printTable(w io.Writer, now time.Time, tasks []store.Task) error {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPRI\tIDLE\tNAME\tTAGS")
	for _, t := range tasks {
		idle := now.Sub(t.LastTouched()).Round(time.Hour)
		if idle < 0 {
			idle = 0
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", t.ID(), t.Priority(), idle, t.Name(), strings.Join(t.Tags, ","))
	}
	return tw.Flush()
}
