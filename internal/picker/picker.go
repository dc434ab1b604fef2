// Package picker asks the user to choose one task out of several.
package picker

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/amirbrooks/tasker-recall/internal/store"
)

// DefaultHeight is the most rows shown at once.
const DefaultHeight = 20

const defaultWidth = 80

type Options struct {
	// Height caps the number of visible rows. Zero means DefaultHeight.
	Height int
	In     io.Reader
	Out    io.Writer
	// Interactive overrides terminal detection.
	Interactive func() bool
}

// Picker is a store.Picker backed by a filterable terminal list.
type Picker struct {
	height      int
	in          io.Reader
	out         io.Writer
	interactive func() bool
}

var _ store.Picker = (*Picker)(nil)

func New(opts Options) *Picker {
	p := &Picker{
		height:      opts.Height,
		in:          opts.In,
		out:         opts.Out,
		interactive: opts.Interactive,
	}
	if p.height <= 0 {
		p.height = DefaultHeight
	}
	if p.in == nil {
		p.in = os.Stdin
	}
	if p.out == nil {
		p.out = os.Stderr
	}
	if p.interactive == nil {
		p.interactive = isTerminal
	}
	return p
}

// Pick shows the candidates and returns the chosen one. Without a terminal,
// or when the user cancels, it returns nil and no error.
func (p *Picker) Pick(candidates []store.Task) (*store.Task, error) {
	if len(candidates) == 0 || !p.interactive() {
		return nil, nil
	}
	m := newModel(candidates, p.height)
	final, err := tea.NewProgram(m, tea.WithInput(p.in), tea.WithOutput(p.out)).Run()
	if err != nil {
		return nil, fmt.Errorf("picker: %w", err)
	}
	fm, ok := final.(model)
	if !ok || fm.chosen < 0 {
		return nil, nil
	}
	chosen := candidates[fm.chosen]
	return &chosen, nil
}

// isTerminal checks stdin and stderr, where the list is drawn.
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stderr.Fd()))
}

type taskItem struct {
	index int
	task  store.Task
}

func (i taskItem) Title() string { return i.task.Name() }

func (i taskItem) Description() string {
	desc := i.task.ID()
	if len(i.task.Tags) > 0 {
		desc += "  #" + strings.Join(i.task.Tags, " #")
	}
	return desc
}

func (i taskItem) FilterValue() string {
	return i.task.Name() + " " + strings.Join(i.task.Tags, " ")
}

var titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)

type model struct {
	list    list.Model
	maxRows int
	chosen  int
}

func newModel(candidates []store.Task, maxRows int) model {
	items := make([]list.Item, len(candidates))
	for i, t := range candidates {
		items[i] = taskItem{index: i, task: t}
	}
	delegate := list.NewDefaultDelegate()
	l := list.New(items, delegate, defaultWidth, listHeight(delegate, len(candidates), maxRows))
	l.Title = fmt.Sprintf("%d matching tasks", len(candidates))
	l.Styles.Title = titleStyle
	l.SetFilteringEnabled(true)
	l.SetShowStatusBar(false)
	return model{list: l, maxRows: maxRows, chosen: -1}
}

// listHeight fits up to maxRows items plus the title, filter and help lines.
func listHeight(d list.DefaultDelegate, n, maxRows int) int {
	rows := min(n, maxRows)
	return rows*(d.Height()+d.Spacing()) + 6
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.chosen = -1
			return m, tea.Quit
		case "esc":
			if m.list.FilterState() == list.Unfiltered {
				m.chosen = -1
				return m, tea.Quit
			}
		case "enter":
			if m.list.FilterState() != list.Filtering {
				if item, ok := m.list.SelectedItem().(taskItem); ok {
					m.chosen = item.index
					return m, tea.Quit
				}
			}
		}
	case tea.WindowSizeMsg:
		h := min(msg.Height, listHeight(list.NewDefaultDelegate(), len(m.list.Items()), m.maxRows))
		m.list.SetSize(msg.Width, h)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m model) View() string { return m.list.View() }
