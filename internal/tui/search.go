package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/veresia/internal/store"
)

type searchModel struct {
	store  *store.Store
	width  int
	height int

	input       textinput.Model
	suggestions []store.NameTotal
	cursor      int // -1 while the cursor is on the input

	name    string
	entries []store.Entry
	pages   map[int64]*store.Page
	total   int64
	looked  bool

	currency string
	limit    int
}

func newSearchModel(s *store.Store) searchModel {
	in := textinput.New()
	in.Placeholder = "name"
	in.Prompt = "› "
	in.CharLimit = 128
	return searchModel{
		store:  s,
		input:  in,
		cursor: -1,
		limit:  20,
	}
}

func (m *searchModel) setSize(w, h int) {
	m.width = w
	m.height = h
	m.input.Width = max(w-12, 10)
}

func (m *searchModel) applyPrefs(p prefs) {
	m.currency = p.currency
	m.limit = p.searchLimit
}

func (m searchModel) focused() bool {
	return m.input.Focused()
}

func (m searchModel) focus() (searchModel, tea.Cmd) {
	cmd := m.input.Focus()
	return m, tea.Batch(cmd, m.suggest(m.input.Value()))
}

type searchSuggestMsg struct {
	query  string
	totals []store.NameTotal
}

type searchResultMsg struct {
	name    string
	entries []store.Entry
	pages   map[int64]*store.Page
	total   int64
	err     error
}

func (m searchModel) suggest(q string) tea.Cmd {
	limit := m.limit
	return func() tea.Msg {
		totals, _ := m.store.SearchNames(strings.TrimSpace(q))
		if limit > 0 && len(totals) > limit {
			totals = totals[:limit]
		}
		return searchSuggestMsg{query: q, totals: totals}
	}
}

// lookup loads every entry recorded under exactly name.
func (m searchModel) lookup(name string) tea.Cmd {
	return func() tea.Msg {
		entries, err := m.store.ListEntriesByName(name)
		if err != nil {
			return searchResultMsg{name: name, err: err}
		}
		total, err := m.store.SumByName(name)
		if err != nil {
			return searchResultMsg{name: name, err: err}
		}
		pages := make(map[int64]*store.Page)
		for _, e := range entries {
			if e.PageID == nil {
				continue
			}
			if _, ok := pages[*e.PageID]; ok {
				continue
			}
			if p, err := m.store.GetPage(*e.PageID); err == nil {
				pages[*e.PageID] = p
			}
		}
		return searchResultMsg{name: name, entries: entries, pages: pages, total: total}
	}
}

func (m searchModel) update(msg tea.Msg) (searchModel, tea.Cmd) {
	switch msg := msg.(type) {
	case searchSuggestMsg:
		if msg.query == m.input.Value() {
			m.suggestions = msg.totals
			if m.cursor >= len(m.suggestions) {
				m.cursor = len(m.suggestions) - 1
			}
		}
		return m, nil

	case searchResultMsg:
		if msg.err != nil {
			return m, statusCmd(fmt.Sprintf("Lookup failed: %v", msg.err), true)
		}
		m.name = msg.name
		m.entries = msg.entries
		m.pages = msg.pages
		m.total = msg.total
		m.looked = true
		return m, nil

	case tea.KeyMsg:
		if !m.focused() {
			if key.Matches(msg, keys.Enter) || key.Matches(msg, keys.Search) {
				return m.focus()
			}
			return m, nil
		}
		return m.updateInput(msg)
	}
	return m, nil
}

// updateInput handles keys while the input has focus. Letters always go to
// the input, so navigation uses the arrow keys only.
func (m searchModel) updateInput(msg tea.KeyMsg) (searchModel, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.input.Blur()
		m.cursor = -1
		return m, nil
	case tea.KeyUp:
		if m.cursor >= 0 {
			m.cursor--
		}
		return m, nil
	case tea.KeyDown:
		if m.cursor < len(m.suggestions)-1 {
			m.cursor++
		}
		return m, nil
	case tea.KeyEnter:
		name := strings.TrimSpace(m.input.Value())
		if m.cursor >= 0 && m.cursor < len(m.suggestions) {
			name = m.suggestions[m.cursor].Name
			m.input.SetValue(name)
		}
		if name == "" {
			return m, nil
		}
		m.cursor = -1
		return m, tea.Batch(m.lookup(name), m.suggest(m.input.Value()))
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.input.Value() != before {
		m.cursor = -1
		return m, tea.Batch(cmd, m.suggest(m.input.Value()))
	}
	return m, cmd
}

func (m searchModel) view() string {
	w := m.width - 4

	title := titleStyle.Render("Search")
	hint := mutedStyle.Render("  /: type a name  ↑/↓: pick  enter: look up  esc: done")
	if m.focused() {
		title = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).Render("Search")
	}

	rows := []string{title, "", m.input.View(), ""}
	rows = append(rows, m.renderSuggestions()...)
	rows = append(rows, "")
	rows = append(rows, m.renderResults(w)...)
	rows = append(rows, "", hint)

	return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m searchModel) renderSuggestions() []string {
	if len(m.suggestions) == 0 {
		return []string{mutedStyle.Render("  No matching names")}
	}
	var rows []string
	for i, s := range m.suggestions {
		cursor := "  "
		style := normalItemStyle
		if i == m.cursor {
			cursor = "> "
			style = selectedItemStyle
		}
		rows = append(rows, style.Render(fmt.Sprintf("%s%-24s %14s  %s",
			cursor, truncate(s.Name, 24), formatMoney(s.Total, m.currency),
			mutedStyle.Render(fmt.Sprintf("%d entries", s.EntryCount)))))
	}
	return rows
}

func (m searchModel) renderResults(w int) []string {
	if !m.looked {
		return nil
	}
	header := highlightStyle.Render(m.name)
	if len(m.entries) == 0 {
		return []string{header, mutedStyle.Render("  No entries")}
	}

	rows := []string{header}
	// Leave room for the input, suggestions and footer hint.
	room := m.height - len(m.suggestions) - 14
	shown := m.entries
	if room > 0 && len(shown) > room {
		shown = shown[len(shown)-room:]
		rows = append(rows, mutedStyle.Render(fmt.Sprintf("  … %d earlier entries", len(m.entries)-room)))
	}
	for _, e := range shown {
		image := ""
		if e.PageID != nil {
			if p, ok := m.pages[*e.PageID]; ok {
				image = filepath.Base(p.ImagePath)
			}
		}
		rows = append(rows, fmt.Sprintf("  — %s | %s | %s | %s",
			e.Timestamp.Local().Format("2006-01-02 15:04"), e.Name,
			formatMoney(e.Amount, m.currency), mutedStyle.Render(image)))
	}
	rows = append(rows, mutedStyle.Render("  "+strings.Repeat("─", min(w-6, 54))))
	rows = append(rows, titleStyle.Render(fmt.Sprintf("  Total: %s", formatMoney(m.total, m.currency))))
	return rows
}
