package tui

import (
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/veresia/internal/store"
)

const recentPages = 50

type pageRow struct {
	page    store.Page
	entries []store.Entry
	total   int64
}

type pagesModel struct {
	store  *store.Store
	width  int
	height int

	rows    []pageRow
	cursor  int
	opened  bool
	loadErr error

	currency string
}

func newPagesModel(s *store.Store) pagesModel {
	return pagesModel{store: s}
}

func (m *pagesModel) setSize(w, h int) {
	m.width = w
	m.height = h
}

type pagesDataMsg struct {
	rows []pageRow
	err  error
}

func (m pagesModel) refresh() tea.Cmd {
	return func() tea.Msg {
		pages, err := m.store.ListPages(recentPages)
		if err != nil {
			return pagesDataMsg{err: err}
		}
		rows := make([]pageRow, 0, len(pages))
		for _, p := range pages {
			entries, err := m.store.EntriesForPage(p.ID)
			if err != nil {
				return pagesDataMsg{err: err}
			}
			row := pageRow{page: p, entries: entries}
			for _, e := range entries {
				row.total += e.Amount
			}
			rows = append(rows, row)
		}
		return pagesDataMsg{rows: rows}
	}
}

func (m pagesModel) update(msg tea.Msg) (pagesModel, tea.Cmd) {
	switch msg := msg.(type) {
	case pagesDataMsg:
		m.rows = msg.rows
		m.loadErr = msg.err
		if m.cursor >= len(m.rows) {
			m.cursor = max(len(m.rows)-1, 0)
		}
		return m, nil

	case tea.KeyMsg:
		if m.opened {
			if key.Matches(msg, keys.Back) || key.Matches(msg, keys.Enter) {
				m.opened = false
			}
			return m, nil
		}
		switch {
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.rows)-1 {
				m.cursor++
			}
		case key.Matches(msg, keys.Enter):
			if len(m.rows) > 0 {
				m.opened = true
			}
		}
	}
	return m, nil
}

func (m pagesModel) view() string {
	w := m.width - 4
	if m.opened && m.cursor < len(m.rows) {
		return panelStyle.Width(w).Render(m.renderPage(m.rows[m.cursor]))
	}

	rows := []string{titleStyle.Render("Pages"), ""}
	switch {
	case m.loadErr != nil:
		rows = append(rows, errorStyle.Render("  "+m.loadErr.Error()))
	case len(m.rows) == 0:
		rows = append(rows, mutedStyle.Render("  No pages saved yet"))
	default:
		rows = append(rows, mutedStyle.Render(fmt.Sprintf("  %-6s %-17s %8s %14s  %s", "Page", "Saved", "Entries", "Total", "Image")))
		room := max(m.height-8, 1)
		start := 0
		if m.cursor >= room {
			start = m.cursor - room + 1
		}
		for i := start; i < len(m.rows) && i < start+room; i++ {
			r := m.rows[i]
			cursor := "  "
			style := normalItemStyle
			if i == m.cursor {
				cursor = "> "
				style = selectedItemStyle
			}
			rows = append(rows, style.Render(fmt.Sprintf("%s#%-5d %-17s %8d %14s  %s",
				cursor, r.page.ID, r.page.Timestamp.Local().Format("2006-01-02 15:04"),
				len(r.entries), formatMoney(r.total, m.currency), filepath.Base(r.page.ImagePath))))
		}
	}
	rows = append(rows, "", mutedStyle.Render("  ↑/↓: select  enter: open"))
	return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m pagesModel) renderPage(r pageRow) string {
	rows := []string{
		titleStyle.Render(fmt.Sprintf("Page #%d", r.page.ID)),
		subtitleStyle.Render(r.page.Timestamp.Local().Format("Mon, 02 Jan 2006 15:04")),
		mutedStyle.Render(r.page.ImagePath),
		"",
	}
	if len(r.entries) == 0 {
		rows = append(rows, mutedStyle.Render("  No entries were recognized on this page"))
	}
	for _, e := range r.entries {
		rows = append(rows, fmt.Sprintf("  %-24s %14s", truncate(e.Name, 24), formatMoney(e.Amount, m.currency)))
	}
	if len(r.entries) > 0 {
		rows = append(rows, "", titleStyle.Render(fmt.Sprintf("  Total: %s", formatMoney(r.total, m.currency))))
	}
	rows = append(rows, "", mutedStyle.Render("  esc: back"))
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}
