package tui

import (
	"fmt"
	"strings"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/veresia/internal/store"
)

// reportPageSize is how many names one chart page shows.
const reportPageSize = 8

type reportsModel struct {
	store  *store.Store
	width  int
	height int

	totals []store.NameTotal
	offset int // first name shown

	chart    barchart.Model
	currency string
}

func newReportsModel(s *store.Store) reportsModel {
	return reportsModel{
		store: s,
		chart: barchart.New(60, 12),
	}
}

func (r *reportsModel) setSize(w, h int) {
	r.width = w
	r.height = h
}

type reportsDataMsg struct {
	totals []store.NameTotal
}

func (r reportsModel) refresh() tea.Cmd {
	return func() tea.Msg {
		totals, _ := r.store.SearchNames("")
		return reportsDataMsg{totals: totals}
	}
}

func (r reportsModel) update(msg tea.Msg) (reportsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case reportsDataMsg:
		r.totals = msg.totals
		if r.offset >= len(r.totals) {
			r.offset = 0
		}
		r.buildChart()
		return r, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Left):
			if r.offset > 0 {
				r.offset = max(r.offset-reportPageSize, 0)
				r.buildChart()
			}
		case key.Matches(msg, keys.Right):
			if r.offset+reportPageSize < len(r.totals) {
				r.offset += reportPageSize
				r.buildChart()
			}
		}
	}
	return r, nil
}

func (r reportsModel) visible() []store.NameTotal {
	end := min(r.offset+reportPageSize, len(r.totals))
	if r.offset >= end {
		return nil
	}
	return r.totals[r.offset:end]
}

func (r *reportsModel) buildChart() {
	chartWidth := r.width - 8
	if chartWidth < 20 {
		chartWidth = 20
	}
	chartHeight := 12
	if r.height > 30 {
		chartHeight = 16
	}

	r.chart = barchart.New(chartWidth, chartHeight)

	var bars []barchart.BarData
	for i, t := range r.visible() {
		color := colorPrimary
		if t.Total < 0 {
			color = colorAccent
		} else if i%2 == 1 {
			color = colorSecondary
		}
		bars = append(bars, barchart.BarData{
			Label: truncate(t.Name, 8),
			Values: []barchart.BarValue{{
				Name:  t.Name,
				Value: float64(max(t.Total, 0)) / 100,
				Style: lipgloss.NewStyle().Foreground(color),
			}},
		})
	}

	r.chart.PushAll(bars)
	r.chart.Draw()
}

func (r reportsModel) view() string {
	w := r.width - 4

	var grand int64
	for _, t := range r.totals {
		grand += t.Total
	}
	page := ""
	if len(r.totals) > reportPageSize {
		page = mutedStyle.Render(fmt.Sprintf("%d–%d of %d names",
			r.offset+1, min(r.offset+reportPageSize, len(r.totals)), len(r.totals)))
	}
	header := lipgloss.JoinHorizontal(lipgloss.Bottom,
		titleStyle.Render("Reports"), "  ", subtitleStyle.Render("balance per name"), "  ", page,
	)

	nav := mutedStyle.Render("  ←/→: more names")

	return panelStyle.Width(w).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header, "", r.chart.View(), "", r.renderSummaryTable(w), "",
			titleStyle.Render(fmt.Sprintf("  All names: %s", formatMoney(grand, r.currency))), "", nav,
		),
	)
}

func (r reportsModel) renderSummaryTable(w int) string {
	if len(r.totals) == 0 {
		return mutedStyle.Render("  No entries yet")
	}

	var rows []string
	headerRow := mutedStyle.Render(fmt.Sprintf("  %-24s %14s %8s", "Name", "Total", "Entries"))
	rows = append(rows, headerRow)
	rows = append(rows, mutedStyle.Render("  "+strings.Repeat("─", min(w-6, 48))))

	for _, t := range r.visible() {
		amount := formatMoney(t.Total, r.currency)
		if t.Total < 0 {
			amount = errorStyle.Render(amount)
		}
		rows = append(rows, fmt.Sprintf("  %-24s %14s %8d", truncate(t.Name, 24), amount, t.EntryCount))
	}

	return strings.Join(rows, "\n")
}
