package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/veresia/internal/config"
	"github.com/sadopc/veresia/internal/export"
	"github.com/sadopc/veresia/internal/logger"
	"github.com/sadopc/veresia/internal/pipeline"
	"github.com/sadopc/veresia/internal/store"
)

// App is the root Bubble Tea model.
type App struct {
	ctx    context.Context
	store  *store.Store
	cfg    *config.Config
	width  int
	height int

	activeView    viewState
	showHelp      bool
	exportPicking bool
	exportCursor  int

	prefs prefs

	canvas   canvasModel
	search   searchModel
	pages    pagesModel
	reports  reportsModel
	settings settingsModel

	help      help.Model
	status    string
	statusErr bool
}

func NewApp(ctx context.Context, s *store.Store, saver *pipeline.Saver, cfg *config.Config) App {
	h := help.New()
	h.ShowAll = false

	a := App{
		ctx:        ctx,
		store:      s,
		cfg:        cfg,
		activeView: viewCanvas,
		canvas:     newCanvasModel(ctx, saver, cfg),
		search:     newSearchModel(s),
		pages:      newPagesModel(s),
		reports:    newReportsModel(s),
		settings:   newSettingsModel(s, cfg.Classifier()),
		help:       h,
	}
	a.applyPrefs(loadPrefs(s, cfg.Classifier()))
	return a
}

// applyPrefs pushes user settings into every view. The canvas classifier
// changes for strokes drawn from now on.
func (a *App) applyPrefs(p prefs) {
	a.prefs = p
	a.canvas.canvas.SetClassifier(p.classifier)
	a.search.applyPrefs(p)
	a.pages.currency = p.currency
	a.reports.currency = p.currency
}

func (a App) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		contentHeight := a.height - 4 // header + footer
		a.canvas.setSize(a.width, contentHeight, lipgloss.Height(a.renderHeader()))
		a.search.setSize(a.width, contentHeight)
		a.pages.setSize(a.width, contentHeight)
		a.reports.setSize(a.width, contentHeight)
		a.settings.setSize(a.width, contentHeight)
		return a, nil

	case tea.MouseMsg:
		if a.activeView != viewCanvas || a.exportPicking {
			return a, nil
		}
		var cmd tea.Cmd
		a.canvas, cmd = a.canvas.update(msg)
		return a, cmd

	case tea.KeyMsg:
		// Export picker
		if a.exportPicking {
			return a.updateExportPicker(msg)
		}

		// If a child view is capturing input (e.g. form), delegate first.
		if a.isFormActive() {
			return a.updateActiveView(msg)
		}

		switch {
		case key.Matches(msg, keys.Export):
			a.exportPicking = true
			a.exportCursor = 0
			return a, nil
		case key.Matches(msg, keys.Quit):
			return a, tea.Quit
		case key.Matches(msg, keys.Help):
			a.showHelp = !a.showHelp
			a.help.ShowAll = a.showHelp
			return a, nil
		case key.Matches(msg, keys.Search):
			a.activeView = viewSearch
			var cmd tea.Cmd
			a.search, cmd = a.search.focus()
			return a, cmd
		case key.Matches(msg, keys.Tab1):
			a.activeView = viewCanvas
			return a, nil
		case key.Matches(msg, keys.Tab2):
			a.activeView = viewSearch
			return a, a.refreshCurrentView()
		case key.Matches(msg, keys.Tab3):
			a.activeView = viewPages
			return a, a.refreshCurrentView()
		case key.Matches(msg, keys.Tab4):
			a.activeView = viewReports
			return a, a.refreshCurrentView()
		case key.Matches(msg, keys.Tab5):
			a.activeView = viewSettings
			return a, a.refreshCurrentView()
		case key.Matches(msg, keys.Tab):
			a.activeView = (a.activeView + 1) % viewState(len(viewNames))
			return a, a.refreshCurrentView()
		}

	case tickMsg:
		return a, tickCmd()

	case statusMsg:
		a.status = msg.text
		a.statusErr = msg.isError
		return a, nil

	case saveStartedMsg:
		a.status = "Saving page..."
		a.statusErr = false
		return a, waitForSave(msg.task, msg.image)

	case saveDoneMsg:
		a.canvas.tracker.finish(msg)
		st := saveStatus(msg)
		a.status = st.text
		a.statusErr = st.isError
		if msg.err != nil {
			logger.FromContext(a.ctx).Error("save failed", "image_path", msg.image, "error", msg.err)
		}
		// Views showing stored data pick up the new page.
		return a, a.refreshCurrentView()

	case settingsSavedMsg:
		a.applyPrefs(loadPrefs(a.store, a.cfg.Classifier()))
		a.status = "Settings saved"
		a.statusErr = false
		return a, nil

	case exportDoneMsg:
		a.status = "Exported to " + msg.path
		a.statusErr = false
		a.exportPicking = false
		return a, nil

	case searchSuggestMsg, searchResultMsg:
		var cmd tea.Cmd
		a.search, cmd = a.search.update(msg)
		return a, cmd
	}

	return a.updateActiveView(msg)
}

func (a App) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch a.activeView {
	case viewCanvas:
		a.canvas, cmd = a.canvas.update(msg)
	case viewSearch:
		a.search, cmd = a.search.update(msg)
	case viewPages:
		a.pages, cmd = a.pages.update(msg)
	case viewReports:
		a.reports, cmd = a.reports.update(msg)
	case viewSettings:
		a.settings, cmd = a.settings.update(msg)
	}
	return a, cmd
}

func (a App) isFormActive() bool {
	switch a.activeView {
	case viewSearch:
		return a.search.focused()
	case viewSettings:
		return a.settings.formActive
	}
	return false
}

func (a App) refreshCurrentView() tea.Cmd {
	switch a.activeView {
	case viewSearch:
		if a.search.name != "" {
			return tea.Batch(a.search.suggest(a.search.input.Value()), a.search.lookup(a.search.name))
		}
		return a.search.suggest(a.search.input.Value())
	case viewPages:
		return a.pages.refresh()
	case viewReports:
		return a.reports.refresh()
	case viewSettings:
		return a.settings.refresh()
	}
	return nil
}

func (a App) View() string {
	if a.width == 0 {
		return "Loading..."
	}

	header := a.renderHeader()
	footer := a.renderFooter()

	var content string
	switch a.activeView {
	case viewCanvas:
		content = a.canvas.view()
	case viewSearch:
		content = a.search.view()
	case viewPages:
		content = a.pages.view()
	case viewReports:
		content = a.reports.view()
	case viewSettings:
		content = a.settings.view()
	}

	// Calculate available height for content
	headerHeight := lipgloss.Height(header)
	footerHeight := lipgloss.Height(footer)
	contentHeight := a.height - headerHeight - footerHeight
	if contentHeight < 1 {
		contentHeight = 1
	}

	// Show export picker overlay
	if a.exportPicking {
		content = a.renderExportPicker(contentHeight)
	}

	content = lipgloss.NewStyle().
		Width(a.width).
		Height(contentHeight).
		MaxHeight(contentHeight).
		Render(content)

	return lipgloss.JoinVertical(lipgloss.Left, header, content, footer)
}

func (a App) renderHeader() string {
	var tabs []string
	for i, name := range viewNames {
		if viewState(i) == a.activeView {
			tabs = append(tabs, activeTabStyle.Render(name))
		} else {
			tabs = append(tabs, inactiveTabStyle.Render(name))
		}
	}

	tabRow := lipgloss.JoinHorizontal(lipgloss.Bottom, tabs...)

	title := lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).Render("veresia")
	gap := a.width - lipgloss.Width(title) - lipgloss.Width(tabRow) - 4
	if gap < 1 {
		gap = 1
	}
	spacer := lipgloss.NewStyle().Width(gap).Render("")

	return headerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Bottom, title, spacer, tabRow),
	)
}

func (a App) renderFooter() string {
	helpView := a.help.View(keys)

	status := ""
	if a.status != "" {
		style := mutedStyle
		if a.statusErr {
			style = errorStyle
		}
		status = style.Render(" " + a.status)
	}

	// Save indicator in footer
	saveInfo := ""
	if a.canvas.tracker.running() {
		saveInfo = warningStyle.Render(" ● saving " + formatDuration(a.canvas.tracker.elapsed(time.Now())))
	} else if a.canvas.tracker.last != nil && a.canvas.tracker.lastErr == nil {
		saveInfo = successStyle.Render(" ✓")
	}

	left := footerStyle.Render(helpView)
	right := saveInfo + status

	gap := a.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	spacer := lipgloss.NewStyle().Width(gap).Render("")

	return lipgloss.JoinHorizontal(lipgloss.Bottom, left, spacer, right)
}

func (a App) renderExportPicker(_ int) string {
	title := titleStyle.Render("Export Format")
	formats := []string{"CSV", "JSON"}
	var rows []string
	rows = append(rows, title)
	rows = append(rows, "")
	for i, f := range formats {
		cursor := "  "
		style := normalItemStyle
		if i == a.exportCursor {
			cursor = "> "
			style = selectedItemStyle
		}
		rows = append(rows, style.Render(cursor+f))
	}
	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("  enter: export  esc: cancel"))

	w := a.width - 4
	return activePanelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (a App) updateExportPicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if a.exportCursor > 0 {
			a.exportCursor--
		}
	case key.Matches(msg, keys.Down):
		if a.exportCursor < 1 {
			a.exportCursor++
		}
	case key.Matches(msg, keys.Enter):
		a.exportPicking = false
		return a, a.doExport(a.exportCursor)
	case key.Matches(msg, keys.Back):
		a.exportPicking = false
	}
	return a, nil
}

// exportDir is where exports are written.
func (a App) exportDir() string {
	return filepath.Join(a.cfg.DataDir, "exports")
}

func (a App) doExport(format int) tea.Cmd {
	dir := a.exportDir()
	return func() tea.Msg {
		entries, err := a.store.ListEntries(store.EntryFilter{})
		if err != nil {
			return statusMsg{text: fmt.Sprintf("Export error: %v", err), isError: true}
		}

		// Build page lookup
		pages := make(map[int64]*store.Page)
		plist, _ := a.store.ListPages(0)
		for i := range plist {
			pages[plist[i].ID] = &plist[i]
		}

		if err := os.MkdirAll(dir, 0o755); err != nil {
			return statusMsg{text: fmt.Sprintf("Export error: %v", err), isError: true}
		}
		dateStr := time.Now().Format("2006-01-02")

		var path string
		if format == 0 {
			path = filepath.Join(dir, fmt.Sprintf("veresia-export-%s.csv", dateStr))
			if err := export.ToCSV(entries, pages, path); err != nil {
				return statusMsg{text: fmt.Sprintf("CSV error: %v", err), isError: true}
			}
		} else {
			path = filepath.Join(dir, fmt.Sprintf("veresia-export-%s.json", dateStr))
			if err := export.ToJSON(entries, pages, path); err != nil {
				return statusMsg{text: fmt.Sprintf("JSON error: %v", err), isError: true}
			}
		}

		return exportDoneMsg{path: path}
	}
}
