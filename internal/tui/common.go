package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sadopc/veresia/internal/ledger"
	"github.com/sadopc/veresia/internal/pipeline"
)

// viewState represents the currently active view.
type viewState int

const (
	viewCanvas viewState = iota
	viewSearch
	viewPages
	viewReports
	viewSettings
)

var viewNames = []string{"Canvas", "Search", "Pages", "Reports", "Settings"}

// --- Messages ---

type statusMsg struct {
	text    string
	isError bool
}

type tickMsg time.Time

// saveStartedMsg carries a save that is running in the background.
type saveStartedMsg struct {
	task  *pipeline.Task
	image string
}

type saveDoneMsg struct {
	outcome pipeline.Outcome
	err     error
	image   string
}

type settingsSavedMsg struct{}

type exportDoneMsg struct {
	path string
}

// --- Helpers ---

func statusCmd(text string, isError bool) tea.Cmd {
	return func() tea.Msg { return statusMsg{text: text, isError: isError} }
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// formatMoney renders minor units with the configured currency suffix.
func formatMoney(minor int64, currency string) string {
	if currency == "" {
		return ledger.FormatAmount(minor)
	}
	return ledger.FormatAmount(minor) + " " + currency
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
