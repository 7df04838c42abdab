package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/veresia/internal/ink"
	"github.com/sadopc/veresia/internal/store"
)

// Setting keys persisted in the settings table.
const (
	settingCurrency          = "currency"
	settingSearchLimit       = "search_limit"
	settingStrikeMinPoints   = "strike_min_points"
	settingStrikeWidthRatio  = "strike_width_ratio"
	settingStrikeHeightRatio = "strike_height_ratio"
)

// prefs are the user settings the views work with. Strike thresholds fall
// back to the configured classifier when not set.
type prefs struct {
	currency    string
	searchLimit int
	classifier  ink.Classifier
}

func loadPrefs(s *store.Store, base ink.Classifier) prefs {
	p := prefs{
		currency:    s.GetSettingOr(settingCurrency, ""),
		searchLimit: 20,
		classifier:  base,
	}
	if n, err := strconv.Atoi(s.GetSettingOr(settingSearchLimit, "")); err == nil && n > 0 {
		p.searchLimit = n
	}
	if n, err := strconv.Atoi(s.GetSettingOr(settingStrikeMinPoints, "")); err == nil && n > 0 {
		p.classifier.MinPoints = n
	}
	if f, err := strconv.ParseFloat(s.GetSettingOr(settingStrikeWidthRatio, ""), 64); err == nil && f > 0 && f <= 1 {
		p.classifier.MinWidthRatio = f
	}
	if f, err := strconv.ParseFloat(s.GetSettingOr(settingStrikeHeightRatio, ""), 64); err == nil && f > 0 && f <= 1 {
		p.classifier.MaxHeightRatio = f
	}
	return p
}

type settingsModel struct {
	store  *store.Store
	width  int
	height int

	base       ink.Classifier
	settings   []store.Setting
	formActive bool
	form       *huh.Form

	// Form values as pointers (survive value copies)
	currency          *string
	searchLimit       *string
	strikeMinPoints   *string
	strikeWidthRatio  *string
	strikeHeightRatio *string
}

func newSettingsModel(s *store.Store, base ink.Classifier) settingsModel {
	cur, sl, mp, wr, hr := "", "", "", "", ""
	return settingsModel{
		store:             s,
		base:              base,
		currency:          &cur,
		searchLimit:       &sl,
		strikeMinPoints:   &mp,
		strikeWidthRatio:  &wr,
		strikeHeightRatio: &hr,
	}
}

func (s *settingsModel) setSize(w, h int) {
	s.width = w
	s.height = h
}

type settingsDataMsg struct {
	settings []store.Setting
}

func (s settingsModel) refresh() tea.Cmd {
	return func() tea.Msg {
		settings, _ := s.store.GetAllSettings()
		return settingsDataMsg{settings: settings}
	}
}

func (s settingsModel) update(msg tea.Msg) (settingsModel, tea.Cmd) {
	if s.formActive && s.form != nil {
		return s.updateForm(msg)
	}

	switch msg := msg.(type) {
	case settingsDataMsg:
		s.settings = msg.settings
		return s, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Enter) {
			return s.showForm()
		}
	}
	return s, nil
}

func (s settingsModel) showForm() (settingsModel, tea.Cmd) {
	p := loadPrefs(s.store, s.base)
	*s.currency = p.currency
	*s.searchLimit = strconv.Itoa(p.searchLimit)
	*s.strikeMinPoints = strconv.Itoa(p.classifier.MinPoints)
	*s.strikeWidthRatio = formatRatio(p.classifier.MinWidthRatio)
	*s.strikeHeightRatio = formatRatio(p.classifier.MaxHeightRatio)

	s.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Currency suffix").Value(s.currency),
			huh.NewInput().Title("Search suggestions").Value(s.searchLimit).Validate(validatePositiveInt),
		).Title("Ledger"),
		huh.NewGroup(
			huh.NewInput().Title("Minimum points").Value(s.strikeMinPoints).Validate(validatePositiveInt),
			huh.NewInput().Title("Minimum width (share of canvas)").Value(s.strikeWidthRatio).Validate(validateRatio),
			huh.NewInput().Title("Maximum height (share of canvas)").Value(s.strikeHeightRatio).Validate(validateRatio),
		).Title("Crossing out"),
	).WithShowHelp(true).WithShowErrors(true)

	s.formActive = true
	return s, s.form.Init()
}

func (s settingsModel) updateForm(msg tea.Msg) (settingsModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if msg.String() == "esc" {
			s.formActive = false
			s.form = nil
			return s, nil
		}
	}

	form, cmd := s.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		s.form = f
	}

	if s.form.State == huh.StateCompleted {
		s.formActive = false
		if err := s.saveSettings(); err != nil {
			return s, statusCmd(fmt.Sprintf("Settings not saved: %v", err), true)
		}
		return s, tea.Batch(s.refresh(), func() tea.Msg { return settingsSavedMsg{} })
	}

	return s, cmd
}

func (s settingsModel) saveSettings() error {
	values := [][2]string{
		{settingCurrency, strings.TrimSpace(*s.currency)},
		{settingSearchLimit, strings.TrimSpace(*s.searchLimit)},
		{settingStrikeMinPoints, strings.TrimSpace(*s.strikeMinPoints)},
		{settingStrikeWidthRatio, strings.TrimSpace(*s.strikeWidthRatio)},
		{settingStrikeHeightRatio, strings.TrimSpace(*s.strikeHeightRatio)},
	}
	var errs []error
	for _, kv := range values {
		if err := s.store.SetSetting(kv[0], kv[1]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func validatePositiveInt(v string) error {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return errors.New("enter a whole number above 0")
	}
	return nil
}

func validateRatio(v string) error {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f <= 0 || f > 1 {
		return errors.New("enter a number in (0, 1]")
	}
	return nil
}

func formatRatio(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func (s settingsModel) view() string {
	w := s.width - 4

	if s.formActive && s.form != nil {
		title := titleStyle.Render("Settings")
		formView := s.form.View()
		return panelStyle.Width(w).Render(
			lipgloss.JoinVertical(lipgloss.Left, title, "", formView),
		)
	}

	title := titleStyle.Render("Settings")
	hint := mutedStyle.Render("Press enter to edit settings")

	var rows []string
	rows = append(rows, title)
	rows = append(rows, "")

	for _, setting := range s.settings {
		label := lipgloss.NewStyle().Width(24).Render(setting.Key)
		value := highlightStyle.Render(formatSettingValue(setting.Key, setting.Value))
		rows = append(rows, fmt.Sprintf("  %s %s", label, value))
	}

	rows = append(rows, "")
	rows = append(rows, hint)

	return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func formatSettingValue(k, v string) string {
	switch k {
	case settingStrikeWidthRatio, settingStrikeHeightRatio:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return fmt.Sprintf("%.0f%% of canvas", f*100)
		}
	case settingSearchLimit:
		return v + " names"
	case settingCurrency:
		if v == "" {
			return "(none)"
		}
	}
	return v
}
