package tui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sadopc/veresia/internal/config"
	"github.com/sadopc/veresia/internal/ink"
	"github.com/sadopc/veresia/internal/ledger"
	"github.com/sadopc/veresia/internal/pipeline"
	"github.com/sadopc/veresia/internal/recognize"
	"github.com/sadopc/veresia/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewMemory()
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		DataDir:           dir,
		PagesDir:          filepath.Join(dir, "pages"),
		CanvasWidth:       1200,
		CanvasHeight:      1600,
		StrikeMinPoints:   ink.DefaultMinPoints,
		StrikeWidthRatio:  ink.DefaultMinWidthRatio,
		StrikeHeightRatio: ink.DefaultMaxHeightRatio,
		StrikeNoise:       ink.DefaultNoise,
	}
}

// newTestApp returns a sized 100x40 app whose recognizer reads lines.
func newTestApp(t *testing.T, s *store.Store, lines ...string) App {
	t.Helper()
	saver := pipeline.NewSaver(s, recognize.Static{Lines: lines})
	a := NewApp(context.Background(), s, saver, testConfig(t))
	m, _ := a.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return m.(App)
}

func update(t *testing.T, a App, msg tea.Msg) (App, tea.Cmd) {
	t.Helper()
	m, cmd := a.Update(msg)
	return m.(App), cmd
}

func keyPress(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func mouse(x, y int, action tea.MouseAction) tea.MouseMsg {
	return tea.MouseMsg{X: x, Y: y, Action: action, Button: tea.MouseButtonLeft}
}

// drag presses at the first cell, moves through the rest and releases at
// the last one.
func drag(t *testing.T, a App, cells [][2]int) App {
	t.Helper()
	a, _ = update(t, a, mouse(cells[0][0], cells[0][1], tea.MouseActionPress))
	for _, c := range cells[1:] {
		a, _ = update(t, a, mouse(c[0], c[1], tea.MouseActionMotion))
	}
	last := cells[len(cells)-1]
	a, _ = update(t, a, mouse(last[0], last[1], tea.MouseActionRelease))
	return a
}

func scribbleCells(y int) [][2]int {
	var cells [][2]int
	for pass := 0; pass < 4; pass++ {
		for i := 0; i <= 75; i++ {
			x := 5 + i
			if pass%2 == 1 {
				x = 80 - i
			}
			cells = append(cells, [2]int{x, y})
		}
	}
	return cells
}

// ============================================================
// Canvas
// ============================================================

func TestCanvasSize(t *testing.T) {
	a := newTestApp(t, newTestStore(t))
	c := a.canvas
	if c.cols != 98 || c.rows != 33 {
		t.Fatalf("grid = %dx%d, want 98x33", c.cols, c.rows)
	}
	if c.canvas.Width != 98*cellWidthPx || c.canvas.Height != 33*cellHeightPx {
		t.Fatalf("canvas = %vx%v", c.canvas.Width, c.canvas.Height)
	}
	if c.canvas.Classifier().CanvasWidth != c.canvas.Width {
		t.Fatal("classifier not resized with the canvas")
	}
}

func TestCanvasToPoint(t *testing.T) {
	a := newTestApp(t, newTestStore(t))
	c := a.canvas

	p, ok := c.toPoint(c.originX, c.originY)
	if !ok || p.X != cellWidthPx/2 || p.Y != cellHeightPx/2 {
		t.Fatalf("top-left cell = %+v, %v", p, ok)
	}
	p, ok = c.toPoint(500, 500)
	if ok {
		t.Fatal("cell outside the grid reported inside")
	}
	if p.X >= c.canvas.Width || p.Y >= c.canvas.Height {
		t.Fatalf("point not clamped: %+v", p)
	}
}

func TestCanvasCapturesStroke(t *testing.T) {
	a := newTestApp(t, newTestStore(t))
	a = drag(t, a, [][2]int{{10, 5}, {15, 5}, {20, 6}, {30, 6}})

	strokes := a.canvas.canvas.Strokes()
	if len(strokes) != 1 {
		t.Fatalf("expected 1 stroke, got %d", len(strokes))
	}
	if len(strokes[0].Points) != 4 {
		t.Fatalf("expected 4 points, got %d", len(strokes[0].Points))
	}
	if strokes[0].Strike {
		t.Fatal("short stroke classified as strike")
	}
	if a.canvas.canvas.Drawing() {
		t.Fatal("release should end the stroke")
	}
}

func TestCanvasPressOutsideIgnored(t *testing.T) {
	a := newTestApp(t, newTestStore(t))
	a = drag(t, a, [][2]int{{10, 0}, {20, 0}})
	if a.canvas.canvas.Len() != 0 {
		t.Fatal("press on the header must not start a stroke")
	}
}

func TestCanvasRightButtonIgnored(t *testing.T) {
	a := newTestApp(t, newTestStore(t))
	a, _ = update(t, a, tea.MouseMsg{X: 10, Y: 10, Action: tea.MouseActionPress, Button: tea.MouseButtonRight})
	if a.canvas.canvas.Drawing() {
		t.Fatal("right button must not draw")
	}
}

func TestCanvasStrike(t *testing.T) {
	a := newTestApp(t, newTestStore(t))
	a = drag(t, a, scribbleCells(10))

	strokes := a.canvas.canvas.Strokes()
	if len(strokes) != 1 || !strokes[0].Strike {
		t.Fatalf("wide zigzag should be a strike: %+v", strokes)
	}
	if !strings.Contains(a.canvas.info(), "1 crossed out") {
		t.Fatalf("info line should count the strike: %q", a.canvas.info())
	}
}

func TestCanvasMouseOnlyOnCanvasView(t *testing.T) {
	a := newTestApp(t, newTestStore(t))
	a, _ = update(t, a, keyPress("3"))
	a = drag(t, a, [][2]int{{10, 5}, {30, 5}})
	if a.canvas.canvas.Len() != 0 {
		t.Fatal("mouse events outside the canvas view must be ignored")
	}
}

func TestCanvasUndoClear(t *testing.T) {
	a := newTestApp(t, newTestStore(t))
	a = drag(t, a, [][2]int{{10, 5}, {30, 5}})
	a = drag(t, a, [][2]int{{10, 8}, {30, 8}})

	a, _ = update(t, a, keyPress("u"))
	if a.canvas.canvas.Len() != 1 {
		t.Fatalf("undo should leave 1 stroke, got %d", a.canvas.canvas.Len())
	}
	a, _ = update(t, a, keyPress("c"))
	if a.canvas.canvas.Len() != 0 {
		t.Fatal("clear should remove all strokes")
	}
	_, cmd := update(t, a, keyPress("u"))
	if msg, ok := cmd().(statusMsg); !ok || msg.text != "Nothing to undo" {
		t.Fatalf("unexpected undo message: %#v", msg)
	}
}

func TestCanvasGrid(t *testing.T) {
	a := newTestApp(t, newTestStore(t))
	a = drag(t, a, [][2]int{{10, 5}, {20, 5}})

	g := a.canvas.grid()
	row := 5 - a.canvas.originY
	for x := 10 - a.canvas.originX; x <= 20-a.canvas.originX; x++ {
		if g[row][x] != cellInk {
			t.Fatalf("cell (%d,%d) not inked", x, row)
		}
	}
	if g[row+1][10] != cellEmpty {
		t.Fatal("neighbouring row should stay empty")
	}
	if !strings.Contains(a.canvas.view(), "█") {
		t.Fatal("view should draw ink")
	}
}

func TestCellLine(t *testing.T) {
	var got [][2]int
	cellLine(0, 0, 3, 1, func(x, y int) { got = append(got, [2]int{x, y}) })
	if len(got) != 4 {
		t.Fatalf("expected 4 cells, got %v", got)
	}
	if got[0] != [2]int{0, 0} || got[3] != [2]int{3, 1} {
		t.Fatalf("line endpoints = %v", got)
	}

	got = nil
	cellLine(2, 5, 2, 2, func(x, y int) { got = append(got, [2]int{x, y}) })
	if len(got) != 4 || got[3] != [2]int{2, 2} {
		t.Fatalf("vertical line = %v", got)
	}
}

// ============================================================
// Saving
// ============================================================

func TestSaveFlow(t *testing.T) {
	s := newTestStore(t)
	a := newTestApp(t, s, "Иван 12.50", "Мария 3")
	a = drag(t, a, [][2]int{{10, 5}, {30, 5}})

	a, cmd := update(t, a, keyPress("s"))
	if !a.canvas.tracker.running() {
		t.Fatal("tracker should report a save in flight")
	}

	// A second save is refused while the first runs.
	_, again := update(t, a, keyPress("s"))
	if msg, ok := again().(statusMsg); !ok || !msg.isError {
		t.Fatalf("expected refusal, got %#v", msg)
	}

	started, ok := cmd().(saveStartedMsg)
	if !ok {
		t.Fatalf("expected saveStartedMsg, got %#v", started)
	}
	if _, err := os.Stat(started.image); err != nil {
		t.Fatalf("page image not written: %v", err)
	}

	a, wait := update(t, a, started)
	done, ok := wait().(saveDoneMsg)
	if !ok {
		t.Fatal("expected saveDoneMsg")
	}
	a, _ = update(t, a, done)

	if a.canvas.tracker.running() {
		t.Fatal("tracker should be idle after the save")
	}
	if a.status != "Page #1 saved: 2 entries" || a.statusErr {
		t.Fatalf("status = %q (err=%v)", a.status, a.statusErr)
	}
	if a.canvas.canvas.Len() != 1 {
		t.Fatal("canvas should keep its strokes after saving")
	}
	total, _ := s.SumByName("Иван")
	if total != 1250 {
		t.Fatalf("Иван total = %d, want 1250", total)
	}
}

func TestSaveStatus(t *testing.T) {
	tests := []struct {
		name    string
		msg     saveDoneMsg
		want    string
		isError bool
	}{
		{"page failed", saveDoneMsg{err: errors.New("disk full")}, "Save failed: disk full", true},
		{"recognition failed", saveDoneMsg{outcome: pipeline.Outcome{PageID: 2, RecognitionErr: errors.New("no engine")}},
			"Page #2 saved, recognition failed: no engine", true},
		{"empty", saveDoneMsg{outcome: pipeline.Outcome{PageID: 3}}, "Page #3 saved, no entries recognized", false},
		{"crossed", saveDoneMsg{outcome: pipeline.Outcome{
			PageID:  4,
			Entries: make([]pipeline.SavedEntry, 2),
			Crossed: make([]ledger.Entry, 1),
		}}, "Page #4 saved: 2 entries, 1 crossed out", false},
	}
	for _, tt := range tests {
		got := saveStatus(tt.msg)
		if got.text != tt.want || got.isError != tt.isError {
			t.Errorf("%s: got %q (err=%v), want %q (err=%v)", tt.name, got.text, got.isError, tt.want, tt.isError)
		}
	}
}

func TestSaveTrackerElapsed(t *testing.T) {
	var tr saveTracker
	start := time.Date(2024, 3, 8, 10, 0, 0, 0, time.UTC)
	if tr.elapsed(start) != 0 {
		t.Fatal("idle tracker should report no elapsed time")
	}
	if !tr.begin(start) || tr.begin(start) {
		t.Fatal("begin should succeed once")
	}
	if got := tr.elapsed(start.Add(3 * time.Second)); got != 3*time.Second {
		t.Fatalf("elapsed = %v", got)
	}
	tr.finish(saveDoneMsg{outcome: pipeline.Outcome{PageID: 7}, image: "p.png"})
	if tr.running() || tr.last.PageID != 7 || tr.lastPath != "p.png" {
		t.Fatalf("unexpected tracker state: %+v", tr)
	}
}

// ============================================================
// Search
// ============================================================

func seedEntries(t *testing.T, s *store.Store) {
	t.Helper()
	ts := time.Date(2024, 3, 8, 17, 30, 0, 0, time.UTC)
	pageID, err := s.AddPage("/pages/page_1.png", ts)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range []struct {
		name   string
		amount int64
	}{{"Иван", 1250}, {"Иван", 300}, {"Мария", 2000}, {"Иванка", 100}} {
		if _, err := s.AddEntry(e.name, e.amount, ts, &pageID); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSearchLookup(t *testing.T) {
	s := newTestStore(t)
	seedEntries(t, s)
	m := newSearchModel(s)
	m.setSize(100, 36)
	m.applyPrefs(prefs{currency: "лв", searchLimit: 20})

	m, _ = m.update(m.lookup("Иван")())
	if len(m.entries) != 2 || m.total != 1550 {
		t.Fatalf("lookup = %d entries, total %d", len(m.entries), m.total)
	}
	view := m.view()
	if !strings.Contains(view, "Total: 15.50 лв") {
		t.Fatalf("view missing total:\n%s", view)
	}
	if !strings.Contains(view, "page_1.png") {
		t.Fatal("view should name the page image")
	}
}

func TestSearchSuggestions(t *testing.T) {
	s := newTestStore(t)
	seedEntries(t, s)
	m := newSearchModel(s)
	m.applyPrefs(prefs{searchLimit: 1})

	m, _ = m.focus()
	m.input.SetValue("Иван")
	m, _ = m.update(m.suggest("Иван")())
	if len(m.suggestions) != 1 || m.suggestions[0].Name != "Иван" {
		t.Fatalf("suggestions = %+v", m.suggestions)
	}

	// Results for an older query are dropped.
	m, _ = m.update(searchSuggestMsg{query: "И", totals: make([]store.NameTotal, 3)})
	if len(m.suggestions) != 1 {
		t.Fatal("stale suggestions applied")
	}
}

func TestSearchPicksSuggestion(t *testing.T) {
	s := newTestStore(t)
	seedEntries(t, s)
	m := newSearchModel(s)
	m, _ = m.focus()
	m, _ = m.update(m.suggest("")())

	m, _ = m.update(tea.KeyMsg{Type: tea.KeyDown})
	m, cmd := m.update(tea.KeyMsg{Type: tea.KeyEnter})
	if m.input.Value() != "Мария" {
		t.Fatalf("enter should pick the highlighted name, got %q", m.input.Value())
	}
	if cmd == nil {
		t.Fatal("expected lookup command")
	}
}

func TestSearchCapturesKeys(t *testing.T) {
	a := newTestApp(t, newTestStore(t))
	a, _ = update(t, a, keyPress("/"))
	if a.activeView != viewSearch || !a.isFormActive() {
		t.Fatal("/ should open and focus search")
	}
	a, _ = update(t, a, keyPress("q"))
	if a.search.input.Value() != "q" {
		t.Fatalf("q should be typed into search, got %q", a.search.input.Value())
	}
	a, _ = update(t, a, tea.KeyMsg{Type: tea.KeyEsc})
	if a.isFormActive() {
		t.Fatal("esc should release the input")
	}
}

// ============================================================
// Pages and reports
// ============================================================

func TestPagesRefresh(t *testing.T) {
	s := newTestStore(t)
	seedEntries(t, s)
	if _, err := s.AddPage("/pages/empty.png", time.Now()); err != nil {
		t.Fatal(err)
	}
	m := newPagesModel(s)
	m.setSize(100, 36)

	m, _ = m.update(m.refresh()())
	if len(m.rows) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(m.rows))
	}
	if len(m.rows[0].entries) != 0 || m.rows[1].total != 3650 {
		t.Fatalf("unexpected rows: %+v", m.rows)
	}

	m, _ = m.update(tea.KeyMsg{Type: tea.KeyDown})
	m, _ = m.update(tea.KeyMsg{Type: tea.KeyEnter})
	if !m.opened {
		t.Fatal("enter should open the page")
	}
	if !strings.Contains(m.view(), "Мария") {
		t.Fatal("opened page should list its entries")
	}
	m, _ = m.update(tea.KeyMsg{Type: tea.KeyEsc})
	if m.opened {
		t.Fatal("esc should close the page")
	}
}

func TestReportsPaging(t *testing.T) {
	s := newTestStore(t)
	ts := time.Now()
	for i := 0; i < 10; i++ {
		if _, err := s.AddEntry(string(rune('A'+i)), int64(100*(i+1)), ts, nil); err != nil {
			t.Fatal(err)
		}
	}
	r := newReportsModel(s)
	r.setSize(100, 36)
	r, _ = r.update(r.refresh()())

	if len(r.visible()) != reportPageSize || r.visible()[0].Name != "J" {
		t.Fatalf("first page = %+v", r.visible())
	}
	r, _ = r.update(tea.KeyMsg{Type: tea.KeyRight})
	if r.offset != reportPageSize || len(r.visible()) != 2 {
		t.Fatalf("second page offset=%d len=%d", r.offset, len(r.visible()))
	}
	r, _ = r.update(tea.KeyMsg{Type: tea.KeyRight})
	if r.offset != reportPageSize {
		t.Fatal("paging past the end should stop")
	}
	r, _ = r.update(tea.KeyMsg{Type: tea.KeyLeft})
	if r.offset != 0 {
		t.Fatal("left should go back")
	}
	if !strings.Contains(r.view(), "All names: 55.00") {
		t.Fatal("view should show the grand total")
	}
}

// ============================================================
// Settings
// ============================================================

func TestLoadPrefs(t *testing.T) {
	s := newTestStore(t)
	base := ink.DefaultClassifier(800, 600)

	p := loadPrefs(s, base)
	if p.currency != "лв" || p.searchLimit != 20 || p.classifier != base {
		t.Fatalf("defaults = %+v", p)
	}

	s.SetSetting(settingStrikeMinPoints, "30")
	s.SetSetting(settingStrikeWidthRatio, "0.6")
	s.SetSetting(settingStrikeHeightRatio, "7") // out of range, ignored
	s.SetSetting(settingSearchLimit, "x")
	p = loadPrefs(s, base)
	if p.classifier.MinPoints != 30 || p.classifier.MinWidthRatio != 0.6 {
		t.Fatalf("overrides not applied: %+v", p.classifier)
	}
	if p.classifier.MaxHeightRatio != base.MaxHeightRatio || p.searchLimit != 20 {
		t.Fatalf("invalid values should fall back: %+v", p)
	}
}

func TestSettingsSavedAppliesClassifier(t *testing.T) {
	s := newTestStore(t)
	a := newTestApp(t, s)
	s.SetSetting(settingStrikeMinPoints, "3")
	s.SetSetting(settingCurrency, "EUR")

	a, _ = update(t, a, settingsSavedMsg{})
	c := a.canvas.canvas.Classifier()
	if c.MinPoints != 3 {
		t.Fatalf("canvas min points = %d, want 3", c.MinPoints)
	}
	if c.CanvasWidth != a.canvas.canvas.Width {
		t.Fatal("classifier lost the canvas size")
	}
	if a.reports.currency != "EUR" || a.search.currency != "EUR" {
		t.Fatal("currency not pushed to views")
	}
}

func TestSettingsSave(t *testing.T) {
	s := newTestStore(t)
	m := newSettingsModel(s, ink.DefaultClassifier(800, 600))
	*m.currency = " EUR "
	*m.searchLimit = "5"
	*m.strikeMinPoints = "8"
	*m.strikeWidthRatio = "0.5"
	*m.strikeHeightRatio = "0.1"
	if err := m.saveSettings(); err != nil {
		t.Fatal(err)
	}
	if v, _ := s.GetSetting(settingCurrency); v != "EUR" {
		t.Fatalf("currency = %q", v)
	}
	if v, _ := s.GetSetting(settingStrikeMinPoints); v != "8" {
		t.Fatalf("strike_min_points = %q", v)
	}
}

func TestValidators(t *testing.T) {
	for _, v := range []string{"1", " 12 "} {
		if validatePositiveInt(v) != nil {
			t.Errorf("%q should be valid", v)
		}
	}
	for _, v := range []string{"0", "-3", "1.5", ""} {
		if validatePositiveInt(v) == nil {
			t.Errorf("%q should be invalid", v)
		}
	}
	for _, v := range []string{"0.45", "1"} {
		if validateRatio(v) != nil {
			t.Errorf("ratio %q should be valid", v)
		}
	}
	for _, v := range []string{"0", "1.2", "abc"} {
		if validateRatio(v) == nil {
			t.Errorf("ratio %q should be invalid", v)
		}
	}
}

// ============================================================
// App
// ============================================================

func TestExport(t *testing.T) {
	s := newTestStore(t)
	seedEntries(t, s)
	a := newTestApp(t, s)

	for format, ext := range []string{".csv", ".json"} {
		msg, ok := a.doExport(format)().(exportDoneMsg)
		if !ok {
			t.Fatalf("format %d: export failed", format)
		}
		if filepath.Ext(msg.path) != ext || filepath.Dir(msg.path) != a.exportDir() {
			t.Fatalf("unexpected export path %q", msg.path)
		}
		if info, err := os.Stat(msg.path); err != nil || info.Size() == 0 {
			t.Fatalf("export file missing: %v", err)
		}
	}
}

func TestViewSwitching(t *testing.T) {
	a := newTestApp(t, newTestStore(t))
	for i, k := range []string{"1", "2", "3", "4", "5"} {
		a, _ = update(t, a, keyPress(k))
		if a.activeView != viewState(i) {
			t.Fatalf("key %s: view = %d", k, a.activeView)
		}
		if a.View() == "" {
			t.Fatalf("view %s rendered nothing", viewNames[i])
		}
	}
	a, _ = update(t, a, tea.KeyMsg{Type: tea.KeyTab})
	if a.activeView != viewCanvas {
		t.Fatal("tab should wrap to the canvas")
	}
}

func TestViewBeforeSize(t *testing.T) {
	s := newTestStore(t)
	a := NewApp(context.Background(), s, pipeline.NewSaver(s, recognize.Null{}), testConfig(t))
	if a.View() != "Loading..." {
		t.Fatal("unsized app should show loading")
	}
	_, cmd := a.canvas.save()
	if msg, ok := cmd().(statusMsg); !ok || !msg.isError {
		t.Fatal("saving an unsized canvas should be refused")
	}
}

// ============================================================
// Helper functions
// ============================================================

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00:00"},
		{time.Second, "00:00:01"},
		{time.Minute, "00:01:00"},
		{time.Hour + time.Minute + time.Second, "01:01:01"},
	}
	for _, tt := range tests {
		got := formatDuration(tt.d)
		if got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatMoney(t *testing.T) {
	if got := formatMoney(1250, "лв"); got != "12.50 лв" {
		t.Errorf("formatMoney = %q", got)
	}
	if got := formatMoney(5, ""); got != "0.05" {
		t.Errorf("formatMoney without currency = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("Иванка", 4); got != "Ива…" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("Иван", 10); got != "Иван" {
		t.Errorf("short string changed: %q", got)
	}
}
