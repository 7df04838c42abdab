package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/veresia/internal/config"
	"github.com/sadopc/veresia/internal/ink"
	"github.com/sadopc/veresia/internal/pipeline"
)

// One terminal cell covers this many canvas pixels.
const (
	cellWidthPx  = 8
	cellHeightPx = 16
)

type cellKind uint8

const (
	cellEmpty cellKind = iota
	cellInk
	cellStrike
	cellActive
)

type canvasModel struct {
	ctx      context.Context
	canvas   *ink.Canvas
	saver    *pipeline.Saver
	pagesDir string

	width  int
	height int

	// grid size in cells and the screen position of its top-left cell
	cols    int
	rows    int
	originX int
	originY int

	tracker saveTracker
	now     func() time.Time
}

func newCanvasModel(ctx context.Context, saver *pipeline.Saver, cfg *config.Config) canvasModel {
	return canvasModel{
		ctx:      ctx,
		canvas:   ink.NewCanvas(0, 0, cfg.Classifier()),
		saver:    saver,
		pagesDir: cfg.PagesDir,
		now:      time.Now,
	}
}

// setSize fits the grid into w x h cells; top is the screen row the view
// starts on.
func (c *canvasModel) setSize(w, h, top int) {
	c.width = w
	c.height = h
	c.cols = max(w-2, 1)
	c.rows = max(h-3, 1) // border and info line
	c.originX = 1
	c.originY = top + 1
	c.canvas.Resize(float64(c.cols*cellWidthPx), float64(c.rows*cellHeightPx))
}

func (c canvasModel) ready() bool {
	return c.canvas.Width > 0 && c.canvas.Height > 0
}

// toPoint maps a screen cell to the centre of its canvas pixel block. The
// point is clamped to the canvas; ok reports whether the cell was inside.
func (c canvasModel) toPoint(x, y int) (ink.Point, bool) {
	col := x - c.originX
	row := y - c.originY
	ok := col >= 0 && row >= 0 && col < c.cols && row < c.rows
	col = min(max(col, 0), c.cols-1)
	row = min(max(row, 0), c.rows-1)
	return ink.Point{
		X: (float64(col) + 0.5) * cellWidthPx,
		Y: (float64(row) + 0.5) * cellHeightPx,
	}, ok
}

func (c canvasModel) update(msg tea.Msg) (canvasModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.MouseMsg:
		return c.updateMouse(msg)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Save):
			return c.save()
		case key.Matches(msg, keys.Undo):
			if c.canvas.Undo() {
				return c, nil
			}
			return c, statusCmd("Nothing to undo", false)
		case key.Matches(msg, keys.Clear):
			c.canvas.Clear()
			return c, statusCmd("Canvas cleared", false)
		}
	}
	return c, nil
}

func (c canvasModel) updateMouse(msg tea.MouseMsg) (canvasModel, tea.Cmd) {
	if !c.ready() {
		return c, nil
	}
	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button != tea.MouseButtonLeft {
			return c, nil
		}
		if p, ok := c.toPoint(msg.X, msg.Y); ok {
			c.canvas.Begin(p)
		}
	case tea.MouseActionMotion:
		if c.canvas.Drawing() {
			p, _ := c.toPoint(msg.X, msg.Y)
			c.canvas.Move(p)
		}
	case tea.MouseActionRelease:
		if c.canvas.Drawing() {
			p, _ := c.toPoint(msg.X, msg.Y)
			c.canvas.Move(p)
			c.canvas.End()
		}
	}
	return c, nil
}

// save writes the page image and hands the strokes to the saver. The
// returned command reports saveStartedMsg once the background save runs.
func (c canvasModel) save() (canvasModel, tea.Cmd) {
	if !c.ready() {
		return c, statusCmd("Canvas is not ready yet", true)
	}
	now := c.now()
	if !c.tracker.begin(now) {
		return c, statusCmd("A save is already in progress", true)
	}

	strokes := c.canvas.Strokes()
	w, h := int(c.canvas.Width), int(c.canvas.Height)
	ctx, saver, dir := c.ctx, c.saver, c.pagesDir
	return c, func() tea.Msg {
		path, err := pipeline.WritePage(dir, w, h, now, strokes)
		if err != nil {
			return saveDoneMsg{err: err}
		}
		task := saver.SaveAsync(ctx, pipeline.NewRequest(path, now, strokes, float64(w), float64(h)))
		return saveStartedMsg{task: task, image: path}
	}
}

// grid rasterizes the strokes into cells. Consecutive points are joined so
// fast mouse moves still draw a continuous line.
func (c canvasModel) grid() [][]cellKind {
	g := make([][]cellKind, c.rows)
	for i := range g {
		g[i] = make([]cellKind, c.cols)
	}
	for _, s := range c.canvas.Strokes() {
		kind := cellInk
		if s.Strike {
			kind = cellStrike
		}
		c.plot(g, s.Points, kind)
	}
	if c.canvas.Drawing() {
		kind := cellActive
		if c.canvas.Live() {
			kind = cellStrike
		}
		c.plot(g, c.canvas.Active(), kind)
	}
	return g
}

func (c canvasModel) plot(g [][]cellKind, pts []ink.Point, kind cellKind) {
	if len(pts) == 0 {
		return
	}
	set := func(x, y int) {
		if y >= 0 && y < len(g) && x >= 0 && x < len(g[y]) {
			g[y][x] = kind
		}
	}
	px, py := cellOf(pts[0])
	set(px, py)
	for _, p := range pts[1:] {
		x, y := cellOf(p)
		cellLine(px, py, x, y, set)
		px, py = x, y
	}
}

func cellOf(p ink.Point) (int, int) {
	return int(p.X / cellWidthPx), int(p.Y / cellHeightPx)
}

// cellLine calls fn for every cell on the segment between two cells
// (Bresenham).
func cellLine(x0, y0, x1, y1 int, fn func(x, y int)) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		fn(x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func renderRow(row []cellKind) string {
	var b strings.Builder
	for i := 0; i < len(row); {
		j := i
		for j < len(row) && row[j] == row[i] {
			j++
		}
		n := j - i
		switch row[i] {
		case cellEmpty:
			b.WriteString(strings.Repeat(" ", n))
		case cellInk:
			b.WriteString(inkStyle.Render(strings.Repeat("█", n)))
		case cellStrike:
			b.WriteString(strikeStyle.Render(strings.Repeat("▓", n)))
		case cellActive:
			b.WriteString(activeInkStyle.Render(strings.Repeat("█", n)))
		}
		i = j
	}
	return b.String()
}

func (c canvasModel) view() string {
	if !c.ready() {
		return mutedStyle.Render("  Preparing canvas...")
	}

	g := c.grid()
	lines := make([]string, len(g))
	for i, row := range g {
		lines[i] = renderRow(row)
	}

	border := canvasBorderStyle
	if c.canvas.Drawing() {
		border = border.BorderForeground(colorPrimary)
	}
	panel := border.Render(strings.Join(lines, "\n"))

	return lipgloss.JoinVertical(lipgloss.Left, panel, c.info())
}

func (c canvasModel) info() string {
	strokes := c.canvas.Strokes()
	_, struck := ink.Split(strokes)
	parts := []string{
		fmt.Sprintf("%d strokes", len(strokes)),
		strikeStyle.Render(fmt.Sprintf("%d crossed out", len(struck))),
		mutedStyle.Render(fmt.Sprintf("%dx%d px", int(c.canvas.Width), int(c.canvas.Height))),
	}
	if c.tracker.running() {
		parts = append(parts, warningStyle.Render("saving "+formatDuration(c.tracker.elapsed(c.now()))))
	} else if out := c.tracker.last; out != nil && out.PageID != 0 {
		parts = append(parts, mutedStyle.Render(fmt.Sprintf("last page #%d", out.PageID)))
	}
	return " " + strings.Join(parts, mutedStyle.Render(" · "))
}
