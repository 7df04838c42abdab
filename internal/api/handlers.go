package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sadopc/veresia/internal/export"
	"github.com/sadopc/veresia/internal/ink"
	"github.com/sadopc/veresia/internal/ledger"
	"github.com/sadopc/veresia/internal/logger"
	"github.com/sadopc/veresia/internal/pipeline"
	"github.com/sadopc/veresia/internal/render"
	"github.com/sadopc/veresia/internal/store"
)

const (
	defaultThumbSize = 200
	maxThumbSize     = 1024
	maxPageBody      = 32 << 20
)

type strokeJSON struct {
	Points []ink.Point `json:"points"`
}

type createPageRequest struct {
	Strokes []strokeJSON `json:"strokes"`
	Width   int          `json:"width"`
	Height  int          `json:"height"`
}

type entryJSON struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Amount      string `json:"amount"`
	AmountMinor int64  `json:"amount_minor"`
	Timestamp   string `json:"timestamp,omitempty"`
	PageID      *int64 `json:"page_id,omitempty"`
}

type lineJSON struct {
	Name        string `json:"name"`
	Amount      string `json:"amount"`
	AmountMinor int64  `json:"amount_minor"`
}

type saveResponse struct {
	PageID           int64       `json:"page_id"`
	Image            string      `json:"image"`
	Lines            []string    `json:"lines"`
	Entries          []entryJSON `json:"entries"`
	Crossed          []lineJSON  `json:"crossed"`
	Count            int         `json:"count"`
	RecognitionError string      `json:"recognition_error,omitempty"`
}

type nameJSON struct {
	Name       string `json:"name"`
	Total      string `json:"total"`
	TotalMinor int64  `json:"total_minor"`
	EntryCount int    `json:"count"`
}

func toEntryJSON(e store.Entry) entryJSON {
	return entryJSON{
		ID:          e.ID,
		Name:        e.Name,
		Amount:      ledger.FormatAmount(e.Amount),
		AmountMinor: e.Amount,
		Timestamp:   e.Timestamp.Format(time.RFC3339),
		PageID:      e.PageID,
	}
}

func toEntriesJSON(entries []store.Entry) []entryJSON {
	out := make([]entryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryJSON(e))
	}
	return out
}

// createPage classifies the uploaded strokes, renders the page image and
// runs the save pipeline.
func (s *Server) createPage(c *gin.Context) {
	if !s.saving.TryLock() {
		abortJSON(c, http.StatusConflict, "a page save is already in progress")
		return
	}
	defer s.saving.Unlock()

	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxPageBody)
	var req createPageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortJSON(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	width, height := req.Width, req.Height
	if width == 0 {
		width = s.cfg.CanvasWidth
	}
	if height == 0 {
		height = s.cfg.CanvasHeight
	}
	if width < 0 || height < 0 {
		abortJSON(c, http.StatusBadRequest, "canvas size must be positive")
		return
	}
	if width > s.cfg.MaxCanvasPx || height > s.cfg.MaxCanvasPx {
		abortJSON(c, http.StatusBadRequest, fmt.Sprintf("canvas size %dx%d exceeds the %d px limit", width, height, s.cfg.MaxCanvasPx))
		return
	}
	if len(req.Strokes) > s.cfg.MaxStrokes {
		abortJSON(c, http.StatusBadRequest, fmt.Sprintf("too many strokes: %d, limit %d", len(req.Strokes), s.cfg.MaxStrokes))
		return
	}
	for i, st := range req.Strokes {
		if len(st.Points) > s.cfg.MaxStrokePoints {
			abortJSON(c, http.StatusBadRequest, fmt.Sprintf("stroke %d has %d points, limit %d", i, len(st.Points), s.cfg.MaxStrokePoints))
			return
		}
	}

	classifier := s.cfg.Classifier()
	classifier.CanvasWidth = float64(width)
	classifier.CanvasHeight = float64(height)

	strokes := make([]ink.Stroke, 0, len(req.Strokes))
	for _, st := range req.Strokes {
		if len(st.Points) == 0 {
			continue
		}
		strokes = append(strokes, classifier.Classify(ink.NewStroke(st.Points)))
	}

	ts := time.Now()
	imagePath, err := pipeline.WritePage(s.cfg.PagesDir, width, height, ts, strokes)
	if err != nil {
		log.Error("page image not written", "error", err)
		abortJSON(c, http.StatusInternalServerError, "could not write page image")
		return
	}

	out, err := s.saver.SaveAsync(ctx, pipeline.NewRequest(imagePath, ts, strokes, float64(width), float64(height))).Wait()
	if err != nil {
		body := gin.H{"error": "page not saved: " + err.Error(), "image": imagePath}
		if out.PageID != 0 {
			body["page_id"] = out.PageID
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, body)
		return
	}

	resp := saveResponse{
		PageID:  out.PageID,
		Image:   imagePath,
		Lines:   out.Lines,
		Entries: make([]entryJSON, 0, out.Count()),
		Crossed: make([]lineJSON, 0, len(out.Crossed)),
		Count:   out.Count(),
	}
	if resp.Lines == nil {
		resp.Lines = []string{}
	}
	for _, e := range out.Entries {
		pageID := out.PageID
		resp.Entries = append(resp.Entries, entryJSON{
			ID:          e.ID,
			Name:        e.Name,
			Amount:      ledger.FormatAmount(e.Amount),
			AmountMinor: e.Amount,
			Timestamp:   ts.UTC().Format(time.RFC3339),
			PageID:      &pageID,
		})
	}
	for _, e := range out.Crossed {
		resp.Crossed = append(resp.Crossed, lineJSON{Name: e.Name, Amount: ledger.FormatAmount(e.Amount), AmountMinor: e.Amount})
	}
	if out.RecognitionErr != nil {
		resp.RecognitionError = out.RecognitionErr.Error()
	}
	c.JSON(http.StatusCreated, resp)
}

// listEntries returns the history and total of one exact name.
func (s *Server) listEntries(c *gin.Context) {
	name := strings.TrimSpace(c.Query("name"))
	if name == "" {
		abortJSON(c, http.StatusBadRequest, "name is required")
		return
	}
	entries, err := s.repo.ListEntriesByName(name)
	if err != nil {
		s.internalError(c, "list entries", err)
		return
	}
	total, err := s.repo.SumByName(name)
	if err != nil {
		s.internalError(c, "sum entries", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"name":        name,
		"total":       ledger.FormatAmount(total),
		"total_minor": total,
		"count":       len(entries),
		"entries":     toEntriesJSON(entries),
	})
}

func (s *Server) searchNames(c *gin.Context) {
	totals, err := s.repo.SearchNames(strings.TrimSpace(c.Query("q")))
	if err != nil {
		s.internalError(c, "search names", err)
		return
	}
	out := make([]nameJSON, 0, len(totals))
	for _, t := range totals {
		out = append(out, nameJSON{Name: t.Name, Total: ledger.FormatAmount(t.Total), TotalMinor: t.Total, EntryCount: t.EntryCount})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getPage(c *gin.Context) {
	page, ok := s.loadPage(c)
	if !ok {
		return
	}
	entries, err := s.repo.EntriesForPage(page.ID)
	if err != nil {
		s.internalError(c, "page entries", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":        page.ID,
		"image":     page.ImagePath,
		"timestamp": page.Timestamp.Format(time.RFC3339),
		"entries":   toEntriesJSON(entries),
	})
}

func (s *Server) pageImage(c *gin.Context) {
	page, ok := s.loadPage(c)
	if !ok {
		return
	}
	c.File(page.ImagePath)
}

func (s *Server) pageThumbnail(c *gin.Context) {
	page, ok := s.loadPage(c)
	if !ok {
		return
	}
	size := defaultThumbSize
	if v := c.Query("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxThumbSize {
			abortJSON(c, http.StatusBadRequest, fmt.Sprintf("size must be between 1 and %d", maxThumbSize))
			return
		}
		size = n
	}
	var buf bytes.Buffer
	if err := render.WriteThumbnail(&buf, page.ImagePath, size); err != nil {
		s.internalError(c, "thumbnail", err)
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// exportEntries downloads one name's history as CSV (default) or JSON.
func (s *Server) exportEntries(c *gin.Context) {
	name := strings.TrimSpace(c.Query("name"))
	if name == "" {
		abortJSON(c, http.StatusBadRequest, "name is required")
		return
	}
	entries, err := s.repo.ListEntriesByName(name)
	if err != nil {
		s.internalError(c, "list entries", err)
		return
	}
	pages := make(map[int64]*store.Page)
	for _, e := range entries {
		if e.PageID == nil {
			continue
		}
		if _, seen := pages[*e.PageID]; seen {
			continue
		}
		if p, err := s.repo.GetPage(*e.PageID); err == nil {
			pages[*e.PageID] = p
		}
	}

	switch format := c.DefaultQuery("format", "csv"); format {
	case "csv":
		var buf bytes.Buffer
		if err := export.WriteCSV(&buf, entries, pages); err != nil {
			s.internalError(c, "export csv", err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="entries.csv"`)
		c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
	case "json":
		data, err := export.MarshalJSON(entries, pages)
		if err != nil {
			s.internalError(c, "export json", err)
			return
		}
		c.Data(http.StatusOK, "application/json; charset=utf-8", data)
	default:
		abortJSON(c, http.StatusBadRequest, "format must be csv or json")
	}
}

// loadPage resolves the :id parameter, writing the error response itself
// when it fails.
func (s *Server) loadPage(c *gin.Context) (*store.Page, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		abortJSON(c, http.StatusBadRequest, "invalid page id")
		return nil, false
	}
	page, err := s.repo.GetPage(id)
	if errors.Is(err, store.ErrNotFound) {
		abortJSON(c, http.StatusNotFound, "page not found")
		return nil, false
	}
	if err != nil {
		s.internalError(c, "get page", err)
		return nil, false
	}
	return page, true
}

func (s *Server) internalError(c *gin.Context, op string, err error) {
	logger.FromContext(c.Request.Context()).Error(op+" failed", "error", err)
	abortJSON(c, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}
