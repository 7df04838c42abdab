package pipeline

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/sadopc/veresia/internal/ink"
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

var ts = time.Date(2024, 3, 8, 17, 30, 0, 0, time.UTC)

func threeStrokes() []ink.Stroke {
	return []ink.Stroke{
		ink.NewStroke([]ink.Point{{X: 10, Y: 10}, {X: 60, Y: 12}}),
		ink.NewStroke([]ink.Point{{X: 10, Y: 40}, {X: 60, Y: 44}}),
		ink.NewStroke([]ink.Point{{X: 10, Y: 80}, {X: 60, Y: 81}}),
	}
}

// failingRepo fails AddPage, or AddEntry after okEntries successful calls.
type failingRepo struct {
	mu        sync.Mutex
	pageErr   error
	entryErr  error
	okEntries int
	pages     int
	entries   []string
}

func (r *failingRepo) AddPage(string, time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pageErr != nil {
		return 0, r.pageErr
	}
	r.pages++
	return int64(r.pages), nil
}

func (r *failingRepo) AddEntry(name string, _ int64, _ time.Time, _ *int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entryErr != nil && len(r.entries) >= r.okEntries {
		return 0, r.entryErr
	}
	r.entries = append(r.entries, name)
	return int64(len(r.entries)), nil
}

// ============================================================
// End to end
// ============================================================

func TestSavePersistsPageAndEntries(t *testing.T) {
	s := newTestStore(t)
	saver := NewSaver(s, recognize.Static{Lines: []string{"Мария 20.00", "Иван 5.50"}})

	out, err := saver.Save(context.Background(), Request{ImagePath: "/pages/p.png", Timestamp: ts, Clean: threeStrokes()})
	if err != nil {
		t.Fatal(err)
	}
	if out.Count() != 2 {
		t.Fatalf("expected 2 entries, got %d", out.Count())
	}

	page, err := s.GetPage(out.PageID)
	if err != nil {
		t.Fatal(err)
	}
	if page.ImagePath != "/pages/p.png" {
		t.Fatalf("image path not stored verbatim: %q", page.ImagePath)
	}

	entries, _ := s.EntriesForPage(out.PageID)
	if len(entries) != 2 {
		t.Fatalf("expected 2 stored entries, got %d", len(entries))
	}
	if entries[0].Name != "Мария" || entries[0].Amount != 2000 {
		t.Fatalf("first entry = %+v", entries[0])
	}
	if entries[1].Name != "Иван" || entries[1].Amount != 550 {
		t.Fatalf("second entry = %+v", entries[1])
	}
	for _, e := range entries {
		if !e.Timestamp.Equal(ts) {
			t.Fatalf("entry timestamp %v, want %v", e.Timestamp, ts)
		}
	}
}

func TestSaveRecognitionFailureKeepsPage(t *testing.T) {
	s := newTestStore(t)
	saver := NewSaver(s, recognize.Static{Err: errors.New("engine unavailable")})

	out, err := saver.Save(context.Background(), Request{ImagePath: "p.png", Timestamp: ts, Clean: threeStrokes()})
	if err != nil {
		t.Fatalf("recognition failure must not fail the save: %v", err)
	}
	if out.PageID == 0 || out.Count() != 0 {
		t.Fatalf("expected page with 0 entries, got %+v", out)
	}
	if out.RecognitionErr == nil {
		t.Fatal("expected recognition error to be reported")
	}
	pages, _ := s.ListPages(0)
	if len(pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(pages))
	}
	all, _ := s.ListEntries(store.EntryFilter{})
	if len(all) != 0 {
		t.Fatalf("expected no entries, got %d", len(all))
	}
}

func TestSaveEmptyCanvas(t *testing.T) {
	s := newTestStore(t)
	saver := NewSaver(s, recognize.Static{Lines: []string{"should not appear 1"}})

	out, err := saver.Save(context.Background(), Request{ImagePath: "p.png", Timestamp: ts})
	if err != nil {
		t.Fatal(err)
	}
	if out.PageID == 0 || out.Count() != 0 || out.RecognitionErr != nil {
		t.Fatalf("empty canvas should save a bare page, got %+v", out)
	}
}

func TestSaveTwiceDistinctPages(t *testing.T) {
	s := newTestStore(t)
	saver := NewSaver(s, recognize.Static{Lines: []string{"Иван 1"}})
	req := Request{ImagePath: "p.png", Timestamp: ts, Clean: threeStrokes()}

	a, err := saver.Save(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	b, err := saver.Save(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if a.PageID == b.PageID {
		t.Fatalf("identical saves share page id %d", a.PageID)
	}
	total, _ := s.SumByName("Иван")
	if total != 200 {
		t.Fatalf("expected two entries totalling 200, got %d", total)
	}
}

func TestSaveDropsUnparsableLines(t *testing.T) {
	s := newTestStore(t)
	saver := NewSaver(s, recognize.Static{Lines: []string{"7.5", "Георгиев abc", "Петров 7"}})

	out, err := saver.Save(context.Background(), Request{ImagePath: "p.png", Timestamp: ts, Clean: threeStrokes()})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Lines) != 3 || len(out.Parsed) != 1 || out.Count() != 1 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.Entries[0].Name != "Петров" || out.Entries[0].Amount != 700 {
		t.Fatalf("unexpected entry: %+v", out.Entries[0])
	}
}

func TestSaveFiltersCrossedEntries(t *testing.T) {
	s := newTestStore(t)
	saver := NewSaver(s, recognize.Static{Lines: []string{"A 1", "B 2", "C 3", "D 4"}})

	// 4 entries on 800px: midpoints 100, 300, 500, 700. The strike covers B.
	req := Request{
		ImagePath:    "p.png",
		Timestamp:    ts,
		Clean:        threeStrokes(),
		StrikeBoxes:  []ink.BBox{{MinX: 0, MinY: 280, MaxX: 500, MaxY: 320}},
		CanvasHeight: 800,
	}
	out, err := saver.Save(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if out.Count() != 3 {
		t.Fatalf("expected 3 entries, got %d", out.Count())
	}
	if len(out.Crossed) != 1 || out.Crossed[0].Name != "B" {
		t.Fatalf("expected B crossed, got %+v", out.Crossed)
	}
	if total, _ := s.SumByName("B"); total != 0 {
		t.Fatalf("crossed entry was persisted: %d", total)
	}
}

func TestNewRequestSplitsStrokes(t *testing.T) {
	strike := ink.NewStroke([]ink.Point{{X: 0, Y: 100}, {X: 500, Y: 102}})
	strike.Strike = true
	strokes := append(threeStrokes(), strike)

	req := NewRequest("p.png", ts, strokes, 1584, 800)
	if len(req.Clean) != 3 {
		t.Fatalf("expected 3 clean strokes, got %d", len(req.Clean))
	}
	if len(req.StrikeBoxes) != 1 || req.StrikeBoxes[0].MaxX != 500 {
		t.Fatalf("unexpected strike boxes: %+v", req.StrikeBoxes)
	}
	if req.CanvasWidth != 1584 || req.CanvasHeight != 800 || req.ImagePath != "p.png" {
		t.Fatalf("unexpected request: %+v", req)
	}
}

// pageRecorder keeps the page it was asked to recognize.
type pageRecorder struct {
	mu   sync.Mutex
	page recognize.Page
}

func (r *pageRecorder) Name() string { return "recorder" }

func (r *pageRecorder) Recognize(_ context.Context, page recognize.Page) recognize.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.page = page
	return recognize.Result{Lines: []string{"Иван 1"}}
}

func TestSavePassesCanvasSizeToRecognizer(t *testing.T) {
	s := newTestStore(t)
	rec := &pageRecorder{}
	saver := NewSaver(s, rec)

	req := NewRequest("p.png", ts, threeStrokes(), 1584, 528)
	if _, err := saver.Save(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if rec.page.Width != 1584 || rec.page.Height != 528 {
		t.Fatalf("recognizer got %dx%d, want 1584x528", rec.page.Width, rec.page.Height)
	}
	if len(rec.page.Strokes) != 3 {
		t.Fatalf("recognizer got %d strokes, want 3", len(rec.page.Strokes))
	}
}

// ============================================================
// Persistence failures
// ============================================================

func TestSavePageFailure(t *testing.T) {
	repo := &failingRepo{pageErr: errors.New("disk full")}
	saver := NewSaver(repo, recognize.Static{Lines: []string{"Иван 1"}})

	_, err := saver.Save(context.Background(), Request{ImagePath: "p.png", Timestamp: ts, Clean: threeStrokes()})
	if !errors.Is(err, ErrPageNotSaved) {
		t.Fatalf("expected ErrPageNotSaved, got %v", err)
	}
	if len(repo.entries) != 0 {
		t.Fatal("no entry may be written without a page")
	}
}

func TestSaveEntryFailure(t *testing.T) {
	repo := &failingRepo{entryErr: errors.New("constraint"), okEntries: 1}
	saver := NewSaver(repo, recognize.Static{Lines: []string{"A 1", "B 2", "C 3"}})

	out, err := saver.Save(context.Background(), Request{ImagePath: "p.png", Timestamp: ts, Clean: threeStrokes()})
	if !errors.Is(err, ErrEntryNotSaved) {
		t.Fatalf("expected ErrEntryNotSaved, got %v", err)
	}
	if out.PageID == 0 || out.Count() != 1 {
		t.Fatalf("outcome should keep page and first entry, got %+v", out)
	}
}

// ============================================================
// Recognition timeout
// ============================================================

type slowRecognizer struct{}

func (slowRecognizer) Name() string { return "slow" }

func (slowRecognizer) Recognize(ctx context.Context, _ recognize.Page) recognize.Result {
	select {
	case <-ctx.Done():
		return recognize.Result{Err: ctx.Err()}
	case <-time.After(5 * time.Second):
		return recognize.Result{Lines: []string{"late 1"}}
	}
}

func TestSaveRecognitionTimeout(t *testing.T) {
	s := newTestStore(t)
	saver := NewSaver(s, slowRecognizer{})
	saver.RecognizeTimeout = 20 * time.Millisecond

	out, err := saver.Save(context.Background(), Request{ImagePath: "p.png", Timestamp: ts, Clean: threeStrokes()})
	if err != nil {
		t.Fatal(err)
	}
	if !errors.Is(out.RecognitionErr, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", out.RecognitionErr)
	}
	if out.PageID == 0 || out.Count() != 0 {
		t.Fatalf("expected bare page, got %+v", out)
	}
}

// ============================================================
// Async
// ============================================================

func TestSaveAsync(t *testing.T) {
	s := newTestStore(t)
	saver := NewSaver(s, recognize.Static{Lines: []string{"Иван 12.50"}})

	task := saver.SaveAsync(context.Background(), Request{ImagePath: "p.png", Timestamp: ts, Clean: threeStrokes()})
	select {
	case <-task.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("save did not finish")
	}
	out, err := task.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if out.Count() != 1 || out.Entries[0].Amount != 1250 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestSaveAsyncIgnoresCancellation(t *testing.T) {
	s := newTestStore(t)
	saver := NewSaver(s, recognize.Static{Lines: []string{"Иван 1"}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := saver.SaveAsync(ctx, Request{ImagePath: "p.png", Timestamp: ts, Clean: threeStrokes()}).Wait()
	if err != nil {
		t.Fatal(err)
	}
	if out.Count() != 1 {
		t.Fatalf("cancelled context must not abort the save, got %+v", out)
	}
}

// ============================================================
// Page image
// ============================================================

func TestWritePage(t *testing.T) {
	dir := t.TempDir()
	path, err := WritePage(dir, 120, 80, ts, threeStrokes())
	if err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() == 0 {
		t.Fatal("empty page image")
	}
}
