package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/sadopc/veresia/internal/ink"
	"github.com/sadopc/veresia/internal/ledger"
	"github.com/sadopc/veresia/internal/logger"
	"github.com/sadopc/veresia/internal/recognize"
	"github.com/sadopc/veresia/internal/render"
)

var (
	// ErrPageNotSaved means the page record could not be created. Nothing
	// was persisted.
	ErrPageNotSaved = errors.New("page not saved")
	// ErrEntryNotSaved means the page exists but one of its entries could
	// not be written. Entries before it were kept.
	ErrEntryNotSaved = errors.New("entry not saved")
)

// Repository is the storage the saver writes to.
type Repository interface {
	AddPage(imagePath string, ts time.Time) (int64, error)
	AddEntry(name string, amount int64, ts time.Time, pageID *int64) (int64, error)
}

// Request is one page save. The canvas size is the one the strokes were
// drawn on; recognition renders at that size.
type Request struct {
	ImagePath    string
	Timestamp    time.Time
	Clean        []ink.Stroke
	StrikeBoxes  []ink.BBox
	CanvasWidth  float64
	CanvasHeight float64
}

// NewRequest splits classified strokes into the clean ink sent to
// recognition and the strike boxes used to drop crossed entries.
func NewRequest(imagePath string, ts time.Time, strokes []ink.Stroke, canvasWidth, canvasHeight float64) Request {
	clean, struck := ink.Split(strokes)
	return Request{
		ImagePath:    imagePath,
		Timestamp:    ts,
		Clean:        clean,
		StrikeBoxes:  ink.Boxes(struck),
		CanvasWidth:  canvasWidth,
		CanvasHeight: canvasHeight,
	}
}

// page is the recognition input for req.
func (req Request) page() recognize.Page {
	return recognize.Page{
		Width:   int(math.Ceil(req.CanvasWidth)),
		Height:  int(math.Ceil(req.CanvasHeight)),
		Strokes: req.Clean,
	}
}

// SavedEntry is a persisted ledger line with its row id.
type SavedEntry struct {
	ID int64
	ledger.Entry
}

// Outcome reports what one save did. RecognitionErr is informational: a
// failed recognition still yields a saved page with zero entries.
type Outcome struct {
	PageID         int64
	Lines          []string
	Parsed         []ledger.Entry
	Crossed        []ledger.Entry
	Entries        []SavedEntry
	RecognitionErr error
}

// Count is the number of entries persisted.
func (o Outcome) Count() int { return len(o.Entries) }

// Saver drives recognition, parsing, filtering and persistence for a page.
type Saver struct {
	repo       Repository
	recognizer recognize.Recognizer

	// RecognizeTimeout bounds the recognition phase. Zero means no limit.
	RecognizeTimeout time.Duration
}

func NewSaver(repo Repository, r recognize.Recognizer) *Saver {
	return &Saver{repo: repo, recognizer: r}
}

// Recognizer returns the engine used for saves.
func (s *Saver) Recognizer() recognize.Recognizer { return s.recognizer }

// Save creates the page record, recognizes the clean strokes and persists
// every parsed entry not crossed out. Only persistence failures are
// returned as errors.
func (s *Saver) Save(ctx context.Context, req Request) (Outcome, error) {
	log := logger.FromContext(ctx).With("image_path", req.ImagePath)
	var out Outcome

	pageID, err := s.repo.AddPage(req.ImagePath, req.Timestamp)
	if err != nil {
		log.Error("page record failed", "error", err)
		return out, fmt.Errorf("%w: %w", ErrPageNotSaved, err)
	}
	out.PageID = pageID

	res := s.recognize(ctx, req.page())
	if !res.OK() {
		out.RecognitionErr = res.Err
		log.Warn("recognition failed, saving page without entries",
			"recognizer", s.recognizerName(), "error", res.Err)
	}
	out.Lines = res.Lines

	out.Parsed = ledger.ParseLines(res.Lines)
	if dropped := len(res.Lines) - len(out.Parsed); dropped > 0 {
		log.Debug("unparsable lines dropped", "count", dropped)
	}

	for _, i := range ledger.CrossedIndexes(len(out.Parsed), req.StrikeBoxes, req.CanvasHeight) {
		out.Crossed = append(out.Crossed, out.Parsed[i])
	}
	kept := ledger.FilterCrossed(out.Parsed, req.StrikeBoxes, req.CanvasHeight)

	for _, e := range kept {
		id, err := s.repo.AddEntry(e.Name, e.Amount, req.Timestamp, &pageID)
		if err != nil {
			log.Error("entry record failed", "page_id", pageID, "name", e.Name, "error", err)
			return out, fmt.Errorf("%w: %q on page %d: %w", ErrEntryNotSaved, e.Name, pageID, err)
		}
		out.Entries = append(out.Entries, SavedEntry{ID: id, Entry: e})
	}

	log.Info("page saved",
		"page_id", pageID,
		"recognizer", s.recognizerName(),
		"lines", len(out.Lines),
		"parsed", len(out.Parsed),
		"crossed", len(out.Crossed),
		"entries", out.Count(),
	)
	return out, nil
}

func (s *Saver) recognize(ctx context.Context, page recognize.Page) recognize.Result {
	if s.RecognizeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.RecognizeTimeout)
		defer cancel()
	}
	return recognize.Run(ctx, s.recognizer, page)
}

func (s *Saver) recognizerName() string {
	if s.recognizer == nil {
		return "none"
	}
	return s.recognizer.Name()
}

// Task is a save running in the background.
type Task struct {
	done    chan struct{}
	outcome Outcome
	err     error
}

// Done is closed when the save has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the save finishes and returns its result.
func (t *Task) Wait() (Outcome, error) {
	<-t.done
	return t.outcome, t.err
}

// SaveAsync runs Save on its own goroutine. A started save cannot be
// cancelled: ctx only contributes its values, and the save always runs to
// completion.
func (s *Saver) SaveAsync(ctx context.Context, req Request) *Task {
	t := &Task{done: make(chan struct{})}
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer close(t.done)
		t.outcome, t.err = s.Save(ctx, req)
	}()
	return t
}

// WritePage renders the whole canvas, struck strokes included, into a new
// PNG under dir and returns its path.
func WritePage(dir string, width, height int, ts time.Time, strokes []ink.Stroke) (string, error) {
	path := filepath.Join(dir, render.PageFileName(ts))
	if err := render.SavePNG(path, width, height, strokes); err != nil {
		return "", fmt.Errorf("write page image: %w", err)
	}
	return path, nil
}
