package recognize

import (
	"context"
	"errors"
	"fmt"
	"image"
	"regexp"
	"strings"

	"github.com/sadopc/veresia/internal/config"
	"github.com/sadopc/veresia/internal/ink"
	"github.com/sadopc/veresia/internal/render"
)

// ErrNoRecognizer is reported when Run is called without a recognizer.
var ErrNoRecognizer = errors.New("no recognizer configured")

// Result is the outcome of one recognition call. A failed result carries
// the reason in Err and no lines.
type Result struct {
	Lines []string
	Err   error
}

// OK reports whether recognition succeeded (possibly with zero lines).
func (r Result) OK() bool { return r.Err == nil }

// Page is one recognition input: the strokes and the size in pixels of the
// canvas they were drawn on.
type Page struct {
	Width   int
	Height  int
	Strokes []ink.Stroke
}

// size returns the page size, or w x h when the page does not carry one.
func (p Page) size(w, h int) (int, int) {
	if p.Width > 0 && p.Height > 0 {
		return p.Width, p.Height
	}
	return w, h
}

// pageImage renders p for OCR. w x h is used when p has no size.
func pageImage(p Page, w, h int) image.Image {
	w, h = p.size(w, h)
	return render.Enhance(render.Image(w, h, p.Strokes))
}

// Recognizer turns stroke geometry into candidate text lines, best effort
// top to bottom.
type Recognizer interface {
	Name() string
	Recognize(ctx context.Context, page Page) Result
}

// Run calls r on page. A page without strokes returns an empty result
// without touching the engine, and a panicking engine is turned into a
// failure.
func Run(ctx context.Context, r Recognizer, page Page) (res Result) {
	if len(page.Strokes) == 0 {
		return Result{}
	}
	if r == nil {
		return Result{Err: ErrNoRecognizer}
	}
	defer func() {
		if p := recover(); p != nil {
			res = Result{Err: fmt.Errorf("recognizer %s panicked: %v", r.Name(), p)}
		}
	}()

	res = r.Recognize(ctx, page)
	if res.Err != nil {
		res.Lines = nil
	}
	return res
}

// New returns the recognizer selected by cfg.Recognizer. The configured
// canvas size is only used for pages that do not carry their own.
func New(cfg *config.Config) (Recognizer, error) {
	switch cfg.Recognizer {
	case config.RecognizerNone, "":
		return Null{}, nil
	case config.RecognizerTesseract:
		return &Tesseract{
			Bin:    cfg.TesseractBin,
			Lang:   cfg.TesseractLang,
			Width:  cfg.CanvasWidth,
			Height: cfg.CanvasHeight,
		}, nil
	case config.RecognizerAzure:
		return NewAzure(cfg.AzureEndpoint, cfg.AzureKey, cfg.AzureLanguage, cfg.CanvasWidth, cfg.CanvasHeight), nil
	}
	return nil, fmt.Errorf("unknown recognizer %q", cfg.Recognizer)
}

// Null is used where no recognition engine is available. It never finds
// any text.
type Null struct{}

func (Null) Name() string { return config.RecognizerNone }

func (Null) Recognize(context.Context, Page) Result { return Result{} }

// Static returns a fixed set of lines, or Err if set.
type Static struct {
	Lines []string
	Err   error
}

func (s Static) Name() string { return "static" }

func (s Static) Recognize(context.Context, Page) Result {
	if s.Err != nil {
		return Result{Err: s.Err}
	}
	lines := make([]string, len(s.Lines))
	copy(lines, s.Lines)
	return Result{Lines: lines}
}

var lineBreaks = regexp.MustCompile(`[\r\n]+`)

// SplitLines breaks engine output into trimmed, non-empty lines.
func SplitLines(text string) []string {
	var out []string
	for _, ln := range lineBreaks.Split(text, -1) {
		if ln = strings.TrimSpace(ln); ln != "" {
			out = append(out, ln)
		}
	}
	return out
}
