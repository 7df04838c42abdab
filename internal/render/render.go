package render

import (
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/google/uuid"
	"github.com/sadopc/veresia/internal/ink"
)

const penWidth = 3.0

// Image draws strokes black on a white page of the given size.
func Image(width, height int, strokes []ink.Stroke) image.Image {
	return draw(width, height, strokes).Image()
}

func draw(width, height int, strokes []ink.Stroke) *gg.Context {
	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	dc.SetRGB(0, 0, 0)
	dc.SetLineWidth(penWidth)
	dc.SetLineCapRound()
	dc.SetLineJoinRound()
	for _, s := range strokes {
		if len(s.Points) == 0 {
			continue
		}
		if len(s.Points) == 1 {
			p := s.Points[0]
			dc.DrawCircle(p.X, p.Y, penWidth/2)
			dc.Fill()
			continue
		}
		dc.MoveTo(s.Points[0].X, s.Points[0].Y)
		for _, p := range s.Points[1:] {
			dc.LineTo(p.X, p.Y)
		}
		dc.Stroke()
	}
	return dc
}

// SavePNG renders strokes and writes the page to path, creating the parent
// directory if needed.
func SavePNG(path string, width, height int, strokes []ink.Stroke) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create pages directory: %w", err)
	}
	if err := draw(width, height, strokes).SavePNG(path); err != nil {
		return fmt.Errorf("save page image: %w", err)
	}
	return nil
}

// Enhance prepares a page for OCR: grayscale, stronger contrast and a light
// sharpen so thin pen lines survive binarization.
func Enhance(img image.Image) image.Image {
	out := imaging.Grayscale(img)
	out = imaging.AdjustContrast(out, 30)
	out = imaging.Sharpen(out, 1.0)
	return out
}

// WriteThumbnail scales the page at path to fit within size x size pixels and
// writes it as PNG.
func WriteThumbnail(w io.Writer, path string, size int) error {
	src, err := imaging.Open(path)
	if err != nil {
		return fmt.Errorf("open page image: %w", err)
	}
	thumb := imaging.Fit(src, size, size, imaging.Lanczos)
	if err := imaging.Encode(w, thumb, imaging.PNG); err != nil {
		return fmt.Errorf("encode thumbnail: %w", err)
	}
	return nil
}

// PageFileName returns a unique file name for a page saved at t.
func PageFileName(t time.Time) string {
	return fmt.Sprintf("page_%s_%s.png", t.Format("2006-01-02_15-04-05"), uuid.NewString()[:8])
}
