package recognize

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// Tesseract renders the page to an image and runs the tesseract CLI on it.
// Width and Height are used for pages without a size.
// Requires: tesseract (tesseract-ocr) with the language data for Lang.
type Tesseract struct {
	Bin    string
	Lang   string
	Width  int
	Height int
}

func (t *Tesseract) Name() string { return "tesseract" }

func (t *Tesseract) Recognize(ctx context.Context, page Page) Result {
	bin, err := exec.LookPath(t.Bin)
	if err != nil {
		return Result{Err: fmt.Errorf("%s not available (install tesseract-ocr): %w", t.Bin, err)}
	}

	tmpDir, err := os.MkdirTemp("", "veresia-ocr-*")
	if err != nil {
		return Result{Err: fmt.Errorf("create temp dir: %w", err)}
	}
	defer os.RemoveAll(tmpDir)

	imgPath := filepath.Join(tmpDir, "page.png")
	if err := imaging.Save(pageImage(page, t.Width, t.Height), imgPath); err != nil {
		return Result{Err: fmt.Errorf("write ocr image: %w", err)}
	}

	// tesseract <input> <output_base> -l <lang> --psm 6
	// PSM 6 = a single uniform block of text, one entry per line.
	outBase := filepath.Join(tmpDir, "page-ocr")
	cmd := exec.CommandContext(ctx, bin, imgPath, outBase, "-l", t.Lang, "--psm", "6")
	if out, err := cmd.CombinedOutput(); err != nil {
		return Result{Err: fmt.Errorf("tesseract failed: %w (output: %s)", err, string(out))}
	}

	data, err := os.ReadFile(outBase + ".txt")
	if err != nil {
		return Result{Err: fmt.Errorf("read tesseract output: %w", err)}
	}
	return Result{Lines: SplitLines(string(data))}
}
