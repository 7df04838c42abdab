package recognize

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/Azure/azure-sdk-for-go/services/cognitiveservices/v3.0/computervision"
	"github.com/Azure/go-autorest/autorest"
	"github.com/disintegration/imaging"
)

// Azure sends the rendered page to Azure Computer Vision OCR.
type Azure struct {
	client *computervision.BaseClient
	lang   computervision.OcrLanguages
	width  int
	height int
}

// NewAzure creates an Azure recognizer for the given Cognitive Services
// endpoint and key.
func NewAzure(endpoint, apiKey, lang string, width, height int) *Azure {
	client := computervision.New(endpoint)
	client.Authorizer = autorest.NewCognitiveServicesAuthorizer(apiKey)
	return &Azure{
		client: &client,
		lang:   computervision.OcrLanguages(lang),
		width:  width,
		height: height,
	}
}

func (a *Azure) Name() string { return "azure" }

func (a *Azure) Recognize(ctx context.Context, page Page) Result {
	img := pageImage(page, a.width, a.height)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return Result{Err: fmt.Errorf("encode page: %w", err)}
	}

	result, err := a.client.RecognizePrintedTextInStream(ctx, true, io.NopCloser(&buf), a.lang)
	if err != nil {
		return Result{Err: fmt.Errorf("failed to extract text: %w", err)}
	}
	return Result{Lines: linesFromOCR(result)}
}

type ocrLine struct {
	text string
	y    int
}

// linesFromOCR flattens regions into lines ordered top to bottom.
func linesFromOCR(result computervision.OcrResult) []string {
	if result.Regions == nil {
		return nil
	}
	var lines []ocrLine
	for _, region := range *result.Regions {
		if region.Lines == nil {
			continue
		}
		for _, line := range *region.Lines {
			if line.Words == nil {
				continue
			}
			var words []string
			for _, word := range *line.Words {
				if word.Text != nil && *word.Text != "" {
					words = append(words, *word.Text)
				}
			}
			if len(words) == 0 {
				continue
			}
			lines = append(lines, ocrLine{text: strings.Join(words, " "), y: boxTop(line.BoundingBox)})
		}
	}

	sort.SliceStable(lines, func(i, j int) bool { return lines[i].y < lines[j].y })
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.text
	}
	return out
}

// boxTop reads the y coordinate from an OCR bounding box "x,y,w,h".
func boxTop(box *string) int {
	if box == nil {
		return 0
	}
	parts := strings.Split(*box, ",")
	if len(parts) < 2 {
		return 0
	}
	y, _ := strconv.Atoi(strings.TrimSpace(parts[1]))
	return y
}
