package ink

// Canvas accumulates strokes for one page. Capture is strictly sequential:
// Begin starts a contact, Move extends it and End finalizes it.
type Canvas struct {
	Width  float64
	Height float64

	classifier Classifier
	strokes    []Stroke
	active     []Point
	drawing    bool
}

// NewCanvas creates an empty canvas classified with c. The classifier's
// canvas size is taken from width and height.
func NewCanvas(width, height float64, c Classifier) *Canvas {
	c.CanvasWidth = width
	c.CanvasHeight = height
	return &Canvas{Width: width, Height: height, classifier: c}
}

// Classifier returns the classifier in use.
func (cv *Canvas) Classifier() Classifier { return cv.classifier }

// SetClassifier replaces the thresholds used for strokes finalized from
// now on. Already finalized strokes keep their tag.
func (cv *Canvas) SetClassifier(c Classifier) {
	c.CanvasWidth = cv.Width
	c.CanvasHeight = cv.Height
	cv.classifier = c
}

// Resize changes the canvas size used to classify strokes finalized from
// now on. Existing strokes are kept as they are.
func (cv *Canvas) Resize(width, height float64) {
	cv.Width = width
	cv.Height = height
	cv.SetClassifier(cv.classifier)
}

// Begin starts a new stroke at p. An unfinished stroke is finalized first.
func (cv *Canvas) Begin(p Point) {
	if cv.drawing {
		cv.End()
	}
	cv.active = []Point{p}
	cv.drawing = true
}

// Move appends p to the active stroke. Without an active stroke it is a no-op.
func (cv *Canvas) Move(p Point) {
	if !cv.drawing {
		return
	}
	if n := len(cv.active); n > 0 && cv.active[n-1] == p {
		return
	}
	cv.active = append(cv.active, p)
}

// End finalizes the active stroke and returns it.
func (cv *Canvas) End() (Stroke, bool) {
	if !cv.drawing {
		return Stroke{}, false
	}
	s := cv.classifier.Classify(NewStroke(cv.active))
	cv.strokes = append(cv.strokes, s)
	cv.active = nil
	cv.drawing = false
	return s, true
}

// Drawing reports whether a contact is in progress.
func (cv *Canvas) Drawing() bool { return cv.drawing }

// Active returns the points of the stroke in progress.
func (cv *Canvas) Active() []Point { return cv.active }

// Live reports whether the stroke in progress would currently classify as
// a strike.
func (cv *Canvas) Live() bool {
	return cv.drawing && cv.classifier.IsStrike(cv.active)
}

// Strokes returns the finalized strokes.
func (cv *Canvas) Strokes() []Stroke {
	out := make([]Stroke, len(cv.strokes))
	copy(out, cv.strokes)
	return out
}

// Len returns the number of finalized strokes.
func (cv *Canvas) Len() int { return len(cv.strokes) }

// Undo drops the last finalized stroke.
func (cv *Canvas) Undo() bool {
	if len(cv.strokes) == 0 {
		return false
	}
	cv.strokes = cv.strokes[:len(cv.strokes)-1]
	return true
}

// Clear removes all strokes, including one in progress.
func (cv *Canvas) Clear() {
	cv.strokes = nil
	cv.active = nil
	cv.drawing = false
}
