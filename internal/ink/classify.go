package ink

// Defaults for strike-through detection.
const (
	DefaultMinPoints      = 12
	DefaultMinWidthRatio  = 0.45
	DefaultMaxHeightRatio = 0.08
	DefaultNoise          = 2.0
)

// Classifier decides whether a stroke is a crossing-out scribble. A strike
// must be long enough to carry signal, span a wide part of the canvas, stay
// nearly horizontal and go back and forth at least once in each direction.
type Classifier struct {
	CanvasWidth    float64
	CanvasHeight   float64
	MinPoints      int
	MinWidthRatio  float64
	MaxHeightRatio float64
	Noise          float64
}

// DefaultClassifier returns a classifier for a canvas of the given size.
func DefaultClassifier(width, height float64) Classifier {
	return Classifier{
		CanvasWidth:    width,
		CanvasHeight:   height,
		MinPoints:      DefaultMinPoints,
		MinWidthRatio:  DefaultMinWidthRatio,
		MaxHeightRatio: DefaultMaxHeightRatio,
		Noise:          DefaultNoise,
	}
}

// Classify returns s with its Strike tag set.
func (c Classifier) Classify(s Stroke) Stroke {
	s.Strike = c.IsStrike(s.Points)
	return s
}

// IsStrike evaluates points as a single stroke. Short strokes and
// degenerate canvases are never strikes.
func (c Classifier) IsStrike(points []Point) bool {
	if len(points) < c.MinPoints || len(points) == 0 {
		return false
	}
	if c.CanvasWidth <= 0 || c.CanvasHeight <= 0 {
		return false
	}

	box := Bounds(points)
	if box.Width() < c.MinWidthRatio*c.CanvasWidth {
		return false
	}
	if box.Height() > c.MaxHeightRatio*c.CanvasHeight {
		return false
	}

	forward, backward := Reversals(points, c.Noise)
	return forward > 0 && backward > 0
}

// Reversals walks points and counts horizontal direction changes.
// forward counts right-to-left turns back to the right, backward counts
// left-to-right turns back to the left. Moves shorter than noise from the
// last counted point are ignored.
func Reversals(points []Point, noise float64) (forward, backward int) {
	if len(points) < 2 {
		return 0, 0
	}
	anchor := points[0].X
	dir := 0
	for _, p := range points[1:] {
		dx := p.X - anchor
		var step int
		switch {
		case dx >= noise && dx > 0:
			step = 1
		case dx <= -noise && dx < 0:
			step = -1
		default:
			continue
		}
		anchor = p.X
		if dir != 0 && step != dir {
			if step > 0 {
				forward++
			} else {
				backward++
			}
		}
		dir = step
	}
	return forward, backward
}
