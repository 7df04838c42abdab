package ink

import "math"

// Point is a position in canvas coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BBox is the axis-aligned bounding box of a stroke.
type BBox struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

func (b BBox) Width() float64  { return b.MaxX - b.MinX }
func (b BBox) Height() float64 { return b.MaxY - b.MinY }

// ContainsY reports whether y lies inside the box's vertical span.
func (b BBox) ContainsY(y float64) bool {
	return y >= b.MinY && y <= b.MaxY
}

// Stroke is one finalized pen contact. Points are in capture order.
type Stroke struct {
	Points []Point
	Box    BBox
	Strike bool
}

// NewStroke finalizes a point list into a stroke. The points are copied so
// later changes to the caller's slice do not leak into the stroke.
func NewStroke(points []Point) Stroke {
	pts := make([]Point, len(points))
	copy(pts, points)
	return Stroke{Points: pts, Box: Bounds(pts)}
}

// Bounds computes the bounding box of points. An empty list yields a zero box.
func Bounds(points []Point) BBox {
	if len(points) == 0 {
		return BBox{}
	}
	b := BBox{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
	for _, p := range points {
		b.MinX = math.Min(b.MinX, p.X)
		b.MinY = math.Min(b.MinY, p.Y)
		b.MaxX = math.Max(b.MaxX, p.X)
		b.MaxY = math.Max(b.MaxY, p.Y)
	}
	return b
}

// Split partitions strokes into clean ink and strike-through marks,
// preserving their relative order.
func Split(strokes []Stroke) (clean, struck []Stroke) {
	for _, s := range strokes {
		if s.Strike {
			struck = append(struck, s)
		} else {
			clean = append(clean, s)
		}
	}
	return clean, struck
}

// Boxes returns the bounding boxes of strokes in order.
func Boxes(strokes []Stroke) []BBox {
	if len(strokes) == 0 {
		return nil
	}
	out := make([]BBox, len(strokes))
	for i, s := range strokes {
		out[i] = s.Box
	}
	return out
}
