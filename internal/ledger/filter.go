package ledger

import "github.com/sadopc/veresia/internal/ink"

// FilterCrossed drops entries whose approximate line position falls inside
// a strike-through box. Recognized text carries no geometry, so entries are
// assumed to be spread evenly down the canvas in recognition order: entry i
// of n sits at y = (i+0.5) * height / n.
func FilterCrossed(entries []Entry, strikes []ink.BBox, canvasHeight float64) []Entry {
	if len(entries) == 0 || len(strikes) == 0 {
		return entries
	}
	crossed := CrossedIndexes(len(entries), strikes, canvasHeight)
	if len(crossed) == 0 {
		return entries
	}

	drop := make(map[int]bool, len(crossed))
	for _, i := range crossed {
		drop[i] = true
	}
	out := make([]Entry, 0, len(entries)-len(crossed))
	for i, e := range entries {
		if !drop[i] {
			out = append(out, e)
		}
	}
	return out
}

// CrossedIndexes returns the indexes, out of n evenly spaced lines, whose
// midpoint lies inside one of the strike boxes.
func CrossedIndexes(n int, strikes []ink.BBox, canvasHeight float64) []int {
	if n == 0 || len(strikes) == 0 {
		return nil
	}
	band := canvasHeight / float64(n)
	var out []int
	for i := 0; i < n; i++ {
		mid := (float64(i) + 0.5) * band
		for _, b := range strikes {
			if b.ContainsY(mid) {
				out = append(out, i)
				break
			}
		}
	}
	return out
}
