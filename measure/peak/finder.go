package peak

import "github.com/cwbudde/algo-gamma/dsp/hist"

// Find returns every index q of y that rises strictly for minWidth samples
// towards q from both sides:
//
//	y[q-d] < y[q-d+1] and y[q+d] < y[q+d-1] for d in [1, minWidth]
//
// Equal neighbors fail the test, so flat-topped maxima are not reported.
// Indices closer than minWidth to either end are never candidates. Fewer
// than three samples yield nil. A minWidth below 1 is treated as 1.
func Find(y []float64, minWidth int) []int {
	if len(y) < 3 {
		return nil
	}
	if minWidth < 1 {
		minWidth = 1
	}

	var out []int
	for q := minWidth; q+minWidth < len(y); q++ {
		// Local maximum pre-filter.
		if !(y[q] > y[q-1] && y[q] > y[q+1]) {
			continue
		}
		if risesTo(y, q, minWidth) {
			out = append(out, q)
		}
	}
	return out
}

func risesTo(y []float64, q, width int) bool {
	for d := 1; d <= width; d++ {
		if !(y[q-d] < y[q-d+1]) || !(y[q+d] < y[q+d-1]) {
			return false
		}
	}
	return true
}

// FindSmoothed runs [Find] on the smoothed copy of s when one exists, or on
// the raw counts otherwise, and returns histogram channels.
func FindSmoothed(s *hist.Samples, minWidth int) []int {
	if s == nil {
		return nil
	}
	y := s.Smoothed()
	if y == nil {
		y = s.Counts()
	}
	idx := Find(y, minWidth)
	for i := range idx {
		idx[i] += s.Start()
	}
	return idx
}

// prominence returns how far y[q] rises above the higher of the samples
// width channels away on either side.
func prominence(y []float64, q, width int) float64 {
	lo, hi := q-width, q+width
	if lo < 0 {
		lo = 0
	}
	if hi > len(y)-1 {
		hi = len(y) - 1
	}
	return y[q] - max(y[lo], y[hi])
}
