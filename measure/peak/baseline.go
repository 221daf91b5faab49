package peak

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Baseline is the background estimate under a set of peaks.
type Baseline struct {
	// Values holds the residual counts with the consumed span bridged
	// linearly when Filled is set.
	Values []float64
	// First and Last delimit the consumed span, the samples where the
	// rough model meets or exceeds the data. Both are -1 when no sample
	// is consumed.
	First, Last int
	// AvgLeft and AvgRight are the flank averages anchoring the bridge.
	AvgLeft, AvgRight float64
	Filled           bool
}

// EstimateBaseline estimates the non-peak background of y given the rough
// peak model evaluated on the same samples.
//
// The residual y - rough is scanned for the first and last sample where the
// model meets or exceeds the data. When both ends leave room for buffer +
// samples points, samples residual points beyond a buffer-wide gap are
// averaged on each side and the residual is replaced by a straight line
// from the left average at First-buffer to the right average at
// Last+buffer. Otherwise the residual is returned unfilled. Mismatched
// lengths yield an empty baseline.
func EstimateBaseline(y, rough []float64, buffer, samples int) Baseline {
	b := Baseline{First: -1, Last: -1}
	if len(y) != len(rough) {
		return b
	}
	if buffer < 0 {
		buffer = 0
	}
	if samples < 1 {
		samples = 1
	}

	n := len(y)
	b.Values = make([]float64, n)
	floats.SubTo(b.Values, y, rough)

	for i, v := range b.Values {
		if v <= 0 {
			if b.First < 0 {
				b.First = i
			}
			b.Last = i
		}
	}
	if b.First < 0 {
		return b
	}
	margin := buffer + samples
	if b.First < margin || n-1-b.Last < margin {
		return b
	}

	lo, hi := b.First-buffer, b.Last+buffer
	b.AvgLeft = stat.Mean(b.Values[lo-samples+1:lo+1], nil)
	b.AvgRight = stat.Mean(b.Values[hi:hi+samples], nil)

	if hi == lo {
		b.Values[lo] = b.AvgLeft
	} else {
		slope := (b.AvgRight - b.AvgLeft) / float64(hi-lo)
		for i := lo; i <= hi; i++ {
			b.Values[i] = b.AvgLeft + slope*float64(i-lo)
		}
	}
	b.Filled = true
	return b
}
