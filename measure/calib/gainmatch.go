package calib

import (
	"fmt"
	"math"
	"sort"

	"github.com/cwbudde/algo-gamma/dsp/fit"
)

// Pair links an observed value to a reference value by index.
type Pair struct {
	Observed  int
	Reference int
	Distance  float64
}

// PairNearest pairs each observed value with the nearest reference value
// within tol. Pairs are assigned closest-first and every value is used at
// most once, so a reference line claimed by a better match is unavailable
// to a worse one. The result is sorted by observed index.
func PairNearest(observed, reference []float64, tol float64) []Pair {
	if tol < 0 {
		return nil
	}
	var candidates []Pair
	for i, o := range observed {
		for j, r := range reference {
			if d := math.Abs(o - r); d <= tol {
				candidates = append(candidates, Pair{Observed: i, Reference: j, Distance: d})
			}
		}
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].Distance < candidates[b].Distance
	})

	usedObs := make(map[int]bool)
	usedRef := make(map[int]bool)
	var out []Pair
	for _, p := range candidates {
		if usedObs[p.Observed] || usedRef[p.Reference] {
			continue
		}
		usedObs[p.Observed] = true
		usedRef[p.Reference] = true
		out = append(out, p)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Observed < out[b].Observed })
	return out
}

// GainMatch fits a curve mapping source peak centers onto destination peak
// centers. The slices must correspond 1:1; use [MatchCenters] first when
// they do not. Units default to "channel".
func GainMatch(src, dst []float64, bounds []fit.CoefficientBound, opts ...Option) (Curve, error) {
	if len(src) != len(dst) {
		return Curve{}, fmt.Errorf("%w: %d source, %d destination centers", ErrLengthMismatch, len(src), len(dst))
	}
	opts = append([]Option{WithUnits("channel")}, opts...)
	return Fit(src, dst, bounds, opts...)
}

// MatchCenters culls src and dst down to the entries whose values,
// mapped through the given curves, lie within tol of each other. Invalid
// curves map values unchanged.
func MatchCenters(src, dst []float64, srcCal, dstCal Curve, tol float64) ([]float64, []float64) {
	se := srcCal.TransformAll(src)
	de := dstCal.TransformAll(dst)
	pairs := PairNearest(se, de, tol)

	outSrc := make([]float64, len(pairs))
	outDst := make([]float64, len(pairs))
	for i, p := range pairs {
		outSrc[i] = src[p.Observed]
		outDst[i] = dst[p.Reference]
	}
	return outSrc, outDst
}
