package fit

import "gonum.org/v1/gonum/stat"

// RSquared returns the weighted coefficient of determination of fitted
// against y. w may be nil. A constant y yields 1 for an exact fit and 0
// otherwise.
func RSquared(y, fitted, w []float64) float64 {
	if len(y) == 0 || len(y) != len(fitted) {
		return 0
	}
	mean := stat.Mean(y, w)

	var ssTot float64
	for i, v := range y {
		d := v - mean
		wi := 1.0
		if w != nil {
			wi = w[i]
		}
		ssTot += wi * d * d
	}
	ssRes := weightedSSR(y, fitted, w)

	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}
