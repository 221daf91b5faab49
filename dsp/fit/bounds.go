package fit

import (
	"fmt"
	"math"
	"sort"
)

// CoefficientBound constrains one polynomial term. Index is the power of x
// the coefficient multiplies. A coefficient with Free == false is held at
// Initial.
type CoefficientBound struct {
	Index   int     `yaml:"index" json:"index"`
	Min     float64 `yaml:"min" json:"min"`
	Max     float64 `yaml:"max" json:"max"`
	Initial float64 `yaml:"initial" json:"initial"`
	Free    bool    `yaml:"free" json:"free"`
}

// Free returns an unbounded free coefficient.
func Free(index int, initial float64) CoefficientBound {
	return CoefficientBound{Index: index, Min: math.Inf(-1), Max: math.Inf(1), Initial: initial, Free: true}
}

// Bounded returns a free coefficient limited to [lo, hi].
func Bounded(index int, lo, hi, initial float64) CoefficientBound {
	return CoefficientBound{Index: index, Min: lo, Max: hi, Initial: initial, Free: true}
}

// Fixed returns a coefficient pinned to value.
func Fixed(index int, value float64) CoefficientBound {
	return CoefficientBound{Index: index, Min: value, Max: value, Initial: value}
}

// PolynomialBounds returns unbounded free coefficients for every power up
// to degree.
func PolynomialBounds(degree int) []CoefficientBound {
	if degree < 0 {
		return nil
	}
	out := make([]CoefficientBound, degree+1)
	for i := range out {
		out[i] = Free(i, 0)
	}
	return out
}

// Clamp limits v to the bound's range.
func (b CoefficientBound) Clamp(v float64) float64 {
	if v < b.Min {
		return b.Min
	}
	if v > b.Max {
		return b.Max
	}
	return v
}

// Contains reports whether v lies within [Min, Max].
func (b CoefficientBound) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// Degree returns the highest index in bounds, or -1 for an empty list.
func Degree(bounds []CoefficientBound) int {
	d := -1
	for _, b := range bounds {
		if b.Index > d {
			d = b.Index
		}
	}
	return d
}

// FreeCount returns the number of free coefficients.
func FreeCount(bounds []CoefficientBound) int {
	n := 0
	for _, b := range bounds {
		if b.Free {
			n++
		}
	}
	return n
}

// validateBounds checks bounds and returns them sorted by index.
func validateBounds(bounds []CoefficientBound) ([]CoefficientBound, error) {
	if len(bounds) == 0 {
		return nil, ErrNoCoefficients
	}
	sorted := append([]CoefficientBound(nil), bounds...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	for i, b := range sorted {
		if b.Index < 0 {
			return nil, fmt.Errorf("%w: negative index %d", ErrInvalidBounds, b.Index)
		}
		if i > 0 && sorted[i-1].Index == b.Index {
			return nil, fmt.Errorf("%w: duplicate index %d", ErrInvalidBounds, b.Index)
		}
		if math.IsNaN(b.Min) || math.IsNaN(b.Max) || b.Min > b.Max {
			return nil, fmt.Errorf("%w: index %d range [%v, %v]", ErrInvalidBounds, b.Index, b.Min, b.Max)
		}
		if math.IsNaN(b.Initial) || math.IsInf(b.Initial, 0) {
			return nil, fmt.Errorf("%w: index %d initial %v", ErrInvalidBounds, b.Index, b.Initial)
		}
	}
	return sorted, nil
}
