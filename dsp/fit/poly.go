package fit

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/algo-vecmath"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Polynomial is sum(Coeffs[i] * (x - Offset)^i).
type Polynomial struct {
	Coeffs []float64
	Offset float64
}

// Eval evaluates the polynomial at x using Horner's scheme.
func (p Polynomial) Eval(x float64) float64 {
	t := x - p.Offset
	var v float64
	for i := len(p.Coeffs) - 1; i >= 0; i-- {
		v = v*t + p.Coeffs[i]
	}
	return v
}

// EvalAll evaluates the polynomial at every x.
func (p Polynomial) EvalAll(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = p.Eval(v)
	}
	return out
}

// Degree returns the polynomial degree, or -1 when it has no coefficients.
func (p Polynomial) Degree() int { return len(p.Coeffs) - 1 }

// Clone returns a deep copy.
func (p Polynomial) Clone() Polynomial {
	return Polynomial{Coeffs: append([]float64(nil), p.Coeffs...), Offset: p.Offset}
}

// PolyResult is the outcome of [FitPolynomial].
type PolyResult struct {
	Poly     Polynomial
	ChiSq    float64 // weighted sum of squared residuals
	RSquared float64
	// Pinned lists the indices that were held fixed, either by request or
	// because the unconstrained solution left their bounds.
	Pinned []int
}

// FitPolynomial fits a polynomial in (x - offset) to (x, y) with optional
// weights w (nil means 1.0 for every point). Coefficients not named in
// bounds are zero.
func FitPolynomial(x, y, w []float64, bounds []CoefficientBound, offset float64) (PolyResult, error) {
	if len(x) != len(y) {
		return PolyResult{}, fmt.Errorf("%w: %d x, %d y", ErrLengthMismatch, len(x), len(y))
	}
	if w != nil && len(w) != len(x) {
		return PolyResult{}, fmt.Errorf("%w: %d points, %d weights", ErrLengthMismatch, len(x), len(w))
	}
	sorted, err := validateBounds(bounds)
	if err != nil {
		return PolyResult{}, err
	}
	if w == nil {
		w = ones(len(x))
	}
	for _, v := range w {
		if v < 0 || math.IsNaN(v) {
			return PolyResult{}, fmt.Errorf("%w: negative weight", ErrDegenerate)
		}
	}

	coeffs := make([]float64, Degree(sorted)+1)
	pinned := make([]bool, len(sorted))
	for i, b := range sorted {
		if !b.Free {
			coeffs[b.Index] = b.Initial
			pinned[i] = true
		}
	}

	active := 0
	for _, v := range w {
		if v > 0 {
			active++
		}
	}

	// Active set: every pass pins at least one more coefficient or stops.
	for pass := 0; pass <= len(sorted); pass++ {
		free := freeIndices(pinned)
		if len(free) == 0 {
			break
		}
		if active < len(free) {
			return PolyResult{}, fmt.Errorf("%w: %d points, %d free", ErrTooFewPoints, active, len(free))
		}

		sol, err := solveFree(x, y, w, sorted, free, coeffs, offset)
		if err != nil {
			return PolyResult{}, err
		}

		violated := false
		for j, bi := range free {
			b := sorted[bi]
			v := sol[j]
			if !b.Contains(v) {
				coeffs[b.Index] = b.Clamp(v)
				pinned[bi] = true
				violated = true
				continue
			}
			coeffs[b.Index] = v
		}
		if !violated {
			break
		}
	}

	poly := Polynomial{Coeffs: coeffs, Offset: offset}
	fitted := poly.EvalAll(x)
	res := PolyResult{
		Poly:     poly,
		ChiSq:    weightedSSR(y, fitted, w),
		RSquared: RSquared(y, fitted, w),
	}
	for i, p := range pinned {
		if p {
			res.Pinned = append(res.Pinned, sorted[i].Index)
		}
	}
	return res, nil
}

func freeIndices(pinned []bool) []int {
	var out []int
	for i, p := range pinned {
		if !p {
			out = append(out, i)
		}
	}
	return out
}

// solveFree solves the sqrt(w)-scaled least-squares system for the free
// coefficients with pinned terms moved to the right-hand side.
func solveFree(x, y, w []float64, bounds []CoefficientBound, free []int, coeffs []float64, offset float64) ([]float64, error) {
	n := len(x)
	a := mat.NewDense(n, len(free), nil)
	b := mat.NewVecDense(n, nil)

	isFree := make(map[int]bool, len(free))
	for _, bi := range free {
		isFree[bounds[bi].Index] = true
	}

	for i := 0; i < n; i++ {
		sw := math.Sqrt(w[i])
		t := x[i] - offset
		rhs := y[i]
		for k, c := range coeffs {
			if !isFree[k] && c != 0 {
				rhs -= c * math.Pow(t, float64(k))
			}
		}
		b.SetVec(i, sw*rhs)
		for j, bi := range free {
			a.Set(i, j, sw*math.Pow(t, float64(bounds[bi].Index)))
		}
	}

	var sol mat.VecDense
	if err := sol.SolveVec(a, b); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("%w: %v", ErrDegenerate, err)
		}
	}
	out := make([]float64, len(free))
	for j := range out {
		out[j] = sol.AtVec(j)
		if math.IsNaN(out[j]) || math.IsInf(out[j], 0) {
			return nil, fmt.Errorf("%w: non-finite coefficient", ErrDegenerate)
		}
	}
	return out, nil
}

// weightedSSR returns sum(w * (y - f)^2).
func weightedSSR(y, f, w []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	r := make([]float64, len(y))
	floats.SubTo(r, y, f)
	vecmath.MulBlockInPlace(r, r)
	if w != nil {
		vecmath.MulBlockInPlace(r, w)
	}
	return floats.Sum(r)
}

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}
