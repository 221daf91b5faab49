package fit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
)

const (
	defaultMaxEvaluations = 20000
	defaultRestarts       = 1
	defaultSimplexSize    = 0.1
	// badValue replaces non-finite objective values so the simplex keeps
	// ordering well defined.
	badValue = 1e300
)

// Model evaluates a parametric function at x.
type Model func(x float64, p []float64) float64

// Param is one nonlinear model parameter. Min and Max may be infinite.
type Param struct {
	Value float64
	Min   float64
	Max   float64
	Fixed bool
}

// Unbounded returns a free parameter without limits.
func Unbounded(v float64) Param {
	return Param{Value: v, Min: math.Inf(-1), Max: math.Inf(1)}
}

// Result is the outcome of [Minimize].
type Result struct {
	Params      []float64
	ChiSq       float64
	Evaluations int
}

// MinimizeOption configures [Minimize].
type MinimizeOption func(*minimizeConfig)

type minimizeConfig struct {
	maxEvaluations int
	restarts       int
}

// WithMaxEvaluations limits objective evaluations per optimizer run.
func WithMaxEvaluations(n int) MinimizeOption {
	return func(cfg *minimizeConfig) {
		if n > 0 {
			cfg.maxEvaluations = n
		}
	}
}

// WithRestarts sets how many times the optimizer restarts from its own
// optimum. Restarting rebuilds the simplex and escapes early collapse.
func WithRestarts(n int) MinimizeOption {
	return func(cfg *minimizeConfig) {
		if n >= 0 {
			cfg.restarts = n
		}
	}
}

// transform maps one unconstrained optimizer coordinate to a parameter.
type transform struct {
	lo, hi float64
	origin float64
	scale  float64
}

func newTransform(p Param) (transform, float64) {
	t := transform{lo: p.Min, hi: p.Max, origin: p.Value, scale: math.Max(math.Abs(p.Value)*0.1, 1)}
	loFinite := !math.IsInf(p.Min, 0)
	hiFinite := !math.IsInf(p.Max, 0)
	v := p.Value

	switch {
	case loFinite && hiFinite:
		r := 2*(v-p.Min)/(p.Max-p.Min) - 1
		r = math.Max(-0.999, math.Min(0.999, r))
		return t, math.Asin(r)
	case loFinite:
		d := math.Max(v-p.Min, 0) + 1
		return t, math.Sqrt(d*d - 1)
	case hiFinite:
		d := math.Max(p.Max-v, 0) + 1
		return t, math.Sqrt(d*d - 1)
	default:
		return t, 0
	}
}

func (t transform) apply(u float64) float64 {
	loFinite := !math.IsInf(t.lo, 0)
	hiFinite := !math.IsInf(t.hi, 0)
	switch {
	case loFinite && hiFinite:
		return t.lo + (t.hi-t.lo)*(math.Sin(u)+1)/2
	case loFinite:
		return t.lo - 1 + math.Sqrt(u*u+1)
	case hiFinite:
		return t.hi + 1 - math.Sqrt(u*u+1)
	default:
		return t.origin + t.scale*u
	}
}

// Minimize fits model to (x, y) by minimizing chi-square. sigma holds
// per-point uncertainties; nil or non-positive entries count as 1.
func Minimize(x, y, sigma []float64, model Model, params []Param, opts ...MinimizeOption) (Result, error) {
	if len(x) != len(y) {
		return Result{}, fmt.Errorf("%w: %d x, %d y", ErrLengthMismatch, len(x), len(y))
	}
	if sigma != nil && len(sigma) != len(x) {
		return Result{}, fmt.Errorf("%w: %d points, %d sigma", ErrLengthMismatch, len(x), len(sigma))
	}
	if len(params) == 0 {
		return Result{}, ErrNoCoefficients
	}

	cfg := minimizeConfig{maxEvaluations: defaultMaxEvaluations, restarts: defaultRestarts}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	w := make([]float64, len(x))
	for i := range w {
		w[i] = 1
		if sigma != nil && sigma[i] > 0 {
			w[i] = 1 / (sigma[i] * sigma[i])
		}
	}

	full := make([]float64, len(params))
	var (
		freeIdx []int
		trans   []transform
		u0      []float64
	)
	for i, p := range params {
		if p.Min > p.Max || math.IsNaN(p.Value) {
			return Result{}, fmt.Errorf("%w: parameter %d", ErrInvalidBounds, i)
		}
		full[i] = p.Value
		if p.Fixed {
			continue
		}
		if p.Min == p.Max {
			full[i] = p.Min
			continue
		}
		t, u := newTransform(p)
		freeIdx = append(freeIdx, i)
		trans = append(trans, t)
		u0 = append(u0, u)
	}

	evals := 0
	chiSq := func(p []float64) float64 {
		var sum float64
		for i, xi := range x {
			r := y[i] - model(xi, p)
			sum += w[i] * r * r
		}
		return sum
	}

	if len(freeIdx) == 0 {
		return Result{Params: full, ChiSq: chiSq(full)}, nil
	}
	if len(x) < len(freeIdx) {
		return Result{}, fmt.Errorf("%w: %d points, %d free", ErrTooFewPoints, len(x), len(freeIdx))
	}

	work := make([]float64, len(params))
	expand := func(u []float64) []float64 {
		copy(work, full)
		for j, i := range freeIdx {
			work[i] = trans[j].apply(u[j])
		}
		return work
	}

	problem := optimize.Problem{
		Func: func(u []float64) float64 {
			evals++
			v := chiSq(expand(u))
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return badValue
			}
			return v
		},
	}

	best := append([]float64(nil), u0...)
	for run := 0; run <= cfg.restarts; run++ {
		settings := &optimize.Settings{
			FuncEvaluations: cfg.maxEvaluations,
			Converger: &optimize.FunctionConverge{
				Absolute:   1e-12,
				Relative:   1e-12,
				Iterations: 100,
			},
		}
		res, err := optimize.Minimize(problem, best, settings, &optimize.NelderMead{SimplexSize: defaultSimplexSize})
		if res == nil {
			if err == nil {
				err = ErrDegenerate
			}
			return Result{}, fmt.Errorf("fit: optimizer failed: %w", err)
		}
		copy(best, res.X)
	}

	out := append([]float64(nil), expand(best)...)
	v := chiSq(out)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Result{}, fmt.Errorf("%w: non-finite chi-square", ErrDegenerate)
	}
	return Result{Params: out, ChiSq: v, Evaluations: evals}, nil
}
