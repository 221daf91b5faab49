package calib

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/cwbudde/algo-gamma/dsp/fit"
)

// Option configures a calibration fit.
type Option func(*config)

type config struct {
	model          Model
	bits           int
	units          string
	source, target string
	now            func() time.Time
	maxEvaluations int
}

func defaultConfig() config {
	return config{model: ModelPolynomial, now: time.Now}
}

// WithModel selects the curve model. Default [ModelPolynomial].
func WithModel(m Model) Option {
	return func(cfg *config) { cfg.model = m }
}

// WithBits records the resolution context of the x values.
func WithBits(bits int) Option {
	return func(cfg *config) {
		if bits > 0 {
			cfg.bits = bits
		}
	}
}

// WithUnits records the unit of the y values.
func WithUnits(units string) Option {
	return func(cfg *config) { cfg.units = units }
}

// WithChannels records source and target channel identity.
func WithChannels(source, target string) Option {
	return func(cfg *config) {
		cfg.source = source
		cfg.target = target
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(cfg *config) {
		if now != nil {
			cfg.now = now
		}
	}
}

// WithMaxEvaluations limits the nonlinear optimizer for sqrt-polynomial fits.
func WithMaxEvaluations(n int) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.maxEvaluations = n
		}
	}
}

func applyOptions(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// Fit fits an unweighted curve through (x, y).
func Fit(x, y []float64, bounds []fit.CoefficientBound, opts ...Option) (Curve, error) {
	return FitWeighted(x, y, nil, bounds, opts...)
}

// FitWeighted fits a curve through (x, y) with per-point weights w. A nil w
// weighs every point 1.0. Pinned coefficients keep their Initial value.
func FitWeighted(x, y, w []float64, bounds []fit.CoefficientBound, opts ...Option) (Curve, error) {
	if len(x) != len(y) {
		return Curve{}, fmt.Errorf("%w: %d x, %d y", ErrLengthMismatch, len(x), len(y))
	}
	if w != nil && len(w) != len(x) {
		return Curve{}, fmt.Errorf("%w: %d points, %d weights", ErrLengthMismatch, len(x), len(w))
	}
	if len(bounds) == 0 {
		return Curve{}, ErrNoCoefficients
	}
	if len(x) == 0 {
		return Curve{}, ErrTooFewPoints
	}

	cfg := applyOptions(opts)

	var (
		coeffs []float64
		r2     float64
		err    error
	)
	switch cfg.model {
	case ModelPolynomial:
		coeffs, r2, err = fitPolynomial(x, y, w, bounds)
	case ModelSqrtPolynomial:
		coeffs, r2, err = fitSqrtPolynomial(x, y, w, bounds, cfg)
	default:
		return Curve{}, fmt.Errorf("%w: %v", ErrUnknownModel, cfg.model)
	}
	if err != nil {
		return Curve{}, err
	}
	if math.IsNaN(r2) {
		return Curve{}, fmt.Errorf("%w: r-squared undefined", ErrDegenerateFit)
	}

	c := Curve{
		Model:        cfg.model,
		Bits:         cfg.bits,
		Units:        cfg.units,
		Coefficients: coeffs,
		Bounds:       append([]fit.CoefficientBound(nil), bounds...),
		RSquared:     r2,
		Created:      cfg.now(),
		Source:       cfg.source,
		Target:       cfg.target,
	}
	if !c.Valid() {
		return Curve{}, fmt.Errorf("%w: non-finite coefficients", ErrDegenerateFit)
	}
	return c, nil
}

func fitPolynomial(x, y, w []float64, bounds []fit.CoefficientBound) ([]float64, float64, error) {
	res, err := fit.FitPolynomial(x, y, w, bounds, 0)
	if err != nil {
		return nil, 0, mapFitError(err)
	}
	return res.Poly.Coeffs, res.RSquared, nil
}

// fitSqrtPolynomial seeds the nonlinear search with a linear fit of y^2,
// which is exact when the data follows the model.
func fitSqrtPolynomial(x, y, w []float64, bounds []fit.CoefficientBound, cfg config) ([]float64, float64, error) {
	degree := fit.Degree(bounds)
	if degree < 0 {
		return nil, 0, ErrNoCoefficients
	}

	params := make([]fit.Param, degree+1)
	for i := range params {
		params[i] = fit.Param{Fixed: true}
	}
	for _, b := range bounds {
		if b.Index < 0 || b.Min > b.Max {
			return nil, 0, fmt.Errorf("%w: invalid bound for index %d", ErrDegenerateFit, b.Index)
		}
		params[b.Index] = fit.Param{Value: b.Initial, Min: b.Min, Max: b.Max, Fixed: !b.Free}
	}

	y2 := make([]float64, len(y))
	for i, v := range y {
		y2[i] = v * v
	}
	if seed, err := fit.FitPolynomial(x, y2, w, bounds, 0); err == nil {
		for i, c := range seed.Poly.Coeffs {
			if !params[i].Fixed {
				params[i].Value = c
			}
		}
	}

	var sigma []float64
	if w != nil {
		sigma = make([]float64, len(w))
		for i, v := range w {
			if v > 0 {
				sigma[i] = 1 / math.Sqrt(v)
			} else {
				sigma[i] = math.Inf(1)
			}
		}
	}

	model := func(xi float64, p []float64) float64 {
		v := fit.Polynomial{Coeffs: p}.Eval(xi)
		if v <= 0 {
			return 0
		}
		return math.Sqrt(v)
	}

	var mopts []fit.MinimizeOption
	if cfg.maxEvaluations > 0 {
		mopts = append(mopts, fit.WithMaxEvaluations(cfg.maxEvaluations))
	}
	res, err := fit.Minimize(x, y, sigma, model, params, mopts...)
	if err != nil {
		return nil, 0, mapFitError(err)
	}

	fitted := make([]float64, len(x))
	for i, xi := range x {
		fitted[i] = model(xi, res.Params)
	}
	return res.Params, fit.RSquared(y, fitted, w), nil
}

func mapFitError(err error) error {
	switch {
	case errors.Is(err, fit.ErrLengthMismatch):
		return fmt.Errorf("%w: %v", ErrLengthMismatch, err)
	case errors.Is(err, fit.ErrNoCoefficients):
		return fmt.Errorf("%w: %v", ErrNoCoefficients, err)
	case errors.Is(err, fit.ErrTooFewPoints):
		return fmt.Errorf("%w: %v", ErrTooFewPoints, err)
	default:
		return fmt.Errorf("%w: %v", ErrDegenerateFit, err)
	}
}

// Cull fits (x, y) and, while the fit's R² stays below target, removes the
// point with the largest absolute residual and fits again. It returns the
// last curve and the indices of the points it kept. When too few points
// remain to go on, the last curve is returned with [ErrTargetNotMet].
func Cull(x, y []float64, bounds []fit.CoefficientBound, target float64, opts ...Option) (Curve, []int, error) {
	if len(x) != len(y) {
		return Curve{}, nil, fmt.Errorf("%w: %d x, %d y", ErrLengthMismatch, len(x), len(y))
	}
	keep := make([]int, len(x))
	for i := range keep {
		keep[i] = i
	}
	minPoints := fit.FreeCount(bounds)

	for {
		xs := make([]float64, len(keep))
		ys := make([]float64, len(keep))
		for j, i := range keep {
			xs[j], ys[j] = x[i], y[i]
		}
		c, err := Fit(xs, ys, bounds, opts...)
		if err != nil {
			return Curve{}, nil, err
		}
		if c.RSquared >= target {
			return c, keep, nil
		}
		if len(keep) <= minPoints+1 {
			return c, keep, ErrTargetNotMet
		}

		worst, worstRes := 0, -1.0
		for j := range xs {
			if r := math.Abs(ys[j] - c.Transform(xs[j])); r > worstRes {
				worst, worstRes = j, r
			}
		}
		keep = append(keep[:worst], keep[worst+1:]...)
	}
}

// Residuals returns y - curve(x) for every point, sorted by x.
func Residuals(c Curve, x, y []float64) ([]float64, []float64) {
	n := min(len(x), len(y))
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return x[idx[a]] < x[idx[b]] })

	xs := make([]float64, n)
	rs := make([]float64, n)
	for j, i := range idx {
		xs[j] = x[i]
		rs[j] = y[i] - c.Transform(x[i])
	}
	return xs, rs
}
