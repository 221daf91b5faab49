package fit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Gaussian is a peak shape parameterized by its half width at half
// maximum: Height * exp(-ln2 * ((x-Center)/HWHM)^2).
type Gaussian struct {
	Center float64 `yaml:"center" json:"center"`
	Height float64 `yaml:"height" json:"height"`
	HWHM   float64 `yaml:"hwhm" json:"hwhm"`
}

// Eval evaluates the gaussian at x.
func (g Gaussian) Eval(x float64) float64 {
	if g.HWHM <= 0 {
		return 0
	}
	d := (x - g.Center) / g.HWHM
	return g.Height * math.Exp(-math.Ln2*d*d)
}

// EvalAll evaluates the gaussian at every x.
func (g Gaussian) EvalAll(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = g.Eval(v)
	}
	return out
}

// FWHM returns the full width at half maximum.
func (g Gaussian) FWHM() float64 { return 2 * g.HWHM }

// Sigma returns the standard deviation.
func (g Gaussian) Sigma() float64 { return g.HWHM / math.Sqrt(2*math.Ln2) }

// Area returns the analytic integral.
func (g Gaussian) Area() float64 {
	return g.Height * g.HWHM * math.Sqrt(math.Pi/math.Ln2)
}

// Valid reports whether the gaussian has positive height and width.
func (g Gaussian) Valid() bool {
	return g.Height > 0 && g.HWHM > 0 && !math.IsNaN(g.Center) && !math.IsInf(g.Height, 0)
}

func gaussianModel(x float64, p []float64) float64 {
	return Gaussian{Center: p[0], Height: p[1], HWHM: p[2]}.Eval(x)
}

// GuessGaussian derives starting values from the largest sample of y and
// the span where y stays above half of it (measured from min(y)).
func GuessGaussian(x, y []float64) Gaussian {
	if len(x) == 0 || len(x) != len(y) {
		return Gaussian{}
	}
	top := floats.MaxIdx(y)
	floor := floats.Min(y)
	half := floor + (y[top]-floor)/2

	left, right := top, top
	for left > 0 && y[left-1] > half {
		left--
	}
	for right < len(y)-1 && y[right+1] > half {
		right++
	}
	hwhm := (x[right] - x[left] + 1) / 2
	if hwhm <= 0 {
		hwhm = 1
	}
	return Gaussian{Center: x[top], Height: y[top], HWHM: hwhm}
}

// FitGaussian fits a single gaussian to (x, y) starting from guess. The
// center is kept inside the data span, the width between a quarter channel
// and the span. sigma may be nil.
func FitGaussian(x, y, sigma []float64, guess Gaussian, opts ...MinimizeOption) (Gaussian, float64, error) {
	if len(x) != len(y) {
		return Gaussian{}, 0, fmt.Errorf("%w: %d x, %d y", ErrLengthMismatch, len(x), len(y))
	}
	if len(x) < 3 {
		return Gaussian{}, 0, fmt.Errorf("%w: %d points", ErrTooFewPoints, len(x))
	}

	lo, hi := floats.Min(x), floats.Max(x)
	span := hi - lo
	scale := math.Max(floats.Max(y), -floats.Min(y))
	if scale == 0 {
		return Gaussian{}, 0, fmt.Errorf("%w: all samples zero", ErrDegenerate)
	}

	params := []Param{
		{Value: clamp(guess.Center, lo, hi), Min: lo, Max: hi},
		{Value: clamp(guess.Height, -scale, 3*scale), Min: -scale, Max: 3 * scale},
		{Value: clamp(guess.HWHM, 0.25, span), Min: 0.25, Max: math.Max(span, 0.5)},
	}

	res, err := Minimize(x, y, sigma, gaussianModel, params, opts...)
	if err != nil {
		return Gaussian{}, 0, err
	}
	g := Gaussian{Center: res.Params[0], Height: res.Params[1], HWHM: res.Params[2]}
	return g, res.ChiSq, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
