package calib

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/cwbudde/algo-gamma/dsp/fit"
)

// Errors returned by calibration fitting and evaluation.
var (
	ErrLengthMismatch = errors.New("calib: input length mismatch")
	ErrNoCoefficients = errors.New("calib: no coefficients")
	ErrTooFewPoints   = errors.New("calib: too few points")
	ErrDegenerateFit  = errors.New("calib: degenerate fit")
	ErrNoSolution     = errors.New("calib: no solution in range")
	ErrTargetNotMet   = errors.New("calib: r-squared target not met")
	ErrUnknownModel   = errors.New("calib: unknown model")
)

// Model identifies the functional form of a curve.
type Model int

const (
	// ModelPolynomial is y = sum(c[i] * x^i).
	ModelPolynomial Model = iota
	// ModelSqrtPolynomial is y = sqrt(sum(c[i] * x^i)).
	ModelSqrtPolynomial
)

// String returns the persisted name of the model.
func (m Model) String() string {
	switch m {
	case ModelPolynomial:
		return "polynomial"
	case ModelSqrtPolynomial:
		return "sqrt-polynomial"
	default:
		return fmt.Sprintf("model(%d)", int(m))
	}
}

// ParseModel parses a persisted model name.
func ParseModel(s string) (Model, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "polynomial", "poly", "":
		return ModelPolynomial, nil
	case "sqrt-polynomial", "sqrt_polynomial", "sqrtpoly":
		return ModelSqrtPolynomial, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownModel, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Model) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Model) UnmarshalText(b []byte) error {
	v, err := ParseModel(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Curve is a fitted calibration. Source and Target are set for gain-match
// curves and name the channels being aligned.
type Curve struct {
	Model        Model                  `yaml:"model" json:"model"`
	Bits         int                    `yaml:"bits" json:"bits"`
	Units        string                 `yaml:"units" json:"units"`
	Coefficients []float64              `yaml:"coefficients" json:"coefficients"`
	Bounds       []fit.CoefficientBound `yaml:"bounds,omitempty" json:"bounds,omitempty"`
	RSquared     float64                `yaml:"r_squared" json:"r_squared"`
	Created      time.Time              `yaml:"created" json:"created"`
	Source       string                 `yaml:"source,omitempty" json:"source,omitempty"`
	Target       string                 `yaml:"target,omitempty" json:"target,omitempty"`
}

// Valid reports whether the curve has coefficients to evaluate.
func (c Curve) Valid() bool {
	if len(c.Coefficients) == 0 {
		return false
	}
	for _, v := range c.Coefficients {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Degree returns the polynomial degree of the curve.
func (c Curve) Degree() int { return len(c.Coefficients) - 1 }

// Transform evaluates the curve at x. A sqrt-polynomial with a negative
// radicand evaluates to 0. An invalid curve returns x unchanged.
func (c Curve) Transform(x float64) float64 {
	if !c.Valid() {
		return x
	}
	v := fit.Polynomial{Coeffs: c.Coefficients}.Eval(x)
	if c.Model == ModelSqrtPolynomial {
		if v <= 0 {
			return 0
		}
		return math.Sqrt(v)
	}
	return v
}

// TransformAt evaluates the curve for a channel taken from a spectrum with
// the given bit depth, rescaling the channel to the curve's own resolution.
func (c Curve) TransformAt(x float64, bits int) float64 {
	if c.Bits <= 0 || bits <= 0 || bits == c.Bits {
		return c.Transform(x)
	}
	return c.Transform(math.Ldexp(x, c.Bits-bits))
}

// TransformAll evaluates the curve at every x.
func (c Curve) TransformAll(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = c.Transform(v)
	}
	return out
}

const (
	inverseScanSteps  = 256
	inverseIterations = 200
)

// Inverse searches [lo, hi] for x with Transform(x) == y. The range is
// scanned for a sign change first, so non-monotonic curves return the
// lowest root in range.
func (c Curve) Inverse(y, lo, hi float64) (float64, error) {
	if !c.Valid() {
		return 0, ErrNoCoefficients
	}
	if hi < lo {
		lo, hi = hi, lo
	}
	f := func(x float64) float64 { return c.Transform(x) - y }

	a := lo
	fa := f(a)
	if fa == 0 {
		return a, nil
	}
	step := (hi - lo) / inverseScanSteps
	for i := 1; i <= inverseScanSteps; i++ {
		b := lo + float64(i)*step
		if i == inverseScanSteps {
			b = hi
		}
		fb := f(b)
		if fb == 0 {
			return b, nil
		}
		if (fa < 0) != (fb < 0) {
			return bisect(f, a, b, fa), nil
		}
		a, fa = b, fb
	}
	return 0, fmt.Errorf("%w: y=%v in [%v, %v]", ErrNoSolution, y, lo, hi)
}

func bisect(f func(float64) float64, a, b, fa float64) float64 {
	tol := 1e-12 * math.Max(1, math.Abs(b-a))
	for i := 0; i < inverseIterations && b-a > tol; i++ {
		m := a + (b-a)/2
		fm := f(m)
		if fm == 0 {
			return m
		}
		if (fa < 0) == (fm < 0) {
			a, fa = m, fm
		} else {
			b = m
		}
	}
	return a + (b-a)/2
}

// Equal reports whether two curves describe the same calibration.
func (c Curve) Equal(o Curve) bool {
	return c.Model == o.Model &&
		c.Bits == o.Bits &&
		c.Units == o.Units &&
		c.RSquared == o.RSquared &&
		c.Created.Equal(o.Created) &&
		c.Source == o.Source &&
		c.Target == o.Target &&
		slices.Equal(c.Coefficients, o.Coefficients) &&
		slices.Equal(c.Bounds, o.Bounds)
}

// Clone returns a deep copy.
func (c Curve) Clone() Curve {
	c.Coefficients = slices.Clone(c.Coefficients)
	c.Bounds = slices.Clone(c.Bounds)
	return c
}

// String formats the curve for logs and reports.
func (c Curve) String() string {
	if !c.Valid() {
		return "calib: none"
	}
	var sb strings.Builder
	if c.Model == ModelSqrtPolynomial {
		sb.WriteString("sqrt(")
	}
	for i, v := range c.Coefficients {
		if i > 0 {
			sb.WriteString(" + ")
		}
		switch i {
		case 0:
			fmt.Fprintf(&sb, "%.6g", v)
		case 1:
			fmt.Fprintf(&sb, "%.6g*x", v)
		default:
			fmt.Fprintf(&sb, "%.6g*x^%d", v, i)
		}
	}
	if c.Model == ModelSqrtPolynomial {
		sb.WriteString(")")
	}
	if c.Units != "" {
		fmt.Fprintf(&sb, " [%s]", c.Units)
	}
	fmt.Fprintf(&sb, " r2=%.6f", c.RSquared)
	return sb.String()
}
