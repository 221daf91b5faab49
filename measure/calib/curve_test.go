package calib

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/cwbudde/algo-gamma/dsp/fit"
	"github.com/cwbudde/algo-gamma/internal/testutil"
	"gopkg.in/yaml.v3"
)

var fixedClock = WithClock(func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) })

func TestFitLinearRoundTrip(t *testing.T) {
	x := []float64{100, 200, 300}
	y := []float64{50, 150, 250}

	c, err := Fit(x, y, fit.PolynomialBounds(1), WithUnits("keV"), WithBits(12), fixedClock)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	testutil.RequireSliceNearlyEqual(t, c.Coefficients, []float64{-50, 1}, 1e-9)
	testutil.RequireNearlyEqual(t, "r2", c.RSquared, 1, 1e-12)
	testutil.RequireNearlyEqual(t, "transform", c.Transform(100), 50, 1e-9)
	if c.Units != "keV" || c.Bits != 12 || c.Model != ModelPolynomial {
		t.Fatalf("metadata: %+v", c)
	}
}

func TestFitExactRecoveryCubic(t *testing.T) {
	want := []float64{-3.5, 0.42, 1.5e-4, -2e-8}
	x := []float64{50, 400, 1200, 3000}
	y := make([]float64, len(x))
	for i, v := range x {
		y[i] = fit.Polynomial{Coeffs: want}.Eval(v)
	}
	c, err := Fit(x, y, fit.PolynomialBounds(3))
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	for i, v := range x {
		testutil.RequireNearlyEqual(t, "energy", c.Transform(v), y[i], 1e-6)
	}
	testutil.RequireRelativelyEqual(t, "gain", c.Coefficients[1], want[1], 1e-6)
}

func TestFitWeightedUniformEqualsUnweighted(t *testing.T) {
	x := []float64{120, 350, 662, 1173, 1332}
	y := []float64{121.8, 344.3, 661.7, 1173.2, 1332.5}

	plain, err := Fit(x, y, fit.PolynomialBounds(2), fixedClock)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	weighted, err := FitWeighted(x, y, testutil.Flat(1, len(x)), fit.PolynomialBounds(2), fixedClock)
	if err != nil {
		t.Fatalf("FitWeighted: %v", err)
	}
	if !plain.Equal(weighted) {
		t.Fatalf("curves differ:\n%v\n%v", plain, weighted)
	}
}

func TestFitPinnedCoefficient(t *testing.T) {
	x := []float64{10, 20, 30, 40}
	inputs := [][]float64{
		{5, 9, 13, 17},
		{-100, 300, 2, 8000},
		{0, 0, 0, 0},
	}
	for _, y := range inputs {
		bounds := []fit.CoefficientBound{fit.Fixed(0, 3.25), fit.Free(1, 0)}
		c, err := Fit(x, y, bounds)
		if err != nil {
			t.Fatalf("Fit: %v", err)
		}
		if c.Coefficients[0] != 3.25 {
			t.Fatalf("pinned coefficient moved to %v", c.Coefficients[0])
		}
	}

	sq, err := Fit(x, []float64{2, 3, 3.5, 4}, []fit.CoefficientBound{fit.Fixed(0, 1), fit.Free(1, 0.1)}, WithModel(ModelSqrtPolynomial))
	if err != nil {
		t.Fatalf("sqrt Fit: %v", err)
	}
	if sq.Coefficients[0] != 1 {
		t.Fatalf("sqrt pinned coefficient moved to %v", sq.Coefficients[0])
	}
}

func TestFitSqrtPolynomialRecoversFWHM(t *testing.T) {
	want := []float64{1.2, 4e-3, 2e-6}
	x := []float64{60, 120, 340, 660, 1170, 1330, 2000}
	y := make([]float64, len(x))
	for i, v := range x {
		y[i] = math.Sqrt(fit.Polynomial{Coeffs: want}.Eval(v))
	}

	c, err := Fit(x, y, fit.PolynomialBounds(2), WithModel(ModelSqrtPolynomial), WithUnits("keV"))
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if c.Model != ModelSqrtPolynomial {
		t.Fatalf("model: %v", c.Model)
	}
	testutil.RequireNearlyEqual(t, "r2", c.RSquared, 1, 1e-6)
	for i, v := range x {
		testutil.RequireRelativelyEqual(t, "fwhm", c.Transform(v), y[i], 1e-4)
	}
}

func TestFitErrors(t *testing.T) {
	tests := []struct {
		name string
		x, y []float64
		w    []float64
		b    []fit.CoefficientBound
		opts []Option
		want error
	}{
		{"length", []float64{1, 2}, []float64{1}, nil, fit.PolynomialBounds(1), nil, ErrLengthMismatch},
		{"weights", []float64{1, 2}, []float64{1, 2}, []float64{1}, fit.PolynomialBounds(1), nil, ErrLengthMismatch},
		{"no coefficients", []float64{1, 2}, []float64{1, 2}, nil, nil, nil, ErrNoCoefficients},
		{"no points", nil, nil, nil, fit.PolynomialBounds(1), nil, ErrTooFewPoints},
		{"underdetermined", []float64{1}, []float64{1}, nil, fit.PolynomialBounds(2), nil, ErrTooFewPoints},
		{"model", []float64{1, 2}, []float64{1, 2}, nil, fit.PolynomialBounds(1), []Option{WithModel(Model(9))}, ErrUnknownModel},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, err := FitWeighted(tc.x, tc.y, tc.w, tc.b, tc.opts...)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
			if c.Valid() {
				t.Fatal("failed fit returned a usable curve")
			}
		})
	}
}

func TestCurveEqualGatesApply(t *testing.T) {
	x := []float64{100, 200, 300}
	a, _ := Fit(x, []float64{50, 150, 250}, fit.PolynomialBounds(1), fixedClock)
	b, _ := Fit(x, []float64{50, 150, 250}, fit.PolynomialBounds(1), fixedClock)
	c, _ := Fit(x, []float64{50, 150, 251}, fit.PolynomialBounds(1), fixedClock)

	if !a.Equal(b) {
		t.Fatal("identical fits should be equal")
	}
	if a.Equal(c) {
		t.Fatal("different fits should differ")
	}
	d := a.Clone()
	d.Coefficients[0] = 1
	if a.Coefficients[0] == 1 {
		t.Fatal("clone shares coefficients")
	}
	if (Curve{}).Equal(a) {
		t.Fatal("empty curve equals fitted curve")
	}
}

func TestTransformAtRescalesBits(t *testing.T) {
	c := Curve{Coefficients: []float64{0, 0.5}, Bits: 12}
	testutil.RequireNearlyEqual(t, "same bits", c.TransformAt(1000, 12), 500, 0)
	// A 13-bit channel is half as wide as a 12-bit one.
	testutil.RequireNearlyEqual(t, "13 bit", c.TransformAt(2000, 13), 500, 0)
	testutil.RequireNearlyEqual(t, "11 bit", c.TransformAt(500, 11), 500, 0)
	testutil.RequireNearlyEqual(t, "unknown bits", c.TransformAt(500, 0), 250, 0)
}

func TestTransformInvalidAndSqrt(t *testing.T) {
	if got := (Curve{}).Transform(7); got != 7 {
		t.Fatalf("invalid curve should be identity, got %v", got)
	}
	s := Curve{Model: ModelSqrtPolynomial, Coefficients: []float64{-4, 1}}
	if got := s.Transform(2); got != 0 {
		t.Fatalf("negative radicand: %v", got)
	}
	testutil.RequireNearlyEqual(t, "sqrt", s.Transform(13), 3, 1e-12)
}

func TestInverse(t *testing.T) {
	c := Curve{Coefficients: []float64{-50, 1, 1e-4}}
	for _, ch := range []float64{10, 512.25, 4000} {
		e := c.Transform(ch)
		got, err := c.Inverse(e, 0, 4096)
		if err != nil {
			t.Fatalf("Inverse(%v): %v", e, err)
		}
		testutil.RequireNearlyEqual(t, "channel", got, ch, 1e-6)
	}
	if _, err := c.Inverse(1e9, 0, 4096); !errors.Is(err, ErrNoSolution) {
		t.Fatalf("expected ErrNoSolution, got %v", err)
	}
	if _, err := (Curve{}).Inverse(1, 0, 1); !errors.Is(err, ErrNoCoefficients) {
		t.Fatalf("expected ErrNoCoefficients, got %v", err)
	}
}

func TestCullRemovesOutlier(t *testing.T) {
	x := []float64{100, 200, 300, 400, 500, 600}
	y := []float64{50, 150, 250, 900, 450, 550}

	c, keep, err := Cull(x, y, fit.PolynomialBounds(1), 0.9999)
	if err != nil {
		t.Fatalf("Cull: %v", err)
	}
	if len(keep) != 5 {
		t.Fatalf("kept %v", keep)
	}
	for _, i := range keep {
		if i == 3 {
			t.Fatal("outlier was kept")
		}
	}
	testutil.RequireSliceNearlyEqual(t, c.Coefficients, []float64{-50, 1}, 1e-9)
}

func TestCullTargetNotMet(t *testing.T) {
	x := []float64{1, 2, 3, 4}
	y := []float64{1, 5, 2, 8}
	c, keep, err := Cull(x, y, fit.PolynomialBounds(1), 2)
	if !errors.Is(err, ErrTargetNotMet) {
		t.Fatalf("expected ErrTargetNotMet, got %v", err)
	}
	if len(keep) != 3 || !c.Valid() {
		t.Fatalf("expected last curve with 3 points, got %v %v", keep, c)
	}
}

func TestCurveYAMLRoundTrip(t *testing.T) {
	c, err := Fit([]float64{1, 2, 3}, []float64{2, 4, 6}, fit.PolynomialBounds(1),
		WithModel(ModelPolynomial), WithUnits("keV"), WithBits(13), fixedClock)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	out, err := yaml.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var back Curve
	if err := yaml.Unmarshal(out, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.Model != ModelPolynomial || back.Units != "keV" || back.Bits != 13 {
		t.Fatalf("metadata lost: %+v", back)
	}
	testutil.RequireSliceNearlyEqual(t, back.Coefficients, c.Coefficients, 0)
}

func TestParseModel(t *testing.T) {
	if m, err := ParseModel("sqrt-polynomial"); err != nil || m != ModelSqrtPolynomial {
		t.Fatalf("got %v %v", m, err)
	}
	if _, err := ParseModel("spline"); !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("expected ErrUnknownModel, got %v", err)
	}
}

func TestResiduals(t *testing.T) {
	c := Curve{Coefficients: []float64{-50, 1}}
	x := []float64{300, 100, 200}
	y := []float64{252, 50, 149}

	xs, rs := Residuals(c, x, y)
	testutil.RequireSliceNearlyEqual(t, xs, []float64{100, 200, 300}, 0)
	testutil.RequireSliceNearlyEqual(t, rs, []float64{0, -1, 2}, 1e-12)

	xs, rs = Residuals(c, x, y[:2])
	if len(xs) != 2 || len(rs) != 2 {
		t.Fatalf("uneven input: %v %v", xs, rs)
	}
}
