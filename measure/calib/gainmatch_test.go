package calib

import (
	"errors"
	"testing"

	"github.com/cwbudde/algo-gamma/dsp/fit"
	"github.com/cwbudde/algo-gamma/internal/testutil"
)

func TestPairNearestClosestFirst(t *testing.T) {
	observed := []float64{100, 104, 300}
	reference := []float64{103, 250}

	got := PairNearest(observed, reference, 5)
	if len(got) != 1 {
		t.Fatalf("pairs: %+v", got)
	}
	// 104 is closer to 103 than 100 is, so it claims the line.
	if got[0].Observed != 1 || got[0].Reference != 0 || got[0].Distance != 1 {
		t.Fatalf("pair: %+v", got[0])
	}
}

func TestPairNearestSortedByObserved(t *testing.T) {
	got := PairNearest([]float64{30, 10, 20}, []float64{10.5, 19, 31}, 2)
	if len(got) != 3 {
		t.Fatalf("pairs: %+v", got)
	}
	for i, p := range got {
		if p.Observed != i {
			t.Fatalf("pair %d: %+v", i, p)
		}
	}
	if got[0].Reference != 2 || got[1].Reference != 0 || got[2].Reference != 1 {
		t.Fatalf("references: %+v", got)
	}
	if PairNearest([]float64{1}, []float64{1}, -1) != nil {
		t.Fatal("negative tolerance should pair nothing")
	}
}

func TestGainMatch(t *testing.T) {
	src := []float64{100, 400, 900}
	dst := []float64{205, 805, 1805}

	c, err := GainMatch(src, dst, fit.PolynomialBounds(1), WithChannels("det1", "det0"))
	if err != nil {
		t.Fatalf("GainMatch: %v", err)
	}
	testutil.RequireSliceNearlyEqual(t, c.Coefficients, []float64{5, 2}, 1e-9)
	if c.Units != "channel" || c.Source != "det1" || c.Target != "det0" {
		t.Fatalf("metadata: %+v", c)
	}

	c, err = GainMatch(src, dst, fit.PolynomialBounds(1), WithUnits("bin"))
	if err != nil {
		t.Fatalf("GainMatch: %v", err)
	}
	if c.Units != "bin" {
		t.Fatalf("units override ignored: %q", c.Units)
	}

	if _, err := GainMatch(src, dst[:2], fit.PolynomialBounds(1)); !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestMatchCenters(t *testing.T) {
	srcCal := Curve{Coefficients: []float64{0, 0.5}}
	dstCal := Curve{Coefficients: []float64{0, 0.25}}
	src := []float64{200, 1324, 3000}
	dst := []float64{4000, 2650, 400}

	gotSrc, gotDst := MatchCenters(src, dst, srcCal, dstCal, 2)
	testutil.RequireSliceNearlyEqual(t, gotSrc, []float64{200, 1324}, 0)
	testutil.RequireSliceNearlyEqual(t, gotDst, []float64{400, 2650}, 0)
}

func TestMatchLinesSkipsBeta(t *testing.T) {
	lines := []Radiation{
		{Kind: RadiationBeta, Energy: 661.0, Label: "Cs-137 beta"},
		{Kind: RadiationXRay, Energy: 32.1, Label: "Ba K-alpha"},
		{Kind: RadiationGamma, Energy: 661.657, Intensity: 0.851, Label: "Cs-137"},
	}
	got := MatchLines([]float64{32.4, 661.2}, lines, 1)
	if len(got) != 2 {
		t.Fatalf("pairs: %+v", got)
	}
	if got[0].Reference != 1 || got[1].Reference != 2 {
		t.Fatalf("references: %+v", got)
	}

	if n := len(Lines(lines, RadiationGamma, RadiationXRay)); n != 2 {
		t.Fatalf("photon lines: %d", n)
	}
	if n := len(Lines(lines)); n != 3 {
		t.Fatalf("all lines: %d", n)
	}
	testutil.RequireSliceNearlyEqual(t, Energies(lines[1:]), []float64{32.1, 661.657}, 0)
}

func TestRadiationKindText(t *testing.T) {
	for _, k := range []RadiationKind{RadiationGamma, RadiationXRay, RadiationBeta} {
		b, err := k.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var back RadiationKind
		if err := back.UnmarshalText(b); err != nil || back != k {
			t.Fatalf("%v: got %v %v", k, back, err)
		}
	}
	var k RadiationKind
	if err := k.UnmarshalText([]byte("alpha")); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
