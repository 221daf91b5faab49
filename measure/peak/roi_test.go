package peak

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-gamma/dsp/fit"
	"github.com/cwbudde/algo-gamma/dsp/hist"
	"github.com/cwbudde/algo-gamma/internal/testutil"
	"github.com/cwbudde/algo-gamma/measure/calib"
)

func TestNewPeakSum4(t *testing.T) {
	g := fit.Gaussian{Center: 102, Height: 20, HWHM: 1}
	x := []float64{100, 101, 102, 103, 104}
	y := []float64{12, 20, 30, 20, 12}
	base := testutil.Flat(10, 5)

	p := newPeak(g, g, x, y, base, 5)
	if p.Left != 100 || p.Right != 104 {
		t.Fatalf("span %d..%d", p.Left, p.Right)
	}
	testutil.RequireNearlyEqual(t, "net area", p.SumArea, 44, 1e-12)
	testutil.RequireNearlyEqual(t, "uncertainty", p.SumAreaUncertainty, math.Sqrt(94+50*5.0/10), 1e-12)
	testutil.RequireNearlyEqual(t, "quality", p.Quality, 44/math.Sqrt(119), 1e-12)
	testutil.RequireNearlyEqual(t, "sum fwhm", p.SumFWHM, 44.0/20*2*math.Sqrt(math.Ln2/math.Pi), 1e-12)
	testutil.RequireNearlyEqual(t, "centroid", p.SumCentroid, 102, 1e-12)
	testutil.RequireNearlyEqual(t, "gaussian fwhm", p.GaussianFWHM, 2, 0)
	testutil.RequireNearlyEqual(t, "gaussian area", p.GaussianArea, g.Area(), 0)
	testutil.RequireNearlyEqual(t, "energy", p.Energy, 102, 0)
}

func TestPeakCalibrate(t *testing.T) {
	p := Peak{Center: 102, GaussianFWHM: 2}
	energy := calib.Curve{Coefficients: []float64{0, 0.5}}
	res := calib.Curve{Model: calib.ModelSqrtPolynomial, Coefficients: []float64{1, 0}}

	p.calibrate(energy, res, 12)
	testutil.RequireNearlyEqual(t, "energy", p.Energy, 51, 1e-12)
	testutil.RequireNearlyEqual(t, "energy fwhm", p.EnergyFWHM, 1, 1e-12)
	testutil.RequireNearlyEqual(t, "expected fwhm", p.ExpectedFWHM, 1, 1e-12)

	p.calibrate(calib.Curve{}, calib.Curve{}, 12)
	if p.Energy != 102 || p.EnergyFWHM != 0 || p.ExpectedFWHM != 0 {
		t.Fatalf("uncalibrated peak: %+v", p)
	}
}

func TestPartition(t *testing.T) {
	got := partition([]float64{10, 20}, 0, 30)
	if len(got) != 2 || got[0].lo != 0 || got[0].hi != 15 || got[1].lo != 16 || got[1].hi != 30 {
		t.Fatalf("two seeds: %+v", got)
	}
	got = partition([]float64{7}, 3, 12)
	if len(got) != 1 || got[0].lo != 3 || got[0].hi != 12 || got[0].seed != 7 {
		t.Fatalf("one seed: %+v", got)
	}
}

func TestMergeOverlapping(t *testing.T) {
	rois := []*ROI{
		{Left: 40, Right: 50, Seeds: []float64{45}},
		{Left: 18, Right: 30, Seeds: []float64{25}},
		{Left: 10, Right: 20, Seeds: []float64{15}},
	}
	got := mergeOverlapping(rois)
	if len(got) != 2 {
		t.Fatalf("got %d rois", len(got))
	}
	if got[0].Left != 10 || got[0].Right != 30 || len(got[0].Seeds) != 2 || got[0].Seeds[0] != 15 {
		t.Fatalf("merged roi: %+v", got[0])
	}
	if got[1].Left != 40 || got[1].Right != 50 {
		t.Fatalf("separate roi: %+v", got[1])
	}
}

func TestMarkIntersections(t *testing.T) {
	a := &ROI{ID: 1, Left: 0, Right: 50, Peaks: []Peak{{Center: 45, GaussianFWHM: 4}, {Center: 20, GaussianFWHM: 4}}}
	b := &ROI{ID: 2, Left: 52, Right: 100, Peaks: []Peak{{Center: 80, GaussianFWHM: 4}}}
	markIntersections([]*ROI{a, b}, 2)

	if !a.IntersectsNeighbor || !a.Peaks[0].Intersects || a.Peaks[1].Intersects {
		t.Fatalf("roi a: %+v", a)
	}
	if b.IntersectsNeighbor || b.Peaks[0].Intersects {
		t.Fatalf("roi b: %+v", b)
	}

	markIntersections([]*ROI{a}, 2)
	if a.IntersectsNeighbor {
		t.Fatal("flag not cleared without neighbors")
	}
}

func TestROIFitErrors(t *testing.T) {
	r := &ROI{Left: 0, Right: 10}
	if err := r.Fit(nil, DefaultSettings()); !errors.Is(err, ErrNoSamples) {
		t.Fatalf("nil samples: %v", err)
	}

	s, err := hist.New(testutil.Flat(1, 50))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r = &ROI{Left: 20, Right: 21, Peaks: []Peak{{Center: 20}}}
	if err := r.Fit(s, DefaultSettings()); !errors.Is(err, ErrTooNarrow) {
		t.Fatalf("narrow roi: %v", err)
	}
	if r.Peaks != nil {
		t.Fatal("narrow roi kept stale peaks")
	}

	zero, err := hist.New(make([]float64, 50))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r = &ROI{Left: 10, Right: 40}
	if err := r.Fit(zero, DefaultSettings()); !errors.Is(err, ErrNoPeaks) {
		t.Fatalf("empty data: %v", err)
	}
}

func TestROIFitSinglePeak(t *testing.T) {
	line := testutil.GaussianLine{Center: 250.3, Height: 400, HWHM: 2.5}
	s, err := hist.New(testutil.Spectrum(512, 4, line))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r := &ROI{ID: 7, Left: 225, Right: 275, Seeds: []float64{250}}
	if err := r.Fit(s, DefaultSettings()); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if len(r.Peaks) != 1 {
		t.Fatalf("peaks: %d", len(r.Peaks))
	}
	p := r.Peaks[0]
	testutil.RequireNearlyEqual(t, "center", p.Center, line.Center, 0.05)
	testutil.RequireRelativelyEqual(t, "height", p.Refined.Height, line.Height, 0.01)
	testutil.RequireRelativelyEqual(t, "gaussian area", p.GaussianArea, line.Area(), 0.02)
	testutil.RequireRelativelyEqual(t, "sum area", p.SumArea, line.Area(), 0.02)
	testutil.RequireNearlyEqual(t, "baseline", r.BaselineAt(250), 4, 0.5)
	if len(r.FullFit) != r.Width() {
		t.Fatalf("full fit covers %d of %d channels", len(r.FullFit), r.Width())
	}
	if r.Seeds[0] != p.Center {
		t.Fatalf("seeds not updated: %v", r.Seeds)
	}

	c := r.Clone()
	c.Peaks[0].Center = 0
	c.FullFit[0] = -1
	c.Baseline.Coeffs[0] = -1
	if r.Peaks[0].Center == 0 || r.FullFit[0] == -1 || r.Baseline.Coeffs[0] == -1 {
		t.Fatal("clone shares memory with the original")
	}
}

func TestCleanSeeds(t *testing.T) {
	tests := []struct {
		name  string
		seeds []float64
		y     []float64
		want  []float64
	}{
		{name: "sorted and distinct", seeds: []float64{500, 516}, want: []float64{500, 516}},
		{name: "unsorted", seeds: []float64{516, 500, 508}, want: []float64{500, 508, 516}},
		{name: "near duplicates collapse", seeds: []float64{516, 500.2, 500, 516.3}, want: []float64{500, 516}},
		{name: "outside and NaN dropped", seeds: []float64{400, 510, math.NaN(), 600}, want: []float64{510}},
		{name: "fallback to highest channel", seeds: nil, y: []float64{1, 5, 2}, want: []float64{491}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := &ROI{Left: 490, Right: 530, Seeds: tc.seeds}
			got := r.cleanSeeds(tc.y)
			testutil.RequireSliceNearlyEqual(t, got, tc.want, 0)
		})
	}
}

func TestROIFitTwoPeaks(t *testing.T) {
	a := testutil.GaussianLine{Center: 500, Height: 800, HWHM: 3}
	b := testutil.GaussianLine{Center: 516, Height: 400, HWHM: 3}
	s, err := hist.New(testutil.Spectrum(1024, 10, a, b))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r := &ROI{Left: 476, Right: 540, Seeds: []float64{516, 500}}
	if err := r.Fit(s, DefaultSettings()); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if len(r.Peaks) != 2 || r.Rejected != 0 {
		t.Fatalf("peaks=%d rejected=%d", len(r.Peaks), r.Rejected)
	}
	testutil.RequireNearlyEqual(t, "first center", r.Peaks[0].Center, 500, 0.5)
	testutil.RequireNearlyEqual(t, "second center", r.Peaks[1].Center, 516, 0.5)
	if len(r.Seeds) != 2 {
		t.Fatalf("seeds: %v", r.Seeds)
	}
}
