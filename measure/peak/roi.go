package peak

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/cwbudde/algo-gamma/dsp/fit"
	"github.com/cwbudde/algo-gamma/dsp/hist"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Errors returned by ROI and engine operations.
var (
	ErrNoSamples  = errors.New("peak: no samples")
	ErrUnknownROI = errors.New("peak: unknown roi")
	ErrEmptyRange = errors.New("peak: empty range")
	ErrNoPeaks    = errors.New("peak: no peak survived the fit")
	ErrTooNarrow  = errors.New("peak: roi too narrow")
)

const (
	// sameCenter is the distance below which two fitted centers are the
	// same peak.
	sameCenter     = 0.5
	minFitChannels = 3
)

// ROI is a contiguous channel span sharing one baseline.
type ROI struct {
	ID    int `json:"id"`
	Left  int `json:"left"`
	Right int `json:"right"`

	// Seeds are the channel positions the next fit starts from.
	Seeds []float64 `json:"seeds"`
	// Peaks are sorted by center with unique centers.
	Peaks    []Peak         `json:"peaks"`
	Baseline fit.Polynomial `json:"baseline"`
	// FullFit is baseline plus every refined gaussian over [Left, Right].
	FullFit []float64 `json:"full_fit,omitempty"`
	// Rejected counts seeds dropped by the last fit.
	Rejected int `json:"rejected"`

	IntersectsNeighbor bool `json:"intersects_neighbor"`
}

// Width returns the number of channels in the ROI.
func (r *ROI) Width() int { return r.Right - r.Left + 1 }

// Contains reports whether channel x lies within the ROI bounds.
func (r *ROI) Contains(x float64) bool {
	return x >= float64(r.Left) && x <= float64(r.Right)
}

// Clone returns a deep copy.
func (r *ROI) Clone() *ROI {
	c := *r
	c.Seeds = slices.Clone(r.Seeds)
	c.Peaks = slices.Clone(r.Peaks)
	c.Baseline = r.Baseline.Clone()
	c.FullFit = slices.Clone(r.FullFit)
	return &c
}

// Centers returns the peak centers in order.
func (r *ROI) Centers() []float64 {
	out := make([]float64, len(r.Peaks))
	for i, p := range r.Peaks {
		out[i] = p.Center
	}
	return out
}

// BaselineAt evaluates the baseline at channel x.
func (r *ROI) BaselineAt(x float64) float64 {
	return r.Baseline.Eval(x)
}

// Fit runs the two-pass fit over the ROI's span of s.
//
// A rough gaussian is fit to the raw counts for every seed, each on its
// share of the ROI split at the midpoints between seeds. The residual
// under the rough model is bridged by [EstimateBaseline] and a polynomial
// baseline is fit to it. Refined gaussians are then fit to the
// baseline-subtracted counts. Seeds whose fits fail, come out with
// non-positive height, or land outside the ROI are dropped. Fit returns
// [ErrNoPeaks] when nothing survives; the ROI is then left without peaks.
func (r *ROI) Fit(s *hist.Samples, cfg Settings) error {
	if s == nil {
		return ErrNoSamples
	}
	cfg = cfg.normalize()

	r.Left, r.Right = s.Clamp(r.Left), s.Clamp(r.Right)
	x, y := s.Range(r.Left, r.Right)
	if len(x) < minFitChannels {
		r.clearFit()
		return fmt.Errorf("%w: %d channels", ErrTooNarrow, len(x))
	}

	seeds := r.cleanSeeds(y)
	opts := []fit.MinimizeOption{fit.WithMaxEvaluations(cfg.MaxEvaluations)}

	// Pass 1: rough gaussians on the raw counts.
	var rough []fit.Gaussian
	for _, sp := range partition(seeds, r.Left, r.Right) {
		a, b := sp.lo-r.Left, sp.hi-r.Left+1
		if b-a < minFitChannels {
			continue
		}
		guess := fit.GuessGaussian(x[a:b], y[a:b])
		guess.Center = sp.seed
		g, _, err := fit.FitGaussian(x[a:b], y[a:b], nil, guess, opts...)
		if err != nil || !g.Valid() {
			continue
		}
		rough = append(rough, g)
	}
	r.Rejected = len(seeds) - len(rough)
	if len(rough) == 0 {
		r.clearFit()
		return ErrNoPeaks
	}

	sort.Slice(rough, func(i, j int) bool { return rough[i].Center < rough[j].Center })
	model := make([]float64, len(x))
	for _, g := range rough {
		floats.Add(model, g.EvalAll(x))
	}

	// Baseline under the rough model.
	est := EstimateBaseline(y, model, cfg.BaselineBuffer, cfg.BaselineSamples)
	r.Baseline = fitBaseline(x, est.Values, rough, cfg.BaselineDegree)
	base := r.Baseline.EvalAll(x)
	net := make([]float64, len(y))
	floats.SubTo(net, y, base)

	// Pass 2: refined gaussians on the baseline-subtracted counts.
	type pair struct{ rough, refined fit.Gaussian }
	var kept []pair
	centers := make([]float64, len(rough))
	for i, g := range rough {
		centers[i] = g.Center
	}
	for i, sp := range partition(centers, r.Left, r.Right) {
		a, b := sp.lo-r.Left, sp.hi-r.Left+1
		if b-a < minFitChannels {
			continue
		}
		g, _, err := fit.FitGaussian(x[a:b], net[a:b], nil, rough[i], opts...)
		if err != nil || !g.Valid() || !r.Contains(g.Center) {
			continue
		}
		kept = append(kept, pair{rough: rough[i], refined: g})
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].refined.Center < kept[j].refined.Center })
	uniq := kept[:0]
	for _, k := range kept {
		if n := len(uniq); n > 0 && k.refined.Center-uniq[n-1].refined.Center < sameCenter {
			continue
		}
		uniq = append(uniq, k)
	}
	r.Rejected = len(seeds) - len(uniq)
	if len(uniq) == 0 {
		r.clearFit()
		return ErrNoPeaks
	}

	// Metrics over each peak's share of the ROI.
	centers = centers[:0]
	for _, k := range uniq {
		centers = append(centers, k.refined.Center)
	}
	r.Peaks = make([]Peak, 0, len(uniq))
	r.FullFit = slices.Clone(base)
	for i, sp := range partition(centers, r.Left, r.Right) {
		a, b := sp.lo-r.Left, sp.hi-r.Left+1
		r.Peaks = append(r.Peaks, newPeak(uniq[i].rough, uniq[i].refined, x[a:b], y[a:b], base[a:b], cfg.BaselineSamples))
		floats.Add(r.FullFit, uniq[i].refined.EvalAll(x))
	}
	r.Seeds = centers
	return nil
}

func (r *ROI) clearFit() {
	r.Peaks = nil
	r.FullFit = nil
	r.Baseline = fit.Polynomial{}
	r.IntersectsNeighbor = false
}

// cleanSeeds returns the sorted seeds inside the ROI, falling back to the
// highest channel when none is usable.
func (r *ROI) cleanSeeds(y []float64) []float64 {
	var out []float64
	for _, s := range r.Seeds {
		if r.Contains(s) && !math.IsNaN(s) {
			out = append(out, s)
		}
	}
	sort.Float64s(out)
	out = slices.CompactFunc(out, func(a, b float64) bool { return math.Abs(b-a) < sameCenter })
	if len(out) == 0 && len(y) > 0 {
		out = []float64{float64(r.Left + floats.MaxIdx(y))}
	}
	return out
}

// fitBaseline fits the bridged residual with a polynomial centered on the
// mean rough center. A failed fit falls back to the residual mean.
func fitBaseline(x, values []float64, rough []fit.Gaussian, degree int) fit.Polynomial {
	var offset float64
	for _, g := range rough {
		offset += g.Center
	}
	offset /= float64(len(rough))

	degree = min(degree, len(x)-1)
	res, err := fit.FitPolynomial(x, values, nil, fit.PolynomialBounds(degree), offset)
	if err != nil {
		return fit.Polynomial{Coeffs: []float64{stat.Mean(values, nil)}, Offset: offset}
	}
	return res.Poly
}

type span struct {
	seed   float64
	lo, hi int
}

// partition splits [left, right] at the midpoints between sorted centers.
func partition(centers []float64, left, right int) []span {
	out := make([]span, len(centers))
	lo := left
	for i, c := range centers {
		hi := right
		if i+1 < len(centers) {
			hi = int(math.Floor((c + centers[i+1]) / 2))
			hi = max(min(hi, right), lo)
		}
		out[i] = span{seed: c, lo: lo, hi: hi}
		lo = min(hi+1, right)
	}
	return out
}

// markIntersections flags peaks whose flank of width flank*FWHM reaches
// into a sibling ROI. rois must be sorted by Left.
func markIntersections(rois []*ROI, flank float64) {
	for i, r := range rois {
		r.IntersectsNeighbor = false
		for j := range r.Peaks {
			p := &r.Peaks[j]
			reach := flank * p.GaussianFWHM
			lo, hi := p.Center-reach, p.Center+reach
			p.Intersects = (i > 0 && lo <= float64(rois[i-1].Right)) ||
				(i+1 < len(rois) && hi >= float64(rois[i+1].Left))
			if p.Intersects {
				r.IntersectsNeighbor = true
			}
		}
	}
}
