package peak

import (
	"context"
	"errors"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/cwbudde/algo-gamma/dsp/hist"
	"github.com/cwbudde/algo-gamma/measure/calib"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

// centerTolerance is the distance within which a requested center matches
// a fitted one.
const centerTolerance = 1e-6

// Option configures an [Engine].
type Option func(*engineConfig)

type engineConfig struct {
	logger *zap.Logger
}

// WithLogger sets the engine logger. Default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(cfg *engineConfig) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// Engine applies peak searches and ROI edits to a [State] it owns.
// An Engine is not safe for concurrent use.
type Engine struct {
	state State
	log   *zap.Logger
}

// NewEngine returns an engine operating on state. The engine takes
// ownership; pass [State.Clone] to keep the original.
func NewEngine(state State, opts ...Option) *Engine {
	cfg := engineConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	state.Settings = state.Settings.normalize()
	return &Engine{state: state, log: cfg.logger}
}

// State returns a snapshot of the current state.
func (e *Engine) State() State { return e.state.Clone() }

// ROIIDs returns the IDs of all ROIs in channel order.
func (e *Engine) ROIIDs() []int {
	ids := make([]int, len(e.state.ROIs))
	for i, r := range e.state.ROIs {
		ids[i] = r.ID
	}
	return ids
}

// IsDropped reports whether err means a ROI was removed because its fit
// kept no peak.
func IsDropped(err error) bool {
	return errors.Is(err, ErrNoPeaks) || errors.Is(err, ErrTooNarrow)
}

// FindRegions replaces all ROIs with unfitted regions built around the
// peak candidates of the samples. The smoothed copy is searched when
// present. Each region spans RegionWidth times the candidate's FWHM on
// both sides; overlapping regions merge. It returns the new ROI IDs.
func (e *Engine) FindRegions() ([]int, error) {
	s := e.state.Samples
	if s == nil {
		return nil, ErrNoSamples
	}
	cfg := e.state.Settings
	y, slope := s.Smoothed(), s.Derivative()
	if y == nil {
		y = s.Counts()
		slope = hist.Derivative(y)
	}

	var rois []*ROI
	for _, q := range Find(y, cfg.MinWidth) {
		if prominence(y, q, cfg.MinWidth) < cfg.MinProminence {
			continue
		}
		half := cfg.RegionWidth * estimateFWHM(y, slope, q)
		lo := max(0, int(math.Round(float64(q)-half)))
		hi := min(len(y)-1, int(math.Round(float64(q)+half)))
		rois = append(rois, &ROI{
			Left:  s.Start() + lo,
			Right: s.Start() + hi,
			Seeds: []float64{float64(s.Start() + q)},
		})
	}
	rois = mergeOverlapping(rois)
	for _, r := range rois {
		r.ID = e.newID()
	}
	e.state.ROIs = rois
	e.log.Info("regions found", zap.Int("rois", len(rois)))
	return e.ROIIDs(), nil
}

// FindPeaks runs [Engine.FindRegions] and fits every region. ROIs whose fit
// keeps no peak are removed. ctx is checked between ROIs.
func (e *Engine) FindPeaks(ctx context.Context) error {
	ids, err := e.FindRegions()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.FitROI(id); err != nil && !IsDropped(err) {
			return err
		}
	}
	return nil
}

// FitROI fits one ROI from its current seeds. A ROI that keeps no peak is
// removed and the error satisfies [IsDropped].
func (e *Engine) FitROI(id int) error {
	i := e.index(id)
	if i < 0 {
		return ErrUnknownROI
	}
	return e.fitAt(i)
}

// Refit fits one ROI again starting from its current peak centers.
func (e *Engine) Refit(id int) error {
	i := e.index(id)
	if i < 0 {
		return ErrUnknownROI
	}
	r := e.state.ROIs[i]
	if len(r.Peaks) > 0 {
		r.Seeds = r.Centers()
	}
	return e.fitAt(i)
}

// AddPeak adds a peak at the highest channel of [left, right]. When that
// channel lies in an existing ROI the peak joins it; otherwise a new ROI
// covering the range, trimmed against its neighbors, is created. It
// returns the ID of the ROI that was fit.
func (e *Engine) AddPeak(left, right int) (int, error) {
	s := e.state.Samples
	if s == nil {
		return 0, ErrNoSamples
	}
	if left > right {
		left, right = right, left
	}
	if right < s.Start() || left > s.End() {
		return 0, ErrEmptyRange
	}
	left, right = s.Clamp(left), s.Clamp(right)
	_, y := s.Range(left, right)
	seed := float64(left + floats.MaxIdx(y))

	for i, r := range e.state.ROIs {
		if r.Contains(seed) {
			r.Seeds = append(r.Centers(), seed)
			return r.ID, e.fitAt(i)
		}
	}

	for _, r := range e.state.ROIs {
		if float64(r.Right) < seed && r.Right >= left {
			left = r.Right + 1
		}
		if float64(r.Left) > seed && r.Left <= right {
			right = r.Left - 1
		}
	}
	r := &ROI{ID: e.newID(), Left: left, Right: right, Seeds: []float64{seed}}
	i := sort.Search(len(e.state.ROIs), func(k int) bool { return e.state.ROIs[k].Left > left })
	e.state.ROIs = slices.Insert(e.state.ROIs, i, r)
	return r.ID, e.fitAt(i)
}

// AdjustROI moves the bounds of a ROI, clamped to the samples and to its
// neighbors, and fits it again with the peaks that remain inside. Bounds
// that collapse delete the ROI.
func (e *Engine) AdjustROI(id, left, right int) error {
	i := e.index(id)
	if i < 0 {
		return ErrUnknownROI
	}
	s := e.state.Samples
	if s == nil {
		return ErrNoSamples
	}
	if left > right {
		left, right = right, left
	}
	left, right = s.Clamp(left), s.Clamp(right)
	if i > 0 {
		left = max(left, e.state.ROIs[i-1].Right+1)
	}
	if i+1 < len(e.state.ROIs) {
		right = min(right, e.state.ROIs[i+1].Left-1)
	}

	r := e.state.ROIs[i]
	if left > right {
		e.log.Debug("roi collapsed", zap.Int("roi", r.ID))
		e.removeAt(i)
		e.refresh()
		return nil
	}
	r.Left, r.Right = left, right
	var seeds []float64
	for _, c := range r.Centers() {
		if r.Contains(c) {
			seeds = append(seeds, c)
		}
	}
	r.Seeds = seeds
	return e.fitAt(i)
}

// RemovePeaks removes every peak whose center matches one of centers and
// refits the ROIs that lost a peak. A ROI left without peaks is deleted.
// Centers that match no peak are ignored. It reports whether anything
// changed.
func (e *Engine) RemovePeaks(centers []float64) bool {
	changed := false
	for _, id := range e.ROIIDs() {
		i := e.index(id)
		r := e.state.ROIs[i]
		kept := r.Peaks[:0:0]
		for _, p := range r.Peaks {
			if !matchesAny(p.Center, centers) {
				kept = append(kept, p)
			}
		}
		if len(kept) == len(r.Peaks) {
			continue
		}
		changed = true
		if len(kept) == 0 {
			e.log.Debug("roi emptied", zap.Int("roi", r.ID))
			e.removeAt(i)
			continue
		}
		r.Peaks = kept
		r.Seeds = r.Centers()
		if err := e.fitAt(i); err != nil && !IsDropped(err) {
			e.log.Debug("refit after removal failed", zap.Int("roi", id), zap.Error(err))
		}
	}
	if changed {
		e.refresh()
	}
	return changed
}

// SetCalibration replaces the energy and FWHM curves and recomputes the
// calibrated fields of every peak.
func (e *Engine) SetCalibration(energy, fwhm calib.Curve) {
	e.state.Energy = energy.Clone()
	e.state.FWHM = fwhm.Clone()
	for _, r := range e.state.ROIs {
		e.calibrate(r)
	}
}

func (e *Engine) fitAt(i int) error {
	r := e.state.ROIs[i]
	start := time.Now()
	err := r.Fit(e.state.Samples, e.state.Settings)
	if err != nil {
		e.log.Debug("roi fit dropped",
			zap.Int("roi", r.ID),
			zap.Int("left", r.Left),
			zap.Int("right", r.Right),
			zap.Error(err))
		if IsDropped(err) {
			e.removeAt(i)
			e.refresh()
		}
		return err
	}
	e.calibrate(r)
	e.refresh()
	e.log.Debug("roi fit",
		zap.Int("roi", r.ID),
		zap.Int("peaks", len(r.Peaks)),
		zap.Int("rejected", r.Rejected),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func (e *Engine) calibrate(r *ROI) {
	bits := 0
	if e.state.Samples != nil {
		bits = e.state.Samples.Bits()
	}
	for j := range r.Peaks {
		r.Peaks[j].calibrate(e.state.Energy, e.state.FWHM, bits)
	}
}

func (e *Engine) refresh() {
	markIntersections(e.state.ROIs, e.state.Settings.FlankWidth)
}

func (e *Engine) index(id int) int {
	for i, r := range e.state.ROIs {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func (e *Engine) removeAt(i int) {
	e.state.ROIs = slices.Delete(e.state.ROIs, i, i+1)
}

func (e *Engine) newID() int {
	e.state.nextID++
	return e.state.nextID
}

func matchesAny(v float64, centers []float64) bool {
	for _, c := range centers {
		if math.Abs(v-c) <= centerTolerance {
			return true
		}
	}
	return false
}

// estimateFWHM measures the width of the peak at q at half its height
// above the higher of the two points where the descent on each side ends.
// The descent ends where slope, the derivative of y, changes sign.
func estimateFWHM(y, slope []float64, q int) float64 {
	lo, hi := q, q
	for lo > 0 && slope[lo-1] > 0 {
		lo--
	}
	for hi < len(y)-1 && slope[hi+1] < 0 {
		hi++
	}
	floor := max(y[lo], y[hi])
	half := floor + (y[q]-floor)/2

	l, r := q, q
	for l > lo && y[l-1] > half {
		l--
	}
	for r < hi && y[r+1] > half {
		r++
	}
	xl, xr := float64(l), float64(r)
	if l > lo {
		xl = float64(l-1) + (half-y[l-1])/(y[l]-y[l-1])
	}
	if r < hi {
		xr = float64(r) + (y[r]-half)/(y[r]-y[r+1])
	}
	return max(xr-xl, 1)
}

// mergeOverlapping sorts rois by Left and merges every pair whose bounds
// overlap into one multi-peak ROI.
func mergeOverlapping(rois []*ROI) []*ROI {
	sort.SliceStable(rois, func(i, j int) bool { return rois[i].Left < rois[j].Left })
	var out []*ROI
	for _, r := range rois {
		if n := len(out); n > 0 && r.Left <= out[n-1].Right {
			last := out[n-1]
			last.Right = max(last.Right, r.Right)
			last.Seeds = append(last.Seeds, r.Seeds...)
			continue
		}
		out = append(out, r)
	}
	for _, r := range out {
		sort.Float64s(r.Seeds)
	}
	return out
}
