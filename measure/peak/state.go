package peak

import (
	"sort"

	"github.com/cwbudde/algo-gamma/dsp/hist"
	"github.com/cwbudde/algo-gamma/measure/calib"
)

// State is a fit snapshot: the samples, the ROIs found or edited on them,
// and the calibrations applied to their peaks. Samples are shared between
// clones and never written.
type State struct {
	Samples  *hist.Samples
	Settings Settings
	Energy   calib.Curve
	FWHM     calib.Curve
	// ROIs are sorted by Left and never overlap.
	ROIs []*ROI

	nextID int
}

// NewState returns an empty state for s.
func NewState(s *hist.Samples, settings Settings) State {
	return State{Samples: s, Settings: settings.normalize()}
}

// Clone returns a copy that shares the samples and deep-copies everything
// else.
func (st State) Clone() State {
	c := st
	c.Energy = st.Energy.Clone()
	c.FWHM = st.FWHM.Clone()
	if st.ROIs != nil {
		c.ROIs = make([]*ROI, len(st.ROIs))
		for i, r := range st.ROIs {
			c.ROIs[i] = r.Clone()
		}
	}
	return c
}

// ROI returns the ROI with the given ID.
func (st State) ROI(id int) (*ROI, bool) {
	for _, r := range st.ROIs {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}

// Peaks returns every peak ordered by center.
func (st State) Peaks() []Peak {
	var out []Peak
	for _, r := range st.ROIs {
		out = append(out, r.Peaks...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Center < out[j].Center })
	return out
}

// PeakCount returns the number of peaks over all ROIs.
func (st State) PeakCount() int {
	n := 0
	for _, r := range st.ROIs {
		n += len(r.Peaks)
	}
	return n
}
