package peak

import "math"

const (
	defaultMinWidth        = 3
	defaultRegionWidth     = 4.0
	defaultBaselineDegree  = 5
	defaultBaselineBuffer  = 5
	defaultBaselineSamples = 5
	defaultMinProminence   = 1.0
	defaultFlankWidth      = 2.0
	defaultMaxEvaluations  = 20000
)

// Settings holds the peak search and fit parameters.
type Settings struct {
	// MinWidth is the number of channels a candidate must rise over on
	// each side.
	MinWidth int `yaml:"min_width" json:"min_width"`
	// RegionWidth sizes a new ROI as center +- RegionWidth*FWHM.
	RegionWidth float64 `yaml:"region_width" json:"region_width"`
	// BaselineDegree is the polynomial degree of the ROI baseline.
	BaselineDegree int `yaml:"baseline_degree" json:"baseline_degree"`
	// BaselineBuffer is the gap between the consumed span and the flank
	// samples that anchor the baseline bridge.
	BaselineBuffer int `yaml:"baseline_buffer" json:"baseline_buffer"`
	// BaselineSamples is the number of flank samples averaged per side.
	BaselineSamples int `yaml:"baseline_samples" json:"baseline_samples"`
	// MinProminence is the minimum rise of a region candidate over the
	// samples MinWidth channels away.
	MinProminence float64 `yaml:"min_prominence" json:"min_prominence"`
	// FlankWidth is the multiple of FWHM on each side of a peak checked
	// against neighboring ROIs.
	FlankWidth float64 `yaml:"flank_width" json:"flank_width"`
	// MaxEvaluations limits each gaussian fit.
	MaxEvaluations int `yaml:"max_evaluations" json:"max_evaluations"`
}

// DefaultSettings returns the default search and fit parameters.
func DefaultSettings() Settings {
	return Settings{
		MinWidth:        defaultMinWidth,
		RegionWidth:     defaultRegionWidth,
		BaselineDegree:  defaultBaselineDegree,
		BaselineBuffer:  defaultBaselineBuffer,
		BaselineSamples: defaultBaselineSamples,
		MinProminence:   defaultMinProminence,
		FlankWidth:      defaultFlankWidth,
		MaxEvaluations:  defaultMaxEvaluations,
	}
}

// normalize replaces out-of-range fields with defaults.
func (s Settings) normalize() Settings {
	d := DefaultSettings()
	if s.MinWidth < 1 {
		s.MinWidth = d.MinWidth
	}
	if !(s.RegionWidth > 0) || math.IsInf(s.RegionWidth, 0) {
		s.RegionWidth = d.RegionWidth
	}
	if s.BaselineDegree < 0 {
		s.BaselineDegree = d.BaselineDegree
	}
	if s.BaselineBuffer < 0 {
		s.BaselineBuffer = d.BaselineBuffer
	}
	if s.BaselineSamples < 1 {
		s.BaselineSamples = d.BaselineSamples
	}
	if s.MinProminence < 0 || math.IsNaN(s.MinProminence) {
		s.MinProminence = d.MinProminence
	}
	if !(s.FlankWidth >= 0) {
		s.FlankWidth = d.FlankWidth
	}
	if s.MaxEvaluations <= 0 {
		s.MaxEvaluations = d.MaxEvaluations
	}
	return s
}
