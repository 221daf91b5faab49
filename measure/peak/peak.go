package peak

import (
	"math"

	"github.com/cwbudde/algo-gamma/dsp/fit"
	"github.com/cwbudde/algo-gamma/measure/calib"
	"github.com/cwbudde/algo-gamma/stats/counts"
	"gonum.org/v1/gonum/floats"
)

// sum4FWHMScale converts net area over net height into a gaussian FWHM.
var sum4FWHMScale = 2 * math.Sqrt(math.Ln2/math.Pi)

// Peak is one fitted peak.
type Peak struct {
	// Center is the refined gaussian center in channels.
	Center float64 `json:"center"`
	// Energy is Center through the energy calibration, or Center when
	// none is set.
	Energy float64 `json:"energy"`

	Rough   fit.Gaussian `json:"rough"`
	Refined fit.Gaussian `json:"refined"`

	GaussianFWHM float64 `json:"gaussian_fwhm"`
	GaussianArea float64 `json:"gaussian_area"`

	// Left and Right delimit the channels summed for the SUM4 metrics.
	Left  int `json:"left"`
	Right int `json:"right"`

	SumArea            float64 `json:"sum_area"`
	SumAreaUncertainty float64 `json:"sum_area_uncertainty"`
	SumFWHM            float64 `json:"sum_fwhm"`
	SumCentroid        float64 `json:"sum_centroid"`
	// Quality is SumArea / SumAreaUncertainty.
	Quality float64 `json:"quality"`

	// EnergyFWHM is GaussianFWHM in energy units. It is zero without an
	// energy calibration.
	EnergyFWHM float64 `json:"energy_fwhm"`
	// ExpectedFWHM is the resolution calibration at Energy. It is zero
	// without a FWHM calibration.
	ExpectedFWHM float64 `json:"expected_fwhm"`

	// Intersects is set when the peak's flank reaches into a sibling ROI.
	Intersects bool `json:"intersects"`
	// Selected is a presentation flag and does not affect fitting.
	Selected bool `json:"selected"`
}

// newPeak derives the peak metrics. x, y and base cover the peak's SUM4
// span; m is the number of flank samples per side behind the baseline.
func newPeak(rough, refined fit.Gaussian, x, y, base []float64, m int) Peak {
	p := Peak{
		Center:       refined.Center,
		Energy:       refined.Center,
		Rough:        rough,
		Refined:      refined,
		GaussianFWHM: refined.FWHM(),
		GaussianArea: refined.Area(),
	}
	if len(x) == 0 {
		return p
	}
	p.Left, p.Right = int(x[0]), int(x[len(x)-1])

	gross := counts.Total(y)
	background := counts.Total(base)
	net := make([]float64, len(y))
	floats.SubTo(net, y, base)

	p.SumArea = gross - background
	if m < 1 {
		m = 1
	}
	if v := gross + background*float64(len(y))/float64(2*m); v > 0 {
		p.SumAreaUncertainty = math.Sqrt(v)
		p.Quality = p.SumArea / p.SumAreaUncertainty
	}
	if h := floats.Max(net); h > 0 {
		p.SumFWHM = p.SumArea / h * sum4FWHMScale
	}
	p.SumCentroid = counts.Centroid(p.Left, net)
	return p
}

// calibrate sets the energy fields from the given curves. bits is the
// resolution of the histogram the peak was fit on.
func (p *Peak) calibrate(energy, fwhm calib.Curve, bits int) {
	p.Energy = energy.TransformAt(p.Center, bits)
	p.EnergyFWHM = 0
	p.ExpectedFWHM = 0
	if energy.Valid() {
		half := p.GaussianFWHM / 2
		p.EnergyFWHM = math.Abs(energy.TransformAt(p.Center+half, bits) - energy.TransformAt(p.Center-half, bits))
	}
	if fwhm.Valid() {
		p.ExpectedFWHM = fwhm.Transform(p.Energy)
	}
}
