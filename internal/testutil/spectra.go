package testutil

import (
	"math"
	"math/rand"
)

// GaussianLine describes one synthetic peak. HWHM is the half width at half
// maximum in channels.
type GaussianLine struct {
	Center float64
	Height float64
	HWHM   float64
}

// Area returns the analytic area under the line.
func (g GaussianLine) Area() float64 {
	return g.Height * g.HWHM * math.Sqrt(math.Pi/math.Ln2)
}

// Spectrum builds a noiseless spectrum of length n with the given lines on
// a flat background.
func Spectrum(n int, background float64, lines ...GaussianLine) []float64 {
	out := Flat(background, n)
	for _, l := range lines {
		AddLine(out, l)
	}
	return out
}

// AddLine adds a gaussian line to counts in place.
func AddLine(counts []float64, l GaussianLine) {
	if l.HWHM <= 0 {
		return
	}
	sigma := l.HWHM / math.Sqrt(2*math.Ln2)
	for i := range counts {
		d := (float64(i) - l.Center) / sigma
		counts[i] += l.Height * math.Exp(-0.5*d*d)
	}
}

// Flat generates a constant-valued spectrum.
func Flat(value float64, length int) []float64 {
	out := make([]float64, length)
	for i := range out {
		out[i] = value
	}
	return out
}

// Ramp generates a linear background a + b*i.
func Ramp(a, b float64, length int) []float64 {
	out := make([]float64, length)
	for i := range out {
		out[i] = a + b*float64(i)
	}
	return out
}

// DeterministicNoise adds zero-mean gaussian noise with a standard deviation
// of sqrt(count) to each channel, using a fixed seed for reproducibility.
// Counts are kept non-negative.
func DeterministicNoise(seed int64, counts []float64) []float64 {
	out := make([]float64, len(counts))
	rng := rand.New(rand.NewSource(seed))
	for i, c := range counts {
		v := c + rng.NormFloat64()*math.Sqrt(math.Max(c, 0))
		if v < 0 {
			v = 0
		}
		out[i] = math.Round(v)
	}
	return out
}
