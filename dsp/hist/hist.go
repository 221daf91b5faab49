package hist

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
)

// Errors returned by histogram construction.
var (
	ErrEmpty          = errors.New("hist: empty histogram")
	ErrLengthMismatch = errors.New("hist: channel and count length mismatch")
	ErrNonContiguous  = errors.New("hist: channels are not contiguous")
	ErrInvalidSigma   = errors.New("hist: smoothing sigma must be > 0")
)

// Option configures histogram construction.
type Option func(*config)

type config struct {
	start       int
	bits        int
	smoothSigma float64
}

// WithStart sets the channel of the first count. Default 0.
func WithStart(channel int) Option {
	return func(cfg *config) {
		if channel >= 0 {
			cfg.start = channel
		}
	}
}

// WithBits sets the resolution context (channels live in [0, 2^bits)).
// When unset, the smallest bit depth that covers the data is used.
func WithBits(b int) Option {
	return func(cfg *config) {
		if b > 0 && b < 32 {
			cfg.bits = b
		}
	}
}

// WithSmoothing requests a smoothed copy using a gaussian kernel with the
// given standard deviation in channels.
func WithSmoothing(sigma float64) Option {
	return func(cfg *config) {
		cfg.smoothSigma = sigma
	}
}

// Samples is an immutable channel-indexed histogram.
type Samples struct {
	start    int
	bits     int
	counts   []float64
	smoothed []float64
	deriv    []float64
}

// New builds Samples from counts. The slice is copied.
func New(counts []float64, opts ...Option) (*Samples, error) {
	if len(counts) == 0 {
		return nil, ErrEmpty
	}

	var cfg config
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	s := &Samples{
		start:  cfg.start,
		bits:   cfg.bits,
		counts: append([]float64(nil), counts...),
	}
	if s.bits == 0 {
		s.bits = bitsFor(s.start + len(counts))
	}

	if cfg.smoothSigma != 0 {
		if cfg.smoothSigma < 0 || math.IsNaN(cfg.smoothSigma) {
			return nil, ErrInvalidSigma
		}
		sm, err := Smooth(s.counts, cfg.smoothSigma)
		if err != nil {
			return nil, fmt.Errorf("hist: smoothing failed: %w", err)
		}
		s.smoothed = sm
		s.deriv = Derivative(sm)
	}

	return s, nil
}

// FromPairs builds Samples from explicit (channel, count) pairs. Channels
// must be contiguous and ascending.
func FromPairs(channels []int, counts []float64, opts ...Option) (*Samples, error) {
	if len(channels) != len(counts) {
		return nil, fmt.Errorf("%w: %d channels, %d counts", ErrLengthMismatch, len(channels), len(counts))
	}
	if len(channels) == 0 {
		return nil, ErrEmpty
	}
	for i := 1; i < len(channels); i++ {
		if channels[i] != channels[i-1]+1 {
			return nil, fmt.Errorf("%w: channel %d follows %d", ErrNonContiguous, channels[i], channels[i-1])
		}
	}
	opts = append([]Option{WithStart(channels[0])}, opts...)
	return New(counts, opts...)
}

func bitsFor(n int) int {
	if n <= 1 {
		return 1
	}
	return bits.Len(uint(n - 1))
}

// Len returns the number of channels.
func (s *Samples) Len() int { return len(s.counts) }

// Start returns the first channel.
func (s *Samples) Start() int { return s.start }

// End returns the last channel (inclusive).
func (s *Samples) End() int { return s.start + len(s.counts) - 1 }

// Bits returns the resolution context.
func (s *Samples) Bits() int { return s.bits }

// Contains reports whether channel lies within the histogram.
func (s *Samples) Contains(channel int) bool {
	return channel >= s.start && channel <= s.End()
}

// Clamp limits channel to the histogram range.
func (s *Samples) Clamp(channel int) int {
	if channel < s.start {
		return s.start
	}
	if end := s.End(); channel > end {
		return end
	}
	return channel
}

// At returns the count at channel, or 0 outside the histogram.
func (s *Samples) At(channel int) float64 {
	if !s.Contains(channel) {
		return 0
	}
	return s.counts[channel-s.start]
}

// SmoothedAt returns the smoothed count at channel, falling back to the raw
// count when no smoothed copy exists.
func (s *Samples) SmoothedAt(channel int) float64 {
	if s.smoothed == nil {
		return s.At(channel)
	}
	if !s.Contains(channel) {
		return 0
	}
	return s.smoothed[channel-s.start]
}

// Counts returns a copy of the raw counts.
func (s *Samples) Counts() []float64 {
	return append([]float64(nil), s.counts...)
}

// HasSmoothed reports whether a smoothed copy was computed.
func (s *Samples) HasSmoothed() bool { return s.smoothed != nil }

// Smoothed returns a copy of the smoothed counts, or nil.
func (s *Samples) Smoothed() []float64 {
	if s.smoothed == nil {
		return nil
	}
	return append([]float64(nil), s.smoothed...)
}

// Derivative returns a copy of the smoothed derivative, or nil.
func (s *Samples) Derivative() []float64 {
	if s.deriv == nil {
		return nil
	}
	return append([]float64(nil), s.deriv...)
}

// Range returns channel numbers and counts for the inclusive channel span
// [lo, hi], clamped to the histogram. Both slices are fresh copies.
func (s *Samples) Range(lo, hi int) (x, y []float64) {
	lo = s.Clamp(lo)
	hi = s.Clamp(hi)
	if hi < lo {
		return nil, nil
	}
	n := hi - lo + 1
	x = make([]float64, n)
	y = make([]float64, n)
	for i := 0; i < n; i++ {
		x[i] = float64(lo + i)
		y[i] = s.counts[lo-s.start+i]
	}
	return x, y
}

// Total returns the sum of all counts.
func (s *Samples) Total() float64 {
	var sum float64
	for _, c := range s.counts {
		sum += c
	}
	return sum
}
