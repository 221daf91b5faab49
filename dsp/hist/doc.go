// Package hist holds one-dimensional count histograms (channel -> count) as
// immutable sample sets.
//
// A [Samples] value is built once per acquisition or load event and never
// written afterwards, so it can be shared read-only between a caller and a
// background fitting job without copying the counts. Accessors that return
// slices hand out copies.
//
// # Smoothing
//
// An optional smoothed copy is computed at construction time by FFT-based
// convolution with a normalized gaussian kernel:
//
//	s, err := hist.New(counts, hist.WithSmoothing(2))
//	sm := s.Smoothed()      // smoothed counts
//	d := s.Derivative()     // central difference of the smoothed counts
//
// The smoothed data is only used for candidate search and width estimates;
// all fits run on the raw counts.
package hist
