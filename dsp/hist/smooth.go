package hist

import (
	"errors"
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-vecmath"
)

var errEmptyInput = errors.New("hist: empty input")

// GaussianKernel returns a normalized gaussian kernel of length
// 2*ceil(4*sigma)+1.
func GaussianKernel(sigma float64) ([]float64, error) {
	if sigma <= 0 || math.IsNaN(sigma) || math.IsInf(sigma, 0) {
		return nil, ErrInvalidSigma
	}
	half := int(math.Ceil(4 * sigma))
	kernel := make([]float64, 2*half+1)

	var sum float64
	for i := range kernel {
		d := float64(i-half) / sigma
		kernel[i] = math.Exp(-0.5 * d * d)
		sum += kernel[i]
	}
	vecmath.ScaleBlock(kernel, kernel, 1/sum)
	return kernel, nil
}

// Smooth convolves counts with a gaussian kernel of the given sigma and
// returns a result of the same length. Edges are padded by replicating the
// outermost counts so the smoothed tails do not droop towards zero.
//
// The convolution runs in the frequency domain:
//  1. Pad the input by the kernel half-width on both sides
//  2. Zero-pad input and kernel to a power-of-two FFT size
//  3. Multiply spectra and transform back
//  4. Keep the centered window aligned with the original channels
func Smooth(counts []float64, sigma float64) ([]float64, error) {
	if len(counts) == 0 {
		return nil, errEmptyInput
	}
	kernel, err := GaussianKernel(sigma)
	if err != nil {
		return nil, err
	}
	half := len(kernel) / 2
	n := len(counts)

	paddedLen := n + 2*half
	fullLen := paddedLen + len(kernel) - 1
	fftSize := nextPowerOf2(fullLen)

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("hist: failed to create FFT plan: %w", err)
	}

	signal := make([]complex128, fftSize)
	for i := 0; i < paddedLen; i++ {
		j := i - half
		if j < 0 {
			j = 0
		} else if j >= n {
			j = n - 1
		}
		signal[i] = complex(counts[j], 0)
	}

	kernelPadded := make([]complex128, fftSize)
	for i, v := range kernel {
		kernelPadded[i] = complex(v, 0)
	}

	if err := plan.Forward(signal, signal); err != nil {
		return nil, fmt.Errorf("hist: forward FFT failed: %w", err)
	}
	if err := plan.Forward(kernelPadded, kernelPadded); err != nil {
		return nil, fmt.Errorf("hist: kernel FFT failed: %w", err)
	}
	for i := range signal {
		signal[i] *= kernelPadded[i]
	}
	if err := plan.Inverse(signal, signal); err != nil {
		return nil, fmt.Errorf("hist: inverse FFT failed: %w", err)
	}

	// Channel i sits at padded index i+half and full-convolution index i+2*half.
	out := make([]float64, n)
	for i := range out {
		out[i] = real(signal[i+2*half])
	}
	return out, nil
}

// Derivative returns the central difference of y, with one-sided
// differences at both ends.
func Derivative(y []float64) []float64 {
	n := len(y)
	out := make([]float64, n)
	if n < 2 {
		return out
	}
	out[0] = y[1] - y[0]
	out[n-1] = y[n-1] - y[n-2]
	for i := 1; i < n-1; i++ {
		out[i] = 0.5 * (y[i+1] - y[i-1])
	}
	return out
}

func nextPowerOf2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
