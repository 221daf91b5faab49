// Package counts computes summary statistics of histogram count slices,
// treating each count as the weight of its channel.
package counts

import "math"

// Stats holds count-weighted channel statistics.
type Stats struct {
	Length   int
	Total    float64 // sum of counts
	Centroid float64 // count-weighted mean channel
	Variance float64 // count-weighted channel variance
	Sigma    float64 // sqrt(Variance)
	Max      float64
	MaxPos   int // absolute channel of Max
	Min      float64
	MinPos   int // absolute channel of Min
}

// Calculate computes statistics over counts whose first element sits at
// channel offset. Negative counts contribute to Max/Min but carry no weight
// in the centroid moments.
//
// The weighted moments use West's incremental update so long spectra with
// large totals do not lose precision.
func Calculate(offset int, counts []float64) Stats {
	n := len(counts)
	if n == 0 {
		return Stats{}
	}

	var (
		wSum   float64
		mean   float64
		s      float64
		total  float64
		maxVal = counts[0]
		maxPos int
		minVal = counts[0]
		minPos int
	)

	for i, c := range counts {
		total += c

		if c > maxVal {
			maxVal = c
			maxPos = i
		}
		if c < minVal {
			minVal = c
			minPos = i
		}

		if c <= 0 {
			continue
		}
		x := float64(offset + i)
		wSum += c
		delta := x - mean
		r := delta * c / wSum
		mean += r
		s += (wSum - c) * delta * r
	}

	st := Stats{
		Length: n,
		Total:  total,
		Max:    maxVal,
		MaxPos: offset + maxPos,
		Min:    minVal,
		MinPos: offset + minPos,
	}
	if wSum > 0 {
		st.Centroid = mean
		st.Variance = s / wSum
		st.Sigma = math.Sqrt(st.Variance)
	}

	return st
}

// Centroid returns the count-weighted mean channel of counts starting at
// channel offset, or NaN when no count is positive.
func Centroid(offset int, counts []float64) float64 {
	var num, den float64
	for i, c := range counts {
		if c <= 0 {
			continue
		}
		num += c * float64(offset+i)
		den += c
	}
	if den == 0 {
		return math.NaN()
	}
	return num / den
}

// Total returns the sum of counts using Kahan summation.
func Total(counts []float64) float64 {
	var sum, c float64
	for _, x := range counts {
		y := x - c
		t := sum + y
		c = (t - sum) - y
		sum = t
	}
	return sum
}
