// Package peak finds, fits and tracks peaks in one-dimensional count
// histograms such as gamma-ray energy spectra.
//
// Candidates come from a strict monotonicity test ([Find]). Every accepted
// candidate grows into a region of interest ([ROI]) sized from the
// candidate's width; overlapping regions merge into one multi-peak ROI
// sharing a single baseline. Each ROI is fit in two passes: a rough
// gaussian per peak on the raw counts, a polynomial baseline bridged under
// the consumed span ([EstimateBaseline]), then a refined gaussian per peak
// on the baseline-subtracted counts. Every [Peak] carries two independent
// width and area estimates: the refined gaussian model and a
// background-subtracted summation (SUM4).
//
// [Engine] owns a [State] and applies whole-spectrum and per-ROI edits.
// A State is a value snapshot: [State.Clone] deep-copies ROIs and shares
// the immutable histogram samples.
package peak
