// Package calib fits calibration curves that map histogram channels to a
// physical quantity (energy, resolution) or to the channels of another
// detector (gain matching).
//
// A [Curve] is a value: every fit produces a new one and nothing mutates a
// curve in place, so callers can compare the curve they display against
// the curve they last applied with [Curve.Equal].
//
// Two model kinds are supported:
//
//   - [ModelPolynomial]: y = sum(c[i] * x^i), solved by weighted linear least
//     squares with per-coefficient bounds.
//   - [ModelSqrtPolynomial]: y = sqrt(sum(c[i] * x^i)), the usual shape of a
//     detector FWHM curve, solved by the bounded nonlinear minimizer.
//
// Typical energy calibration:
//
//	curve, err := calib.Fit(centers, energies, fit.PolynomialBounds(1),
//		calib.WithUnits("keV"), calib.WithBits(12))
//	e := curve.Transform(512)
//
// [Curve.Transform] is not assumed to be invertible; [Curve.Inverse] runs a
// numerical search over a caller-supplied channel range.
package calib
