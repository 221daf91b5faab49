// Package fit provides the numerical solvers used by peak fitting and
// calibration: a bounded nonlinear least-squares minimizer, a gaussian
// peak model, and a bounded weighted polynomial least-squares solver.
//
// # Nonlinear fits
//
// [Minimize] fits an arbitrary [Model] to (x, y) data with optional
// per-point sigma. Each [Param] may be pinned or limited to [Min, Max].
// Bounded parameters are mapped through a sine transform so the optimizer
// itself works unconstrained; the search uses gonum's Nelder-Mead method
// with one restart from the first optimum. A call cannot be interrupted.
//
//	res, err := fit.Minimize(x, y, nil, model, []fit.Param{
//		{Value: 10, Min: 0, Max: 100},
//		{Value: 1, Fixed: true},
//	})
//
// [FitGaussian] wraps Minimize for the three-parameter gaussian
// (center, height, half width at half maximum).
//
// # Polynomial fits
//
// [FitPolynomial] solves weighted linear least squares for a polynomial
// described by a list of [CoefficientBound] values. Pinned coefficients
// are moved to the right-hand side; free coefficients that land outside
// their bounds are clamped and pinned, and the system is solved again.
package fit
