package fit

import "errors"

// Errors returned by the solvers.
var (
	ErrLengthMismatch = errors.New("fit: input length mismatch")
	ErrNoCoefficients = errors.New("fit: no coefficients")
	ErrInvalidBounds  = errors.New("fit: invalid coefficient bounds")
	ErrTooFewPoints   = errors.New("fit: fewer points than free parameters")
	ErrDegenerate     = errors.New("fit: degenerate fit")
)
