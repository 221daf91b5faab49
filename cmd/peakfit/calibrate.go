package main

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/algo-gamma/dsp/fit"
	"github.com/cwbudde/algo-gamma/measure/calib"
	"github.com/cwbudde/algo-gamma/measure/peak"
	"go.uber.org/zap"
)

var errNoInitial = errors.New("calibration.initial must map channels to approximate energies")

type calibration struct {
	Energy  calib.Curve
	FWHM    calib.Curve
	Matched int
	// MaxResidual is the largest |E - curve(channel)| over the kept points.
	MaxResidual float64
}

// calibrate matches peaks to reference lines through the initial curve and
// fits the energy and resolution curves.
func calibrate(peaks []peak.Peak, cfg CalibrationConfig, bits int, log *zap.Logger) (calibration, error) {
	initial := calib.Curve{Coefficients: cfg.Initial, Bits: bits}
	if !initial.Valid() {
		return calibration{}, errNoInitial
	}

	approx := make([]float64, len(peaks))
	for i, p := range peaks {
		approx[i] = initial.Transform(p.Center)
	}
	pairs := calib.MatchLines(approx, cfg.Lines, cfg.Tolerance)
	log.Info("reference lines matched", zap.Int("pairs", len(pairs)), zap.Int("peaks", len(peaks)))

	channels := make([]float64, len(pairs))
	energies := make([]float64, len(pairs))
	for i, pr := range pairs {
		channels[i] = peaks[pr.Observed].Center
		energies[i] = cfg.Lines[pr.Reference].Energy
	}

	energy, keep, err := calib.Cull(channels, energies, fit.PolynomialBounds(cfg.Degree), cfg.MinRSquared,
		calib.WithUnits(cfg.Units), calib.WithBits(bits))
	switch {
	case errors.Is(err, calib.ErrTargetNotMet):
		return calibration{}, fmt.Errorf("energy fit r2=%.6f below %.6f: %w", energy.RSquared, cfg.MinRSquared, err)
	case err != nil:
		return calibration{}, fmt.Errorf("energy fit: %w", err)
	}
	out := calibration{Energy: energy, Matched: len(keep)}

	kx := make([]float64, len(keep))
	ky := make([]float64, len(keep))
	for j, i := range keep {
		kx[j], ky[j] = channels[i], energies[i]
	}
	xs, res := calib.Residuals(energy, kx, ky)
	for j, r := range res {
		out.MaxResidual = math.Max(out.MaxResidual, math.Abs(r))
		log.Debug("energy residual", zap.Float64("channel", xs[j]), zap.Float64("residual", r))
	}

	if cfg.FWHMDegree <= 0 {
		return out, nil
	}
	var e, w []float64
	for _, i := range keep {
		p := peaks[pairs[i].Observed]
		half := p.GaussianFWHM / 2
		e = append(e, energy.Transform(p.Center))
		w = append(w, math.Abs(energy.Transform(p.Center+half)-energy.Transform(p.Center-half)))
	}
	fwhm, err := calib.Fit(e, w, fit.PolynomialBounds(cfg.FWHMDegree),
		calib.WithModel(calib.ModelSqrtPolynomial), calib.WithUnits(cfg.Units))
	if err != nil {
		log.Warn("resolution fit skipped", zap.Error(err))
		return out, nil
	}
	out.FWHM = fwhm
	return out, nil
}
