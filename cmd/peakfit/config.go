package main

import (
	"fmt"
	"os"

	"github.com/cwbudde/algo-gamma/measure/calib"
	"github.com/cwbudde/algo-gamma/measure/peak"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Config is the peakfit configuration file.
type Config struct {
	// Bits is the histogram resolution. Zero derives it from the length.
	Bits int `yaml:"bits"`
	// Smoothing is the gaussian sigma of the smoothed copy used for the
	// peak search. Zero searches the raw counts.
	Smoothing   float64           `yaml:"smoothing"`
	Peak        peak.Settings     `yaml:"peak"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Log         LogConfig         `yaml:"log"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// CalibrationConfig controls the energy and resolution fits.
type CalibrationConfig struct {
	// Initial maps channels to approximate energies for line matching.
	Initial []float64 `yaml:"initial"`
	// Degree is the energy polynomial degree.
	Degree int `yaml:"degree"`
	// FWHMDegree is the degree of the sqrt-polynomial resolution curve.
	// Zero skips the resolution fit.
	FWHMDegree int `yaml:"fwhm_degree"`
	// Tolerance is the largest distance, in energy units, between a peak
	// and the reference line it is matched to.
	Tolerance float64 `yaml:"tolerance"`
	// MinRSquared culls outliers until the energy fit reaches it.
	MinRSquared float64           `yaml:"min_r_squared"`
	Units       string            `yaml:"units"`
	Lines       []calib.Radiation `yaml:"lines"`
}

// LogConfig selects the logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// MetricsConfig enables the prometheus endpoint.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// DefaultConfig returns the configuration used without a config file.
func DefaultConfig() Config {
	return Config{
		Peak: peak.DefaultSettings(),
		Calibration: CalibrationConfig{
			Degree:      1,
			FWHMDegree:  2,
			Tolerance:   3,
			MinRSquared: 0.999,
			Units:       "keV",
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(filename string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(filename)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// saveCurves writes curves as YAML keyed by role.
func saveCurves(filename string, curves map[string]calib.Curve) error {
	data, err := yaml.Marshal(curves)
	if err != nil {
		return fmt.Errorf("failed to encode curves: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write curves: %w", err)
	}
	return nil
}

func newLogger(cfg LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		lvl, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zc.Level = lvl
	}
	return zc.Build()
}
