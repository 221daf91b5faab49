package main

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/cwbudde/algo-gamma/internal/testutil"
	"github.com/cwbudde/algo-gamma/measure/calib"
	"github.com/cwbudde/algo-gamma/measure/peak"
	"go.uber.org/zap/zaptest"
	"gopkg.in/yaml.v3"
)

func writeSpectrum(t *testing.T, lines ...testutil.GaussianLine) string {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("channel,count\n")
	for i, v := range testutil.Spectrum(4096, 10, lines...) {
		fmt.Fprintf(&buf, "%d,%g\n", i, v)
	}
	path := filepath.Join(t.TempDir(), "spectrum.csv")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunCalibrates(t *testing.T) {
	input := writeSpectrum(t,
		testutil.GaussianLine{Center: 512, Height: 1000, HWHM: 3},
		testutil.GaussianLine{Center: 1024, Height: 800, HWHM: 4},
	)
	out := filepath.Join(t.TempDir(), "curves.yaml")

	cfg := DefaultConfig()
	cfg.Calibration.Initial = []float64{0, 1.17}
	cfg.Calibration.Lines = []calib.Radiation{
		{Kind: calib.RadiationGamma, Energy: 600, Label: "a"},
		{Kind: calib.RadiationGamma, Energy: 1200, Label: "b"},
	}

	var stdout bytes.Buffer
	if err := run(context.Background(), cfg, input, out, &stdout, zaptest.NewLogger(t)); err != nil {
		t.Fatalf("run: %v", err)
	}

	rows := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(rows) != 4 {
		t.Fatalf("expected header plus two peaks, got:\n%s", stdout.String())
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("curves not written: %v", err)
	}
	var curves map[string]calib.Curve
	if err := yaml.Unmarshal(data, &curves); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	energy, ok := curves["energy"]
	if !ok || energy.Units != "keV" || energy.Bits != 12 {
		t.Fatalf("energy curve = %+v", energy)
	}
	if e := energy.Transform(512); math.Abs(e-600) > 0.5 {
		t.Fatalf("E(512) = %v", e)
	}
	if e := energy.Transform(1024); math.Abs(e-1200) > 0.5 {
		t.Fatalf("E(1024) = %v", e)
	}
}

func TestRunWithoutCalibration(t *testing.T) {
	input := writeSpectrum(t, testutil.GaussianLine{Center: 700, Height: 500, HWHM: 3})
	var stdout bytes.Buffer
	if err := run(context.Background(), DefaultConfig(), input, "", &stdout, zaptest.NewLogger(t)); err != nil {
		t.Fatalf("run: %v", err)
	}
	rows := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(rows) != 3 {
		t.Fatalf("expected one peak row:\n%s", stdout.String())
	}
	center, err := strconv.ParseFloat(strings.Fields(rows[2])[1], 64)
	if err != nil || math.Abs(center-700) > 0.5 {
		t.Fatalf("center %q: %v", strings.Fields(rows[2])[1], err)
	}
}

func TestRunMissingInput(t *testing.T) {
	err := run(context.Background(), DefaultConfig(), filepath.Join(t.TempDir(), "none.csv"), "", &bytes.Buffer{}, zaptest.NewLogger(t))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestRunSkipsCalibrationBelowTarget(t *testing.T) {
	input := writeSpectrum(t,
		testutil.GaussianLine{Center: 512, Height: 1000, HWHM: 3},
		testutil.GaussianLine{Center: 1024, Height: 800, HWHM: 4},
		testutil.GaussianLine{Center: 2048, Height: 600, HWHM: 5},
	)
	out := filepath.Join(t.TempDir(), "curves.yaml")

	cfg := DefaultConfig()
	cfg.Calibration.Initial = []float64{0, 1.17}
	cfg.Calibration.Tolerance = 300
	cfg.Calibration.MinRSquared = 0.9999999
	cfg.Calibration.Lines = []calib.Radiation{
		{Energy: 600}, {Energy: 1200}, {Energy: 2600},
	}

	var stdout bytes.Buffer
	if err := run(context.Background(), cfg, input, out, &stdout, zaptest.NewLogger(t)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("below-target curve was written: %v", err)
	}
	rows := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(rows) != 5 {
		t.Fatalf("expected header plus three peaks, got:\n%s", stdout.String())
	}
	// Energies stay uncalibrated: the energy column repeats the center.
	fields := strings.Fields(rows[2])
	if fields[1] != fields[2] {
		t.Fatalf("calibration applied: center %s energy %s", fields[1], fields[2])
	}
}

func TestCalibrateLinear(t *testing.T) {
	peaks := []peak.Peak{
		{Center: 100, GaussianFWHM: 2},
		{Center: 200, GaussianFWHM: 2.5},
		{Center: 300, GaussianFWHM: 3},
	}
	cfg := DefaultConfig().Calibration
	cfg.Initial = []float64{-49, 1}
	cfg.Lines = []calib.Radiation{{Energy: 250}, {Energy: 50}, {Energy: 150}}

	cal, err := calibrate(peaks, cfg, 12, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("calibrate: %v", err)
	}
	if cal.Matched != 3 || cal.MaxResidual > 1e-9 {
		t.Fatalf("matched=%d max residual=%v", cal.Matched, cal.MaxResidual)
	}
	testutil.RequireSliceNearlyEqual(t, cal.Energy.Coefficients, []float64{-50, 1}, 1e-9)

	cfg.Initial = nil
	if _, err := calibrate(peaks, cfg, 12, zaptest.NewLogger(t)); err == nil {
		t.Fatal("expected error without an initial curve")
	}
}
