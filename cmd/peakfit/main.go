// Command peakfit finds and fits peaks in a gamma-ray spectrum.
//
// Usage:
//
//	peakfit [flags] histogram-file
//
// The histogram holds one channel per line, either "count" or
// "channel,count". With reference lines in the config file, peakfit also
// fits energy and resolution calibrations and can write them as YAML.
//
// Examples:
//
//	peakfit spectrum.csv
//	peakfit -min-width 4 -smooth 1.5 spectrum.txt
//	peakfit -config cs137.yaml -out curves.yaml spectrum.csv
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/cwbudde/algo-gamma/dsp/hist"
	"github.com/cwbudde/algo-gamma/measure/calib"
	"github.com/cwbudde/algo-gamma/measure/fitworker"
	"github.com/cwbudde/algo-gamma/measure/peak"
	"github.com/cwbudde/algo-gamma/stats/counts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	configFile := flag.String("config", "", "YAML config file")
	out := flag.String("out", "", "write fitted calibration curves to this YAML file")
	minWidth := flag.Int("min-width", 0, "peak search width in channels (overrides config)")
	smooth := flag.Float64("smooth", -1, "gaussian smoothing sigma for the peak search (overrides config)")
	bits := flag.Int("bits", 0, "histogram resolution in bits (overrides config)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: peakfit [flags] histogram-file\n\n")
		fmt.Fprintf(os.Stderr, "Finds and fits peaks in a spectrum and prints a peak table.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  peakfit spectrum.csv\n")
		fmt.Fprintf(os.Stderr, "  peakfit -min-width 4 -smooth 1.5 spectrum.txt\n")
		fmt.Fprintf(os.Stderr, "  peakfit -config cs137.yaml -out curves.yaml spectrum.csv\n")
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := DefaultConfig()
	if *configFile != "" {
		var err error
		if cfg, err = LoadConfig(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}
	if *minWidth > 0 {
		cfg.Peak.MinWidth = *minWidth
	}
	if *smooth >= 0 {
		cfg.Smoothing = *smooth
	}
	if *bits > 0 {
		cfg.Bits = *bits
	}

	log, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, cfg, flag.Arg(0), *out, os.Stdout, log); err != nil {
		log.Error("peakfit failed", zap.Error(err))
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, input, out string, stdout io.Writer, log *zap.Logger) error {
	f, err := os.Open(input)
	if err != nil {
		return err
	}
	channels, values, err := readHistogram(f)
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("%s: %w", input, err)
	}

	var opts []hist.Option
	if cfg.Bits > 0 {
		opts = append(opts, hist.WithBits(cfg.Bits))
	}
	if cfg.Smoothing > 0 {
		opts = append(opts, hist.WithSmoothing(cfg.Smoothing))
	}
	s, err := hist.FromPairs(channels, values, opts...)
	if err != nil {
		return err
	}
	st := counts.Calculate(s.Start(), s.Counts())
	log.Info("histogram loaded",
		zap.String("file", input),
		zap.Int("channels", s.Len()),
		zap.Int("bits", s.Bits()),
		zap.Float64("total", st.Total),
		zap.Int("max_channel", st.MaxPos))

	reg := prometheus.NewRegistry()
	if cfg.Metrics.Listen != "" {
		srv := serveMetrics(cfg.Metrics.Listen, reg, log)
		defer func() { _ = srv.Close() }()
	}

	w := fitworker.New(fitworker.WithLogger(log), fitworker.WithRegisterer(reg))
	w.Start(ctx)
	defer w.Close()

	res, err := fitSpectrum(ctx, w, peak.NewState(s, cfg.Peak), log)
	if err != nil {
		return err
	}
	state := res.State

	if len(cfg.Calibration.Lines) > 0 {
		cal, err := calibrate(state.Peaks(), cfg.Calibration, s.Bits(), log)
		if errors.Is(err, calib.ErrTargetNotMet) {
			log.Warn("calibration not applied", zap.Error(err))
			return printPeaks(stdout, state)
		}
		if err != nil {
			return err
		}
		eng := peak.NewEngine(state, peak.WithLogger(log))
		eng.SetCalibration(cal.Energy, cal.FWHM)
		state = eng.State()
		log.Info("calibrated",
			zap.Stringer("energy", cal.Energy),
			zap.Stringer("fwhm", cal.FWHM),
			zap.Int("points", cal.Matched),
			zap.Float64("max_residual", cal.MaxResidual))

		if out != "" {
			curves := map[string]calib.Curve{"energy": cal.Energy}
			if cal.FWHM.Valid() {
				curves["fwhm"] = cal.FWHM
			}
			if err := saveCurves(out, curves); err != nil {
				return err
			}
		}
	}

	return printPeaks(stdout, state)
}

// fitSpectrum submits a whole-spectrum fit and logs progress until it
// finishes. Canceling ctx stops the fit at the next ROI.
func fitSpectrum(ctx context.Context, w *fitworker.Worker, st peak.State, log *zap.Logger) (fitworker.Update, error) {
	job, err := w.Submit(st, fitworker.Action{Kind: fitworker.Fit})
	if err != nil {
		return fitworker.Update{}, err
	}
	stop := ctx.Done()
	for {
		select {
		case u := <-w.Updates():
			if !u.Done {
				log.Debug("fit progress", zap.Int("roi", u.Progress), zap.Int("of", u.Total))
			}
		case <-job.Done():
			res := job.Result()
			if res.Canceled {
				return res, errors.New("fit canceled")
			}
			if res.Err != nil {
				return res, res.Err
			}
			return res, nil
		case <-stop:
			w.Stop()
			stop = nil
		}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	return srv
}

func printPeaks(w io.Writer, st peak.State) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintf(tw, "ROI\tCenter\tEnergy\tFWHM\tArea (gauss)\tArea (sum)\tUncertainty\tQuality\tFlags\n"); err != nil {
		return fmt.Errorf("failed to write output header: %w", err)
	}
	if _, err := fmt.Fprintf(tw, "---\t------\t------\t----\t------------\t----------\t-----------\t-------\t-----\n"); err != nil {
		return fmt.Errorf("failed to write output header: %w", err)
	}
	for _, r := range st.ROIs {
		for _, p := range r.Peaks {
			flags := ""
			if p.Intersects {
				flags = "overlap"
			}
			fwhm := p.GaussianFWHM
			if p.EnergyFWHM > 0 {
				fwhm = p.EnergyFWHM
			}
			if _, err := fmt.Fprintf(tw, "%d\t%.2f\t%.2f\t%.2f\t%.1f\t%.1f\t%.1f\t%.1f\t%s\n",
				r.ID,
				p.Center,
				p.Energy,
				fwhm,
				p.GaussianArea,
				p.SumArea,
				p.SumAreaUncertainty,
				p.Quality,
				flags,
			); err != nil {
				return fmt.Errorf("failed to write output row: %w", err)
			}
		}
	}
	return tw.Flush()
}
