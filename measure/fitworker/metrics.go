package fitworker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	accepted    *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	completed   *prometheus.CounterVec
	dropped     prometheus.Counter
	roiDuration prometheus.Histogram
	inFlight    prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		accepted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fitworker_actions_accepted_total",
				Help: "Actions handed to the fit worker",
			},
			[]string{"kind"},
		),
		rejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fitworker_actions_rejected_total",
				Help: "Actions rejected because the fit worker was busy",
			},
			[]string{"kind"},
		),
		completed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fitworker_actions_completed_total",
				Help: "Actions finished by the fit worker (by outcome: done, canceled, failed)",
			},
			[]string{"kind", "outcome"},
		),
		dropped: f.NewCounter(
			prometheus.CounterOpts{
				Name: "fitworker_updates_dropped_total",
				Help: "Snapshots dropped because the consumer lagged",
			},
		),
		roiDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fitworker_roi_fit_seconds",
				Help:    "Time spent fitting a single ROI",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
			},
		),
		inFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "fitworker_in_flight",
				Help: "1 while the fit worker runs an action",
			},
		),
	}
}
