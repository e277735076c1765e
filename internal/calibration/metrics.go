package calibration

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for calibration runs
type Metrics struct {
	AxesCalibrated  *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	AxisDuration    *prometheus.HistogramVec
	FCMIterations   prometheus.Histogram
	SegmentsPerAxis *prometheus.GaugeVec
	registry        *prometheus.Registry
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// NewMetrics creates and registers all metrics (singleton pattern for tests)
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		registry := prometheus.NewRegistry()

		m := &Metrics{
			AxesCalibrated: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "thumbprint_axes_calibrated_total",
					Help: "Axes processed per calibration run by outcome",
				},
				[]string{"status"}, // ok, degenerate, failed
			),
			RunDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "thumbprint_calibration_run_duration_seconds",
					Help:    "Wall time of a full calibration run",
					Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
				},
			),
			AxisDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "thumbprint_axis_calibration_duration_seconds",
					Help:    "Wall time per axis calibration",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"axis"},
			),
			FCMIterations: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "thumbprint_fcm_iterations",
					Help:    "Iterations to convergence for fuzzy fits",
					Buckets: prometheus.LinearBuckets(10, 10, 15),
				},
			),
			SegmentsPerAxis: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "thumbprint_segments_per_axis",
					Help: "Leaf segment count in the published axis model",
				},
				[]string{"axis"},
			),
			registry: registry,
		}

		registry.MustRegister(m.AxesCalibrated)
		registry.MustRegister(m.RunDuration)
		registry.MustRegister(m.AxisDuration)
		registry.MustRegister(m.FCMIterations)
		registry.MustRegister(m.SegmentsPerAxis)

		metricsInstance = m
	})

	return metricsInstance
}

// Handler exposes the metrics registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
