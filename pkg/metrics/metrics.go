package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Define global variables for metrics.
// We use 'promauto' which automatically registers metrics without complex initialization.

var (
	// HttpRequestsTotal counts requests, labeled by method, path, and status code.
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rfield_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status"},
	)

	// HttpRequestDuration measures server response time.
	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rfield_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)

	// FieldsTotal tracks the number of registered receptive fields.
	FieldsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rfield_fields_total",
			Help: "Number of registered receptive fields",
		},
	)

	// FitsTotal counts fits per field.
	FitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rfield_fits_total",
			Help: "Total number of receptive field fits",
		},
		[]string{"field"},
	)

	// FitDuration measures how long a fit takes.
	FitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rfield_fit_duration_seconds",
			Help:    "Duration of receptive field fits in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
	)

	// PointsPerFit tracks the size of the fitted point clouds.
	PointsPerFit = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rfield_points_per_fit",
			Help:    "Number of points per receptive field fit",
			Buckets: prometheus.ExponentialBuckets(16, 4, 10),
		},
	)

	// EmptyCellsTotal counts cells without points seen by centroid requests.
	EmptyCellsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rfield_empty_cells_total",
			Help: "Total number of empty cells found while computing centroids",
		},
		[]string{"field"},
	)

	// InterpolatedCellsTotal counts empty cells filled from their neighbors.
	InterpolatedCellsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rfield_interpolated_cells_total",
			Help: "Total number of empty cells filled by interpolation",
		},
		[]string{"field"},
	)

	// PropagationErrorsTotal counts rejected propagations, labeled by reason.
	PropagationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rfield_propagation_errors_total",
			Help: "Total number of failed value propagations",
		},
		[]string{"field", "reason"},
	)
)
