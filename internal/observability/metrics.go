package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "aquifer_features"

// Metrics holds the Prometheus counters, histograms, and gauges for the feature pipeline.
type Metrics struct {
	JobsConsumed    prometheus.Counter
	VectorsProduced prometheus.Counter
	TransformErrors prometheus.Counter
	PipelineRunning prometheus.Gauge

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Data quality metrics.
	IncompleteVectors    prometheus.Counter     // vectors with at least one non-present feature
	InsufficientFeatures prometheus.Counter     // feature slots marked insufficient
	UnfitIndices         *prometheus.CounterVec // labels: kind={spi,spei}
	ClampedValues        *prometheus.CounterVec // labels: kind={spi,spei}
	ConfigurationErrors  prometheus.Counter

	// Terrain and spatial index metrics.
	TilesProcessed   *prometheus.CounterVec // labels: outcome={success,error}
	TerrainSamples   prometheus.Gauge
	IndexedLocations prometheus.Gauge

	// Model inference metrics.
	InferenceRequests *prometheus.CounterVec // labels: outcome={success,error}
	InferenceCache    *prometheus.CounterVec // labels: result={hit,miss}
	InferenceDuration prometheus.Histogram
	InferenceEnabled  prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		JobsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_jobs_consumed_total",
			Help:      "Total location jobs read from the source.",
		}),
		VectorsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vectors_produced_total",
			Help:      "Total feature vectors written to the sinks.",
		}),
		TransformErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_errors_total",
			Help:      "Location jobs skipped after a non-fatal assembly failure.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of location jobs per batch.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete extract-assemble-load cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		IncompleteVectors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vectors_incomplete_total",
			Help:      "Vectors holding at least one insufficient or undefined feature.",
		}),
		InsufficientFeatures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "features_insufficient_total",
			Help:      "Feature slots marked insufficient.",
		}),
		UnfitIndices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indices_unfit_total",
			Help:      "Standardized index series that could not be fitted.",
		}, []string{"kind"}),
		ClampedValues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_values_clamped_total",
			Help:      "Standardized index values clamped at the tail bound.",
		}, []string{"kind"}),
		ConfigurationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "configuration_errors_total",
			Help:      "Batches aborted by a configuration error.",
		}),
		TilesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "terrain_tiles_total",
			Help:      "Terrain tiles derived, by outcome.",
		}, []string{"outcome"}),
		TerrainSamples: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "terrain_samples",
			Help:      "Anchored terrain samples currently indexed.",
		}),
		IndexedLocations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indexed_locations",
			Help:      "Locations in the current spatial index.",
		}),
		InferenceRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_requests_total",
			Help:      "Model inference requests by outcome.",
		}, []string{"outcome"}),
		InferenceCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_cache_total",
			Help:      "Prediction cache lookups by result.",
		}, []string{"result"}),
		InferenceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Model inference request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		InferenceEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inference_enabled",
			Help:      "1 when a model endpoint is configured, 0 otherwise.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.JobsConsumed,
		m.VectorsProduced,
		m.TransformErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.IncompleteVectors,
		m.InsufficientFeatures,
		m.UnfitIndices,
		m.ClampedValues,
		m.ConfigurationErrors,
		m.TilesProcessed,
		m.TerrainSamples,
		m.IndexedLocations,
		m.InferenceRequests,
		m.InferenceCache,
		m.InferenceDuration,
		m.InferenceEnabled,
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

// NewMetricsWithRegistry registers the metrics on reg. Tests use it to
// inspect values through a private registry.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	m := newMetrics()
	reg.MustRegister(m.collectors()...)
	return m
}
