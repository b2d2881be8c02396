package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the monitoring engine
type Metrics struct {
	// Capture and buffering metrics
	SamplesCaptured prometheus.Counter
	BufferedSamples prometheus.Gauge
	BufferOverruns  prometheus.Counter

	// Analysis metrics
	FramesProcessed prometheus.Counter
	SamplesSkipped  prometheus.Counter
	FrameTime       prometheus.Histogram

	// Detection metrics
	EventsDetected      *prometheus.CounterVec
	CandidatesDiscarded *prometheus.CounterVec

	// Dispatch metrics
	EventQueueSize prometheus.Gauge
	EventsDropped  prometheus.Counter
	DeliveryErrors prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		SamplesCaptured: promauto.NewCounter(prometheus.CounterOpts{
			Name: "monitor_samples_captured_total",
			Help: "Total number of audio samples pushed into the stream buffer",
		}),
		BufferedSamples: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_buffered_samples",
			Help: "Current number of samples waiting in the stream buffer",
		}),
		BufferOverruns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "monitor_buffer_overrun_samples_total",
			Help: "Total number of samples overwritten before analysis",
		}),

		FramesProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "monitor_frames_processed_total",
			Help: "Total number of analysis frames processed",
		}),
		SamplesSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "monitor_samples_skipped_total",
			Help: "Total number of samples skipped due to analysis backlog",
		}),
		FrameTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "monitor_frame_processing_seconds",
			Help:    "Time spent analyzing one frame across all bands",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),

		EventsDetected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_events_detected_total",
			Help: "Total number of confirmed events by band",
		}, []string{"band"}),
		CandidatesDiscarded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_candidates_discarded_total",
			Help: "Total number of candidate detections that never confirmed",
		}, []string{"band"}),

		EventQueueSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_event_queue_size",
			Help: "Current number of events waiting for delivery",
		}),
		EventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "monitor_events_dropped_total",
			Help: "Total number of events dropped from a saturated queue",
		}),
		DeliveryErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "monitor_delivery_errors_total",
			Help: "Total number of failed consumer deliveries",
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_http_requests_total",
			Help: "Total number of HTTP API requests",
		}, []string{"method", "endpoint", "status"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "monitor_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_http_errors_total",
			Help: "Total number of HTTP API errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordHTTPRequest records one handled HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, status string, duration float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordHTTPError records one failed HTTP request
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
