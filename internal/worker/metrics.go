package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry             *prometheus.Registry
	jobsTotal            *prometheus.CounterVec
	jobDuration          *prometheus.HistogramVec
	activeJobs           prometheus.Gauge
	goldenRecordsTotal   *prometheus.CounterVec
	pixelsProcessedTotal prometheus.Counter
	bytesInTotal         prometheus.Counter
	bytesOutTotal        prometheus.Counter
	computeTimeMSTotal   prometheus.Counter
	webhookDeliveries    *prometheus.CounterVec
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pim_worker_jobs_total",
			Help: "Normalization jobs by source type and final status.",
		}, []string{"source_type", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pim_worker_job_duration_seconds",
			Help:    "Wall time of each normalization job.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"source_type", "status"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pim_worker_active_jobs",
			Help: "Jobs currently holding a normalization slot.",
		}),
		goldenRecordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pim_worker_golden_records_total",
			Help: "Golden records published, split into created and updated.",
		}, []string{"kind"}),
		pixelsProcessedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pim_usage_pixels_processed_total",
			Help: "Source pixels normalized across successful jobs.",
		}),
		bytesInTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pim_usage_bytes_in_total",
			Help: "Source bytes read across successful jobs.",
		}),
		bytesOutTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pim_usage_bytes_out_total",
			Help: "Golden record bytes written across successful jobs.",
		}),
		computeTimeMSTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pim_usage_compute_time_ms_total",
			Help: "Compute time in milliseconds across successful jobs.",
		}),
		webhookDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pim_worker_webhook_deliveries_total",
			Help: "Job event deliveries by result: delivered, queued for redelivery, or dropped.",
		}, []string{"result"}),
	}

	registry.MustRegister(
		m.jobsTotal,
		m.jobDuration,
		m.activeJobs,
		m.goldenRecordsTotal,
		m.pixelsProcessedTotal,
		m.bytesInTotal,
		m.bytesOutTotal,
		m.computeTimeMSTotal,
		m.webhookDeliveries,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
