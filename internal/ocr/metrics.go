package ocr

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ocrJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marginalia_ocr_jobs_total",
			Help: "Total number of OCR jobs",
		},
		[]string{"kind", "status"}, // kind: page, area
	)

	ocrJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marginalia_ocr_job_duration_seconds",
			Help:    "OCR job duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 25, 50, 100},
		},
		[]string{"kind"},
	)

	ocrRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marginalia_ocr_rejected_total",
			Help: "OCR requests rejected because a job was in flight",
		},
	)

	ocrCachedPages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marginalia_ocr_cached_pages",
			Help: "Number of pages with a cached OCR result",
		},
	)
)
