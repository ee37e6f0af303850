package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pipelineBuildFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bsm_pipeline_build_failed",
			Help: "Number of times a pipeline has failed to build",
		},
		[]string{"pipeline", "error_type"},
	)

	pipelineBuildCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bsm_pipeline_build_count",
			Help: "Total number of times a pipeline has been built",
		},
	)

	pipelineBuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bsm_pipeline_build_duration_seconds",
			Help:    "Pipeline build duration in seconds",
			Buckets: []float64{0.1, 0.2, 0.5, 1, 1.5, 2, 5, 10, 30, 60},
		},
		[]string{"pipeline"},
	)

	lastPipelineBuildStart = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bsm_last_pipeline_build_start_timestamp",
			Help: "Unix timestamp of when the last pipeline build started",
		},
		[]string{"pipeline"},
	)

	lastPipelineBuildEnd = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bsm_last_pipeline_build_end_timestamp",
			Help: "Unix timestamp of when the last pipeline build ended",
		},
		[]string{"pipeline"},
	)
)

func PipelineBuildSucceeded(pipeline string, startTime time.Time) {
	now := time.Now()
	pipelineBuildCount.Inc()
	pipelineBuildDuration.WithLabelValues(pipeline).Observe(now.Sub(startTime).Seconds())
	lastPipelineBuildStart.WithLabelValues(pipeline).Set(float64(startTime.Unix()))
	lastPipelineBuildEnd.WithLabelValues(pipeline).Set(float64(now.Unix()))
}

func PipelineBuildFailed(pipeline, errorType string) {
	pipelineBuildCount.Inc()
	pipelineBuildFailed.WithLabelValues(pipeline, errorType).Inc()
}
