/*
Package metrics exposes Prometheus instrumentation for the recommendation pipeline.

Metrics are served in text format at /metrics:

	curl http://localhost:8080/metrics

Available metrics:
  - pipeline_runs_total: finished runs (counter), labels: outcome (success, failed)
  - pipeline_stage_duration_seconds: stage latency (histogram), labels: stage
  - image_fetch_failures_total: post images skipped because the download failed (counter)
  - llm_requests_total: generation calls (counter), labels: backend, outcome
*/
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_runs_total",
			Help: "Total number of pipeline runs by outcome",
		},
		[]string{"outcome"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Duration of each pipeline stage",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	ImageFetchFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "image_fetch_failures_total",
			Help: "Total number of post images that could not be downloaded",
		},
	)

	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_requests_total",
			Help: "Total number of generation requests by backend and outcome",
		},
		[]string{"backend", "outcome"},
	)
)

// ObserveStage records how long a stage took since start.
func ObserveStage(stage string, start time.Time) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
