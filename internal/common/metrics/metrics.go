// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	// result: saved, skipped, failed, superseded
	AutosaveWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "form_autosave_writes_total",
			Help: "Autosave ticks by outcome",
		},
		[]string{"result"},
	)

	ValidationIssues = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "form_validation_issues_total",
			Help: "Validation issues reported by section and code",
		},
		[]string{"section", "code"},
	)

	QuestionCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "form_question_cache_lookups_total",
			Help: "Question set cache lookups by tier and result",
		},
		[]string{"tier", "result"},
	)

	ResumeUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "form_resume_uploads_total",
			Help: "Resume uploads by outcome",
		},
		[]string{"result"},
	)
)
