package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the counters the pipeline exposes on /metrics.
type Metrics struct {
	JobsSubmitted      prometheus.Counter
	JobsCompleted      prometheus.Counter
	JobsAbandoned      prometheus.Counter
	CallbacksDelivered prometheus.Counter
	CallbacksNotFound  prometheus.Counter
	ProcessingSeconds  prometheus.Histogram
}

// New registers the pipeline metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		JobsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "polybot_jobs_submitted_total",
			Help: "Prediction jobs accepted and enqueued by the front end.",
		}),
		JobsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "polybot_jobs_completed_total",
			Help: "Prediction jobs fully processed and acknowledged by the worker.",
		}),
		JobsAbandoned: factory.NewCounter(prometheus.CounterOpts{
			Name: "polybot_jobs_abandoned_total",
			Help: "Prediction jobs returned to the queue for redelivery.",
		}),
		CallbacksDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "polybot_callbacks_delivered_total",
			Help: "Result callbacks that ended in a chat message.",
		}),
		CallbacksNotFound: factory.NewCounter(prometheus.CounterOpts{
			Name: "polybot_callbacks_not_found_total",
			Help: "Result callbacks for an unknown prediction id.",
		}),
		ProcessingSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "polybot_job_processing_seconds",
			Help:    "Wall time spent processing one prediction job.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
