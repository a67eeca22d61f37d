package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	UsersCreated      prometheus.Counter
	MessagesCreated   *prometheus.CounterVec
	MessagesDelivered prometheus.Counter
	NotifyFailures    prometheus.Counter
	Attestations      prometheus.Counter
	DeceasedFlips     prometheus.Counter
	DispatchRuns      prometheus.Counter
	DispatchDuration  prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		UsersCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "everkeep_users_created_total",
			Help: "Total number of users created in the system",
		}),
		MessagesCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "everkeep_messages_created_total",
			Help: "Messages created, labeled by resulting status",
		}, []string{"status"}),
		MessagesDelivered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "everkeep_messages_delivered_total",
			Help: "Messages that reached the delivered state",
		}),
		NotifyFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "everkeep_notify_failures_total",
			Help: "Recipient notifications that failed and will be retried",
		}),
		Attestations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "everkeep_passing_attestations_total",
			Help: "Passing attestations recorded by trusted contacts",
		}),
		DeceasedFlips: promauto.NewCounter(prometheus.CounterOpts{
			Name: "everkeep_deceased_confirmed_total",
			Help: "Users whose passing reached attestation quorum",
		}),
		DispatchRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "everkeep_dispatch_runs_total",
			Help: "Delivery dispatcher polling runs",
		}),
		DispatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "everkeep_dispatch_run_seconds",
			Help:    "Wall time of a single dispatcher run",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
