// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values shared by the counters below.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
)

// Sweep classification label values.
const (
	SweepInserted    = "inserted"
	SweepNotInserted = "not_inserted"
	SweepFailed      = "failed"
)

var (
	inboundLabels = []string{"outcome"}
	replyLabels   = []string{"backend", "kind", "outcome"}
	smsLabels     = []string{"status"}
	sweepLabels   = []string{"result"}
	httpLabels    = []string{"route", "method", "code"}

	InboundMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadrelay_inbound_messages_total",
			Help: "Total number of inbound SMS webhooks handled, labeled by outcome.",
		},
		inboundLabels,
	)

	ReplyRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadrelay_reply_requests_total",
			Help: "Total number of reply-generation calls, labeled by backend, kind (reply|initial) and outcome.",
		},
		replyLabels,
	)

	ReplyDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leadrelay_reply_duration_seconds",
			Help:    "Histogram of reply-generation call durations.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
		[]string{"backend", "kind"},
	)

	SMSSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadrelay_sms_sent_total",
			Help: "Total number of outbound SMS attempts, labeled by status.",
		},
		smsLabels,
	)

	ThreadsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leadrelay_threads_created_total",
		Help: "Total number of conversation threads attached to leads.",
	})

	ThreadsDiscardedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leadrelay_threads_discarded_total",
		Help: "Total number of created threads discarded because another request stored one first.",
	})

	SweepLeadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadrelay_sweep_leads_total",
			Help: "Total number of pending leads processed by sweeps, labeled by result.",
		},
		sweepLabels,
	)

	AuditWriteFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leadrelay_audit_write_failures_total",
		Help: "Total number of audit log entries that could not be written.",
	})

	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leadrelay_http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations.",
			Buckets: prometheus.DefBuckets,
		},
		httpLabels,
	)
)

// ObserveReply records one reply-generation call.
func ObserveReply(backend, kind string, started time.Time, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	ReplyRequestsTotal.WithLabelValues(backend, kind, outcome).Inc()
	ReplyDurationSeconds.WithLabelValues(backend, kind).Observe(time.Since(started).Seconds())
}

// ObserveSMS records one outbound SMS attempt.
func ObserveSMS(err error) {
	if err != nil {
		SMSSentTotal.WithLabelValues(OutcomeFailure).Inc()
		return
	}
	SMSSentTotal.WithLabelValues(OutcomeSuccess).Inc()
}
