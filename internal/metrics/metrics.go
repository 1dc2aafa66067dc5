// Package metrics registers the Prometheus collectors exported by VisitDesk.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "visitdesk"

var (
	// InboundMessages counts routed inbound messages by event kind.
	InboundMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inbound_messages_total",
		Help:      "Inbound chat messages by routed event kind.",
	}, []string{"event"})

	// IntakesStarted counts intake conversations that reached the name prompt.
	IntakesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "intakes_started_total",
		Help:      "Intake conversations started.",
	})

	// IntakesCompleted counts intakes that left the birth date or confirmation step.
	IntakesCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "intakes_completed_total",
		Help:      "Intake conversations finished, by outcome.",
	}, []string{"outcome"})

	// IntakesAbandoned counts intakes reset after too many invalid inputs.
	IntakesAbandoned = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "intakes_abandoned_total",
		Help:      "Intake conversations reset after exhausting attempts, by field.",
	}, []string{"field"})

	// ValidationFailures counts rejected inputs by field and kind.
	ValidationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "validation_failures_total",
		Help:      "Rejected intake inputs by field and failure kind.",
	}, []string{"field", "kind"})

	// PersistFailures counts store writes that failed or timed out.
	PersistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "patient_persist_failures_total",
		Help:      "Patient records that could not be persisted.",
	})

	// PersistDuration observes store write latency.
	PersistDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "patient_persist_duration_seconds",
		Help:      "Time spent persisting a patient record.",
		Buckets:   prometheus.DefBuckets,
	})

	// SessionsExpired counts conversations evicted after idling.
	SessionsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_expired_total",
		Help:      "Conversations discarded after the idle timeout.",
	})

	// OutboundMessages counts transport sends by backend and result.
	OutboundMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbound_messages_total",
		Help:      "Outbound chat messages by backend and result.",
	}, []string{"backend", "result"})

	// Receipts counts delivery receipts reported by the transport.
	Receipts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "message_receipts_total",
		Help:      "Delivery receipts by status.",
	}, []string{"status"})

	// DroppedMessages counts inbound messages dropped because a session queue was full.
	DroppedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inbound_messages_dropped_total",
		Help:      "Inbound messages dropped before reaching a conversation.",
	})
)

// Outcome labels for IntakesCompleted.
const (
	OutcomeSaved     = "saved"
	OutcomeDiscarded = "discarded"
	OutcomeFailed    = "persist_failed"
)
