package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "booking"

var (
	once sync.Once

	admissionDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_decisions_total",
			Help:      "Booking attempts by outcome and rejection kind.",
		},
		[]string{"outcome", "kind"},
	)

	admissionRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_commit_retries_total",
			Help:      "Admission transactions retried after a commit conflict.",
		},
	)

	admissionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "admission_duration_seconds",
			Help:      "Time spent deciding a booking attempt.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	slotQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_queries_total",
			Help:      "Available-slot queries by result.",
		},
		[]string{"result"},
	)

	outboxPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_total",
			Help:      "Outbox events relayed to Kafka by result.",
		},
		[]string{"result"},
	)

	consumedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consumed_events_total",
			Help:      "Kafka events handled by the booking service, by topic and result.",
		},
		[]string{"topic", "result"},
	)
)

// Register registers the collectors with the default registry. Safe to call
// multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(admissionDecisions, admissionRetries, admissionDuration, slotQueries, outboxPublished, consumedEvents)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAdmission records one finished booking attempt. kind is empty for
// an accepted booking.
func ObserveAdmission(outcome, kind string, elapsed time.Duration) {
	if kind == "" {
		kind = "none"
	}
	admissionDecisions.WithLabelValues(outcome, kind).Inc()
	admissionDuration.Observe(elapsed.Seconds())
}

func IncCommitRetry() {
	admissionRetries.Inc()
}

func IncSlotQuery(result string) {
	slotQueries.WithLabelValues(result).Inc()
}

func IncOutbox(result string) {
	outboxPublished.WithLabelValues(result).Inc()
}

func IncConsumed(topic, result string) {
	consumedEvents.WithLabelValues(topic, result).Inc()
}
