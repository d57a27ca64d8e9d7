package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Ledger metrics
	NotificationsCreated *prometheus.CounterVec
	NotificationsRead    prometheus.Counter
	OrphansDetected      *prometheus.CounterVec

	// Dispatch metrics
	MailsSent          *prometheus.CounterVec
	MailsFailed        *prometheus.CounterVec
	AlreadySent        *prometheus.CounterVec
	Undeliverable      *prometheus.CounterVec
	DispatchLatency    *prometheus.HistogramVec
	DispatchQueueSize  *prometheus.GaugeVec
	RetentionDeletions prometheus.Counter

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
	DatabaseLatency    *prometheus.HistogramVec

	// Broker metrics
	BrokerPublishes *prometheus.CounterVec
}

// NewMetrics creates all application metrics and registers them on reg.
// A nil reg means the default registerer.
func NewMetrics(namespace, subsystem string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		NotificationsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "notifications_created_total",
			Help:      "Total number of notifications written to the ledger",
		}, []string{"reason"}),
		NotificationsRead: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "notifications_read_total",
			Help:      "Total number of notifications marked read in-app",
		}),
		OrphansDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "orphaned_notifications_total",
			Help:      "Notifications whose resource could no longer be resolved",
		}, []string{"resource_type", "policy"}),

		MailsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "mails_sent_total",
			Help:      "Total number of notifications delivered per channel",
		}, []string{"channel"}),
		MailsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "mails_failed_total",
			Help:      "Total number of failed delivery attempts per channel",
		}, []string{"channel"}),
		AlreadySent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "mark_sent_noop_total",
			Help:      "Mark-sent calls that found the channel already sent",
		}, []string{"channel"}),
		Undeliverable: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "mails_undeliverable_total",
			Help:      "Notifications consumed without mail because the recipient has no usable address",
		}, []string{"channel"}),
		DispatchLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent on one dispatch batch",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"channel"}),
		DispatchQueueSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dispatch_batch_size",
			Help:      "Number of unsent notifications claimed by the last batch",
		}, []string{"channel"}),
		RetentionDeletions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "retention_deleted_total",
			Help:      "Notifications removed by the retention worker",
		}),

		DatabaseOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
		DatabaseLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "database_operation_duration_seconds",
			Help:      "Duration of database operations",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),

		BrokerPublishes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "broker_publishes_total",
			Help:      "Total number of in-app events published",
		}, []string{"status"}),
	}
}

// New creates metrics on a private registry, for tests and tools.
func New(namespace string) *Metrics {
	return NewMetrics(namespace, "", prometheus.NewRegistry())
}
