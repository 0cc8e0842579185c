// Package metrics provides Prometheus metrics for the scheduling service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// MetricsNamespace is the namespace for all scheduler metrics.
	MetricsNamespace = "vox_prismatic"

	// MetricsSubsystem is the subsystem for scheduler metrics.
	MetricsSubsystem = "scheduler"
)

// Metrics holds all Prometheus metrics for the scheduling service.
type Metrics struct {
	// Scheduling metrics
	ItemsScheduledTotal       *prometheus.CounterVec
	ItemsCancelledTotal       *prometheus.CounterVec
	ValidationRejectionsTotal *prometheus.CounterVec
	SlotConflictsTotal        prometheus.Counter

	// Publish worker metrics
	ItemsPublishedTotal  *prometheus.CounterVec
	PublishFailuresTotal *prometheus.CounterVec
	PublishLagSeconds    *prometheus.HistogramVec
	WorkerBatchItems     prometheus.Histogram

	// Reconciler metrics
	ReconcilerCommitsTotal   prometheus.Counter
	ReconcilerRollbacksTotal prometheus.Counter
}

// NewMetrics creates and registers all scheduler metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	m := &Metrics{}

	m.initSchedulingMetrics(factory)
	m.initWorkerMetrics(factory)
	m.initReconcilerMetrics(factory)

	return m
}

func (m *Metrics) initSchedulingMetrics(factory promauto.Factory) {
	m.ItemsScheduledTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "items_scheduled_total",
			Help:      "Total number of items scheduled",
		},
		[]string{"platform"},
	)

	m.ItemsCancelledTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "items_cancelled_total",
			Help:      "Total number of items unscheduled before publishing",
		},
		[]string{"platform"},
	)

	m.ValidationRejectionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "validation_rejections_total",
			Help:      "Total number of schedule requests rejected by validation",
		},
		[]string{"reason"},
	)

	m.SlotConflictsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "slot_conflicts_total",
			Help:      "Total number of schedule requests rejected because the source content is already scheduled",
		},
	)
}

func (m *Metrics) initWorkerMetrics(factory promauto.Factory) {
	m.ItemsPublishedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "items_published_total",
			Help:      "Total number of items published to a platform channel",
		},
		[]string{"platform"},
	)

	m.PublishFailuresTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "publish_failures_total",
			Help:      "Total number of publish attempts that failed",
		},
		[]string{"platform"},
	)

	m.PublishLagSeconds = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "publish_lag_seconds",
			Help:      "Delay between an item's scheduled time and its publish time",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68min
		},
		[]string{"platform"},
	)

	m.WorkerBatchItems = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "worker_batch_items",
			Help:      "Number of due items claimed per worker poll",
			Buckets:   prometheus.LinearBuckets(0, 2, 11), // 0 to 20
		},
	)
}

func (m *Metrics) initReconcilerMetrics(factory promauto.Factory) {
	m.ReconcilerCommitsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "reconciler_commits_total",
			Help:      "Total number of optimistic mutations confirmed by the server",
		},
	)

	m.ReconcilerRollbacksTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "reconciler_rollbacks_total",
			Help:      "Total number of optimistic mutations rolled back after a server error",
		},
	)
}
