// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bulk operation metrics
var (
	// BulkOperationsTotal counts completed batches by operation
	BulkOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emradmin_bulk_operations_total",
			Help: "Total number of bulk account operations by type",
		},
		[]string{"operation"},
	)

	// BulkItemsTotal counts per-item outcomes
	BulkItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emradmin_bulk_items_total",
			Help: "Total number of bulk operation items by type and outcome",
		},
		[]string{"operation", "outcome"},
	)

	// BulkSelfExcludedTotal counts actors removed from their own deactivation batch
	BulkSelfExcludedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emradmin_bulk_self_excluded_total",
			Help: "Total number of acting users excluded from their own bulk operation",
		},
		[]string{"operation"},
	)

	// BulkOperationDuration tracks wall time of a whole batch
	BulkOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "emradmin_bulk_operation_duration_seconds",
			Help:    "Bulk operation duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"operation"},
	)
)

// Invitation metrics
var (
	// InvitationsResentTotal counts successful resends
	InvitationsResentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "emradmin_invitations_resent_total",
			Help: "Total number of invitations re-issued",
		},
	)

	// InvitationsCancelledTotal counts cancellations that reached the store
	InvitationsCancelledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "emradmin_invitations_cancelled_total",
			Help: "Total number of invitations cancelled",
		},
	)
)
