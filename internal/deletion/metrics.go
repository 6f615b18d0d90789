// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Worldsmith Contributors

package deletion

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OperationsProcessed counts operations driven to a terminal status.
// Use RegisterMetrics to register this with a Prometheus registry.
var OperationsProcessed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "worldsmith_delete_operations_total",
		Help: "Total number of delete operations by terminal status",
	},
	[]string{"status"},
)

// EntitiesProcessed counts per-entity delete outcomes within cascades.
// Use RegisterMetrics to register this with a Prometheus registry.
var EntitiesProcessed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "worldsmith_delete_entities_total",
		Help: "Total number of entities handled by cascading deletes",
	},
	[]string{"result"},
)

// TraversalDuration is the histogram of whole-subtree traversal times.
// Use RegisterMetrics to register this with a Prometheus registry.
var TraversalDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "worldsmith_delete_traversal_duration_seconds",
		Help:    "Cascading delete traversal duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
)

// OperationsInFlight gauges the operations currently being driven.
// Use RegisterMetrics to register this with a Prometheus registry.
var OperationsInFlight = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "worldsmith_delete_operations_in_flight",
		Help: "Number of delete operations currently in progress",
	},
)

// Per-entity result labels for EntitiesProcessed.
const (
	ResultDeleted = "deleted"
	ResultFailed  = "failed"
)

// RegisterMetrics registers deletion metrics with the given Prometheus
// registry. This must be called at startup to make metrics available on
// /metrics. Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(OperationsProcessed)
	reg.MustRegister(EntitiesProcessed)
	reg.MustRegister(TraversalDuration)
	reg.MustRegister(OperationsInFlight)
}

// recordOperation records an operation reaching a terminal status and
// its traversal duration.
func recordOperation(status Status, duration time.Duration) {
	OperationsProcessed.WithLabelValues(status.String()).Inc()
	TraversalDuration.Observe(duration.Seconds())
}

// recordEntities records per-entity outcomes for one traversal.
func recordEntities(deleted, failed int) {
	EntitiesProcessed.WithLabelValues(ResultDeleted).Add(float64(deleted))
	EntitiesProcessed.WithLabelValues(ResultFailed).Add(float64(failed))
}
