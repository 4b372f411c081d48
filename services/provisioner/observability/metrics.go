// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the provisioner.
//
// # Description
//
// Metrics cover the run lifecycle (starts, outcomes, durations), the
// objects created and deleted against the tenant, per-item failures,
// and LLM call outcomes. Exposed via the /metrics endpoint.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "demoforge"

const provisionerSubsystem = "provisioner"

// Kind labels the run flavor on run-scoped metrics.
type Kind string

const (
	// KindGenerate labels provisioning runs.
	KindGenerate Kind = "generate"

	// KindCleanup labels decommission runs.
	KindCleanup Kind = "cleanup"
)

// Metrics holds all Prometheus metrics for provisioning operations.
//
// Initialize once at startup via InitMetrics(). All helper methods are
// nil-safe so components constructed without metrics (tests, CLI use)
// can share the same code paths.
type Metrics struct {
	// RunsTotal counts finished runs.
	// Labels: kind (generate, cleanup), status (success, error)
	RunsTotal *prometheus.CounterVec

	// RunDurationSeconds measures wall time per run.
	// Labels: kind
	RunDurationSeconds *prometheus.HistogramVec

	// ActiveRuns tracks runs currently executing.
	// Labels: kind
	ActiveRuns *prometheus.GaugeVec

	// ObjectsCreatedTotal counts tenant objects created.
	// Labels: object_type (dev-users, accounts, works, ...)
	ObjectsCreatedTotal *prometheus.CounterVec

	// ObjectsDeletedTotal counts tenant objects deleted.
	// Labels: object_type
	ObjectsDeletedTotal *prometheus.CounterVec

	// ItemFailuresTotal counts per-item failures that were journaled
	// and skipped rather than aborting a stage.
	// Labels: object_type
	ItemFailuresTotal *prometheus.CounterVec

	// LLMCallsTotal counts completion calls.
	// Labels: model, status (success, error)
	LLMCallsTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance. Initialized by InitMetrics().
var DefaultMetrics *Metrics

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics on the default registry.
// Call once at startup; a second call panics on duplicate registration.
//
// # Outputs
//
//   - *Metrics: The initialized metrics instance.
func InitMetrics() *Metrics {
	DefaultMetrics = &Metrics{
		RunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: provisionerSubsystem,
				Name:      "runs_total",
				Help:      "Total finished runs by kind and status",
			},
			[]string{"kind", "status"},
		),

		RunDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: provisionerSubsystem,
				Name:      "run_duration_seconds",
				Help:      "Wall time per run in seconds",
				Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 3600},
			},
			[]string{"kind"},
		),

		ActiveRuns: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: provisionerSubsystem,
				Name:      "active_runs",
				Help:      "Runs currently executing",
			},
			[]string{"kind"},
		),

		ObjectsCreatedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: provisionerSubsystem,
				Name:      "objects_created_total",
				Help:      "Tenant objects created by object type",
			},
			[]string{"object_type"},
		),

		ObjectsDeletedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: provisionerSubsystem,
				Name:      "objects_deleted_total",
				Help:      "Tenant objects deleted by object type",
			},
			[]string{"object_type"},
		),

		ItemFailuresTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: provisionerSubsystem,
				Name:      "item_failures_total",
				Help:      "Per-item failures journaled and skipped",
			},
			[]string{"object_type"},
		),

		LLMCallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: provisionerSubsystem,
				Name:      "llm_calls_total",
				Help:      "Completion calls by model and status",
			},
			[]string{"model", "status"},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Helper Methods
// =============================================================================

// RunStarted increments the active-run gauge.
func (m *Metrics) RunStarted(kind Kind) {
	if m == nil {
		return
	}
	m.ActiveRuns.WithLabelValues(string(kind)).Inc()
}

// RunEnded records a finished run: gauge, outcome counter, and duration.
func (m *Metrics) RunEnded(kind Kind, seconds float64, success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	m.ActiveRuns.WithLabelValues(string(kind)).Dec()
	m.RunsTotal.WithLabelValues(string(kind), status).Inc()
	m.RunDurationSeconds.WithLabelValues(string(kind)).Observe(seconds)
}

// RecordCreated adds to the created-object counter.
func (m *Metrics) RecordCreated(objectType string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.ObjectsCreatedTotal.WithLabelValues(objectType).Add(float64(count))
}

// RecordDeleted adds to the deleted-object counter.
func (m *Metrics) RecordDeleted(objectType string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.ObjectsDeletedTotal.WithLabelValues(objectType).Add(float64(count))
}

// RecordItemFailure counts one journaled per-item failure.
func (m *Metrics) RecordItemFailure(objectType string) {
	if m == nil {
		return
	}
	m.ItemFailuresTotal.WithLabelValues(objectType).Inc()
}

// RecordLLMCall counts one completion call.
func (m *Metrics) RecordLLMCall(model string, success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	m.LLMCallsTotal.WithLabelValues(model, status).Inc()
}
