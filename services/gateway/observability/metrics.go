// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and instrumentation for the gateway.
//
// # Description
//
// This package implements Prometheus metrics for monitoring procedure
// dispatch and the upload bridge. Metrics include:
//   - Procedure counters (by procedure, status)
//   - Dispatch latency histograms
//   - Store error counters (by operation, transient/permanent)
//   - Broad-impact mutation counter
//   - Upload counters and byte totals
//
// # Integration
//
// Metrics are exposed via /metrics endpoint. Use with Prometheus + Grafana
// for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "taylorgate"

// Subsystem for gateway metrics
const gatewaySubsystem = "gateway"

// GatewayMetrics holds all Prometheus metrics for the gateway.
//
// # Description
//
// Provides counters, histograms, and gauges for monitoring procedure
// dispatch and the upload bridge. Initialize once at startup via
// InitMetrics().
//
// # Thread Safety
//
// All operations are thread-safe.
type GatewayMetrics struct {
	// ProceduresTotal counts dispatched procedures by name and status.
	// Labels: procedure (tasks.getAll, ...), status (success, error)
	ProceduresTotal *prometheus.CounterVec

	// ProcedureDurationSeconds measures dispatch latency per procedure.
	// Labels: procedure
	ProcedureDurationSeconds *prometheus.HistogramVec

	// ActiveProcedures tracks in-flight procedure dispatches.
	ActiveProcedures prometheus.Gauge

	// StoreErrorsTotal counts external store failures.
	// Labels: operation (select, insert, update, delete), transient (true, false)
	StoreErrorsTotal *prometheus.CounterVec

	// StoreRetriesTotal counts transient read retries.
	// Labels: procedure
	StoreRetriesTotal *prometheus.CounterVec

	// BroadImpactTotal counts mutations executed with no filter predicates.
	// Labels: table, kind (update, delete)
	BroadImpactTotal *prometheus.CounterVec

	// UploadsTotal counts upload batches by status.
	// Labels: status (success, rejected, error)
	UploadsTotal *prometheus.CounterVec

	// UploadBytesTotal counts bytes persisted by the upload bridge.
	UploadBytesTotal prometheus.Counter
}

// DefaultMetrics is the singleton instance of GatewayMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *GatewayMetrics

var initOnce sync.Once

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics. Safe to call more than
// once; registration happens only on the first call.
//
// # Outputs
//
//   - *GatewayMetrics: The initialized metrics instance.
func InitMetrics() *GatewayMetrics {
	initOnce.Do(func() {
		DefaultMetrics = &GatewayMetrics{
			ProceduresTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: metricsNamespace,
					Subsystem: gatewaySubsystem,
					Name:      "procedures_total",
					Help:      "Total dispatched procedures by name and status",
				},
				[]string{"procedure", "status"},
			),

			ProcedureDurationSeconds: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: metricsNamespace,
					Subsystem: gatewaySubsystem,
					Name:      "procedure_duration_seconds",
					Help:      "Procedure dispatch latency in seconds",
					Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
				},
				[]string{"procedure"},
			),

			ActiveProcedures: promauto.NewGauge(
				prometheus.GaugeOpts{
					Namespace: metricsNamespace,
					Subsystem: gatewaySubsystem,
					Name:      "active_procedures",
					Help:      "Number of in-flight procedure dispatches",
				},
			),

			StoreErrorsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: metricsNamespace,
					Subsystem: gatewaySubsystem,
					Name:      "store_errors_total",
					Help:      "Total external store failures by operation",
				},
				[]string{"operation", "transient"},
			),

			StoreRetriesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: metricsNamespace,
					Subsystem: gatewaySubsystem,
					Name:      "store_retries_total",
					Help:      "Total transient read retries by procedure",
				},
				[]string{"procedure"},
			),

			BroadImpactTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: metricsNamespace,
					Subsystem: gatewaySubsystem,
					Name:      "broad_impact_total",
					Help:      "Total mutations executed with no filter predicates",
				},
				[]string{"table", "kind"},
			),

			UploadsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: metricsNamespace,
					Subsystem: gatewaySubsystem,
					Name:      "uploads_total",
					Help:      "Total upload batches by status",
				},
				[]string{"status"},
			),

			UploadBytesTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: metricsNamespace,
					Subsystem: gatewaySubsystem,
					Name:      "upload_bytes_total",
					Help:      "Total bytes persisted by the upload bridge",
				},
			),
		}
	})

	return DefaultMetrics
}

// =============================================================================
// Helper Methods
// =============================================================================

// RecordProcedure records a completed dispatch.
//
// # Inputs
//
//   - procedure: The namespaced procedure name.
//   - success: Whether dispatch completed successfully.
//   - seconds: Dispatch latency.
func (m *GatewayMetrics) RecordProcedure(procedure string, success bool, seconds float64) {
	status := "success"
	if !success {
		status = "error"
	}
	m.ProceduresTotal.WithLabelValues(procedure, status).Inc()
	m.ProcedureDurationSeconds.WithLabelValues(procedure).Observe(seconds)
}

// RecordStoreError records an external store failure.
func (m *GatewayMetrics) RecordStoreError(operation string, transient bool) {
	flag := "false"
	if transient {
		flag = "true"
	}
	m.StoreErrorsTotal.WithLabelValues(operation, flag).Inc()
}

// RecordRetry records one transient read retry.
func (m *GatewayMetrics) RecordRetry(procedure string) {
	m.StoreRetriesTotal.WithLabelValues(procedure).Inc()
}

// RecordBroadImpact records a mutation that ran with no filters.
func (m *GatewayMetrics) RecordBroadImpact(table, kind string) {
	m.BroadImpactTotal.WithLabelValues(table, kind).Inc()
}

// RecordUpload records an upload batch outcome and its persisted bytes.
func (m *GatewayMetrics) RecordUpload(status string, bytes int64) {
	m.UploadsTotal.WithLabelValues(status).Inc()
	if bytes > 0 {
		m.UploadBytesTotal.Add(float64(bytes))
	}
}
