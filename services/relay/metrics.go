// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package relay

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Metrics holds the relay's Prometheus collectors.
//
// # Description
//
// Collectors live on their own registry so that several servers (tests)
// can coexist in one process.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
type Metrics struct {
	Registry *prometheus.Registry

	// RequestsTotal counts requests by route and status code.
	RequestsTotal *prometheus.CounterVec

	// RequestDuration observes handler latency by route.
	RequestDuration *prometheus.HistogramVec

	// UpstreamErrorsTotal counts failed DeepSeek calls by upstream status
	// ("0" for transport failures).
	UpstreamErrorsTotal *prometheus.CounterVec

	// RateLimitedTotal counts requests rejected with 429.
	RateLimitedTotal prometheus.Counter

	// ActiveSessions is the number of stored conversations.
	ActiveSessions prometheus.Gauge
}

// NewMetrics registers the relay collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "relay",
				Name:      "requests_total",
				Help:      "HTTP requests by route and status code",
			},
			[]string{"route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "relay",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency by route",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"route"},
		),
		UpstreamErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "relay",
				Name:      "upstream_errors_total",
				Help:      "Failed DeepSeek calls by upstream HTTP status",
			},
			[]string{"status"},
		),
		RateLimitedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "relay",
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the per-client rate limiter",
			},
		),
		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "relay",
				Name:      "active_sessions",
				Help:      "Conversations currently held in memory",
			},
		),
	}
}

// RecordUpstreamError counts a failed DeepSeek call.
func (m *Metrics) RecordUpstreamError(status int) {
	m.UpstreamErrorsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
