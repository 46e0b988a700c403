// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes the server's optional Prometheus instrumentation.
// Every exported function is a cheap no-op-shaped call safe to invoke on the
// hot request path; registration happens once at package init, and serving
// /metrics is opt-in via Serve.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nvhttpd_requests_total",
		Help: "Total requests served, labeled by response status code",
	}, []string{"status"})

	bytesServedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nvhttpd_bytes_served_total",
		Help: "Total response body bytes written to clients",
	})

	activeConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nvhttpd_active_connections",
		Help: "Number of connections currently being serviced by a worker",
	})

	cacheReloadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nvhttpd_cache_reloads_total",
		Help: "Total cache reload attempts, labeled by outcome",
	}, []string{"outcome"})

	cacheReloadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "nvhttpd_cache_reload_seconds",
		Help:    "Wall-clock duration of a content cache reload (filesystem walk plus publish)",
		Buckets: prometheus.DefBuckets,
	})

	cacheEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nvhttpd_cache_entries",
		Help: "Number of entries in the most recently published cache Snapshot",
	})
)

func init() {
	prometheus.MustRegister(
		requestsTotal,
		bytesServedTotal,
		activeConnections,
		cacheReloadsTotal,
		cacheReloadDuration,
		cacheEntries,
	)
}

// ObserveRequest records one completed response by status code and the
// number of body bytes written for it.
func ObserveRequest(status int, bodyBytes int) {
	requestsTotal.WithLabelValues(statusLabel(status)).Inc()
	if bodyBytes > 0 {
		bytesServedTotal.Add(float64(bodyBytes))
	}
}

// ConnectionOpened and ConnectionClosed bracket a worker's lifetime.
func ConnectionOpened() { activeConnections.Inc() }
func ConnectionClosed() { activeConnections.Dec() }

// ObserveReload records the outcome and duration of a cache reload. ok=false
// means the prior Snapshot was retained.
func ObserveReload(ok bool, took time.Duration, entryCount int) {
	outcome := "error"
	if ok {
		outcome = "ok"
		cacheEntries.Set(float64(entryCount))
	}
	cacheReloadsTotal.WithLabelValues(outcome).Inc()
	cacheReloadDuration.Observe(took.Seconds())
}

func statusLabel(status int) string {
	switch status {
	case 200:
		return "200"
	case 400:
		return "400"
	case 404:
		return "404"
	case 500:
		return "500"
	case 501:
		return "501"
	default:
		return "other"
	}
}

// Observer adapts the package-level recording functions to the small
// interfaces internal/httpd/cache and internal/httpd/dispatch each define
// for their respective observer collaborator, so both packages can depend
// on a narrow interface instead of importing this package directly.
type Observer struct{}

func (Observer) ObserveRequest(status int, bodyBytes int)         { ObserveRequest(status, bodyBytes) }
func (Observer) ConnectionOpened()                                { ConnectionOpened() }
func (Observer) ConnectionClosed()                                { ConnectionClosed() }
func (Observer) ObserveReload(ok bool, took time.Duration, n int) { ObserveReload(ok, took, n) }

// Serve starts a dedicated metrics HTTP listener on addr, exposing /metrics.
// It runs in the caller's goroutine; callers that want it backgrounded
// should invoke Serve in a goroutine of their own, mirroring how the rest of
// the server treats blocking I/O as the caller's responsibility.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}
