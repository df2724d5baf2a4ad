// Package metrics exposes a Prometheus /metrics endpoint on a separate port.
package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ProxyRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ghbroker_proxy_request_duration_seconds",
		Help:    "Duration of forwarded and denied /proxy requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"host", "method", "outcome"})

	ProxyRequestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ghbroker_proxy_request_total",
		Help: "Total number of /proxy requests.",
	}, []string{"host", "method", "outcome"})

	PermissionDeniedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ghbroker_permission_denied_total",
		Help: "Total number of permission checks that were denied.",
	}, []string{"kind"})

	ExecutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ghbroker_execution_duration_seconds",
		Help:    "Duration of executeCode calls by backend.",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "success"})

	ExecutionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ghbroker_execution_total",
		Help: "Total number of executeCode calls by backend.",
	}, []string{"backend", "success"})

	LangServerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ghbroker_langserver_request_duration_seconds",
		Help:    "Duration of language-service requests by command.",
		Buckets: prometheus.DefBuckets,
	}, []string{"command", "success"})

	ContainerRestartTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ghbroker_container_restart_total",
		Help: "Total number of times the isolated instance was restarted after an external crash.",
	}, []string{})
)

// Serve starts the Prometheus metrics server on the given address.
func Serve(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	logger.Info("metrics server starting", "listen", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server failed", "error", err)
	}
}
