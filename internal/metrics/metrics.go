package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	ActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "broker_actions_total", Help: "Broker actions by broker, action and response status"},
		[]string{"broker", "action", "status"},
	)
	ActionLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "broker_action_latency_ms", Help: "Action handling latency", Buckets: prometheus.ExponentialBuckets(1, 2, 14)},
		[]string{"broker", "action"},
	)
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "broker_upstream_requests_total", Help: "Upstream calls by broker and upstream status class"},
		[]string{"broker", "class"},
	)
	UpstreamLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "broker_upstream_latency_ms", Help: "Upstream call latency", Buckets: prometheus.ExponentialBuckets(5, 2, 12)},
		[]string{"broker"},
	)
	SessionsLive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "broker_sessions_live", Help: "Live sessions after the last sweep"},
		[]string{"broker"},
	)
	SessionsSweptTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "broker_sessions_swept_total", Help: "Sessions evicted by expiry sweeps"},
		[]string{"broker"},
	)
	HostPinRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "broker_host_pin_rejections_total", Help: "Proxy endpoints rejected for targeting a foreign host"},
		[]string{"broker"},
	)
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{Name: "broker_rate_limited_total", Help: "Requests rejected by the rate limiter"})
)

// Init registers the broker collectors on a fresh registry.
func Init(logger zerolog.Logger) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	toRegister := []prometheus.Collector{
		ActionsTotal, ActionLatencyMs,
		UpstreamRequestsTotal, UpstreamLatencyMs,
		SessionsLive, SessionsSweptTotal,
		HostPinRejectionsTotal, RateLimitedTotal,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	for _, c := range toRegister {
		_ = reg.Register(c)
	}
	logger.Debug().Msg("Prometheus metrics initialized")
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// StatusClass buckets an HTTP status for low-cardinality labels.
func StatusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "error"
	}
}
