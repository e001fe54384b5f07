package server

import (
	"net/http"
	"sort"
	"strings"

	"github.com/jrsteele09/go-session-broker/internal/metrics"
)

func (s *Server) initRoutes() {
	names := make([]string, 0, len(s.brokers))
	for name := range s.brokers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		d := s.brokers[name]
		s.RegisterRouteFunc("POST "+brokerRoute(name), ChainMiddleware(s.BrokerHandler(d), s.APIMiddleware()...))
		s.RegisterRouteFunc("OPTIONS "+brokerRoute(name), ChainMiddleware(s.PreflightHandler(), s.APIMiddleware()...))
	}

	s.RegisterRouteFunc("GET "+RouteHealth, ChainMiddleware(s.HealthHandler(), s.RequestIDMiddleware, s.RecoverMiddleware))
	if s.registry != nil {
		s.RegisterRouteHandler("GET "+RouteMetrics, metrics.Handler(s.registry))
	}

	// Anything else still answers in JSON.
	s.RegisterRouteFunc(RouteRoot, ChainMiddleware(s.fallbackHandler(), s.RequestIDMiddleware, s.LoggingMiddleware, s.CorsMiddleware))
}

// fallbackHandler distinguishes a wrong method on a broker route from an
// unknown path.
func (s *Server) fallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.brokers[strings.TrimPrefix(r.URL.Path, "/")]; ok {
			w.Header().Set("Allow", "POST, OPTIONS")
			writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSONError(w, "Not found", http.StatusNotFound)
	}
}
