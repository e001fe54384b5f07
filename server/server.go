package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-session-broker/broker"
	"github.com/jrsteele09/go-session-broker/internal/config"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type Server struct {
	env          string // Environment (e.g., "DEV", "PROD")
	mux          *http.ServeMux
	routes       []string
	config       config.Config
	brokers      map[string]broker.Dispatcher
	registry     *prometheus.Registry
	limiter      *ipRateLimiter
	gzip         func(http.Handler) http.HandlerFunc
	maxBodyBytes int64
}

// New builds the HTTP surface for the given brokers, one route per broker
// name. registry may be nil, in which case /metrics is not served.
func New(cfg config.Config, brokers []broker.Dispatcher, registry *prometheus.Registry) (*Server, error) {
	gzipWrapper, err := gzhttp.NewWrapper()
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to create gzip wrapper: %w", err)
	}

	s := &Server{
		env:          cfg.GetEnv(),
		mux:          http.NewServeMux(),
		config:       cfg,
		brokers:      make(map[string]broker.Dispatcher, len(brokers)),
		registry:     registry,
		gzip:         gzipWrapper,
		maxBodyBytes: cfg.GetMaxRequestBytes(),
	}
	for _, d := range brokers {
		if d.Name() == "" || strings.Contains(d.Name(), "/") {
			return nil, fmt.Errorf("[Server New] invalid broker name %q", d.Name())
		}
		if _, dup := s.brokers[d.Name()]; dup {
			return nil, fmt.Errorf("[Server New] duplicate broker name %q", d.Name())
		}
		s.brokers[d.Name()] = d
	}
	if cfg.GetEnableRateLimiting() {
		s.limiter = newIPRateLimiter(rate.Limit(cfg.GetRateLimitRPS()), cfg.GetRateLimitBurst(), 10*time.Minute)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Debug().Msgf("[%-19s] %s", displayMethod, path)
}
