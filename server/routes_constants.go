package server

// Route path constants. Broker routes are "/" + broker name.
const (
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"
	RouteRoot    = "/"
)

func brokerRoute(name string) string {
	return "/" + name
}
