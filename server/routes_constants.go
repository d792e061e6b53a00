package server

// Route path constants
const (
	RouteOAuth2Authorize = "/oauth2/authorize"
	RouteOAuth2Token     = "/oauth2/token"
	RouteMetrics         = "/metrics"
	RouteHealth          = "/healthz"
)
