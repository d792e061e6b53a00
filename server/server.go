package server

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/jrsteele09/oauth2-provider/internal/config"
	"github.com/jrsteele09/oauth2-provider/internal/metrics"
	"github.com/jrsteele09/oauth2-provider/provider"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const authorizeTemplate = "authorize.html"

type Server struct {
	env           string // Environment (e.g., "DEV", "PROD")
	mux           *http.ServeMux
	routes        []string
	config        config.Config
	provider      *provider.Provider
	metrics       *metrics.Collector
	limiter       *RateLimiter
	authorizePage *template.Template
	logger        zerolog.Logger
}

type ServerOption func(*Server)

func WithLogger(logger zerolog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics exposes collector on /metrics.
func WithMetrics(collector *metrics.Collector) ServerOption {
	return func(s *Server) {
		s.metrics = collector
	}
}

func New(cfg config.Config, p *provider.Provider, options ...ServerOption) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("[Server New] config is required")
	}
	if p == nil {
		return nil, errors.New("[Server New] provider is required")
	}

	s := &Server{
		env:      cfg.GetEnv(),
		mux:      http.NewServeMux(),
		config:   cfg,
		provider: p,
		logger:   log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}

	page, err := ParseTemplate(authorizeTemplate)
	if err != nil {
		return nil, errors.Wrap(err, "[Server New] parsing authorization page")
	}
	s.authorizePage = page

	if cfg.GetEnableRateLimiting() {
		s.limiter = NewRateLimiter(cfg.GetTokenRateLimit(), cfg.GetTokenRateBurst(), s.logger)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// RateLimiter returns the token endpoint limiter, nil when rate limiting is disabled.
func (s *Server) RateLimiter() *RateLimiter {
	return s.limiter
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
			s.logRoute(parts[0], parts[1])
		} else {
			s.logRoute("", parts[0])
		}
	}
}

func (s *Server) logRoute(method, path string) {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	s.logger.Info().Msgf("[%-19s] %s", color+paddedMethod+ResetColor, path)
}
