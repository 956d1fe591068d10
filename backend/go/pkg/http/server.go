package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"gemini_agent_api/backend/go/internal/config"
	"gemini_agent_api/backend/go/pkg/logger"
	"gemini_agent_api/backend/go/pkg/ratelimiter"

	"github.com/go-redis/redis/v8"
)

// Server wraps the standard http.Server with the timeouts and lifecycle
// logging used by every API process.
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
}

// ServerOption defines a function for configuring a Server.
type ServerOption func(*Server)

// WithAddress sets the address for the server to listen on.
func WithAddress(addr string) ServerOption {
	return func(s *Server) {
		s.httpServer.Addr = addr
	}
}

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(l *logger.Logger) ServerOption {
	return func(s *Server) {
		s.log = l
	}
}

// NewServer creates a Server serving handler with the timeouts from cfg.
// The listen address defaults to cfg.Address().
func NewServer(cfg config.ServerConfig, handler http.Handler, opts ...ServerOption) (*Server, error) {
	readTimeout, err := config.ParseDuration(cfg.ReadTimeout, 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid read timeout: %w", err)
	}
	writeTimeout, err := config.ParseDuration(cfg.WriteTimeout, 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid write timeout: %w", err)
	}

	srv := &Server{
		httpServer: &http.Server{
			Addr:              cfg.Address(),
			Handler:           handler,
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      writeTimeout,
		},
		log: logger.New("http-server", "", ""),
	}

	for _, opt := range opts {
		opt(srv)
	}

	if srv.httpServer.Addr == "" || srv.httpServer.Addr == ":0" {
		srv.httpServer.Addr = ":8000"
	}
	return srv, nil
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// ListenAndServe starts the HTTP server. It returns nil after a graceful Shutdown.
func (s *Server) ListenAndServe() error {
	if s.httpServer.Addr == "" {
		return fmt.Errorf("server address is not set")
	}
	s.log.WithField("address", s.httpServer.Addr).Info("starting HTTP server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// NewRateLimiter initializes a rate limiter based on the configuration.
// rdb is only required by the "redisFixedWindow" algorithm.
func NewRateLimiter(cfg config.RateLimiterConfig, rdb *redis.Client) (ratelimiter.RateLimiter, error) {
	algorithm := cfg.Algorithm
	if algorithm == "" {
		algorithm = "fixedWindow"
	}

	switch algorithm {
	case "tokenBucket":
		conf := cfg.TokenBucket
		if conf.Rate <= 0 {
			return nil, fmt.Errorf("invalid tokenBucket rate: %v", conf.Rate)
		}
		return ratelimiter.NewTokenBucket(conf.Rate, conf.Capacity), nil
	case "fixedWindow", "redisFixedWindow":
		conf := cfg.FixedWindow
		window, err := time.ParseDuration(conf.Window)
		if err != nil {
			return nil, fmt.Errorf("invalid fixedWindow duration: %w", err)
		}
		if conf.Limit <= 0 || window <= 0 {
			return nil, fmt.Errorf("invalid fixedWindow limit %d per %s", conf.Limit, window)
		}
		if algorithm == "fixedWindow" {
			return ratelimiter.NewFixedWindowCounter(conf.Limit, window), nil
		}
		if rdb == nil {
			return nil, errors.New("redisFixedWindow requires a redis client")
		}
		return ratelimiter.NewRedisFixedWindow(rdb, conf.Limit, window, "agent-api:ratelimit:"), nil
	default:
		return nil, fmt.Errorf("unknown rate limiter algorithm: %s", cfg.Algorithm)
	}
}
