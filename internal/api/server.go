package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/wonny/aegis-defense/pkg/config"
	"github.com/wonny/aegis-defense/pkg/logger"
)

// 분류 결과는 읽기 전용 JSON이라 응답이 짧음
const (
	readTimeout     = 10 * time.Second
	writeTimeout    = 15 * time.Second
	idleTimeout     = 60 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Server serves the defense read API (and /metrics when mounted)
type Server struct {
	http *http.Server
	log  *logger.Logger
}

// New builds the server for cfg.Port
func New(cfg *config.Config, log *logger.Logger, router http.Handler) *Server {
	return &Server{
		http: &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      router,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  idleTimeout,
		},
		log: log.WithFields(map[string]interface{}{
			"component": "defense-api",
			"benchmark": cfg.Defense.Benchmark,
			"metrics":   cfg.MetricsEnabled,
		}),
	}
}

// Addr listen address, e.g. ":8089"
func (s *Server) Addr() string {
	return s.http.Addr
}

// Start blocks until Shutdown, a closed server is not an error
func (s *Server) Start() error {
	s.log.WithField("addr", s.http.Addr).Info("Defense API listening")

	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("defense api listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests, bounded by shutdownTimeout
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	s.log.Info("Defense API shutting down")
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("defense api shutdown: %w", err)
	}
	return nil
}
