package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/gfranca/leadflow/internal/config"
	"github.com/gfranca/leadflow/internal/httpapi"
)

// Server manages the dashboard HTTP listener for a session daemon.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	addr       string
	logger     *zap.Logger
}

// NewServer creates an HTTP server bound to the configured listen address.
func NewServer(p Params, cfg *config.Config, api *httpapi.Server, logger *zap.Logger) (*Server, error) {
	addr := p.Listen
	if addr == "" {
		addr = cfg.Server.Listen
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	return &Server{
		httpServer: &http.Server{
			Handler:           api.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		listener: listener,
		addr:     listener.Addr().String(),
		logger:   logger,
	}, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Start begins serving HTTP requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("http server starting", zap.String("addr", s.addr))
	if err := s.httpServer.Serve(s.listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop performs a graceful shutdown.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("http server stopping")
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = s.httpServer.Shutdown(ctx)
}
