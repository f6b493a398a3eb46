package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Server wraps http.Server
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// NewServer builds the API server and ties it to the fx lifecycle
func NewServer(lc fx.Lifecycle, port int, handler http.Handler, logger *zap.Logger) *Server {
	s := &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      handler,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 20 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", s.server.Addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
			}
			go s.serve(ln)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := s.server.Shutdown(ctx); err != nil {
				logger.Error("failed to shut down http server", zap.Error(err))
				return err
			}
			logger.Info("http server stopped")
			return nil
		},
	})

	return s
}

func (s *Server) serve(ln net.Listener) {
	s.logger.Info("starting http server", zap.String("addr", s.server.Addr))
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("http server failed", zap.Error(err))
	}
}
