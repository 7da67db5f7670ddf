package controlplane

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/openmined/vaultsync/internal/controlplane/handlers"
	"github.com/openmined/vaultsync/internal/controlplane/middleware"
	"github.com/openmined/vaultsync/internal/metrics"
	"github.com/openmined/vaultsync/internal/utils"
)

type Config struct {
	Addr  string
	Token string
}

// Server is the local http api of a watching syncer.
type Server struct {
	config *Config
	server *http.Server
}

func NewServer(config *Config, svc handlers.SyncService, m *metrics.Metrics) *Server {
	routes := SetupRoutes(svc, &RouteConfig{
		Auth:    middleware.TokenAuthConfig{Token: config.Token},
		Metrics: m,
	})

	httpServer := &http.Server{
		Addr:    config.Addr,
		Handler: routes,
		// Timeouts to prevent slow client attacks
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return &Server{
		config: config,
		server: httpServer,
	}
}

// Start listens on the configured address and blocks until Stop.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("control plane listen: %w", err)
	}
	return s.Serve(ln)
}

func (s *Server) Serve(ln net.Listener) error {
	slog.Info("control plane start", "addr", fmt.Sprintf("http://%s", ln.Addr()), "token", utils.MaskSecret(s.config.Token, 4))
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("control plane serve: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	slog.Info("control plane stop")
	return s.server.Shutdown(ctx)
}
