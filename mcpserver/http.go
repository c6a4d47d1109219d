package mcpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// EndpointPath serves the Streamable HTTP transport.
	EndpointPath = "/mcp"
	// HealthPath answers liveness probes without authentication.
	HealthPath = "/healthz"

	defaultShutdownTimeout = 10 * time.Second
)

// HTTPConfig configures the Streamable HTTP front end.
type HTTPConfig struct {
	Addr string
	// JWTSecret enables bearer authentication on EndpointPath when set.
	JWTSecret string
	// ShutdownTimeout bounds graceful shutdown after ctx is canceled.
	ShutdownTimeout time.Duration
}

// Handler returns the HTTP routes for cfg.
func (s *Server) Handler(cfg HTTPConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get(HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	streamable := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)

	r.Group(func(r chi.Router) {
		if cfg.JWTSecret != "" {
			r.Use(BearerAuth([]byte(cfg.JWTSecret)))
		}
		r.Handle(EndpointPath, streamable)
	})
	return r
}

// ListenAndServe serves the HTTP front end on cfg.Addr until ctx is canceled,
// then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, cfg HTTPConfig) error {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("AILANG MCP Server running",
			slog.String("name", s.name),
			slog.String("version", s.version),
			slog.String("addr", cfg.Addr),
			slog.String("path", EndpointPath),
			slog.Bool("auth", cfg.JWTSecret != ""),
		)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
