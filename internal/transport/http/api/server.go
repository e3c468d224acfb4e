package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/basel-ax/promptpix/internal/config"
	"github.com/basel-ax/promptpix/internal/domain"
	"github.com/basel-ax/promptpix/internal/metrics"
	"github.com/gin-gonic/gin"
)

// Server owns the gin engine and the HTTP listener
type Server struct {
	engine          *gin.Engine
	srv             *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// NewServer builds the router and binds it to the configured address. m may be nil.
func NewServer(cfg *config.Config, svc domain.ImageGenerationService, m *metrics.Metrics, logger *slog.Logger) *Server {
	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.Use(
		requestID(),
		requestLogger(logger),
		recovery(),
		corsMiddleware(cfg.Server.AllowedOrigins),
	)

	h := &handler{service: svc}
	engine.GET("/", h.home)
	engine.POST("/generate-image", h.generateImage)
	engine.GET("/healthz", h.health)
	if m != nil {
		engine.GET("/metrics", gin.WrapH(m.Handler()))
	}
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found."})
	})
	engine.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed."})
	})

	return &Server{
		engine: engine,
		srv: &http.Server{
			Addr:              cfg.GetAddr(),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdownTimeout: cfg.Server.ShutdownTimeout,
		logger:          logger,
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown waits for in-flight requests up to the shutdown timeout, then closes the listener.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.logger.Info("http server shutting down")
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Warn("graceful shutdown timed out, closing connections", "error", err)
		return s.srv.Close()
	}
	return nil
}
