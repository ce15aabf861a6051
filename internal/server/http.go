package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reflexapp/reflex-backend/internal/config"
	"github.com/reflexapp/reflex-backend/internal/logger"
)

// Registrar mounts a feature's routes onto the router. Each channel package
// exposes one, so main only assembles the list.
type Registrar interface {
	Register(router *gin.Engine)
}

// Server wraps the HTTP listener that carries the socket endpoints.
type Server struct {
	http *http.Server
}

// New builds the router, mounts every registrar plus the health endpoint,
// and binds the listener address from config.
func New(cfg *config.Config, registrars ...Registrar) *Server {
	if cfg.App.ENV == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	for _, r := range registrars {
		r.Register(router)
	}

	return &Server{
		http: &http.Server{
			Addr:              net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	logger.Info("http server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests. Long-lived sockets are hijacked
// connections and close with the process.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
