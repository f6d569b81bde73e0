package logserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"cipherlog/internal/domain"
)

const shutdownTimeout = 5 * time.Second

// Mode selects the gin mode.
const (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

// Config configures the daemon.
type Config struct {
	Addr string
	Mode string
	// ClockSkew bounds the age of signed requests (default DefaultClockSkew).
	ClockSkew time.Duration
	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// Server exposes a domain.Backend over HTTP.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	backend    domain.Backend
	auth       *authenticator
	metrics    *metrics
	log        *zap.Logger
}

// New builds the server and its routes. A nil logger discards output.
func New(cfg Config, backend domain.Backend, log *zap.Logger) *Server {
	switch cfg.Mode {
	case ReleaseMode:
		gin.SetMode(gin.ReleaseMode)
	case TestMode:
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		engine:  engine,
		backend: backend,
		auth:    newAuthenticator(backend, cfg.ClockSkew, cfg.Clock),
		metrics: newMetrics(),
		log:     log.Named("logd"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.Use(requestIDMiddleware())
	s.engine.Use(loggingMiddleware(s.log))
	s.engine.Use(s.metrics.middleware())

	s.engine.GET("/healthz", health)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})))

	v1 := s.engine.Group("/v1")
	{
		v1.POST("/records", s.publish)
		v1.GET("/records/:schema/:publisher", s.readSlot)
		v1.PUT("/registry/:address", s.register)
		v1.GET("/registry/:address", s.fetch)
	}
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info("stopped")
	return nil
}
