// Package server exposes the document registry and retrieval engine over
// HTTP with gin.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"docrag/config"
	"docrag/internal/usecase"
)

// Deps are the collaborators the handlers operate on.
type Deps struct {
	Registry      *usecase.Registry
	Retrieve      *usecase.RetrieveUseCase
	Extract       *usecase.ExtractUseCase
	DefaultSource string
	TopK          int
	Logger        *zap.Logger
}

type Server struct {
	cfg    config.ServerConfig
	deps   Deps
	logger *zap.Logger
	engine *gin.Engine
}

func New(cfg config.ServerConfig, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.TopK <= 0 {
		deps.TopK = 5
	}
	switch cfg.Mode {
	case gin.DebugMode, gin.TestMode, gin.ReleaseMode:
		gin.SetMode(cfg.Mode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger,
		engine: gin.New(),
	}
	s.engine.Use(
		recovery(s.logger),
		requestID(),
		accessLog(s.logger),
		requestTimeout(cfg.RequestTimeout),
	)
	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.engine
	r.GET("/healthz", s.health)
	r.GET("/stats", s.stats)
	r.GET("/search", s.search)

	docs := r.Group("/documents")
	docs.POST("", s.createDocument)
	docs.GET("", s.listDocuments)
	docs.GET("/:id", s.getDocument)
	docs.PUT("/:id", s.updateDocument)
	docs.DELETE("/:id", s.deleteDocument)
	docs.GET("/:id/chunks", s.listChunks)

	text := docs.Group("/:id/extract-text")
	text.GET("", s.extractText)
	text.GET("/search", s.searchText)
	text.PUT("/update", s.updateText)
	text.DELETE("/delete", s.deleteText)
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on cfg.Addr until ctx is cancelled, then drains in-flight
// requests for at most ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.engine,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
