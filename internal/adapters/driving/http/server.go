// Package http exposes the session Q&A services over a JSON HTTP API.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/docqa/internal/core/ports/driving"
	"github.com/custodia-labs/docqa/internal/logger"
)

// Default server settings.
const (
	DefaultAddr           = ":8000"
	DefaultMaxUploadBytes = 50 << 20
	shutdownTimeout       = 15 * time.Second
)

// ErrMissingService is returned when a required port is nil.
var ErrMissingService = errors.New("http: ingest, query and session services are required")

// Ports aggregates the driving ports served over HTTP.
type Ports struct {
	Ingest  driving.IngestService
	Query   driving.QueryService
	Session driving.SessionService
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p == nil || p.Ingest == nil || p.Query == nil || p.Session == nil {
		return ErrMissingService
	}
	return nil
}

// Config holds server settings.
type Config struct {
	Addr           string
	AllowedOrigins []string
	MaxUploadBytes int64
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration

	// Metrics is served at /metrics when set.
	Metrics http.Handler
}

// Server is the HTTP API server.
type Server struct {
	ports  *Ports
	cfg    Config
	router *gin.Engine
	log    *slog.Logger
}

// NewServer builds the router for the given ports.
func NewServer(ports *Ports, cfg Config) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, err
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}

	s := &Server{
		ports:  ports,
		cfg:    cfg,
		router: gin.New(),
		log:    logger.Module("http", "server"),
	}
	s.router.MaxMultipartMemory = cfg.MaxUploadBytes
	s.router.Use(gin.Recovery(), requestLogger(s.log), cors(cfg.AllowedOrigins))
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	api := s.router.Group("/api")
	{
		api.POST("/upload", s.handleUpload)
		api.POST("/chat", s.handleChat)
		api.POST("/reset", s.handleReset)
		api.POST("/delete-embeddings", s.handleDeleteEmbeddings)
		api.GET("/sessions/:session_id", s.handleSessionStatus)
	}

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.cfg.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.cfg.Metrics))
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server starting", "addr", s.cfg.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.Info("HTTP server shutting down")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
