package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/docqa/internal/logger"
)

// Version is reported to clients during initialisation.
const Version = "0.1.0"

// shutdownTimeout bounds how long in-flight tool calls may run after the
// HTTP transport is asked to stop.
const shutdownTimeout = 5 * time.Second

// Server answers questions about session documents for MCP clients.
//
// The ask tool is always registered. The ingest and reset tools and the
// docqa://sessions/{sessionId} resource appear only when the matching
// ports are wired, so a read-only deployment exposes ask alone.
type Server struct {
	ports  *Ports
	server *mcp.Server
	log    *slog.Logger
}

// NewServer registers the tools and resources backed by ports.
// Ports must carry at least a query service.
func NewServer(ports *Ports) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("validating ports: %w", err)
	}

	s := &Server{
		ports:  ports,
		server: mcp.NewServer(&mcp.Implementation{Name: "docqa", Version: Version}, nil),
		log:    logger.Module("mcp", "server"),
	}
	s.registerTools()
	s.registerResources()
	return s, nil
}

// Run serves a single client over stdin and stdout until ctx is done or
// the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves the streamable HTTP transport on addr until ctx is done.
// Every connection shares the same sessions, so clients that pass the same
// session_id see the same documents.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.httpHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("mcp http shutdown incomplete", "error", err)
		}
	}()

	s.log.Info("mcp http transport starting", "addr", addr)
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving mcp over http: %w", err)
	}
	return nil
}

func (s *Server) httpHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)
}
