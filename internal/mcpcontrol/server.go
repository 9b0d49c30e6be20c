package mcpcontrol

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"devctl/internal/reporting"
	"devctl/pkg/logging"
)

// Stopper receives stop requests from MCP clients.
type Stopper interface {
	Stop()
}

// Config configures the control server.
type Config struct {
	Host    string
	Port    int
	Version string
}

// Server is the MCP control server of one devctl run.
type Server struct {
	config Config
	tools  *Tools

	mu        sync.Mutex
	mcpServer *server.MCPServer
	sseServer *server.SSEServer
	// errc receives the listener error if serving stops on its own.
	errc      chan error
}

// NewServer creates a control server. It does not listen until Start.
func NewServer(config Config, store *reporting.StateStore, tail *reporting.LogTail, stopper Stopper) *Server {
	if config.Host == "" {
		config.Host = "localhost"
	}
	if config.Version == "" {
		config.Version = "dev"
	}
	return &Server{
		config: config,
		tools:  NewTools(store, tail, stopper),
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// Start begins serving and returns once the listener goroutine runs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mcpServer != nil {
		return fmt.Errorf("control server already started")
	}

	s.mcpServer = server.NewMCPServer(
		"devctl",
		s.config.Version,
		server.WithToolCapabilities(false),
	)
	s.mcpServer.AddTools(s.tools.ServerTools()...)

	baseURL := fmt.Sprintf("http://%s", s.Addr())
	s.sseServer = server.NewSSEServer(
		s.mcpServer,
		server.WithBaseURL(baseURL),
		server.WithSSEEndpoint("/sse"),
		server.WithMessageEndpoint("/message"),
		server.WithKeepAlive(true),
		server.WithKeepAliveInterval(30*time.Second),
	)

	logging.Info("MCP", "Starting control server on %s/sse", baseURL)
	sse := s.sseServer
	errc := make(chan error, 1)
	s.errc = errc
	go func() {
		if err := sse.Start(s.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("MCP", err, "Control server stopped")
			errc <- err
		}
	}()
	return nil
}

// Run serves until ctx is done, then shuts the server down. It returns the
// listener error when serving fails, e.g. because the port is taken.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	errc := s.errc
	s.mu.Unlock()

	var serveErr error
	select {
	case <-ctx.Done():
	case err := <-errc:
		serveErr = fmt.Errorf("control server on %s: %w", s.Addr(), err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(shutdownCtx); err != nil && serveErr == nil {
		return err
	}
	return serveErr
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	sse := s.sseServer
	s.sseServer = nil
	s.mcpServer = nil
	s.mu.Unlock()

	if sse == nil {
		return nil
	}
	logging.Debug("MCP", "Stopping control server")
	if err := sse.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down control server: %w", err)
	}
	return nil
}
