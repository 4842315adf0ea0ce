package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// newRouter returns the router shared by both HTTP transports: request ids,
// panic recovery, access logging and an unauthenticated health check.
func newRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// lifecycle owns the listening *http.Server. Start and Shutdown are called
// from different goroutines; once shut down, a later start returns
// http.ErrServerClosed instead of listening.
type lifecycle struct {
	mu     sync.Mutex
	server *http.Server
	closed bool
}

func (l *lifecycle) listenAndServe(addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		WriteTimeout:      defaultWriteTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return http.ErrServerClosed
	}
	l.server = srv
	l.mu.Unlock()

	return srv.ListenAndServe()
}

func (l *lifecycle) shutdown(ctx context.Context) error {
	l.mu.Lock()
	srv := l.server
	l.closed = true
	l.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// HTTPServer serves MCP over streamable HTTP without authentication.
type HTTPServer struct {
	mcpServer   *mcpserver.MCPServer
	mcpEndpoint string
	lifecycle   lifecycle
}

// NewHTTPServer creates a streamable-HTTP server for MCP.
func NewHTTPServer(mcpSrv *mcpserver.MCPServer, mcpEndpoint string) *HTTPServer {
	return &HTTPServer{
		mcpServer:   mcpSrv,
		mcpEndpoint: mcpEndpoint,
	}
}

// Handler returns the routed handler; exposed for tests.
func (s *HTTPServer) Handler() http.Handler {
	r := newRouter()
	r.Handle(s.mcpEndpoint, mcpserver.NewStreamableHTTPServer(s.mcpServer,
		mcpserver.WithEndpointPath(s.mcpEndpoint),
	))
	return r
}

// Start listens on addr and blocks until the server stops.
func (s *HTTPServer) Start(addr string) error {
	return s.lifecycle.listenAndServe(addr, s.Handler())
}

// Shutdown gracefully shuts down the server. It is safe to call before or
// concurrently with Start.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.lifecycle.shutdown(ctx)
}
