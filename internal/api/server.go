package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oremus-labs/lockin/internal/handlers"
	"github.com/oremus-labs/lockin/internal/logutil"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options configures the HTTP server wiring.
type Options struct {
	APIToken       string
	GraphQLHandler http.Handler
}

// Server wraps the Gin engine and associated configuration.
type Server struct {
	engine *gin.Engine
}

// NewServer constructs a Server with all HTTP routes configured.
func NewServer(handler *handlers.Handler, opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery(), requestIDMiddleware(), metricsMiddleware(), requestLogger())

	// Health + meta
	engine.GET("/healthz", handler.Health)
	engine.GET("/openapi", handler.OpenAPISpec)
	engine.GET("/events", handler.StreamEvents)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Sessions
	engine.GET("/sessions", handler.ListSessions)
	engine.GET("/sessions/:id", handler.GetSession)
	engine.GET("/sessions/:id/messages", handler.SessionMessages)
	engine.GET("/session/:id/files", handler.SessionFiles)

	if opts.GraphQLHandler != nil {
		engine.GET("/graphql", gin.WrapH(opts.GraphQLHandler))
		engine.POST("/graphql", gin.WrapH(opts.GraphQLHandler))
	}

	protected := engine.Group("/")
	protected.Use(authMiddleware(opts.APIToken))

	protected.POST("/prompt", handler.SubmitPrompt)
	protected.POST("/github/sync", handler.SyncRepository)
	protected.GET("/jobs", handler.ListJobs)
	protected.GET("/jobs/:id", handler.GetJob)
	protected.GET("/history", handler.ListHistory)

	return &Server{engine: engine}
}

// Engine exposes the underlying Gin engine for advanced use (testing, etc.).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start launches the HTTP server on the provided address. There is no write
// timeout: /prompt and /events hold the response open for the whole stream.
func (s *Server) Start(addr string) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logutil.Error("http server stopped", err, map[string]interface{}{"addr": addr})
		}
	}()
	return srv
}

// Shutdown drains srv within timeout.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
