// Package server exposes the conversation registry over HTTP for browser
// rendering layers. State changes are pushed as server-sent events.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"mediachat/internal/assets"
	"mediachat/internal/history"
	"mediachat/internal/logger"
)

// DefaultHeartbeat is the interval between SSE keep-alive events.
const DefaultHeartbeat = 30 * time.Second

// Options configures a Server.
type Options struct {
	// AllowedOrigins lists CORS origins. Empty allows any origin.
	AllowedOrigins []string
	// Assets serves /assets/:id when set.
	Assets assets.Store
	// Heartbeat overrides DefaultHeartbeat.
	Heartbeat time.Duration
}

// Server is the HTTP rendering API.
type Server struct {
	registry  *history.Registry
	assets    assets.Store
	heartbeat time.Duration
	engine    *gin.Engine

	retention   *retention
	unsubscribe func()

	// baseCtx outlives requests; background submissions run under it.
	baseCtx context.Context
	cancel  context.CancelFunc
}

// New creates a server for registry.
func New(registry *history.Registry, opts Options) *Server {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	baseCtx, cancel := context.WithCancel(context.Background())

	s := &Server{
		registry:  registry,
		assets:    opts.Assets,
		heartbeat: opts.Heartbeat,
		baseCtx:   baseCtx,
		cancel:    cancel,
	}
	if store, ok := opts.Assets.(assets.Retainer); ok {
		s.retention = newRetention(store)
		s.unsubscribe = registry.Subscribe(s.retention.observe)
	}
	s.engine = s.setupRouter(opts.AllowedOrigins)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) setupRouter(allowedOrigins []string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(requestLogger())
	router.Use(gin.Recovery())

	corsConfig := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = allowedOrigins
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Unix(),
		})
	})

	api := router.Group("/api")
	{
		api.GET("/state", s.getState)
		api.GET("/events", s.streamEvents)

		conversations := api.Group("/conversations")
		{
			conversations.POST("", s.createConversation)
			conversations.POST("/:id/select", s.selectConversation)
			conversations.PUT("/:id", s.renameConversation)
			conversations.DELETE("/:id", s.deleteConversation)
			conversations.POST("/:id/messages", s.postMessage)
			conversations.GET("/:id/export", s.exportConversation)
		}
	}

	if s.assets != nil {
		router.GET("/assets/:id", s.getAsset)
	}

	return router
}

// requestLogger logs every request through a "Server" component logger.
func requestLogger() gin.HandlerFunc {
	requests := logger.NewStyledLogger("Server")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		requests.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
	}

	logger.Info("HTTP server shutting down")
	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.registry.Wait()
	return nil
}

// Close cancels background submissions and ends open event streams.
func (s *Server) Close() {
	s.cancel()
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}
