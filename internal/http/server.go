package http

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/autoscripty/internal/access"
	"github.com/autoscripty/internal/auth"
	"github.com/autoscripty/internal/config"
	"github.com/autoscripty/internal/cookies"
	"github.com/autoscripty/internal/domain"
	"github.com/autoscripty/internal/metrics"
	"github.com/autoscripty/internal/service"
)

// Dependencies are the provider ports the server is wired to
type Dependencies struct {
	Identity domain.IdentityProvider
	Scripts  domain.ScriptStore
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Server wraps the HTTP server
type Server struct {
	config        *config.Config
	engine        *gin.Engine
	gateway       *auth.Gateway
	scriptService domain.ScriptService
	cookies       *cookies.Codec
	access        *access.Middleware
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, deps Dependencies) *Server {
	// Set Gin mode based on environment
	switch cfg.Environment {
	case "production":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	codec := cookies.NewCodec(cfg.Session)
	accessMiddleware := access.NewMiddleware(cfg.Access.Policy, codec, deps.Identity, deps.Metrics, logger)

	// Middleware - order matters
	engine.Use(securityHeadersMiddleware())
	engine.Use(corsMiddleware(cfg))
	engine.Use(cacheControlMiddleware())
	engine.Use(loggerMiddleware())
	engine.Use(metricsMiddleware(deps.Metrics))
	engine.Use(jsonBodyLimitMiddleware(maxBodySize))
	engine.Use(accessMiddleware.Handler())

	// Request body size limit
	engine.MaxMultipartMemory = maxBodySize
	engine.SetHTMLTemplate(template.Must(template.ParseFS(templateFS, "templates/*.html")))

	server := &Server{
		config:        cfg,
		engine:        engine,
		gateway:       auth.NewGateway(deps.Identity, deps.Metrics, logger),
		scriptService: service.NewScriptService(deps.Scripts, deps.Metrics, logger),
		cookies:       codec,
		access:        accessMiddleware,
		metrics:       deps.Metrics,
		logger:        logger,
	}

	// Setup routes
	server.setupRoutes()

	return server
}

const (
	maxBodySize     = 1 << 20          // 1MB max request body
	readTimeout     = 30 * time.Second // 30s for reading request
	writeTimeout    = 30 * time.Second
	idleTimeout     = 120 * time.Second // 2 minutes idle
	shutdownTimeout = 10 * time.Second
)

// Handler returns the root handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run starts the HTTP server and shuts it down when ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	addr := s.config.ServerAddress
	if addr == "" {
		addr = ":8080"
	}

	// Configure server with timeouts
	server := &http.Server{
		Addr:           addr,
		Handler:        s.engine,
		ReadTimeout:    readTimeout,
		WriteTimeout:   writeTimeout,
		IdleTimeout:    idleTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB max header size
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// securityHeadersMiddleware adds security-related HTTP headers
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Prevent MIME type sniffing
		c.Writer.Header().Set("X-Content-Type-Options", "nosniff")
		// Prevent clickjacking
		c.Writer.Header().Set("X-Frame-Options", "DENY")
		// Enable XSS protection
		c.Writer.Header().Set("X-XSS-Protection", "1; mode=block")
		// Referrer policy
		c.Writer.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		// HSTS (only if using HTTPS)
		if c.Request.TLS != nil {
			c.Writer.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}

// corsMiddleware adds CORS headers with configurable origin
func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Check if origin is in allowed list
		allowed := false
		for _, allowedOrigin := range cfg.CORS.AllowedOrigins {
			if origin == allowedOrigin {
				allowed = true
				break
			}
		}

		if allowed {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// cacheControlMiddleware sets cache headers. Anything that depends on the
// session must never be cached.
func cacheControlMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path

		switch {
		case strings.HasPrefix(path, "/api/"), strings.HasPrefix(path, "/auth/"), strings.HasPrefix(path, "/studio"):
			c.Writer.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
			c.Writer.Header().Set("Pragma", "no-cache")
			c.Writer.Header().Set("Expires", "0")
		case strings.HasPrefix(path, "/static/"):
			// Unversioned files; cache for a day
			c.Writer.Header().Set("Cache-Control", "public, max-age=86400")
		}

		c.Next()
	}
}

// jsonBodyLimitMiddleware limits the size of JSON request bodies to prevent DoS
func jsonBodyLimitMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Only apply to JSON requests
		if c.Request.Method != "GET" && c.Request.Method != "DELETE" && c.Request.Method != "OPTIONS" {
			contentType := c.GetHeader("Content-Type")
			if strings.Contains(contentType, "application/json") {
				if c.Request.ContentLength > maxBytes {
					c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
						"error": "Request body too large",
					})
					return
				}
				// Wrap the request body with MaxBytesReader
				c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
			}
		}
		c.Next()
	}
}

// loggerMiddleware logs HTTP requests
func loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		slog.InfoContext(c.Request.Context(), "HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"remote_addr", c.Request.RemoteAddr,
		)
		c.Next()
	}
}

// metricsMiddleware records request durations by route template
func metricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
