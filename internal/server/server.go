// Package server exposes run control over HTTP for a dashboard.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"social-checker/internal/control"
	"social-checker/internal/export"
	"social-checker/internal/manager"
	"social-checker/internal/parser"
	"social-checker/internal/platform"
	"social-checker/pkg/types"
)

// Options configures the API
type Options struct {
	// APIToken, when set, is required as a bearer token on /api routes
	APIToken string
	Dedupe   bool
	Export   export.Options
	// RunContext parents every run started through the API
	RunContext context.Context
}

// Server routes HTTP requests to the manager
type Server struct {
	manager  *manager.Manager
	registry *platform.Registry
	hub      *Hub
	opts     Options
	logger   *zap.Logger
	router   *gin.Engine
}

// New builds the router and registers the websocket hub as a reporter
func New(m *manager.Manager, registry *platform.Registry, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RunContext == nil {
		opts.RunContext = context.Background()
	}

	s := &Server{
		manager:  m,
		registry: registry,
		hub:      NewHub(logger),
		opts:     opts,
		logger:   logger,
	}
	m.AddReporter(s.hub)
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the websocket hub
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api", s.authMiddleware())
	{
		api.GET("/platforms", s.listPlatforms)
		api.POST("/run", s.startRun)
		api.GET("/run", s.runStatus)
		api.POST("/run/pause", s.control(s.manager.Pause))
		api.POST("/run/resume", s.control(s.manager.Resume))
		api.POST("/run/stop", s.control(s.manager.Stop))
		api.GET("/run/results", s.results)
		api.GET("/run/events", func(c *gin.Context) {
			s.hub.ServeHTTP(c.Writer, c.Request)
		})
	}
	return router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.opts.APIToken == "" {
			c.Next()
			return
		}

		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			// browsers cannot set headers on websocket requests
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No authorization token provided"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.APIToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		c.Next()
	}
}

func (s *Server) listPlatforms(c *gin.Context) {
	c.JSON(http.StatusOK, s.registry.List())
}

type startRequest struct {
	Platform string   `json:"platform" form:"platform"`
	Accounts []string `json:"accounts"`
}

func (s *Server) startRun(c *gin.Context) {
	var (
		req     startRequest
		entries []types.AccountEntry
		err     error
	)
	popts := parser.Options{Dedupe: s.opts.Dedupe}

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		req.Platform = c.PostForm("platform")
		fh, ferr := c.FormFile("file")
		if ferr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "accounts file is required"})
			return
		}
		f, ferr := fh.Open()
		if ferr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": ferr.Error()})
			return
		}
		entries, err = parser.Parse(f, popts)
		f.Close()
	} else {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		entries, err = parser.ParseLines(req.Accounts, popts)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	run, err := s.manager.Start(s.opts.RunContext, entries, req.Platform)
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, run.Status())
}

func (s *Server) runStatus(c *gin.Context) {
	run := s.manager.Current()
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": manager.ErrNoRun.Error()})
		return
	}
	c.JSON(http.StatusOK, run.Status())
}

func (s *Server) control(cmd func() error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := cmd(); err != nil {
			c.JSON(errorStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, s.manager.Current().Status())
	}
}

func (s *Server) results(c *gin.Context) {
	run := s.manager.Current()
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": manager.ErrNoRun.Error()})
		return
	}

	bucket, err := export.ParseBucket(c.DefaultQuery("bucket", string(export.BucketAll)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	results := export.Select(run.Snapshot(), bucket, s.opts.Export)

	format := c.DefaultQuery("format", "json")
	if format == "json" {
		c.JSON(http.StatusOK, results)
		return
	}
	f, err := export.ParseFormat(format)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", f.ContentType())
	c.Header("Content-Disposition", `attachment; filename="`+export.FileName(bucket, run.Platform, f)+`"`)
	c.Status(http.StatusOK)
	if err := export.Write(c.Writer, results, f, s.opts.Export); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		s.logger.Warn("writing export", zap.Error(err))
	}
}

func errorStatus(err error) int {
	var inputErr *parser.InputError
	switch {
	case errors.As(err, &inputErr), errors.Is(err, platform.ErrUnknownPlatform):
		return http.StatusBadRequest
	case errors.Is(err, manager.ErrNoRun):
		return http.StatusNotFound
	case errors.Is(err, manager.ErrRunActive), errors.Is(err, control.ErrInvalidTransition):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
