// Package server exposes the studio over HTTP: a websocket that streams a
// run as it happens, a small runs API and the tenant check page.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"BlogCrew/internal/session"
	"BlogCrew/internal/studio"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

//go:embed web
var webFS embed.FS

const shutdownTimeout = 10 * time.Second

// Server is the HTTP surface of a Studio.
type Server struct {
	studio   *studio.Studio
	logger   *slog.Logger
	tenants  TenantPolicy
	upgrader websocket.Upgrader
	engine   *gin.Engine
}

// New builds the router. Request logs go through the studio logger.
func New(st *studio.Studio) *Server {
	cfg := st.Config()
	s := &Server{
		studio: st,
		logger: st.Logger().With("component", "server"),
		tenants: TenantPolicy{
			Claim:   cfg.TenantClaim,
			Allowed: cfg.AllowedTenants,
		},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", PrincipalHeader},
		ExposeHeaders: []string{"Content-Length"},
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/ws"})))

	static, _ := fs.Sub(webFS, "web")
	r.GET("/", func(c *gin.Context) {
		c.FileFromFS("/", http.FS(static))
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ws", s.handleWebSocket)

	api := r.Group("/api")
	{
		runs := api.Group("/runs")
		{
			runs.GET("", s.listRuns)
			runs.POST("", s.createRun)
			runs.GET("/:id", s.getRun)
		}
		api.GET("/tenant", s.handleTenant)
	}

	s.engine = r
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

type createRunRequest struct {
	Topic string `json:"topic" binding:"required"`
}

type runResponse struct {
	RunID     string `json:"run_id"`
	Completed bool   `json:"completed"`
	Original  string `json:"original"`
	Reviewed  string `json:"reviewed"`
	Report    string `json:"report"`
	Review    string `json:"review"`
	Final     string `json:"final"`
}

// createRun performs a run synchronously. The request context bounds it, so
// a client that goes away cancels the run.
func (s *Server) createRun(c *gin.Context) {
	var req createRunRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Topic) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "topic is required"})
		return
	}

	res, err := s.studio.Write(c.Request.Context(), req.Topic, nil)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, context.Canceled) {
			status = 499
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, runResponse{
		RunID:     res.RunID,
		Completed: res.Completed,
		Original:  res.Original.Content,
		Reviewed:  res.Reviewed.Content,
		Report:    res.Panel.Report.String(),
		Review:    res.Panel.Review.Content,
		Final:     res.Panel.Final.Content,
	})
}

func (s *Server) listRuns(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	runs, err := s.studio.Store().List(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list runs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) getRun(c *gin.Context) {
	t, err := s.studio.Store().Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, session.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		s.logger.Error("failed to load run", "run_id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load run"})
		return
	}
	c.JSON(http.StatusOK, t)
}
