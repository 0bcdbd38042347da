// Package admin serves a read-only HTTP view of the control service.
package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/linfa/internal/manager"
	"github.com/danmuck/linfa/internal/observability"
	"github.com/danmuck/linfa/internal/protocol"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 5 * time.Second

// Source is the subset of the manager the admin view reads.
type Source interface {
	Status() protocol.Status
	Connected() bool
	Definition() string
	MaxHeartbeatDelay() time.Duration
	LastActivity() time.Time
	ControlAddr() string
	PublishAddr() string
}

type Server struct {
	Addr     string
	Started  time.Time
	Versions manager.Versions

	src    Source
	router *gin.Engine
}

type StatusView struct {
	Status            string `json:"status"`
	Connected         bool   `json:"connected"`
	DefinitionBytes   int    `json:"definition_bytes"`
	MaxHeartbeatDelay string `json:"max_heartbeat_delay"`
	LastActivity      string `json:"last_activity"`
	ControlEndpoint   string `json:"control_endpoint"`
	PublishEndpoint   string `json:"publish_endpoint,omitempty"`
	ServiceVersion    string `json:"service_version"`
	ExecutorVersion   string `json:"executor_version"`
}

func New(addr string, src Source, versions manager.Versions, corsOrigins []string) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	s := &Server{
		Addr:     addr,
		Started:  time.Now(),
		Versions: versions,
		src:      src,
		router:   r,
	}

	r.Use(gin.Recovery())
	r.Use(observability.ExecutorStatus(s))
	r.Use(observability.RequestLogger(log.Logger, s))
	r.Use(observability.RequestMetrics())
	r.Use(cors.New(cors.Config{
		AllowOrigins:  normalizeOrigins(corsOrigins),
		AllowMethods:  []string{"GET"},
		AllowHeaders:  []string{"Origin", "Content-Type"},
		ExposeHeaders: []string{observability.StatusHeader},
		MaxAge:        12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s.registerRoutes()
	return s
}

// StatusName is the current executor status.
func (s *Server) StatusName() string {
	return s.src.Status().String()
}

func (s *Server) ControlAddr() string {
	return s.src.ControlAddr()
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Started).String(),
			"version": s.Versions.Service,
		})
	})

	s.router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.Snapshot())
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Snapshot reads the current status view.
func (s *Server) Snapshot() StatusView {
	view := StatusView{
		Status:            s.src.Status().String(),
		Connected:         s.src.Connected(),
		DefinitionBytes:   len(s.src.Definition()),
		MaxHeartbeatDelay: s.src.MaxHeartbeatDelay().String(),
		ControlEndpoint:   s.src.ControlAddr(),
		PublishEndpoint:   s.src.PublishAddr(),
		ServiceVersion:    s.Versions.Service,
		ExecutorVersion:   s.Versions.Executor,
	}
	if last := s.src.LastActivity(); !last.IsZero() {
		view.LastActivity = last.UTC().Format(time.RFC3339Nano)
	}
	return view
}

// Serve listens on Addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.Addr).Msg("admin.Server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
