package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/coursepilot/coursepilot/pkg/config"
	"github.com/coursepilot/coursepilot/pkg/event"
	"github.com/coursepilot/coursepilot/pkg/handler"
	"github.com/coursepilot/coursepilot/pkg/service"
	"github.com/coursepilot/coursepilot/pkg/utils"
	"github.com/gin-gonic/gin"
)

// Server hosts the HTTP API and the WebSocket event stream.
type Server struct {
	ginEngine *gin.Engine
	logger    *slog.Logger
	cfg       *config.AppConfig
	port      int
}

// NewServer builds the gin engine with CORS and static middleware. Routes
// are registered by SetupRoutes once the services exist.
func NewServer(cfg *config.AppConfig) *Server {
	gin.SetMode(gin.ReleaseMode)
	ginEngine := gin.New()
	ginEngine.Use(gin.Recovery())

	// CORS middleware: allow common localhost dev origins.
	ginEngine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// If there's no Origin header, it's not a browser CORS request.
		if origin != "" {
			allowed := strings.HasPrefix(origin, "http://localhost") ||
				strings.HasPrefix(origin, "http://127.0.0.1") ||
				strings.HasPrefix(origin, "https://localhost") ||
				strings.HasPrefix(origin, "https://127.0.0.1")

			if allowed {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
				c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
			} else {
				// Reject unknown origins.
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	attachStatic(ginEngine)

	return &Server{
		ginEngine: ginEngine,
		logger:    utils.GetLogger(),
		cfg:       cfg,
	}
}

// SetupRoutes registers all API routes on the engine.
func (s *Server) SetupRoutes(sessions *service.SessionStore, tutor *service.TutorService, catalog *service.CatalogService) {
	sessionHandler := handler.NewSessionHandler(tutor, sessions, s.logger)
	catalogHandler := handler.NewCatalogHandler(catalog, s.logger)
	wsHandler := event.NewWSHandler(event.Global(), s.logger)

	s.ginEngine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API group
	// /api
	apiGroup := s.ginEngine.Group("/api")

	sessionHandler.RegisterRoutes(apiGroup)
	catalogHandler.RegisterRoutes(apiGroup)

	// Event push for the web UI
	// /api/events/ws
	apiGroup.GET("/events/ws", wsHandler.Handle)
}

// Start binds the listener and serves until ctx is cancelled. The port comes
// from COURSEPILOT_PORT when set, else the config file.
func (s *Server) Start(ctx context.Context) error {
	port := s.cfg.Port()
	if v := os.Getenv("COURSEPILOT_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 && p <= 65535 {
			port = p
		} else {
			s.logger.Warn("Invalid COURSEPILOT_PORT value, falling back to config", "value", v)
		}
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host(), port)
	srv := &http.Server{Addr: addr, Handler: s.ginEngine}

	// Attempt to listen first; if the port is occupied return immediately.
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}

	// Record the actual port (useful if we ever switch to :0).
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port = tcpAddr.Port
	} else {
		s.port = port
	}
	s.logger.Info("Server listening", "addr", ln.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(ln)
	}()

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	err = <-errChan
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
