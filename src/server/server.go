package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stock-pulse/src/broadcast"
	"stock-pulse/src/logger"
	"stock-pulse/src/models"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

type Server struct {
	Config  *models.MConfig
	Logger  *logger.Logger
	Service *broadcast.Service

	engine *gin.Engine
	http   *http.Server
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewServer(cfg *models.MConfig, svc *broadcast.Service, log *logger.Logger) *Server {
	// Set Gin mode
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		Config:  cfg,
		Logger:  log,
		Service: svc,
		engine:  gin.Default(),
	}

	// Add CORS Middleware
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// REST API endpoints
	s.engine.GET("/api/health", s.getHealth)
	s.engine.GET("/api/stats", s.getStats)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Admin endpoints
	s.engine.POST("/api/admin/market-status", s.postMarketStatus)
	s.engine.PUT("/api/admin/symbols", s.putSymbols)

	// WebSocket endpoint
	s.engine.GET("/ws", s.handleWebSocket)
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.Logger.Info("Starting server on %s", addr)

	s.http = &http.Server{
		Addr:    addr,
		Handler: s.engine,
	}

	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Handler exposes the gin engine, used by tests with httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *Server) getHealth(c *gin.Context) {
	stats := s.Service.GetStats()
	c.JSON(200, gin.H{
		"status":      "healthy",
		"connections": stats.ConnectionCount,
		"uptime":      stats.UptimeSeconds,
		"market_open": stats.MarketOpen,
	})
}

// -----------------------------------------------------------------------------

func (s *Server) getStats(c *gin.Context) {
	c.JSON(200, s.Service.GetStats())
}

// -----------------------------------------------------------------------------

// postMarketStatus triggers a market-status category broadcast.
func (s *Server) postMarketStatus(c *gin.Context) {
	var payload models.MMarketStatusPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(400, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}
	if payload.Status != "open" && payload.Status != "closed" {
		c.JSON(400, gin.H{"error": "status must be \"open\" or \"closed\""})
		return
	}

	s.Service.BroadcastMarketStatus(payload)
	c.JSON(202, gin.H{"queued": true})
}

// -----------------------------------------------------------------------------

// putSymbols replaces the base polled symbol set.
func (s *Server) putSymbols(c *gin.Context) {
	var body struct {
		Symbols []string `json:"symbols" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(400, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}

	s.Service.UpdateSymbols(body.Symbols)
	c.JSON(200, gin.H{"symbols": body.Symbols})
}
