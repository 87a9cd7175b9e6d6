package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"robinhood-trade-bot-go/internal/engine"
	"robinhood-trade-bot-go/internal/ledger"
	"robinhood-trade-bot-go/internal/metrics"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server exposes the control surface over HTTP: engine status and
// control, portfolio and trade queries, per-symbol analysis, manual
// trades and runtime configuration.
type Server struct {
	logger *zap.Logger
	engine *engine.Engine
	ledger ledger.Ledger
	srv    *http.Server
}

// NewServer wires the HTTP routes. Call Start to begin serving.
func NewServer(logger *zap.Logger, port int, e *engine.Engine, led ledger.Ledger, reg *metrics.Registry) *Server {
	s := &Server{
		logger: logger.Named("web"),
		engine: e,
		ledger: led,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now()})
	})
	router.GET("/metrics", gin.WrapH(reg.Handler()))

	api := router.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/portfolio", s.handlePortfolio)
		api.GET("/trades", s.handleTrades)
		api.GET("/history", s.handleHistory)
		api.GET("/analyze/:symbol", s.handleAnalyze)
		api.GET("/risk", s.handleRisk)
		api.GET("/config", s.handleGetConfig)
		api.POST("/config", s.handleUpdateConfig)
		api.POST("/trade", s.handleTrade)
		api.POST("/start", s.handleStart)
		api.POST("/stop", s.handleStop)
	}

	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}
	return s
}

// Start serves in a background goroutine until Stop is called.
func (s *Server) Start() {
	go func() {
		s.logger.Info("web server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("web server failed", zap.Error(err))
		}
	}()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
