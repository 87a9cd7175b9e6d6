package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"robinhood-trade-bot-go/internal/engine"
	"robinhood-trade-bot-go/internal/risk"
	"robinhood-trade-bot-go/internal/strategy"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Status())
}

func (s *Server) handlePortfolio(c *gin.Context) {
	portfolio, positions, err := s.engine.PortfolioSummary(c.Request.Context())
	if err != nil {
		s.logger.Warn("portfolio fetch failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"portfolio": portfolio,
		"positions": positions,
	})
}

func (s *Server) handleTrades(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}

	trades, err := s.ledger.RecentTrades(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}

func (s *Server) handleHistory(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
	if err != nil || days <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
		return
	}

	snapshots, err := s.ledger.PortfolioHistory(days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": snapshots, "count": len(snapshots)})
}

func (s *Server) handleAnalyze(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))

	results, final, err := s.engine.AnalyzeSymbol(c.Request.Context(), symbol)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":    symbol,
		"signals":   results,
		"consensus": final,
	})
}

func (s *Server) handleRisk(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.RiskReport(c.Request.Context()))
}

type tradeRequest struct {
	Symbol string  `json:"symbol" binding:"required"`
	Action string  `json:"action" binding:"required"`
	Amount float64 `json:"amount"`
}

func (s *Server) handleTrade(c *gin.Context) {
	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	symbol := strings.ToUpper(req.Symbol)
	action := strategy.Action(strings.ToLower(req.Action))

	err := s.engine.ExecuteManualTrade(c.Request.Context(), symbol, action, req.Amount)
	var rejection *risk.RejectionError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"message": "trade executed",
			"symbol":  symbol,
			"action":  action,
		})
	case errors.As(err, &rejection):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": rejection.Reason})
	case errors.Is(err, engine.ErrNotRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (s *Server) handleStart(c *gin.Context) {
	if err := s.engine.Start(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "engine started"})
}

func (s *Server) handleStop(c *gin.Context) {
	s.engine.Stop(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"message": "engine stopped"})
}

func (s *Server) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Settings())
}

func (s *Server) handleUpdateConfig(c *gin.Context) {
	var patch engine.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.engine.ApplySettings(patch))
}
