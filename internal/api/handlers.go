package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/HCTech2/GOLD-HFT/config"
)

func (s *Server) handleHealth(c *gin.Context) {
	snap := s.engine.Snapshot()
	status := "ok"
	if !snap.Accepting {
		status = "draining"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     status,
		"symbol":     snap.Symbol,
		"started_at": snap.StartedAt,
	})
}

func (s *Server) handleSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handlePositions(c *gin.Context) {
	snap := s.engine.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"positions": snap.Positions,
		"count":     len(snap.Positions),
	})
}

func (s *Server) handleRisk(c *gin.Context) {
	snap := s.engine.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"state": snap.Risk,
		"stats": snap.RiskStats,
	})
}

func (s *Server) handleGetConfig(c *gin.Context) {
	cfg := s.engine.Config()
	// Secrets never leave the process.
	cfg.VenueConfig.Token = ""
	cfg.AuthConfig.JWTSecret = ""
	cfg.DatabaseConfig.Password = ""
	cfg.RedisConfig.Password = ""
	cfg.VaultConfig.Token = ""
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) handleUpdateConfig(c *gin.Context) {
	var next config.Config
	if err := c.ShouldBindJSON(&next); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid config payload: " + err.Error()})
		return
	}

	if err := s.engine.UpdateConfig(&next); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (s *Server) handleTrades(c *gin.Context) {
	if s.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "trade journal disabled"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	trades, err := s.repo.RecentTrades(c.Request.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("Trade journal query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "journal query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}
