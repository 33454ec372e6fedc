package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/shardgate-project/shardgate/internal/config"
	"github.com/shardgate-project/shardgate/internal/events"
)

// handleGetConfig returns the current configuration without the API token.
func (s *Server) handleGetConfig(c *gin.Context) {
	app := s.cfg.GetApplicationData()
	if app.API.Token != "" {
		app.API.Token = "********"
	}
	c.JSON(http.StatusOK, gin.H{
		"shard_data":       s.cfg.GetShardData(),
		"application_data": app,
	})
}

type shardFieldRequest struct {
	Key   string      `json:"key" binding:"required"`
	Value interface{} `json:"value"`
}

// handleSetShardField updates one shard_data field, validates and saves.
// Changes apply to connections accepted after a restart.
func (s *Server) handleSetShardField(c *gin.Context) {
	var req shardFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	previous := s.cfg.GetShardData()
	if err := s.cfg.UpdateShardField(req.Key, req.Value); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if result := config.Validate(s.cfg); !result.IsValid() {
		s.cfg.SetShardData(previous)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid configuration", "details": result.Errors})
		return
	}

	if err := s.cfg.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save config"})
		return
	}

	s.eventBus.Emit(c.Request.Context(), events.Event{
		Type:   events.EventConfigChanged,
		Source: "api",
		Payload: events.ConfigChangedPayload{
			Section: "shard_data",
			Key:     req.Key,
			Value:   req.Value,
		},
	})

	operator, _ := c.Get("operator")
	log.Info().Str("key", req.Key).Interface("operator", operator).Msg("API: shard data updated")

	c.JSON(http.StatusOK, gin.H{
		"status": "updated",
		"data":   s.cfg.GetShardData(),
	})
}
