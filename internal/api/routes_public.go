package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shardgate-project/shardgate/internal/util"
)

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "shardgate",
		"version": s.version,
	})
}

// handleServerInfo returns host and process information.
func (s *Server) handleServerInfo(c *gin.Context) {
	sysInfo := util.GetSystemInfo()
	c.JSON(http.StatusOK, gin.H{
		"version":         s.version,
		"hostname":        sysInfo.Hostname,
		"platform":        sysInfo.Platform,
		"os":              sysInfo.OS,
		"cpu_model":       sysInfo.CPUModel,
		"cpu_cores":       sysInfo.CPUCores,
		"total_memory_mb": sysInfo.TotalMemory,
		"go_version":      sysInfo.GoVersion,
		"uptime_sec":      int64(time.Since(s.startedAt).Seconds()),
		"connections":     s.registry.Count(),
	})
}

// handleShard returns the shard advertised to login clients.
func (s *Server) handleShard(c *gin.Context) {
	sd := s.cfg.GetShardData()
	c.JSON(http.StatusOK, gin.H{
		"name":          sd.ShardName,
		"index":         sd.ShardIndex,
		"address":       sd.ShardAddress,
		"percent_full":  sd.PercentFull,
		"timezone":      sd.Timezone,
		"login_address": sd.ListenAddr(),
		"redirect":      sd.RedirectAddress,
		"redirect_port": sd.RedirectPort,
	})
}
