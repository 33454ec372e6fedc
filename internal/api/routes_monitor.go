package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/shardgate-project/shardgate/internal/util"
)

// handleConnections lists live login connections.
func (s *Server) handleConnections(c *gin.Context) {
	conns := s.registry.List()
	c.JSON(http.StatusOK, gin.H{
		"connections": conns,
		"total":       len(conns),
	})
}

// handleLogins returns the most recent handshake audit entries.
func (s *Server) handleLogins(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage is disabled"})
		return
	}

	limit := queryInt(c, "limit", 50, 1, 500)
	entries, err := s.store.RecentLoginEvents(c.Request.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("API: failed to read login events")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read login events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"logins": entries,
		"count":  len(entries),
	})
}

// handleStats returns counters, compression cache and host usage.
func (s *Server) handleStats(c *gin.Context) {
	stats := gin.H{
		"connections": s.registry.Count(),
		"uptime_sec":  int64(time.Since(s.startedAt).Seconds()),
		"cache":       s.cache.Stats(),
	}

	if s.store != nil {
		if counts, err := s.store.CountByKind(c.Request.Context()); err == nil {
			stats["logins_by_kind"] = counts
		} else {
			log.Warn().Err(err).Msg("API: failed to count login events")
		}
	}
	if cpu, err := util.GetCPUUsage(); err == nil {
		stats["cpu_percent"] = cpu
	}
	if mem, err := util.GetMemoryUsage(); err == nil {
		stats["memory"] = mem
	}
	if proc, err := util.GetProcessUsage(); err == nil {
		stats["process"] = proc
	}

	c.JSON(http.StatusOK, stats)
}

// handleLogEntries returns recent structured log lines.
func (s *Server) handleLogEntries(c *gin.Context) {
	count := queryInt(c, "count", 100, 1, 1000)
	entries, err := readRecentLogEntries(s.cfg.GetApplicationData().Logging.Directory, count)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

func queryInt(c *gin.Context, key string, def, min, max int) int {
	v, err := strconv.Atoi(c.DefaultQuery(key, strconv.Itoa(def)))
	if err != nil || v < min {
		return def
	}
	if v > max {
		return max
	}
	return v
}

// logEntry is a parsed log line.
type logEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// readRecentLogEntries parses the last count JSON lines of the newest log
// file in logDir.
func readRecentLogEntries(logDir string, count int) ([]logEntry, error) {
	dirEntries, err := os.ReadDir(logDir)
	if err != nil {
		return nil, err
	}

	var logs []string
	for _, e := range dirEntries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".log" {
			logs = append(logs, e.Name())
		}
	}
	if len(logs) == 0 {
		return []logEntry{}, nil
	}
	sort.Strings(logs)

	data, err := os.ReadFile(filepath.Join(logDir, logs[len(logs)-1]))
	if err != nil {
		return nil, err
	}

	lines := strings.Split(string(data), "\n")
	start := len(lines) - count - 1 // trailing newline leaves an empty last line
	if start < 0 {
		start = 0
	}

	knownKeys := map[string]bool{
		"level": true, "time": true, "message": true,
		"caller": true, "app": true,
	}

	result := make([]logEntry, 0, count)
	for _, line := range lines[start:] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var raw map[string]interface{}
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			result = append(result, logEntry{Message: line})
			continue
		}

		entry := logEntry{
			Level:   stringFromMap(raw, "level"),
			Message: stringFromMap(raw, "message"),
		}
		if t, ok := raw["time"]; ok {
			entry.Timestamp = fmt.Sprintf("%v", t)
		}

		extra := make(map[string]interface{})
		for k, v := range raw {
			if !knownKeys[k] {
				extra[k] = v
			}
		}
		if len(extra) > 0 {
			entry.Fields = extra
		}
		result = append(result, entry)
	}
	if len(result) > count {
		result = result[len(result)-count:]
	}
	return result, nil
}

// stringFromMap extracts a string value from a map, returning "" if missing.
func stringFromMap(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}
