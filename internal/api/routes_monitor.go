package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gameeflow-project/gameeflow/internal/util"
)

// handleGetStatus returns the transport and automation state.
func (s *Server) handleGetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"session_state":    s.session.State().String(),
		"pending_requests": s.session.PendingCount(),
		"authenticated":    s.client.Profile().Authenticated(),
		"endless_running":  s.sched.EndlessRunning(),
		"endless_count":    s.sched.EndlessCount(),
		"round_index":      s.submitter.RoundIndex(),
		"total_submitted":  s.submitter.Total(),
	})
}

// handleGetProfile returns the current profile snapshot.
func (s *Server) handleGetProfile(c *gin.Context) {
	snap := s.client.Profile().Snapshot()
	if snap.SessionToken == "" {
		c.JSON(http.StatusOK, gin.H{
			"authenticated": false,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"player_id":     snap.PlayerID,
		"vip_coin":      snap.VIPCoin,
		"chips":         snap.Chips,
		"ftn_balance":   snap.FTNBalance,
	})
}

// handleGetLeaderboards returns the cached leaderboard snapshots.
func (s *Server) handleGetLeaderboards(c *gin.Context) {
	boards := s.client.Leaderboards()

	out := make([]gin.H, 0, len(boards))
	for _, b := range boards {
		players := make([]gin.H, 0, len(b.Players))
		for _, p := range b.Players {
			players = append(players, gin.H{
				"player_id": p.ID,
				"nickname":  p.NickName,
				"xp":        p.XP,
				"points":    p.Points,
				"chips":     p.Chips,
			})
		}
		out = append(out, gin.H{
			"id":         b.ID,
			"name":       b.Name,
			"players":    players,
			"updated_at": b.UpdatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"leaderboards": out,
		"total":        len(out),
	})
}

// handleGetCPUUsage returns current system CPU usage.
func (s *Server) handleGetCPUUsage(c *gin.Context) {
	usage, err := util.GetCPUUsage()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cpu_percent": usage,
	})
}

// handleGetMemoryUsage returns current system memory usage.
func (s *Server) handleGetMemoryUsage(c *gin.Context) {
	mem, err := util.GetMemoryUsage()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":        mem.Total,
		"used":         mem.Used,
		"available":    mem.Available,
		"used_percent": mem.UsedPercent,
	})
}

// handleGetDiskUsage returns disk usage for the working directory.
func (s *Server) handleGetDiskUsage(c *gin.Context) {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}

	usage, err := util.GetDiskUsage(wd)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"path":         wd,
		"total":        usage.Total,
		"used":         usage.Used,
		"free":         usage.Free,
		"used_percent": usage.UsedPercent,
	})
}

// handleGetLogEntries returns recent log entries.
func (s *Server) handleGetLogEntries(c *gin.Context) {
	countStr := c.DefaultQuery("count", "100")
	count, err := strconv.Atoi(countStr)
	if err != nil || count < 1 {
		count = 100
	}
	if count > 1000 {
		count = 1000
	}

	logDir := s.cfg.GetApplicationData().Logging.Directory
	entries, err := readRecentLogEntries(logDir, count)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

// logEntry is a parsed log entry for the API response.
type logEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// readRecentLogEntries reads and parses the most recent log entries from log
// files. Zerolog writes JSON lines; we parse them into structured objects.
func readRecentLogEntries(logDir string, count int) ([]logEntry, error) {
	dirEntries, err := os.ReadDir(logDir)
	if err != nil {
		return nil, err
	}

	// Find the most recent log file
	var latestFile string
	for i := len(dirEntries) - 1; i >= 0; i-- {
		if !dirEntries[i].IsDir() && filepath.Ext(dirEntries[i].Name()) == ".log" {
			latestFile = filepath.Join(logDir, dirEntries[i].Name())
			break
		}
	}

	if latestFile == "" {
		return []logEntry{}, nil
	}

	data, err := os.ReadFile(latestFile)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(string(data), "\n")

	// Take last N lines
	start := len(lines) - count
	if start < 0 {
		start = 0
	}

	// Known zerolog internal fields to exclude from "fields"
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
			// Not valid JSON — include as a plain message
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

	return result, nil
}

// stringFromMap extracts a string value from a map, returning "" if missing.
func stringFromMap(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}
