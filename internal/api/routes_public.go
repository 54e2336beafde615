package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gameeflow-project/gameeflow/internal/util"
)

// Version is the application version reported by the public endpoints.
const Version = "1.0.0"

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "gameeflow",
		"version": Version,
	})
}

// handleGetVersion returns the GameeFlow version.
func (s *Server) handleGetVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version": Version,
		"name":    "GameeFlow",
	})
}

// handleGetSystemInfo returns basic host information.
func (s *Server) handleGetSystemInfo(c *gin.Context) {
	sysInfo := util.GetSystemInfo()

	c.JSON(http.StatusOK, gin.H{
		"hostname":        sysInfo.Hostname,
		"platform":        sysInfo.Platform,
		"os":              sysInfo.OS,
		"architecture":    sysInfo.Architecture,
		"cpu_model":       sysInfo.CPUModel,
		"cpu_cores":       sysInfo.CPUCores,
		"total_memory_mb": sysInfo.TotalMemory,
		"go_version":      sysInfo.GoVersion,
	})
}
