package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/gameeflow-project/gameeflow/internal/config"
	"github.com/gameeflow-project/gameeflow/internal/events"
)

// handleGetConfig returns the full current configuration. Credentials are
// redacted before leaving the process.
func (s *Server) handleGetConfig(c *gin.Context) {
	backend := s.cfg.GetBackendData()
	if backend.Password != "" {
		backend.Password = "********"
	}

	c.JSON(http.StatusOK, gin.H{
		"backend_data":     backend,
		"application_data": s.cfg.GetApplicationData(),
	})
}

// handleSetBackendData updates the backend connection configuration.
func (s *Server) handleSetBackendData(c *gin.Context) {
	var backendData config.BackendData
	if err := c.ShouldBindJSON(&backendData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// An untouched redacted password means "keep the current one"
	if backendData.Password == "" || backendData.Password == "********" {
		backendData.Password = s.cfg.GetBackendData().Password
	}

	previous := s.cfg.GetBackendData()
	s.cfg.SetBackendData(backendData)

	if result := config.Validate(s.cfg); !result.IsValid() {
		s.cfg.SetBackendData(previous)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "validation failed",
			"errors": result.Errors,
		})
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
			Section: "backend_data",
		},
	})

	log.Info().Msg("API: backend data updated")

	c.JSON(http.StatusOK, gin.H{
		"status": "updated",
	})
}

// handleSetAppData updates application configuration.
func (s *Server) handleSetAppData(c *gin.Context) {
	var appData config.ApplicationData
	if err := c.ShouldBindJSON(&appData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	previous := s.cfg.GetApplicationData()
	s.cfg.SetApplicationData(appData)

	if result := config.Validate(s.cfg); !result.IsValid() {
		s.cfg.SetApplicationData(previous)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "validation failed",
			"errors": result.Errors,
		})
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
			Section: "application_data",
		},
	})

	log.Info().Msg("API: application data updated")

	c.JSON(http.StatusOK, gin.H{
		"status": "updated",
	})
}
