package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate performs comprehensive validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	validateBackendData(&cfg.BackendData, result)
	validateApplicationData(&cfg.ApplicationData, result)

	return result
}

func validateBackendData(data *BackendData, result *ValidationResult) {
	// Required fields
	if strings.TrimSpace(data.Login) == "" {
		result.AddError("backend_data.acc_login", "account login is required")
	}

	if strings.TrimSpace(data.Password) == "" {
		result.AddError("backend_data.acc_password", "account password is required")
	}

	if strings.TrimSpace(data.URL) == "" {
		result.AddError("backend_data.backend_url", "backend URL is required")
	} else if !strings.HasPrefix(data.URL, "ws://") && !strings.HasPrefix(data.URL, "wss://") {
		result.AddError("backend_data.backend_url", "backend URL must be a ws:// or wss:// endpoint")
	}

	if !strings.HasPrefix(data.Namespace, "/") {
		result.AddError("backend_data.backend_namespace", "namespace must start with /")
	}

	if data.GameID < 1 {
		result.AddError("backend_data.backend_gameId", "game id must be positive")
	}

	if len(data.LeaderboardIDs) == 0 {
		result.AddWarning("backend_data.backend_leaderboard_ids", "no leaderboard ids configured, refresh will be a no-op")
	}

	// Protocol timing
	if data.RequestTimeoutSec < 1 {
		result.AddError("backend_data.proto_request_timeout_sec", "request timeout must be at least 1 second")
	}
	if data.HeartbeatIntervalSec < 5 {
		result.AddWarning("backend_data.proto_heartbeat_interval_sec",
			"heartbeat interval less than 5s may cause excessive traffic")
	}
}

func validateApplicationData(data *ApplicationData, result *ValidationResult) {
	// Endless loop
	if data.Endless.Enabled {
		if data.Endless.DelaySec <= 0 {
			result.AddError("application_data.endless.delay_sec", "delay must be positive")
		}
		if data.Endless.ScoreMultiplier < 1 {
			result.AddError("application_data.endless.score_multiplier", "score multiplier must be at least 1")
		}
		switch data.Endless.SyncMode {
		case "always", "parity":
		default:
			result.AddError("application_data.endless.sync_mode",
				fmt.Sprintf("unknown sync mode %q (expected always or parity)", data.Endless.SyncMode))
		}
		if data.Endless.DelaySec < 0.5 {
			result.AddWarning("application_data.endless.delay_sec",
				"delay under 500ms may look like automated traffic to the backend")
		}
	}

	if data.AutoRefresh.Enabled && data.AutoRefresh.IntervalSec < 5 {
		result.AddWarning("application_data.auto_refresh.interval_sec",
			"refresh interval less than 5s may cause excessive requests")
	}

	// API
	if data.API.Enabled {
		validatePort(data.API.Port, "application_data.api.port", result)
		if !data.Security.AuthDisabled && strings.TrimSpace(data.Security.APIToken) == "" {
			result.AddError("application_data.security.api_token",
				"API token is required when auth is enabled (or set auth_disabled for local use)")
		}
	}

	// MQTT
	if data.MQTT.Enabled {
		if strings.TrimSpace(data.MQTT.BrokerURL) == "" {
			result.AddError("application_data.mqtt.broker_url", "MQTT broker URL is required when enabled")
		}
		if data.MQTT.Port < 1 || data.MQTT.Port > 65535 {
			result.AddError("application_data.mqtt.port", "invalid MQTT port")
		}
	}

	if data.Security.RateLimitRPS < 1 {
		result.AddWarning("application_data.security.rate_limit_rps",
			"rate limit is disabled (0 RPS), this may expose the API to abuse")
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}

// IsPortAvailable checks if a port is available for binding.
func IsPortAvailable(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}
