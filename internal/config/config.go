// Package config handles configuration loading, validation, and persistence
// for the GameeFlow client.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultAPIPort    = 5000

	DefaultBackendURL = "wss://social.bcsocial.net/socket.io/?transport=websocket&EIO=3"
	DefaultNamespace  = "/first-run2"
	DefaultGameID     = 7
)

// Config is the root configuration structure for GameeFlow.
type Config struct {
	mu   sync.RWMutex
	path string

	BackendData     BackendData     `json:"backend_data"`
	ApplicationData ApplicationData `json:"application_data"`
}

// BackendData contains everything needed to talk to the game backend.
type BackendData struct {
	// Endpoint
	URL       string `json:"backend_url"`
	Namespace string `json:"backend_namespace"`
	GameID    int    `json:"backend_gameId"`

	// Daily, weekly, monthly, global board ids.
	LeaderboardIDs []int `json:"backend_leaderboard_ids"`

	// Player credentials
	Login    string `json:"acc_login"`
	Password string `json:"acc_password"`

	// Withdrawal target
	FastexUserID     string `json:"acc_fastex_user_id"`
	FTNAddress       string `json:"acc_ftn_address"`
	WithdrawalAmount string `json:"acc_withdrawal_amount"`

	// Protocol timing
	RequestTimeoutSec    int `json:"proto_request_timeout_sec"`
	HeartbeatIntervalSec int `json:"proto_heartbeat_interval_sec"`
	ConnectTimeoutSec    int `json:"proto_connect_timeout_sec"`
}

// ApplicationData contains client application configuration.
type ApplicationData struct {
	Endless     EndlessConfig     `json:"endless"`
	AutoRefresh AutoRefreshConfig `json:"auto_refresh"`
	API         APIConfig         `json:"api"`
	MQTT        MQTTConfig        `json:"mqtt"`
	Security    SecurityConfig    `json:"security"`
	Logging     LoggingConfig     `json:"logging"`
}

// EndlessConfig tunes the automated score-submission loop.
type EndlessConfig struct {
	Enabled         bool    `json:"enabled"`
	DelaySec        float64 `json:"delay_sec"`
	JitterMs        int     `json:"jitter_ms"`
	ScoreMultiplier int     `json:"score_multiplier"`
	ScoreJitter     int     `json:"score_jitter"`
	SyncMode        string  `json:"sync_mode"`
	TargetVIP       float64 `json:"target_vip"`
	StepDelayMs     int     `json:"step_delay_ms"`
}

// AutoRefreshConfig tunes the periodic leaderboard refresh.
type AutoRefreshConfig struct {
	Enabled     bool `json:"enabled"`
	IntervalSec int  `json:"interval_sec"`
}

// APIConfig holds the local control API settings.
type APIConfig struct {
	Enabled bool `json:"enabled"`
	Port    int  `json:"port"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled   bool   `json:"enabled"`
	BrokerURL string `json:"broker_url"`
	Port      int    `json:"port"`
	UseTLS    bool   `json:"use_tls"`
	CertFile  string `json:"cert_file"`
	KeyFile   string `json:"key_file"`
	CAFile    string `json:"ca_file"`
	ClientID  string `json:"client_id"`
}

// SecurityConfig holds security-related settings for the control API.
type SecurityConfig struct {
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps"`
	IPWhitelist    []string `json:"ip_whitelist"`
	AuthDisabled   bool     `json:"auth_disabled"`
	APIToken       string   `json:"api_token,omitempty"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BackendData: BackendData{
			URL:                  DefaultBackendURL,
			Namespace:            DefaultNamespace,
			GameID:               DefaultGameID,
			LeaderboardIDs:       []int{21, 18, 19, 20},
			WithdrawalAmount:     "5.0",
			RequestTimeoutSec:    15,
			HeartbeatIntervalSec: 25,
			ConnectTimeoutSec:    30,
		},
		ApplicationData: ApplicationData{
			Endless: EndlessConfig{
				DelaySec:        1.0,
				JitterMs:        200,
				ScoreMultiplier: 10,
				ScoreJitter:     10,
				SyncMode:        "always",
				StepDelayMs:     200,
			},
			AutoRefresh: AutoRefreshConfig{
				Enabled:     false,
				IntervalSec: 30,
			},
			API: APIConfig{
				Enabled: true,
				Port:    DefaultAPIPort,
			},
			MQTT: MQTTConfig{
				Port:   8883,
				UseTLS: true,
			},
			Security: SecurityConfig{
				RateLimitRPS: 100,
				AuthDisabled: true,
			},
			Logging: LoggingConfig{
				Level:      "info",
				Directory:  "logs",
				MaxSizeMB:  10,
				MaxBackups: 5,
			},
		},
	}
}

// Load reads configuration from a JSON file.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig() // Start with defaults, then overlay
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	// Re-save config to persist any new default fields added in code updates.
	// This ensures config.json always reflects the complete set of options.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Ensure config directory exists
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetBackendData returns a copy of the backend configuration.
func (c *Config) GetBackendData() BackendData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.BackendData
}

// SetBackendData updates the backend configuration.
func (c *Config) SetBackendData(data BackendData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.BackendData = data
}

// GetApplicationData returns a copy of the application data configuration.
func (c *Config) GetApplicationData() ApplicationData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ApplicationData
}

// SetApplicationData updates the application data configuration.
func (c *Config) SetApplicationData(data ApplicationData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ApplicationData = data
}

// UpdateBackendField updates a specific field in the backend data.
func (c *Config) UpdateBackendField(key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Marshal current backend data to map
	data, _ := json.Marshal(c.BackendData)
	m := make(map[string]interface{})
	json.Unmarshal(data, &m)

	// Update field
	m[key] = value

	// Unmarshal back
	updated, _ := json.Marshal(m)
	if err := json.Unmarshal(updated, &c.BackendData); err != nil {
		return fmt.Errorf("failed to update field %s: %w", key, err)
	}

	return nil
}

// UpdateAppField updates a specific field in application data.
func (c *Config) UpdateAppField(key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, _ := json.Marshal(c.ApplicationData)
	m := make(map[string]interface{})
	json.Unmarshal(data, &m)

	m[key] = value

	updated, _ := json.Marshal(m)
	if err := json.Unmarshal(updated, &c.ApplicationData); err != nil {
		return fmt.Errorf("failed to update field %s: %w", key, err)
	}

	return nil
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// IsFirstRun returns true if the configuration needs initial setup.
func (c *Config) IsFirstRun() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.BackendData.Login == ""
}
