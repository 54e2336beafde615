package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultBackendURL, cfg.BackendData.URL)
	assert.Equal(t, DefaultNamespace, cfg.BackendData.Namespace)
	assert.Equal(t, []int{21, 18, 19, 20}, cfg.BackendData.LeaderboardIDs)
	assert.True(t, cfg.IsFirstRun())

	_, err = os.Stat(filepath.Join(dir, DefaultConfigFile))
	assert.NoError(t, err, "default config written to disk")
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	raw := `{"backend_data":{"acc_login":"bver","acc_password":"bver","backend_gameId":9}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(raw), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "bver", cfg.BackendData.Login)
	assert.Equal(t, 9, cfg.BackendData.GameID)
	assert.Equal(t, DefaultBackendURL, cfg.BackendData.URL, "unspecified fields keep defaults")
	assert.Equal(t, 15, cfg.BackendData.RequestTimeoutSec)
	assert.False(t, cfg.IsFirstRun())
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	result := Validate(cfg)
	assert.False(t, result.IsValid(), "missing credentials must fail validation")

	cfg.BackendData.Login = "bver"
	cfg.BackendData.Password = "bver"
	result = Validate(cfg)
	assert.True(t, result.IsValid(), "errors: %v", result.Errors)

	cfg.BackendData.URL = "http://not-a-socket"
	result = Validate(cfg)
	assert.False(t, result.IsValid())

	cfg.BackendData.URL = DefaultBackendURL
	cfg.ApplicationData.Endless.Enabled = true
	cfg.ApplicationData.Endless.SyncMode = "sometimes"
	result = Validate(cfg)
	assert.False(t, result.IsValid())
}

func TestValidateMQTTRequiresBroker(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BackendData.Login = "a"
	cfg.BackendData.Password = "b"
	cfg.ApplicationData.MQTT.Enabled = true

	result := Validate(cfg)
	assert.False(t, result.IsValid())
}

func TestUpdateBackendField(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.UpdateBackendField("acc_login", "newuser"))
	assert.Equal(t, "newuser", cfg.GetBackendData().Login)

	require.NoError(t, cfg.UpdateBackendField("backend_gameId", 12))
	assert.Equal(t, 12, cfg.GetBackendData().GameID)
}
