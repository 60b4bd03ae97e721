package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadWith(t *testing.T, settings map[string]any) (*Config, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	for k, v := range settings {
		viper.Set(k, v)
	}
	return Load()
}

func minimalSettings() map[string]any {
	return map[string]any{
		"github.owner":    "vantagesign",
		"github.repo":     "billboard-cdn",
		"mqtt.broker_url": "tcp://localhost:1883",
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := loadWith(t, minimalSettings())
	require.NoError(t, err)

	assert.Equal(t, "main", cfg.GitHub.Branch)
	assert.Equal(t, "manifest.json", cfg.GitHub.ManifestPath)
	assert.Equal(t, "logos", cfg.GitHub.LogoDir)
	assert.EqualValues(t, 2<<20, cfg.GitHub.MaxLogoBytes)
	assert.Equal(t, 1, cfg.MQTT.QoS)
	assert.Equal(t, "billboard", cfg.MQTT.TopicPrefix)
	assert.Equal(t, 8410, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Fleet.CommandTimeout)
	assert.Equal(t, 1000, cfg.Store.HistoryLimit)
	assert.Contains(t, cfg.Sync.Patterns, "*.png")
}

func TestLoadOverrides(t *testing.T) {
	settings := minimalSettings()
	settings["github.branch"] = "gh-pages"
	settings["mqtt.broker_url"] = "wss://broker.example.com:8884/mqtt"
	settings["fleet.command_timeout"] = "45s"
	settings["server.port"] = 9000

	cfg, err := loadWith(t, settings)
	require.NoError(t, err)

	assert.Equal(t, "gh-pages", cfg.GitHub.Branch)
	assert.Equal(t, "wss://broker.example.com:8884/mqtt", cfg.MQTT.BrokerURL)
	assert.Equal(t, 45*time.Second, cfg.Fleet.CommandTimeout)
	assert.Equal(t, 9000, cfg.Server.Port)
}

// Every snake_case key must land in its struct field through
// viper.Unmarshal, not just the handful re-read explicitly in Load.
func TestLoadDecodesSnakeCaseKeys(t *testing.T) {
	settings := minimalSettings()
	settings["github.manifest_path"] = "site/manifest.json"
	settings["github.logo_dir"] = "assets/logos"
	settings["github.max_logo_bytes"] = 1 << 20
	settings["mqtt.client_id_prefix"] = "console"
	settings["mqtt.topic_prefix"] = "signage"
	settings["store.history_limit"] = 250

	cfg, err := loadWith(t, settings)
	require.NoError(t, err)

	assert.Equal(t, "site/manifest.json", cfg.GitHub.ManifestPath)
	assert.Equal(t, "assets/logos", cfg.GitHub.LogoDir)
	assert.EqualValues(t, 1<<20, cfg.GitHub.MaxLogoBytes)
	assert.Equal(t, "console", cfg.MQTT.ClientIDPrefix)
	assert.Equal(t, "signage", cfg.MQTT.TopicPrefix)
	assert.Equal(t, 250, cfg.Store.HistoryLimit)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name     string
		override map[string]any
		wantErr  string
	}{
		{
			name:     "missing repo",
			override: map[string]any{"github.repo": ""},
			wantErr:  "owner and repo are required",
		},
		{
			name:     "owner with slash",
			override: map[string]any{"github.owner": "vantage/sign"},
			wantErr:  "invalid owner",
		},
		{
			name:     "manifest path traversal",
			override: map[string]any{"github.manifest_path": "../secrets.json"},
			wantErr:  "traversal",
		},
		{
			name:     "bad broker scheme",
			override: map[string]any{"mqtt.broker_url": "http://localhost:1883"},
			wantErr:  "unsupported broker scheme",
		},
		{
			name:     "broker without host",
			override: map[string]any{"mqtt.broker_url": "tcp://"},
			wantErr:  "missing host",
		},
		{
			name:     "qos out of range",
			override: map[string]any{"mqtt.qos": 3},
			wantErr:  "qos must be",
		},
		{
			name:     "topic prefix with wildcard",
			override: map[string]any{"mqtt.topic_prefix": "billboard/#"},
			wantErr:  "single topic level",
		},
		{
			name:     "port out of range",
			override: map[string]any{"server.port": 70000},
			wantErr:  "port must be",
		},
		{
			name:     "bad origin",
			override: map[string]any{"server.allowed_origins": []string{"ftp://x"}},
			wantErr:  "invalid allowed origin",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := minimalSettings()
			for k, v := range tt.override {
				settings[k] = v
			}
			_, err := loadWith(t, settings)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
