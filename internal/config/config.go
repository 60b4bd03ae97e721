// Package config provides configuration management for signdeck using
// Viper, loading from .signdeck.yml, SIGNDECK_-prefixed environment
// variables and bound command-line flags.
//
// Sections cover the GitHub-backed CDN (owner/repo/branch, manifest path,
// publish workflow), the MQTT broker, the admin API server, the local
// SQLite store and the asset sync directory.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// The mapstructure tags drive viper.Unmarshal; the yaml tags drive
// `config show` output. Both must use the same snake_case names.
type Config struct {
	GitHub GitHubConfig `mapstructure:"github" yaml:"github"`
	MQTT   MQTTConfig   `mapstructure:"mqtt" yaml:"mqtt"`
	Server ServerConfig `mapstructure:"server" yaml:"server"`
	Store  StoreConfig  `mapstructure:"store" yaml:"store"`
	Sync   SyncConfig   `mapstructure:"sync" yaml:"sync"`
	Fleet  FleetConfig  `mapstructure:"fleet" yaml:"fleet"`
}

// GitHubConfig locates the CDN repository and the manifest inside it.
type GitHubConfig struct {
	Owner        string `mapstructure:"owner" yaml:"owner"`
	Repo         string `mapstructure:"repo" yaml:"repo"`
	Branch       string `mapstructure:"branch" yaml:"branch"`
	ManifestPath string `mapstructure:"manifest_path" yaml:"manifest_path"`
	LogoDir      string `mapstructure:"logo_dir" yaml:"logo_dir"`
	// Workflow is the workflow_dispatch file name used to rebuild the
	// CDN site after a publish. Empty disables the dispatch.
	Workflow string `mapstructure:"workflow" yaml:"workflow"`
	// MaxLogoBytes caps uploads before any network call is made.
	MaxLogoBytes int64 `mapstructure:"max_logo_bytes" yaml:"max_logo_bytes"`
}

// MQTTConfig describes the broker connection used for device commands.
type MQTTConfig struct {
	BrokerURL      string        `mapstructure:"broker_url" yaml:"broker_url"`
	ClientIDPrefix string        `mapstructure:"client_id_prefix" yaml:"client_id_prefix"`
	Username       string        `mapstructure:"username" yaml:"username"`
	Password       string        `mapstructure:"password" yaml:"password"`
	QoS            int           `mapstructure:"qos" yaml:"qos"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	// TopicPrefix is the fleet namespace, e.g. "billboard".
	TopicPrefix string `mapstructure:"topic_prefix" yaml:"topic_prefix"`
}

type ServerConfig struct {
	Host           string   `mapstructure:"host" yaml:"host"`
	Port           int      `mapstructure:"port" yaml:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
	// HistoryLimit caps retained command log rows; older rows are pruned
	// on insert.
	HistoryLimit int `mapstructure:"history_limit" yaml:"history_limit"`
}

type SyncConfig struct {
	Dir      string        `mapstructure:"dir" yaml:"dir"`
	Patterns []string      `mapstructure:"patterns" yaml:"patterns"`
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

type FleetConfig struct {
	// CommandTimeout is how long a dispatched command may sit in a
	// non-terminal state before it is marked timed out.
	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
	// OfflineAfter is how long after the last status message a device is
	// still considered online.
	OfflineAfter time.Duration `mapstructure:"offline_after" yaml:"offline_after"`
}

// Load unmarshals the current viper state into a Config, applies defaults
// and validates the result.
func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	applyDefaults(&config)

	// Viper's Unmarshal does not pick up time.Duration strings from env
	// overrides reliably, so re-read the duration keys explicitly.
	if viper.IsSet("mqtt.connect_timeout") {
		config.MQTT.ConnectTimeout = viper.GetDuration("mqtt.connect_timeout")
	}
	if viper.IsSet("fleet.command_timeout") {
		config.Fleet.CommandTimeout = viper.GetDuration("fleet.command_timeout")
	}
	if viper.IsSet("fleet.offline_after") {
		config.Fleet.OfflineAfter = viper.GetDuration("fleet.offline_after")
	}
	if viper.IsSet("sync.debounce") {
		config.Sync.Debounce = viper.GetDuration("sync.debounce")
	}
	if viper.IsSet("sync.patterns") {
		config.Sync.Patterns = viper.GetStringSlice("sync.patterns")
	}
	if viper.IsSet("server.allowed_origins") {
		config.Server.AllowedOrigins = viper.GetStringSlice("server.allowed_origins")
	}

	if err := Validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func applyDefaults(config *Config) {
	if config.GitHub.Branch == "" {
		config.GitHub.Branch = "main"
	}
	if config.GitHub.ManifestPath == "" {
		config.GitHub.ManifestPath = "manifest.json"
	}
	if config.GitHub.LogoDir == "" {
		config.GitHub.LogoDir = "logos"
	}
	if config.GitHub.MaxLogoBytes == 0 {
		config.GitHub.MaxLogoBytes = 2 << 20
	}

	if config.MQTT.ClientIDPrefix == "" {
		config.MQTT.ClientIDPrefix = "signdeck"
	}
	if config.MQTT.QoS == 0 {
		config.MQTT.QoS = 1
	}
	if config.MQTT.ConnectTimeout == 0 {
		config.MQTT.ConnectTimeout = 10 * time.Second
	}
	if config.MQTT.TopicPrefix == "" {
		config.MQTT.TopicPrefix = "billboard"
	}

	if config.Server.Host == "" {
		config.Server.Host = "localhost"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 8410
	}

	if config.Store.Path == "" {
		config.Store.Path = ".signdeck/signdeck.db"
	}
	if config.Store.HistoryLimit == 0 {
		config.Store.HistoryLimit = 1000
	}

	if len(config.Sync.Patterns) == 0 {
		config.Sync.Patterns = []string{"*.png", "*.jpg", "*.jpeg", "*.gif", "*.svg", "*.webp"}
	}
	if config.Sync.Debounce == 0 {
		config.Sync.Debounce = 500 * time.Millisecond
	}

	if config.Fleet.CommandTimeout == 0 {
		config.Fleet.CommandTimeout = 30 * time.Second
	}
	if config.Fleet.OfflineAfter == 0 {
		config.Fleet.OfflineAfter = 90 * time.Second
	}
}
