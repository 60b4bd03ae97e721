package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// GitHub owner and repo names: alphanumerics, hyphens, underscores, dots.
var repoNameRe = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Validate checks a Config for values that would fail later in confusing
// ways: bad ports, unsupported broker schemes, malformed repo coordinates.
func Validate(config *Config) error {
	if err := validateGitHub(&config.GitHub); err != nil {
		return fmt.Errorf("github config: %w", err)
	}
	if err := validateMQTT(&config.MQTT); err != nil {
		return fmt.Errorf("mqtt config: %w", err)
	}
	if err := validateServer(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	return nil
}

func validateGitHub(gh *GitHubConfig) error {
	if gh.Owner == "" || gh.Repo == "" {
		return fmt.Errorf("owner and repo are required")
	}
	if !repoNameRe.MatchString(gh.Owner) {
		return fmt.Errorf("invalid owner %q", gh.Owner)
	}
	if !repoNameRe.MatchString(gh.Repo) {
		return fmt.Errorf("invalid repo %q", gh.Repo)
	}
	if strings.HasPrefix(gh.ManifestPath, "/") || strings.Contains(gh.ManifestPath, "..") {
		return fmt.Errorf("manifest path must be repo-relative without traversal: %q", gh.ManifestPath)
	}
	if strings.HasPrefix(gh.LogoDir, "/") || strings.Contains(gh.LogoDir, "..") {
		return fmt.Errorf("logo dir must be repo-relative without traversal: %q", gh.LogoDir)
	}
	if gh.MaxLogoBytes < 0 {
		return fmt.Errorf("max_logo_bytes must be positive")
	}
	return nil
}

func validateMQTT(m *MQTTConfig) error {
	if m.BrokerURL == "" {
		return fmt.Errorf("broker_url is required")
	}
	u, err := url.Parse(m.BrokerURL)
	if err != nil {
		return fmt.Errorf("invalid broker_url: %w", err)
	}
	switch u.Scheme {
	case "tcp", "ssl", "tls", "ws", "wss":
	default:
		return fmt.Errorf("unsupported broker scheme %q (want tcp, ssl, ws or wss)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("broker_url missing host")
	}
	if m.QoS < 0 || m.QoS > 2 {
		return fmt.Errorf("qos must be 0, 1 or 2, got %d", m.QoS)
	}
	if strings.ContainsAny(m.TopicPrefix, "+#/") {
		return fmt.Errorf("topic_prefix must be a single topic level, got %q", m.TopicPrefix)
	}
	return nil
}

func validateServer(s *ServerConfig) error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be in range 1-65535, got %d", s.Port)
	}
	for _, origin := range s.AllowedOrigins {
		u, err := url.Parse(origin)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid allowed origin %q", origin)
		}
	}
	return nil
}
