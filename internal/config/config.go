// Package config provides configuration management for the smtpd server.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"time"
)

// ListenerMode defines the operational mode for a listener, per spec §6.
type ListenerMode string

const (
	// ModeSMTP is standard SMTP on port 25 with optional STARTTLS.
	ModeSMTP ListenerMode = "smtp"
	// ModeSubmission is the MSA on port 587: STARTTLS required, AUTH offered
	// (and required only when the listener sets require_auth).
	ModeSubmission ListenerMode = "submission"
	// ModeSMTPS is implicit TLS on port 465.
	ModeSMTPS ListenerMode = "smtps"
)

// Config holds the smtpd server configuration.
type Config struct {
	Hostname  string           `toml:"hostname"`
	LogLevel  string           `toml:"log_level"`
	Listeners []ListenerConfig `toml:"listeners"`
	TLS       TLSConfig        `toml:"tls"`
	Timeouts  TimeoutsConfig   `toml:"timeouts"`
	Limits    LimitsConfig     `toml:"limits"`
	Metrics   MetricsConfig    `toml:"metrics"`
	Spool     string           `toml:"spool"`
	Mfa       MfaConfig        `toml:"mfa"`
	Auth      AuthConfig       `toml:"auth"`
}

// ListenerConfig defines settings for a single listener.
type ListenerConfig struct {
	Address     string       `toml:"address"`
	Mode        ListenerMode `toml:"mode"`
	RequireAuth bool         `toml:"require_auth"`
}

// TLSConfig holds TLS certificate and version settings.
type TLSConfig struct {
	CertFile   string `toml:"cert_file"`
	KeyFile    string `toml:"key_file"`
	MinVersion string `toml:"min_version"`
}

// TimeoutsConfig defines timeout durations.
type TimeoutsConfig struct {
	Connection string `toml:"connection"`
	Command    string `toml:"command"`
	Idle       string `toml:"idle"`
}

// LimitsConfig defines the resource caps of spec §5.
type LimitsConfig struct {
	MaxConnections int   `toml:"max_connections"`
	MaxMail        int   `toml:"max_mail"`
	MaxRcpt        int   `toml:"max_rcpt"`
	KickThreshold  int   `toml:"kick_threshold"`
	MaxLineLength  int   `toml:"max_line_length"`
	MaxMessageSize int64 `toml:"max_message_size"`
}

// MetricsConfig holds configuration for Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Path    string `toml:"path"`
}

// MfaConfig selects and configures the default policy/filter collaborator.
type MfaConfig struct {
	Enabled         bool     `toml:"enabled"`
	AllowList       []string `toml:"allow_list"`
	DenyList        []string `toml:"deny_list"`
	DataLineEnabled bool     `toml:"data_line_enabled"`
}

// AuthConfig selects and configures the default credential collaborator.
type AuthConfig struct {
	PasswdFile string `toml:"passwd_file"`
}

// Default returns a Config with sensible default values.
func Default() Config {
	return Config{
		Hostname: "localhost",
		LogLevel: "info",
		Listeners: []ListenerConfig{
			{Address: ":25", Mode: ModeSMTP},
		},
		TLS: TLSConfig{
			MinVersion: "1.2",
		},
		Timeouts: TimeoutsConfig{
			Connection: "10m",
			Command:    "1m",
			Idle:       "5m",
		},
		Limits: LimitsConfig{
			MaxConnections: 100,
			MaxMail:        100,
			MaxRcpt:        1000,
			KickThreshold:  50,
			MaxLineLength:  2048,
			MaxMessageSize: 32 * 1024 * 1024,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9102",
			Path:    "/metrics",
		},
		Spool: "/var/spool/smtpd",
	}
}

// Validate checks that the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	if c.Hostname == "" {
		return errors.New("hostname is required")
	}

	if len(c.Listeners) == 0 {
		return errors.New("at least one listener is required")
	}

	for i, l := range c.Listeners {
		if l.Address == "" {
			return fmt.Errorf("listener %d: address is required", i)
		}
		if !isValidMode(l.Mode) {
			return fmt.Errorf("listener %d: invalid mode %q", i, l.Mode)
		}
		if l.Mode == ModeSMTPS && (c.TLS.CertFile == "" || c.TLS.KeyFile == "") {
			return fmt.Errorf("listener %d: smtps requires tls.cert_file and tls.key_file", i)
		}
	}

	if c.Limits.MaxConnections <= 0 {
		return errors.New("max_connections must be positive")
	}
	if c.Limits.MaxMail <= 0 {
		return errors.New("limits.max_mail must be positive")
	}
	if c.Limits.MaxRcpt <= 0 {
		return errors.New("limits.max_rcpt must be positive")
	}

	for _, d := range []string{c.Timeouts.Connection, c.Timeouts.Command, c.Timeouts.Idle} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("invalid timeout %q: %w", d, err)
		}
	}

	if c.TLS.MinVersion != "" {
		if _, ok := minTLSVersions[c.TLS.MinVersion]; !ok {
			return fmt.Errorf("invalid TLS min_version %q (valid: 1.0, 1.1, 1.2, 1.3)", c.TLS.MinVersion)
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.Address == "" {
			return errors.New("metrics address is required when metrics are enabled")
		}
		if c.Metrics.Path == "" {
			return errors.New("metrics path is required when metrics are enabled")
		}
	}

	return nil
}

// MinTLSVersion returns the crypto/tls constant for the configured minimum TLS version.
func (c *TLSConfig) MinTLSVersion() uint16 {
	if v, ok := minTLSVersions[c.MinVersion]; ok {
		return v
	}
	return tls.VersionTLS12
}

// ConnectionTimeout returns the connection timeout as a time.Duration.
func (c *TimeoutsConfig) ConnectionTimeout() time.Duration {
	return parseOrDefault(c.Connection, 10*time.Minute)
}

// CommandTimeout returns the command timeout as a time.Duration.
func (c *TimeoutsConfig) CommandTimeout() time.Duration {
	return parseOrDefault(c.Command, 1*time.Minute)
}

// IdleTimeout returns the idle timeout as a time.Duration.
func (c *TimeoutsConfig) IdleTimeout() time.Duration {
	return parseOrDefault(c.Idle, 5*time.Minute)
}

func parseOrDefault(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

var minTLSVersions = map[string]uint16{
	"1.0": tls.VersionTLS10,
	"1.1": tls.VersionTLS11,
	"1.2": tls.VersionTLS12,
	"1.3": tls.VersionTLS13,
}

func isValidMode(m ListenerMode) bool {
	switch m {
	case ModeSMTP, ModeSubmission, ModeSMTPS:
		return true
	default:
		return false
	}
}
