package config

import (
	"crypto/tls"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Hostname != "localhost" {
		t.Errorf("expected hostname 'localhost', got %q", cfg.Hostname)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected log_level 'info', got %q", cfg.LogLevel)
	}
	if len(cfg.Listeners) != 1 {
		t.Fatalf("expected 1 listener, got %d", len(cfg.Listeners))
	}
	if cfg.Listeners[0].Address != ":25" {
		t.Errorf("expected listener address ':25', got %q", cfg.Listeners[0].Address)
	}
	if cfg.Listeners[0].Mode != ModeSMTP {
		t.Errorf("expected listener mode %q, got %q", ModeSMTP, cfg.Listeners[0].Mode)
	}
	if cfg.Limits.MaxMail != 100 {
		t.Errorf("expected limits.max_mail 100, got %d", cfg.Limits.MaxMail)
	}
	if cfg.Limits.MaxRcpt != 1000 {
		t.Errorf("expected limits.max_rcpt 1000, got %d", cfg.Limits.MaxRcpt)
	}
	if cfg.Limits.KickThreshold != 50 {
		t.Errorf("expected limits.kick_threshold 50, got %d", cfg.Limits.KickThreshold)
	}
	if cfg.Limits.MaxMessageSize != 32*1024*1024 {
		t.Errorf("expected limits.max_message_size 32MiB, got %d", cfg.Limits.MaxMessageSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config failed Validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "valid default config", modify: func(c *Config) {}},
		{name: "empty hostname", modify: func(c *Config) { c.Hostname = "" }, wantErr: true},
		{name: "no listeners", modify: func(c *Config) { c.Listeners = nil }, wantErr: true},
		{
			name:    "listener with empty address",
			modify:  func(c *Config) { c.Listeners = []ListenerConfig{{Address: "", Mode: ModeSMTP}} },
			wantErr: true,
		},
		{
			name:    "listener with invalid mode",
			modify:  func(c *Config) { c.Listeners = []ListenerConfig{{Address: ":25", Mode: "bogus"}} },
			wantErr: true,
		},
		{
			name: "smtps without cert",
			modify: func(c *Config) {
				c.Listeners = []ListenerConfig{{Address: ":465", Mode: ModeSMTPS}}
			},
			wantErr: true,
		},
		{
			name: "smtps with cert",
			modify: func(c *Config) {
				c.Listeners = []ListenerConfig{{Address: ":465", Mode: ModeSMTPS}}
				c.TLS.CertFile = "cert.pem"
				c.TLS.KeyFile = "key.pem"
			},
		},
		{name: "zero max_mail", modify: func(c *Config) { c.Limits.MaxMail = 0 }, wantErr: true},
		{name: "zero max_rcpt", modify: func(c *Config) { c.Limits.MaxRcpt = 0 }, wantErr: true},
		{name: "invalid timeout", modify: func(c *Config) { c.Timeouts.Idle = "not-a-duration" }, wantErr: true},
		{name: "invalid tls min version", modify: func(c *Config) { c.TLS.MinVersion = "0.9" }, wantErr: true},
		{
			name: "metrics enabled without address",
			modify: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Address = ""
			},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.modify(&cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestMinTLSVersion(t *testing.T) {
	tests := []struct {
		version string
		want    uint16
	}{
		{"1.0", tls.VersionTLS10},
		{"1.1", tls.VersionTLS11},
		{"1.2", tls.VersionTLS12},
		{"1.3", tls.VersionTLS13},
		{"", tls.VersionTLS12}, // unset falls back to 1.2
		{"bogus", tls.VersionTLS12},
	}
	for _, tc := range tests {
		c := TLSConfig{MinVersion: tc.version}
		if got := c.MinTLSVersion(); got != tc.want {
			t.Errorf("MinTLSVersion(%q) = %#x, want %#x", tc.version, got, tc.want)
		}
	}
}

func TestTimeoutAccessors(t *testing.T) {
	to := TimeoutsConfig{Connection: "30s", Command: "", Idle: "bogus"}
	if got := to.ConnectionTimeout(); got.Seconds() != 30 {
		t.Errorf("ConnectionTimeout() = %v, want 30s", got)
	}
	if got := to.CommandTimeout(); got.Minutes() != 1 {
		t.Errorf("CommandTimeout() with empty value = %v, want default 1m", got)
	}
	if got := to.IdleTimeout(); got.Minutes() != 5 {
		t.Errorf("IdleTimeout() with invalid value = %v, want default 5m", got)
	}
}
