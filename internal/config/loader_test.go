package config

import (
	"os"
	"path/filepath"
	"testing"
)

func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "smtpd.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/smtpd.toml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	expected := Default()
	if cfg.Hostname != expected.Hostname {
		t.Errorf("expected hostname %q, got %q", expected.Hostname, cfg.Hostname)
	}
}

func TestLoadValidTOML(t *testing.T) {
	content := `
hostname = "mail.example.com"
log_level = "debug"
spool = "/var/spool/smtpd-test"

[tls]
cert_file = "/etc/ssl/cert.pem"
key_file = "/etc/ssl/key.pem"
min_version = "1.3"

[limits]
max_connections = 50
max_mail = 10
max_rcpt = 100

[[listeners]]
address = ":25"
mode = "smtp"

[[listeners]]
address = ":587"
mode = "submission"
`
	path := createTempConfig(t, content)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Hostname != "mail.example.com" {
		t.Errorf("hostname = %q, want 'mail.example.com'", cfg.Hostname)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log_level = %q, want 'debug'", cfg.LogLevel)
	}
	if cfg.TLS.MinVersion != "1.3" {
		t.Errorf("tls.min_version = %q, want '1.3'", cfg.TLS.MinVersion)
	}
	if cfg.Limits.MaxConnections != 50 {
		t.Errorf("limits.max_connections = %d, want 50", cfg.Limits.MaxConnections)
	}
	if cfg.Limits.MaxMail != 10 {
		t.Errorf("limits.max_mail = %d, want 10", cfg.Limits.MaxMail)
	}
	if len(cfg.Listeners) != 2 {
		t.Fatalf("listeners = %d, want 2", len(cfg.Listeners))
	}
	if cfg.Listeners[1].Mode != ModeSubmission {
		t.Errorf("listeners[1].mode = %q, want submission", cfg.Listeners[1].Mode)
	}
}

func TestLoadPartialTOML_FillsDefaults(t *testing.T) {
	content := `hostname = "partial.example.com"`
	path := createTempConfig(t, content)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Hostname != "partial.example.com" {
		t.Errorf("hostname = %q, want 'partial.example.com'", cfg.Hostname)
	}
	// Unset fields must fall back to Default()'s values via mergeConfig.
	if cfg.Limits.MaxMail != 100 {
		t.Errorf("limits.max_mail = %d, want default 100", cfg.Limits.MaxMail)
	}
	if len(cfg.Listeners) != 1 || cfg.Listeners[0].Address != ":25" {
		t.Errorf("listeners = %+v, want default single :25 listener", cfg.Listeners)
	}
}

func TestLoadMalformedTOML(t *testing.T) {
	path := createTempConfig(t, "this is not [ valid toml")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed TOML, got nil")
	}
}

func TestApplyFlags(t *testing.T) {
	cfg := Default()
	f := &Flags{
		Hostname:       "flag.example.com",
		Listen:         ":2525",
		MaxConnections: 5,
		Spool:          "/tmp/spool",
	}
	got := ApplyFlags(cfg, f)
	if got.Hostname != "flag.example.com" {
		t.Errorf("hostname = %q, want 'flag.example.com'", got.Hostname)
	}
	if len(got.Listeners) != 1 || got.Listeners[0].Address != ":2525" {
		t.Errorf("listeners = %+v, want single :2525 listener", got.Listeners)
	}
	if got.Limits.MaxConnections != 5 {
		t.Errorf("max_connections = %d, want 5", got.Limits.MaxConnections)
	}
	if got.Spool != "/tmp/spool" {
		t.Errorf("spool = %q, want '/tmp/spool'", got.Spool)
	}
}

func TestApplyFlags_EmptyFlagsLeaveConfigUnchanged(t *testing.T) {
	cfg := Default()
	got := ApplyFlags(cfg, &Flags{})
	if got.Hostname != cfg.Hostname {
		t.Errorf("hostname changed to %q with empty flags", got.Hostname)
	}
	if len(got.Listeners) != len(cfg.Listeners) {
		t.Errorf("listeners changed with empty flags")
	}
}
