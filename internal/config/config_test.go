package config

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, DefaultConfigFile)); err != nil {
		t.Fatalf("default config not written: %v", err)
	}

	shard := cfg.GetShardData()
	if shard.ListenAddr() != "127.0.0.1:2593" {
		t.Fatalf("listen addr = %s", shard.ListenAddr())
	}
	if shard.ShardName != "My Shard" || shard.SessionKey != 0x432F3FF0 {
		t.Fatalf("unexpected defaults: %+v", shard)
	}
	if shard.IdleTimeoutSec != 0 {
		t.Fatal("idle timeout must be disabled by default")
	}
	if r := Validate(cfg); !r.IsValid() {
		t.Fatalf("default config invalid: %v", r.Errors)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultConfigFile)
	partial := `{"shard_data": {"shard_name": "Atlantic", "listen_port": 7775}}`
	if err := os.WriteFile(path, []byte(partial), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	shard := cfg.GetShardData()
	if shard.ShardName != "Atlantic" || shard.ListenPort != 7775 {
		t.Fatalf("overlay lost: %+v", shard)
	}
	if shard.RedirectPort != DefaultLoginPort || shard.ReadBufferSize != DefaultReadBuffer {
		t.Fatalf("defaults lost: %+v", shard)
	}

	// Re-save must have filled in the missing sections.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if _, ok := raw["application_data"]; !ok {
		t.Fatal("re-saved config lacks application_data")
	}
}

func TestLoadRejectsBadJSON(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestUpdateShardField(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.UpdateShardField("shard_name", "Chesapeake"); err != nil {
		t.Fatal(err)
	}
	if err := cfg.UpdateShardField("percent_full", float64(40)); err != nil {
		t.Fatal(err)
	}
	shard := cfg.GetShardData()
	if shard.ShardName != "Chesapeake" || shard.PercentFull != 40 {
		t.Fatalf("got %+v", shard)
	}

	if err := cfg.UpdateShardField("no_such_key", 1); err == nil {
		t.Fatal("unknown key accepted")
	}
	if err := cfg.UpdateShardField("listen_port", "not a number"); err == nil {
		t.Fatal("type mismatch accepted")
	}
	if cfg.GetShardData().ListenPort != DefaultLoginPort {
		t.Fatal("failed update modified the config")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		errField string
		warnOnly bool
	}{
		{"bad listen address", func(c *Config) { c.ShardData.ListenAddress = "localhost" }, "shard_data.listen_address", false},
		{"port out of range", func(c *Config) { c.ShardData.ListenPort = 70000 }, "shard_data.listen_port", false},
		{"empty shard name", func(c *Config) { c.ShardData.ShardName = " " }, "shard_data.shard_name", false},
		{"long shard name", func(c *Config) { c.ShardData.ShardName = strings.Repeat("x", 40) }, "shard_data.shard_name", true},
		{"ipv6 redirect", func(c *Config) { c.ShardData.RedirectAddress = "::1" }, "shard_data.redirect_address", false},
		{"tiny read buffer", func(c *Config) { c.ShardData.ReadBufferSize = 8 }, "shard_data.read_buffer_size", false},
		{"pending below buffer", func(c *Config) { c.ShardData.MaxPendingBytes = 100 }, "shard_data.max_pending_bytes", false},
		{"bad cleanup time", func(c *Config) { c.ApplicationData.AuditCleaner.CleanupTime = "25:99" }, "application_data.audit_cleaner.cleanup_time", false},
		{"auth without token", func(c *Config) { c.ApplicationData.Security.AuthDisabled = false }, "application_data.api.token", false},
		{"mqtt without broker", func(c *Config) { c.ApplicationData.MQTT.Enabled = true }, "application_data.mqtt.broker_url", false},
		{"tls without files", func(c *Config) { c.ApplicationData.Security.TLSEnabled = true }, "application_data.security.tls_cert_file", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			r := Validate(cfg)

			list := r.Errors
			if tt.warnOnly {
				if !r.IsValid() {
					t.Fatalf("unexpected errors: %v", r.Errors)
				}
				list = r.Warnings
			}
			for _, e := range list {
				if e.Field == tt.errField {
					return
				}
			}
			t.Fatalf("no finding for %s in %v", tt.errField, list)
		})
	}
}

func TestSetupWizard(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SetPath(filepath.Join(t.TempDir(), DefaultConfigFile))

	answers := strings.Join([]string{
		"",         // listen address
		"7775",     // listen port
		"Atlantic", // shard name
		"10.0.0.5", // shard address
		"",         // timezone
		"10.0.0.6", // redirect address
		"5003",     // redirect port
		"no",       // api
		"",         // mqtt
	}, "\n") + "\n"

	if err := RunSetupWizard(cfg, strings.NewReader(answers), io.Discard); err != nil {
		t.Fatalf("wizard: %v", err)
	}

	shard := cfg.GetShardData()
	if shard.ListenAddress != DefaultLoopbackIP || shard.ListenPort != 7775 {
		t.Fatalf("listener = %s", shard.ListenAddr())
	}
	if shard.ShardName != "Atlantic" || shard.ShardAddress != "10.0.0.5" {
		t.Fatalf("identity = %+v", shard)
	}
	if shard.RedirectAddress != "10.0.0.6" || shard.RedirectPort != 5003 {
		t.Fatalf("redirect = %s:%d", shard.RedirectAddress, shard.RedirectPort)
	}
	if cfg.GetApplicationData().API.Enabled {
		t.Fatal("api should be disabled")
	}
	if _, err := os.Stat(cfg.Path()); err != nil {
		t.Fatalf("config not saved: %v", err)
	}
}

func TestSetupWizardGivesUpOnInvalidInput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SetPath(filepath.Join(t.TempDir(), DefaultConfigFile))

	answers := "not-an-ip\n" + strings.Repeat("\n", 9) + "no\n"
	if err := RunSetupWizard(cfg, strings.NewReader(answers), io.Discard); err == nil {
		t.Fatal("expected validation failure")
	}
}
