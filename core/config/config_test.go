package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{Token: "123:abc"},
		MTProto:  MTProtoConfig{APIID: 42, APIHash: "hash"},
		Crypto:   CryptoConfig{Key: "0123456789abcdef"},
		Storage:  StorageConfig{Driver: "memory"},
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := validConfig()
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Fatalf("run mode = %q, want longpoll", cfg.Telegram.RunMode)
	}
	if cfg.MTProto.SessionsDir != defaultSessionsDir {
		t.Fatalf("sessions dir = %q", cfg.MTProto.SessionsDir)
	}
	if cfg.Auth.CallTimeoutSeconds != defaultCallTimeoutSec || cfg.Auth.NoticeTTLSeconds != defaultNoticeTTLSeconds {
		t.Fatalf("unexpected auth defaults: %+v", cfg.Auth)
	}
}

func TestNormalizeRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"token":    func(c *Config) { c.Telegram.Token = "" },
		"api_id":   func(c *Config) { c.MTProto.APIID = 0 },
		"api_hash": func(c *Config) { c.MTProto.APIHash = " " },
		"key":      func(c *Config) { c.Crypto.Key = "short" },
		"driver":   func(c *Config) { c.Storage.Driver = "sqlite" },
		"redis":    func(c *Config) { c.Storage.Driver = "redis" },
		"postgres": func(c *Config) { c.Storage.Driver = "postgres" },
		"run_mode": func(c *Config) { c.Telegram.RunMode = "socket" },
		"webhook":  func(c *Config) { c.Telegram.RunMode = "webhook" },
		"exclude":  func(c *Config) { c.RateLimit.ExcludeUpdates = []string{"inline"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(cfg)
			if err := Normalize(cfg); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestNormalizeRedisPrefix(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Driver = " Redis "
	cfg.Storage.Redis.Addr = "localhost:6379"
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Storage.Driver != DriverRedis || cfg.Storage.Redis.Prefix != defaultRedisPrefix {
		t.Fatalf("unexpected storage config: %+v", cfg.Storage)
	}
}

func TestLoadYAMLWithEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := strings.Join([]string{
		"telegram:",
		"  token: from-yaml",
		"mtproto:",
		"  api_id: 7",
		"  api_hash: yaml-hash",
		"crypto:",
		"  key: yaml-secret-key-0001",
		"storage:",
		"  driver: memory",
	}, "\n")
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("BOT_TOKEN", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "from-env" {
		t.Fatalf("token = %q, want env override", cfg.Telegram.Token)
	}
	if cfg.MTProto.APIID != 7 || cfg.MTProto.APIHash != "yaml-hash" {
		t.Fatalf("unexpected mtproto config: %+v", cfg.MTProto)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	env := strings.Join([]string{
		"BOT_TOKEN=dotenv-token",
		"API_ID=11",
		"API_HASH=dotenv-hash",
		"MASTER_KEY=dotenv-secret-key-01",
		"STORAGE_DRIVER=memory",
	}, "\n")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	for _, k := range []string{"BOT_TOKEN", "API_ID", "API_HASH", "MASTER_KEY", "STORAGE_DRIVER"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "dotenv-token" || cfg.MTProto.APIID != 11 {
		t.Fatalf("dotenv values not applied: %+v", cfg)
	}
}
