package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "droidrelay.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  address: \":9090\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":9090" {
		t.Fatalf("unexpected address: %s", cfg.Server.Address)
	}
	if cfg.Storage.Driver != "memory" || cfg.Events.Driver != "none" {
		t.Fatalf("unexpected drivers: %+v", cfg)
	}
	if cfg.Storage.Redis.KeyPrefix != "droid:" || cfg.Events.RabbitMQ.Exchange != "droidrelay.events" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Bootstrap.Timeout().Seconds() != 10 || cfg.Bootstrap.EnvFile != ".env" {
		t.Fatalf("unexpected bootstrap defaults: %+v", cfg.Bootstrap)
	}
	if cfg.Alerting.Timeout().Seconds() != 5 || cfg.Alerting.WebhookURL != "" {
		t.Fatalf("unexpected alerting defaults: %+v", cfg.Alerting)
	}
}

func TestLoadResolvesAuditPathRelativeToConfig(t *testing.T) {
	path := writeConfig(t, "logging:\n  audit:\n    enabled: true\n    path: audit/accounts.log\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := filepath.Join(filepath.Dir(path), "audit", "accounts.log")
	if cfg.Logging.Audit.Path != want {
		t.Fatalf("expected %s, got %s", want, cfg.Logging.Audit.Path)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv(EnvStorageDriver, "REDIS")
	t.Setenv(EnvRedisAddr, "127.0.0.1:6379")
	t.Setenv(EnvEncryptionKey, "s3cret")

	path := writeConfig(t, "storage:\n  driver: memory\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != "redis" || cfg.Storage.Redis.Address != "127.0.0.1:6379" {
		t.Fatalf("env override not applied: %+v", cfg.Storage)
	}
	if strings.Contains(cfg.String(), "s3cret") {
		t.Fatalf("summary leaks secret: %s", cfg.String())
	}
}

func TestValidateRejectsIncompleteBackends(t *testing.T) {
	cases := map[string]string{
		"mysql without dsn":      "storage:\n  driver: mysql\n",
		"redis without address":  "storage:\n  driver: redis\n",
		"unknown storage":        "storage:\n  driver: etcd\n",
		"rabbitmq without url":   "events:\n  driver: rabbitmq\n",
		"unknown events backend": "events:\n  driver: kafka\n",
	}
	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "server: [")); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestLoadFromEnvWithoutFile(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("load from env: %v", err)
	}
	if cfg.Storage.Driver != "memory" || cfg.Server.Address != ":8080" {
		t.Fatalf("expected pure defaults, got %+v", cfg)
	}
}
