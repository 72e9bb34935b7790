package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveSettingsDefaults(t *testing.T) {
	s := ResolveSettings(envMap(map[string]string{}))
	if s.APIKey != "" || s.KeySource != "" {
		t.Fatalf("expected no key, got %+v", s)
	}
	if s.AccountName != "Env Factory Account" || s.EndpointType != "anthropic" {
		t.Fatalf("unexpected defaults: %+v", s)
	}
}

func TestResolveFallsThroughEmptyValues(t *testing.T) {
	value, source := SettingAPIKey.Resolve(envMap(map[string]string{
		EnvFactoryAPIKey: "",
		EnvDroidAPIKey:   " dk-1 ",
	}))
	if value != "dk-1" || source != EnvDroidAPIKey {
		t.Fatalf("unexpected resolution: %q from %q", value, source)
	}
}

func TestResolveUsesProcessEnvironmentByDefault(t *testing.T) {
	t.Setenv(EnvDroidAccountName, "From Process")
	value, source := SettingAccountName.Resolve(nil)
	if value != "From Process" || source != EnvDroidAccountName {
		t.Fatalf("unexpected resolution: %q from %q", value, source)
	}
}

func TestLoadEnvFileDoesNotOverride(t *testing.T) {
	const (
		keyA = "DROIDRELAY_TEST_ENV_A"
		keyB = "DROIDRELAY_TEST_ENV_B"
	)
	t.Setenv(keyA, "from-process")
	os.Unsetenv(keyB)
	t.Cleanup(func() { os.Unsetenv(keyB) })

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(keyA+"=from-file\n"+keyB+"=loaded\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	loaded, err := LoadEnvFile(path)
	if err != nil || !loaded {
		t.Fatalf("load env file: %v (loaded=%v)", err, loaded)
	}
	if os.Getenv(keyA) != "from-process" {
		t.Fatalf("existing variable overridden")
	}
	if os.Getenv(keyB) != "loaded" {
		t.Fatalf("new variable not loaded")
	}
}

func TestLoadEnvFileMissing(t *testing.T) {
	loaded, err := LoadEnvFile(filepath.Join(t.TempDir(), "absent.env"))
	if err != nil || loaded {
		t.Fatalf("missing file should be ignored: loaded=%v err=%v", loaded, err)
	}
	if loaded, err := LoadEnvFile(""); err != nil || loaded {
		t.Fatalf("empty path should be ignored")
	}
}

func TestWhitespaceOnlyFactoryKeyFallsThrough(t *testing.T) {
	value, source := SettingAPIKey.Resolve(envMap(map[string]string{
		EnvFactoryAPIKey: "   ",
		EnvDroidAPIKey:   "dk-2",
	}))
	if value != "dk-2" || source != EnvDroidAPIKey {
		t.Fatalf("unexpected resolution: %q from %q", value, source)
	}
}
