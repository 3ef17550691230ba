package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tether.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	if cfg.Engine.TickInterval != DefaultTickInterval {
		t.Errorf("TickInterval = %v, want %v", cfg.Engine.TickInterval, DefaultTickInterval)
	}
	if cfg.Store.Backend != DefaultStoreBackend {
		t.Errorf("Store.Backend = %q, want %q", cfg.Store.Backend, DefaultStoreBackend)
	}
	if cfg.Store.Path != DefaultStoreFilePath {
		t.Errorf("Store.Path = %q, want %q", cfg.Store.Path, DefaultStoreFilePath)
	}
	if !cfg.Audit.Enabled {
		t.Error("Audit.Enabled = false, want true")
	}
	if !cfg.Telemetry.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true")
	}
	if !cfg.Engine.DegradeOnErrorEnabled() {
		t.Error("DegradeOnErrorEnabled() = false, want true")
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate(default) error = %v, want nil", err)
	}
}

func TestLoadConfig_ValidFile(t *testing.T) {
	path := writeConfig(t, `
engine:
  tick_interval: "500ms"
  local_actor: "alice"
store:
  backend: "sqlite"
audit:
  backend: "memory"
  retention_days: 7
authority:
  roles:
    bob: "owner"
  capabilities:
    override:
      min: "owner"
      self: false
      floor: "lover"
telemetry:
  logging:
    level: "debug"
    format: "text"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v, want nil", err)
	}

	if cfg.Engine.TickInterval != 500*time.Millisecond {
		t.Errorf("TickInterval = %v, want 500ms", cfg.Engine.TickInterval)
	}
	if cfg.Engine.LocalActor != "alice" {
		t.Errorf("LocalActor = %q, want %q", cfg.Engine.LocalActor, "alice")
	}
	if cfg.Store.Path != DefaultStoreSQLitePath {
		t.Errorf("Store.Path = %q, want %q", cfg.Store.Path, DefaultStoreSQLitePath)
	}
	if !cfg.Audit.Enabled {
		t.Error("Audit.Enabled = false, want default true to survive partial section")
	}
	if cfg.Audit.RetentionDays != 7 {
		t.Errorf("RetentionDays = %d, want 7", cfg.Audit.RetentionDays)
	}
	if got := cfg.Authority.Capabilities["override"].Floor; got != "lover" {
		t.Errorf("override floor = %q, want %q", got, "lover")
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Telemetry.Logging.Level, "debug")
	}
}

func TestParse_StorePathFollowsBackend(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{name: "empty document", yaml: "", want: DefaultStoreFilePath},
		{name: "file backend", yaml: "store:\n  backend: file\n", want: DefaultStoreFilePath},
		{name: "sqlite backend", yaml: "store:\n  backend: sqlite\n", want: DefaultStoreSQLitePath},
		{name: "memory backend", yaml: "store:\n  backend: memory\n", want: ""},
		{name: "explicit path", yaml: "store:\n  backend: sqlite\n  path: custom.db\n", want: "custom.db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.yaml))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if cfg.Store.Path != tt.want {
				t.Errorf("Store.Path = %q, want %q", cfg.Store.Path, tt.want)
			}
			if !cfg.Audit.Enabled {
				t.Error("Audit.Enabled = false, want true")
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("LoadConfig() error = nil, want error")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "engine: [unterminated")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig() error = nil, want parse error")
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
engine:
  tick_interval: "1s"
`)

	t.Setenv("TETHER_ENGINE_TICK_INTERVAL", "3s")
	t.Setenv("TETHER_STORE_BACKEND", "memory")
	t.Setenv("TETHER_AUDIT_ENABLED", "false")
	t.Setenv("TETHER_ENGINE_DEGRADE_ON_ERROR", "false")
	t.Setenv("TETHER_AUDIT_ASYNC_BUFFER", "not-a-number")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides() error = %v, want nil", err)
	}

	if cfg.Engine.TickInterval != 3*time.Second {
		t.Errorf("TickInterval = %v, want 3s", cfg.Engine.TickInterval)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("Store.Backend = %q, want memory", cfg.Store.Backend)
	}
	if cfg.Audit.Enabled {
		t.Error("Audit.Enabled = true, want false")
	}
	if cfg.Engine.DegradeOnErrorEnabled() {
		t.Error("DegradeOnErrorEnabled() = true, want false")
	}
	if cfg.Audit.AsyncBuffer != DefaultAuditAsyncBuffer {
		t.Errorf("AsyncBuffer = %d, want %d (malformed override ignored)", cfg.Audit.AsyncBuffer, DefaultAuditAsyncBuffer)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:      "unknown store backend",
			mutate:    func(c *Config) { c.Store.Backend = "postgres" },
			wantField: "store.backend",
		},
		{
			name:      "watch on sqlite",
			mutate:    func(c *Config) { c.Store.Backend = "sqlite"; c.Store.Watch = true },
			wantField: "store.watch",
		},
		{
			name:      "bad prune schedule",
			mutate:    func(c *Config) { c.Audit.PruneSchedule = "every day" },
			wantField: "audit.prune_schedule",
		},
		{
			name:      "unknown role level",
			mutate:    func(c *Config) { c.Authority.Roles["bob"] = "emperor" },
			wantField: "authority.roles.bob",
		},
		{
			name: "capability without min",
			mutate: func(c *Config) {
				c.Authority.Capabilities["summon"] = CapabilityConfig{Self: true}
			},
			wantField: "authority.capabilities.summon.min",
		},
		{
			name:      "tracing without endpoint",
			mutate:    func(c *Config) { c.Telemetry.Tracing.Enabled = true },
			wantField: "telemetry.tracing.endpoint",
		},
		{
			name:      "bad log format",
			mutate:    func(c *Config) { c.Telemetry.Logging.Format = "xml" },
			wantField: "telemetry.logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("Validate() error = nil, want error")
			}

			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error type = %T, want ValidationError", err)
			}

			found := false
			for _, fe := range verr.Errors {
				if fe.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("Validate() errors = %v, want field %q", verr.Errors, tt.wantField)
			}
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	single := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}}}
	if got, want := single.Error(), "configuration validation failed: a: bad"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	empty := ValidationError{}
	if got, want := empty.Error(), "configuration validation failed"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestSingleton(t *testing.T) {
	previous := GetConfig()
	t.Cleanup(func() { SetConfig(previous) })

	cfg := NewDefaultConfig()
	SetConfig(cfg)
	if GetConfig() != cfg {
		t.Error("GetConfig() did not return the config passed to SetConfig")
	}
	if MustGetConfig() != cfg {
		t.Error("MustGetConfig() did not return the config passed to SetConfig")
	}

	path := writeConfig(t, "engine:\n  local_actor: \"carol\"\n")
	if err := ReloadConfig(path); err != nil {
		t.Fatalf("ReloadConfig() error = %v, want nil", err)
	}
	if got := GetConfig().Engine.LocalActor; got != "carol" {
		t.Errorf("LocalActor after reload = %q, want %q", got, "carol")
	}
}
