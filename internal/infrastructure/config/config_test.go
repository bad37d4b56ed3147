package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// validJWTSecret meets the 32-character minimum.
const validJWTSecret = "test-secret-key-at-least-32-chars!"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
store:
  backend: sqlite
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8080
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
    access_token_ttl: 30
gateway:
  max_page_size: 50
  default_page_size: 10
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.MQTT.Broker.ClientID != "test-client" {
		t.Errorf("MQTT.Broker.ClientID = %q, want %q", cfg.MQTT.Broker.ClientID, "test-client")
	}
	if cfg.Gateway.MaxPageSize != 50 || cfg.Gateway.DefaultPageSize != 10 {
		t.Errorf("Gateway page sizes = %d/%d, want 10/50", cfg.Gateway.DefaultPageSize, cfg.Gateway.MaxPageSize)
	}
	// Unset keys keep their defaults.
	if cfg.Gateway.MaxBatchItems != 100 {
		t.Errorf("Gateway.MaxBatchItems = %d, want 100", cfg.Gateway.MaxBatchItems)
	}
	if got := cfg.GetAccessTokenTTL(); got != 30*time.Minute {
		t.Errorf("GetAccessTokenTTL() = %v, want 30m", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	// No JWT secret anywhere.
	t.Setenv("TENANTGATE_JWT_SECRET", "")
	_, err := Load(writeConfig(t, `
database:
  path: "/tmp/test.db"
`))
	if err == nil {
		t.Fatal("Load() expected validation error for missing jwt secret, got nil")
	}
	if !strings.Contains(err.Error(), "security.jwt.secret") {
		t.Errorf("error = %v, want mention of security.jwt.secret", err)
	}
}

func TestLoad_EnvSecret(t *testing.T) {
	t.Setenv("TENANTGATE_JWT_SECRET", validJWTSecret)
	cfg, err := Load(writeConfig(t, "api:\n  port: 9090\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Security.JWT.Secret != validJWTSecret {
		t.Errorf("Security.JWT.Secret not taken from environment")
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Security.JWT.Secret = validJWTSecret
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{
			name:   "valid mongo config",
			mutate: func(c *Config) { c.Store.Backend = BackendMongo },
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Store.Backend = "postgres" },
			wantErr: "store.backend",
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name: "missing mongo uri",
			mutate: func(c *Config) {
				c.Store.Backend = BackendMongo
				c.Mongo.URI = ""
			},
			wantErr: "mongo.uri",
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "invalid port low",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: "api.port",
		},
		{
			name:    "invalid port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: "api.port",
		},
		{
			name:    "missing JWT secret",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "" },
			wantErr: "security.jwt.secret is required",
		},
		{
			name:    "JWT secret too short",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "short" },
			wantErr: "at least 32 characters",
		},
		{
			name:    "default page size above max",
			mutate:  func(c *Config) { c.Gateway.DefaultPageSize = 500 },
			wantErr: "gateway.default_page_size",
		},
		{
			name:    "zero batch concurrency",
			mutate:  func(c *Config) { c.Gateway.BatchConcurrency = 0 },
			wantErr: "gateway.batch_concurrency",
		},
		{
			name:    "bootstrap without organization code",
			mutate:  func(c *Config) { c.Bootstrap.OrganizationCode = "" },
			wantErr: "bootstrap.organization_code",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := defaultConfig()
	cfg.API.Port = 0
	cfg.MQTT.QoS = 9

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	for _, want := range []string{"api.port", "mqtt.qos", "security.jwt.secret"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error missing %q: %v", want, err)
		}
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
		Gateway: GatewayConfig{StorageTimeout: 7},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
	if got := cfg.GetStorageTimeout(); got != 7*time.Second {
		t.Errorf("GetStorageTimeout() = %v, want 7s", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("TENANTGATE_DATABASE_PATH", "/custom/path.db")
	t.Setenv("TENANTGATE_STORE_BACKEND", "mongo")
	t.Setenv("TENANTGATE_MONGO_URI", "mongodb://db.example.com:27017")
	t.Setenv("TENANTGATE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("TENANTGATE_MQTT_USERNAME", "testuser")
	t.Setenv("TENANTGATE_MQTT_PASSWORD", "testpass")
	t.Setenv("TENANTGATE_API_HOST", "192.168.1.1")
	t.Setenv("TENANTGATE_API_PORT", "9443")
	t.Setenv("TENANTGATE_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("TENANTGATE_JWT_SECRET", "jwt-secret")

	applyEnvOverrides(cfg)

	checks := []struct {
		name, got, want string
	}{
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"Store.Backend", cfg.Store.Backend, "mongo"},
		{"Mongo.URI", cfg.Mongo.URI, "mongodb://db.example.com:27017"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"API.Host", cfg.API.Host, "192.168.1.1"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Security.JWT.Secret", cfg.Security.JWT.Secret, "jwt-secret"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.name, c.got, c.want)
		}
	}
	if cfg.API.Port != 9443 {
		t.Errorf("API.Port = %d, want 9443", cfg.API.Port)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Store.Backend != BackendSQLite {
		t.Errorf("defaultConfig Store.Backend = %q, want %q", cfg.Store.Backend, BackendSQLite)
	}
	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.Gateway.DefaultPageSize != 20 || cfg.Gateway.MaxPageSize != 100 {
		t.Errorf("defaultConfig page sizes = %d/%d, want 20/100",
			cfg.Gateway.DefaultPageSize, cfg.Gateway.MaxPageSize)
	}
	if cfg.Gateway.MaxAggregateResults != 1000 {
		t.Errorf("defaultConfig MaxAggregateResults = %d, want 1000", cfg.Gateway.MaxAggregateResults)
	}
}
