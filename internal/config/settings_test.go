package config

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func load(t *testing.T, configFile string) *Settings {
	t.Helper()
	v := viper.New()
	if err := Prepare(v, configFile); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	s, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

func TestDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	s := load(t, "")

	if s.Server.Port != 8080 || s.Server.Host != "0.0.0.0" {
		t.Errorf("server: %+v", s.Server)
	}
	if s.Database.Driver != "sqlite" {
		t.Errorf("driver: %q", s.Database.Driver)
	}
	if s.Store.Timeout != 10*time.Second {
		t.Errorf("store timeout: %v", s.Store.Timeout)
	}
	if s.Auth.SessionTTL != 7*24*time.Hour {
		t.Errorf("session ttl: %v", s.Auth.SessionTTL)
	}
	if s.Realtime.Broker != "memory" || s.Storage.Driver != "local" {
		t.Errorf("realtime/storage: %q %q", s.Realtime.Broker, s.Storage.Driver)
	}
	if s.BaseURL() != "http://localhost:8080" {
		t.Errorf("base url: %q", s.BaseURL())
	}
	if s.Addr() != "0.0.0.0:8080" {
		t.Errorf("addr: %q", s.Addr())
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FOLIO_SERVER_PORT", "9090")
	t.Setenv("FOLIO_STORE_TIMEOUT", "3s")
	t.Setenv("FOLIO_AUTH_JWT_SECRET", "from-env")
	t.Setenv("FOLIO_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("FOLIO_STORAGE_S3_BUCKET", "assets")
	t.Setenv("FOLIO_STORAGE_DRIVER", "s3")

	s := load(t, "")
	if s.Server.Port != 9090 {
		t.Errorf("port: %d", s.Server.Port)
	}
	if s.Store.Timeout != 3*time.Second {
		t.Errorf("timeout: %v", s.Store.Timeout)
	}
	if s.Auth.JWTSecret != "from-env" {
		t.Errorf("secret: %q", s.Auth.JWTSecret)
	}
	if len(s.Server.CORSOrigins) != 2 || s.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("origins: %q", s.Server.CORSOrigins)
	}
	if s.Storage.Driver != "s3" || s.Storage.S3.Bucket != "assets" {
		t.Errorf("storage: %+v", s.Storage)
	}
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "folio.yaml")
	content := `
server:
  port: 7000
  public_base_url: https://folio.example.com/
database:
  driver: postgres
  dsn: postgres://localhost/folio
sweep:
  schedule: "@daily"
  grace: 48h
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	s := load(t, path)
	if s.Server.Port != 7000 || s.Database.Driver != "postgres" {
		t.Errorf("settings: %+v %+v", s.Server, s.Database)
	}
	if s.Sweep.Schedule != "@daily" || s.Sweep.Grace != 48*time.Hour {
		t.Errorf("sweep: %+v", s.Sweep)
	}
	if s.BaseURL() != "https://folio.example.com" {
		t.Errorf("base url: %q", s.BaseURL())
	}
	// Unset keys keep their defaults.
	if s.Log.Level != "info" {
		t.Errorf("log level: %q", s.Log.Level)
	}
}

func TestExplicitConfigFileMissing(t *testing.T) {
	v := viper.New()
	if err := Prepare(v, filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("FOLIO_LOG_LEVEL", "")
	os.Unsetenv("FOLIO_LOG_LEVEL")
	if err := os.WriteFile(".env", []byte("FOLIO_LOG_LEVEL=debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := LoadDotEnv(); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	s := load(t, "")
	if s.Log.Level != "debug" {
		t.Errorf("log level: %q", s.Log.Level)
	}

	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("missing .env should be ignored: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"bad driver", func(s *Settings) { s.Database.Driver = "oracle" }},
		{"bad storage", func(s *Settings) { s.Storage.Driver = "ftp" }},
		{"s3 without bucket", func(s *Settings) { s.Storage.Driver = "s3" }},
		{"bad broker", func(s *Settings) { s.Realtime.Broker = "kafka" }},
		{"bad port", func(s *Settings) { s.Server.Port = 0 }},
		{"negative rate", func(s *Settings) { s.Contact.RateLimit = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Defaults()
			tt.mutate(&s)
			if err := s.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
	d := Defaults()
	if err := d.Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}

// ---------------------------------------------------------------------------
// YAML
// ---------------------------------------------------------------------------

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "folio.yaml")
	if err := WriteDefaultConfig(path, false); err != nil {
		t.Fatalf("WriteDefaultConfig: %v", err)
	}
	if err := WriteDefaultConfig(path, false); !errors.Is(err, ErrConfigExists) {
		t.Errorf("second write: got %v", err)
	}
	if err := WriteDefaultConfig(path, true); err != nil {
		t.Errorf("forced write: %v", err)
	}

	// The written file loads back to the defaults.
	s := load(t, path)
	want := Defaults()
	if s.Store.Timeout != want.Store.Timeout || s.Server.ShutdownTimeout != want.Server.ShutdownTimeout {
		t.Errorf("durations: %v %v", s.Store.Timeout, s.Server.ShutdownTimeout)
	}
	if s.Database.DSN != want.Database.DSN {
		t.Errorf("dsn: %q", s.Database.DSN)
	}
}

func TestMarshalRedactsSecret(t *testing.T) {
	s := Defaults()
	s.Auth.JWTSecret = "super-secret"

	data, err := Marshal(s, true)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if strings.Contains(string(data), "super-secret") {
		t.Error("secret not redacted")
	}
	var f FileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if f.Store.Timeout != "10s" || f.Auth.SessionTTL != "168h0m0s" {
		t.Errorf("durations: %q %q", f.Store.Timeout, f.Auth.SessionTTL)
	}
}

// ---------------------------------------------------------------------------
// Logging
// ---------------------------------------------------------------------------

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogSettings{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "id", "p1")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info logged at warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"id":"p1"`) {
		t.Errorf("json output: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
