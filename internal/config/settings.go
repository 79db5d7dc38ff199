// Package config loads runtime settings from folio.yaml, FOLIO_* environment
// variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable: server.port is read from
// FOLIO_SERVER_PORT.
const EnvPrefix = "FOLIO"

// Settings is the full runtime configuration.
type Settings struct {
	Server   ServerSettings   `mapstructure:"server"`
	Database DatabaseSettings `mapstructure:"database"`
	Storage  StorageSettings  `mapstructure:"storage"`
	Realtime RealtimeSettings `mapstructure:"realtime"`
	Auth     AuthSettings     `mapstructure:"auth"`
	Store    StoreSettings    `mapstructure:"store"`
	Contact  ContactSettings  `mapstructure:"contact"`
	Sweep    SweepSettings    `mapstructure:"sweep"`
	Log      LogSettings      `mapstructure:"log"`
}

type ServerSettings struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
	// PublicBaseURL is the externally visible origin, used for stored
	// image URLs and verification links.
	PublicBaseURL string `mapstructure:"public_base_url"`
	Dev           bool   `mapstructure:"dev"`
}

type DatabaseSettings struct {
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type StorageSettings struct {
	Driver string     `mapstructure:"driver"` // local or s3
	Dir    string     `mapstructure:"dir"`
	S3     S3Settings `mapstructure:"s3"`
}

type S3Settings struct {
	Bucket        string `mapstructure:"bucket"`
	Region        string `mapstructure:"region"`
	Endpoint      string `mapstructure:"endpoint"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	PathStyle     bool   `mapstructure:"path_style"`
}

type RealtimeSettings struct {
	Broker       string `mapstructure:"broker"` // memory or redis
	RedisAddr    string `mapstructure:"redis_addr"`
	RedisChannel string `mapstructure:"redis_channel"`
}

type AuthSettings struct {
	JWTSecret  string        `mapstructure:"jwt_secret"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

type StoreSettings struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type ContactSettings struct {
	// RateLimit is the number of submissions allowed per client IP per
	// minute.
	RateLimit int `mapstructure:"rate_limit"`
}

type SweepSettings struct {
	Schedule string        `mapstructure:"schedule"`
	Grace    time.Duration `mapstructure:"grace"`
}

type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers every key with its default. Keys must be known to
// viper for AutomaticEnv to apply during Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("server.max_upload_bytes", d.Server.MaxUploadBytes)
	v.SetDefault("server.public_base_url", d.Server.PublicBaseURL)
	v.SetDefault("server.dev", d.Server.Dev)
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.dir", d.Storage.Dir)
	v.SetDefault("storage.s3.bucket", d.Storage.S3.Bucket)
	v.SetDefault("storage.s3.region", d.Storage.S3.Region)
	v.SetDefault("storage.s3.endpoint", d.Storage.S3.Endpoint)
	v.SetDefault("storage.s3.public_base_url", d.Storage.S3.PublicBaseURL)
	v.SetDefault("storage.s3.path_style", d.Storage.S3.PathStyle)
	v.SetDefault("realtime.broker", d.Realtime.Broker)
	v.SetDefault("realtime.redis_addr", d.Realtime.RedisAddr)
	v.SetDefault("realtime.redis_channel", d.Realtime.RedisChannel)
	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	v.SetDefault("auth.session_ttl", d.Auth.SessionTTL)
	v.SetDefault("store.timeout", d.Store.Timeout)
	v.SetDefault("contact.rate_limit", d.Contact.RateLimit)
	v.SetDefault("sweep.schedule", d.Sweep.Schedule)
	v.SetDefault("sweep.grace", d.Sweep.Grace)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		Server: ServerSettings{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 30 * time.Second,
			CORSOrigins:     []string{"*"},
			MaxUploadBytes:  5 << 20,
		},
		Database: DatabaseSettings{
			Driver:       "sqlite",
			DSN:          "data/folio.db",
			MaxOpenConns: 10,
		},
		Storage: StorageSettings{
			Driver: "local",
			Dir:    "data/storage",
		},
		Realtime: RealtimeSettings{
			Broker:       "memory",
			RedisAddr:    "localhost:6379",
			RedisChannel: "folio:changes:",
		},
		Auth: AuthSettings{
			SessionTTL: 7 * 24 * time.Hour,
		},
		Store:   StoreSettings{Timeout: 10 * time.Second},
		Contact: ContactSettings{RateLimit: 5},
		Sweep:   SweepSettings{Grace: 24 * time.Hour},
		Log:     LogSettings{Level: "info", Format: "text"},
	}
}

// Prepare points v at the config file (or the default search path) and the
// environment. A missing file is not an error.
func Prepare(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("folio")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.folio")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || (configFile == "" && errors.Is(err, fs.ErrNotExist)) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// LoadDotEnv loads .env into the process environment without overriding
// variables that are already set. A missing file is ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load decodes v into Settings and validates it.
func Load(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	// Origins from the environment arrive comma separated, possibly padded.
	s.Server.CORSOrigins = splitList(strings.Join(s.Server.CORSOrigins, ","))
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks enumerations and ranges.
func (s *Settings) Validate() error {
	switch s.Database.Driver {
	case "sqlite", "sqlite3", "postgres", "pgx", "mysql", "sqlserver", "mssql":
	default:
		return fmt.Errorf("database.driver: unsupported %q", s.Database.Driver)
	}
	switch s.Storage.Driver {
	case "local":
	case "s3":
		if s.Storage.S3.Bucket == "" {
			return errors.New("storage.s3.bucket is required when storage.driver is s3")
		}
	default:
		return fmt.Errorf("storage.driver: unsupported %q", s.Storage.Driver)
	}
	switch s.Realtime.Broker {
	case "memory", "redis":
	default:
		return fmt.Errorf("realtime.broker: unsupported %q", s.Realtime.Broker)
	}
	if s.Server.Port <= 0 || s.Server.Port > 65535 {
		return fmt.Errorf("server.port: %d out of range", s.Server.Port)
	}
	if s.Contact.RateLimit < 0 {
		return errors.New("contact.rate_limit must not be negative")
	}
	return nil
}

// Addr is the listen address.
func (s *Settings) Addr() string {
	return net.JoinHostPort(s.Server.Host, strconv.Itoa(s.Server.Port))
}

// BaseURL is the public origin, derived from the listen address when not
// configured.
func (s *Settings) BaseURL() string {
	if s.Server.PublicBaseURL != "" {
		return strings.TrimRight(s.Server.PublicBaseURL, "/")
	}
	host := s.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(s.Server.Port))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
