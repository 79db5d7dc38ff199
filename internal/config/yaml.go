package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of folio.yaml. Durations are written as
// Go duration strings.
type FileConfig struct {
	Server   ServerFile   `yaml:"server"`
	Database DatabaseFile `yaml:"database"`
	Storage  StorageFile  `yaml:"storage"`
	Realtime RealtimeFile `yaml:"realtime"`
	Auth     AuthFile     `yaml:"auth"`
	Store    StoreFile    `yaml:"store"`
	Contact  ContactFile  `yaml:"contact"`
	Sweep    SweepFile    `yaml:"sweep"`
	Log      LogFile      `yaml:"log"`
}

type ServerFile struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	ShutdownTimeout string   `yaml:"shutdown_timeout"`
	CORSOrigins     []string `yaml:"cors_origins"`
	MaxUploadBytes  int64    `yaml:"max_upload_bytes"`
	PublicBaseURL   string   `yaml:"public_base_url"`
	Dev             bool     `yaml:"dev"`
}

type DatabaseFile struct {
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

type StorageFile struct {
	Driver string `yaml:"driver"`
	Dir    string `yaml:"dir"`
	S3     S3File `yaml:"s3"`
}

type S3File struct {
	Bucket        string `yaml:"bucket"`
	Region        string `yaml:"region"`
	Endpoint      string `yaml:"endpoint"`
	PublicBaseURL string `yaml:"public_base_url"`
	PathStyle     bool   `yaml:"path_style"`
}

type RealtimeFile struct {
	Broker       string `yaml:"broker"`
	RedisAddr    string `yaml:"redis_addr"`
	RedisChannel string `yaml:"redis_channel"`
}

type AuthFile struct {
	JWTSecret  string `yaml:"jwt_secret"`
	SessionTTL string `yaml:"session_ttl"`
}

type StoreFile struct {
	Timeout string `yaml:"timeout"`
}

type ContactFile struct {
	RateLimit int `yaml:"rate_limit"`
}

type SweepFile struct {
	Schedule string `yaml:"schedule"`
	Grace    string `yaml:"grace"`
}

type LogFile struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ToFile converts settings to their file form. With redact set the JWT
// secret is masked.
func ToFile(s Settings, redact bool) FileConfig {
	secret := s.Auth.JWTSecret
	if redact && secret != "" {
		secret = "********"
	}
	return FileConfig{
		Server: ServerFile{
			Host:            s.Server.Host,
			Port:            s.Server.Port,
			ShutdownTimeout: s.Server.ShutdownTimeout.String(),
			CORSOrigins:     s.Server.CORSOrigins,
			MaxUploadBytes:  s.Server.MaxUploadBytes,
			PublicBaseURL:   s.Server.PublicBaseURL,
			Dev:             s.Server.Dev,
		},
		Database: DatabaseFile{
			Driver:       s.Database.Driver,
			DSN:          s.Database.DSN,
			MaxOpenConns: s.Database.MaxOpenConns,
		},
		Storage: StorageFile{
			Driver: s.Storage.Driver,
			Dir:    s.Storage.Dir,
			S3: S3File{
				Bucket:        s.Storage.S3.Bucket,
				Region:        s.Storage.S3.Region,
				Endpoint:      s.Storage.S3.Endpoint,
				PublicBaseURL: s.Storage.S3.PublicBaseURL,
				PathStyle:     s.Storage.S3.PathStyle,
			},
		},
		Realtime: RealtimeFile{
			Broker:       s.Realtime.Broker,
			RedisAddr:    s.Realtime.RedisAddr,
			RedisChannel: s.Realtime.RedisChannel,
		},
		Auth:    AuthFile{JWTSecret: secret, SessionTTL: s.Auth.SessionTTL.String()},
		Store:   StoreFile{Timeout: s.Store.Timeout.String()},
		Contact: ContactFile{RateLimit: s.Contact.RateLimit},
		Sweep:   SweepFile{Schedule: s.Sweep.Schedule, Grace: s.Sweep.Grace.String()},
		Log:     LogFile{Level: s.Log.Level, Format: s.Log.Format},
	}
}

// Marshal renders settings as YAML.
func Marshal(s Settings, redact bool) ([]byte, error) {
	return yaml.Marshal(ToFile(s, redact))
}

// ErrConfigExists is returned by WriteDefaultConfig when path is taken.
var ErrConfigExists = errors.New("config file already exists")

// WriteDefaultConfig writes the default configuration to path. It refuses
// to overwrite an existing file unless force is set.
func WriteDefaultConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	data, err := Marshal(Defaults(), false)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
