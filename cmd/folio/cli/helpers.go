package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/foliodesk/folio/internal/auth"
	"github.com/foliodesk/folio/internal/backend"
	"github.com/foliodesk/folio/internal/config"
	"github.com/foliodesk/folio/internal/console"
	"github.com/foliodesk/folio/internal/objectstore"
	"github.com/foliodesk/folio/internal/realtime"
	"github.com/foliodesk/folio/internal/store"
	"github.com/foliodesk/folio/internal/sweep"
)

// newLogger builds the process logger on stderr so stdout stays clean for
// command output and the MCP stdio transport.
func newLogger(s *config.Settings) *slog.Logger {
	return config.NewLogger(s.Log, os.Stderr)
}

// openStore connects to the configured database. Migrations run unless
// skipMigrate is set.
func openStore(ctx context.Context, s *config.Settings, pub backend.Publisher, skipMigrate bool, logger *slog.Logger) (*store.Store, error) {
	st, err := store.Open(ctx, store.Options{
		Driver:       s.Database.Driver,
		DSN:          s.Database.DSN,
		MaxOpenConns: s.Database.MaxOpenConns,
		SkipMigrate:  skipMigrate,
		Publisher:    pub,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

// openObjects builds the configured object store. local is non-nil only for
// the disk driver, whose files the HTTP server serves itself.
func openObjects(ctx context.Context, s *config.Settings, logger *slog.Logger) (objects backend.Objects, local *objectstore.Local, err error) {
	switch s.Storage.Driver {
	case "s3":
		s3, err := objectstore.NewS3(ctx, objectstore.S3Options{
			Bucket:        s.Storage.S3.Bucket,
			Region:        s.Storage.S3.Region,
			Endpoint:      s.Storage.S3.Endpoint,
			PublicBaseURL: s.Storage.S3.PublicBaseURL,
			PathStyle:     s.Storage.S3.PathStyle,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open s3 storage: %w", err)
		}
		return s3, nil, nil
	default:
		l, err := objectstore.NewLocal(s.Storage.Dir, s.BaseURL(), logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open local storage: %w", err)
		}
		return l, l, nil
	}
}

// redisPinger adapts a redis client to the readiness check.
type redisPinger struct{ client *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.client.Ping(ctx).Err() }

// newHub builds the realtime hub over the configured broker. The returned
// pinger is nil for the in-process broker.
func newHub(s *config.Settings, logger *slog.Logger) (*realtime.Hub, *redisPinger, error) {
	switch s.Realtime.Broker {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: s.Realtime.RedisAddr})
		broker := realtime.NewRedisBroker(client, s.Realtime.RedisChannel, logger)
		return realtime.NewHub(broker, logger), &redisPinger{client: client}, nil
	case "memory", "":
		return realtime.NewHub(realtime.NewMemoryBroker(), logger), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported realtime broker %q", s.Realtime.Broker)
	}
}

// jwtSecret returns the configured signing secret. In dev mode a random one
// is generated, which signs everyone out on restart.
func jwtSecret(s *config.Settings, logger *slog.Logger) (string, error) {
	if s.Auth.JWTSecret != "" {
		return s.Auth.JWTSecret, nil
	}
	if !s.Server.Dev {
		return "", errors.New("auth.jwt_secret is required (set FOLIO_AUTH_JWT_SECRET)")
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	logger.Warn("auth.jwt_secret not set; using a random secret for this run")
	return hex.EncodeToString(b), nil
}

// newAuthService builds the account service with verification links logged
// against the public base URL.
func newAuthService(s *config.Settings, st *store.Store, logger *slog.Logger) (*auth.Service, error) {
	secret, err := jwtSecret(s, logger)
	if err != nil {
		return nil, err
	}
	return auth.NewService(st, auth.Options{
		Secret:     secret,
		SessionTTL: s.Auth.SessionTTL,
		Mailer:     auth.LogMailer{Logger: logger, BaseURL: s.BaseURL()},
		Logger:     logger,
	})
}

// newSweeper builds the orphan image sweeper for uploaded project images.
func newSweeper(s *config.Settings, objects backend.Objects, st *store.Store, logger *slog.Logger) *sweep.Sweeper {
	return sweep.New(objects, st.Projects(), console.ImageBucket, console.ImagePrefix, s.Sweep.Grace, logger)
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
