// Package prefs persists listener preferences to a YAML file or Redis.
package prefs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/osa030/openfm/internal/app/state"
	"github.com/osa030/openfm/internal/infra/config"
)

// Store loads and saves preferences. Load reports false when nothing has
// been saved yet.
type Store interface {
	Load(ctx context.Context) (state.Preferences, bool, error)
	Save(ctx context.Context, p state.Preferences) error
}

// New creates the store selected by cfg.Backend.
func New(cfg config.PreferencesConfig) (Store, error) {
	switch cfg.Backend {
	case "file", "":
		return NewFileStore(cfg.Path), nil
	case "redis":
		return NewRedisStore(cfg.Redis), nil
	case "none":
		return NopStore{}, nil
	default:
		return nil, errors.Newf("unsupported preferences backend: %s", cfg.Backend)
	}
}

// NopStore discards preferences.
type NopStore struct{}

// Load implements Store.
func (NopStore) Load(context.Context) (state.Preferences, bool, error) {
	return state.Preferences{}, false, nil
}

// Save implements Store.
func (NopStore) Save(context.Context, state.Preferences) error { return nil }

// FileStore keeps preferences in a YAML file.
type FileStore struct {
	path string
}

// NewFileStore creates a file store.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load implements Store.
func (s *FileStore) Load(_ context.Context) (state.Preferences, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return state.Preferences{}, false, nil
		}
		return state.Preferences{}, false, errors.Wrap(err, "failed to read preferences")
	}

	var p state.Preferences
	if err := yaml.Unmarshal(data, &p); err != nil {
		return state.Preferences{}, false, errors.Wrapf(err, "failed to parse preferences %s", s.path)
	}
	return p, true, nil
}

// Save implements Store. The file is replaced atomically.
func (s *FileStore) Save(_ context.Context, p state.Preferences) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "failed to encode preferences")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create preferences directory")
	}
	tmp, err := os.CreateTemp(dir, ".prefs-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "failed to write preferences")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to write preferences")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errors.Wrap(err, "failed to replace preferences")
	}
	return nil
}

// RedisStore keeps preferences as a JSON document under one key.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a Redis store. No connection is made until first use.
func NewRedisStore(cfg config.RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     2,
	})
	zlog.Info().Msgf("prefs: using redis: addr=%s db=%d key=%s", cfg.Addr, cfg.DB, cfg.Key)
	return &RedisStore{client: client, key: cfg.Key}
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context) (state.Preferences, bool, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return state.Preferences{}, false, nil
		}
		return state.Preferences{}, false, errors.Wrap(err, "failed to read preferences from redis")
	}

	var p state.Preferences
	if err := json.Unmarshal(data, &p); err != nil {
		return state.Preferences{}, false, errors.Wrap(err, "failed to decode preferences")
	}
	return p, true, nil
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, p state.Preferences) error {
	data, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "failed to encode preferences")
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return errors.Wrap(err, "failed to write preferences to redis")
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
