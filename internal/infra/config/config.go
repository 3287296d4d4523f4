// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Playback    PlaybackConfig    `yaml:"playback"`
	Library     LibraryConfig     `yaml:"library"`
	Preferences PreferencesConfig `yaml:"preferences"`
	Content     ContentConfig     `yaml:"content"`
	NATS        NATSConfig        `yaml:"nats"`
	Spotify     SpotifyConfig     `yaml:"spotify"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr string `yaml:"addr" default:":8080"`
	// ControlToken guards mutating requests when set.
	ControlToken   string      `yaml:"control_token"`
	AllowedOrigins []string    `yaml:"allowed_origins"`
	Hooks          HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// PlaybackConfig represents playback engine configuration.
type PlaybackConfig struct {
	QueuePreview       int `yaml:"queue_preview" default:"10" validate:"gte=1,lte=100"`
	LoadTimeoutMs      int `yaml:"load_timeout_ms" default:"3000" validate:"gte=-1,lte=60000"`
	ProgressTickMs     int `yaml:"progress_tick_ms" validate:"gte=0,lte=10000"`
	CrossfadeTickMs    int `yaml:"crossfade_tick_ms" default:"15" validate:"gte=1,lte=1000"`
	PreviousRestartSec int `yaml:"previous_restart_sec" default:"3" validate:"gte=0,lte=600"`
}

// LoadTimeout returns the renderer ready timeout. A load_timeout_ms of -1
// disables it.
func (p PlaybackConfig) LoadTimeout() time.Duration {
	if p.LoadTimeoutMs < 0 {
		return -1
	}
	return time.Duration(p.LoadTimeoutMs) * time.Millisecond
}

// ProgressTick returns the progress fallback tick. Zero disables it.
func (p PlaybackConfig) ProgressTick() time.Duration {
	return time.Duration(p.ProgressTickMs) * time.Millisecond
}

// CrossfadeTick returns the crossfade ramp tick.
func (p PlaybackConfig) CrossfadeTick() time.Duration {
	return time.Duration(p.CrossfadeTickMs) * time.Millisecond
}

// PreviousRestart returns how far into a track "previous" restarts it.
func (p PlaybackConfig) PreviousRestart() time.Duration {
	return time.Duration(p.PreviousRestartSec) * time.Second
}

// LibraryConfig represents library scanning configuration.
type LibraryConfig struct {
	Root       string                    `yaml:"root"`
	AutoRescan bool                      `yaml:"auto_rescan" default:"true"`
	DebounceMs int                       `yaml:"debounce_ms" default:"500" validate:"gte=0,lte=60000"`
	Providers  map[string]ProviderConfig `yaml:"providers" validate:"dive,keys,oneof=local spotify,endkeys"`
}

// Debounce returns the rescan debounce period.
func (l LibraryConfig) Debounce() time.Duration {
	return time.Duration(l.DebounceMs) * time.Millisecond
}

// ProviderConfig represents a single library provider configuration.
type ProviderConfig struct {
	Type     string         `yaml:"type" validate:"required,oneof=dir bucket spotify"`
	Settings map[string]any `yaml:"settings"`
}

// PreferencesConfig represents preferences persistence configuration.
type PreferencesConfig struct {
	Backend string      `yaml:"backend" default:"file" validate:"oneof=file redis none"`
	Path    string      `yaml:"path" default:"openfm-prefs.yaml"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig represents Redis connection configuration.
type RedisConfig struct {
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
	Key      string `yaml:"key" default:"openfm:preferences"`
}

// ContentConfig represents where audio content is served from.
type ContentConfig struct {
	// Root restricts local file access. Defaults to the library root.
	Root  string      `yaml:"root"`
	Minio MinioConfig `yaml:"minio"`
}

// MinioConfig represents S3-compatible object storage configuration.
// Storage is disabled when Endpoint is empty.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket" validate:"required_with=Endpoint"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Enabled reports whether object storage is configured.
func (m MinioConfig) Enabled() bool {
	return m.Endpoint != ""
}

// NATSConfig represents the NATS state mirror. Disabled when URL is empty.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix" default:"openfm.events"`
	NodeID        string `yaml:"node_id"`
}

// SpotifyConfig represents Spotify API configuration.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"US"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML data.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if len(cfg.Library.Providers) == 0 {
		cfg.Library.Providers = map[string]ProviderConfig{"local": {Type: "dir"}}
	}
	if cfg.Content.Root == "" {
		cfg.Content.Root = cfg.Library.Root
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("OPENFM_CONTROL_TOKEN"); v != "" {
		c.Server.ControlToken = v
	}
	if v := os.Getenv("OPENFM_LIBRARY_ROOT"); v != "" {
		c.Library.Root = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Spotify.RefreshToken = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		c.Content.Minio.AccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		c.Content.Minio.SecretKey = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Preferences.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Preferences.Redis.DB = db
		}
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.NATS.URL = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.UsesProvider("spotify") {
		if c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "" || c.Spotify.RefreshToken == "" {
			return errors.New("spotify provider requires spotify.client_id, client_secret and refresh_token")
		}
	}
	if c.UsesProvider("bucket") && !c.Content.Minio.Enabled() {
		return errors.New("bucket provider requires content.minio.endpoint")
	}

	return nil
}

// UsesProvider reports whether any mode is served by a provider of type typ.
func (c *Config) UsesProvider(typ string) bool {
	return lo.SomeBy(lo.Values(c.Library.Providers), func(p ProviderConfig) bool { return p.Type == typ })
}

// SpotifyConfigured reports whether Spotify credentials are present.
func (c *Config) SpotifyConfigured() bool {
	return c.Spotify.ClientID != "" && c.Spotify.ClientSecret != "" && c.Spotify.RefreshToken != ""
}
