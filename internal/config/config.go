// Package config loads song-roulette configuration from an optional YAML file
// and the environment.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrConfig marks configuration problems: required values that are absent or
// values that fail validation.
var ErrConfig = errors.New("server configuration error")

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Spotify  SpotifyConfig  `yaml:"spotify"`
	Cache    CacheConfig    `yaml:"cache"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig represents HTTP server configuration.
type ServerConfig struct {
	Addr    string `yaml:"addr" default:"127.0.0.1:8080"`
	BaseURL string `yaml:"base_url" default:"http://127.0.0.1:8080" validate:"url"`
}

// DatabaseConfig represents catalog store configuration.
type DatabaseConfig struct {
	URL string `yaml:"url" validate:"required"`
}

// SpotifyConfig represents Spotify API configuration.
// Credentials are not validated here: missing credentials degrade lookups to
// fallback data instead of failing requests.
type SpotifyConfig struct {
	ClientID          string        `yaml:"client_id"`
	ClientSecret      string        `yaml:"client_secret"`
	Market            string        `yaml:"market" default:"JP" validate:"omitempty,len=2"`
	RequestsPerSecond float64       `yaml:"requests_per_second" default:"5" validate:"gt=0"`
	Timeout           time.Duration `yaml:"timeout" default:"10s" validate:"gt=0"`
}

// CacheConfig represents result cache configuration.
type CacheConfig struct {
	TTL           time.Duration `yaml:"ttl" default:"1h" validate:"gt=0"`
	SweepInterval time.Duration `yaml:"sweep_interval" default:"10m" validate:"gte=0"`
}

// LogConfig represents logger configuration.
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn warning error"`
	Output string `yaml:"output" default:"stdout"`
}

// Load loads configuration from a YAML file. An empty path or a missing file
// means environment-only configuration.
// Environment variables take precedence over file values.
// Validation failures are marked with ErrConfig. When only the database
// section is missing or invalid, the partially filled config is still returned
// so the caller can start in a degraded mode; any other invalid value is fatal.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, errors.Wrap(err, "failed to read config file")
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, errors.Wrap(err, "failed to parse config file")
			}
		}
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	cfg.Server.BaseURL = strings.TrimRight(cfg.Server.BaseURL, "/")

	if err := cfg.Validate(); err != nil {
		if databaseOnly(err) {
			return &cfg, err
		}
		return nil, err
	}

	return &cfg, nil
}

// databaseOnly reports whether every validation failure in err belongs to the
// database section.
func databaseOnly(err error) bool {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return false
	}
	for _, fe := range verrs {
		if !strings.HasPrefix(fe.StructNamespace(), "Config.Database.") {
			return false
		}
	}
	return true
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("BASE_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_MARKET"); v != "" {
		c.Spotify.Market = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Mark(errors.Wrap(err, "struct validation failed"), ErrConfig)
	}
	return nil
}

// RedirectURL returns the OAuth callback URL derived from the public base URL.
func (c *Config) RedirectURL() string {
	return c.Server.BaseURL + "/callback"
}

// HasSpotifyCredentials reports whether both Spotify client credentials are set.
func (c *Config) HasSpotifyCredentials() bool {
	return c.Spotify.ClientID != "" && c.Spotify.ClientSecret != ""
}
