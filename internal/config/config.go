// Package config loads the daemon configuration from a YAML file, an optional
// .env file and LARDER_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"larder/internal/models"
)

// Environment overrides
const (
	EnvJWTSecret   = "LARDER_JWT_SECRET"
	EnvDatabaseURL = "LARDER_DATABASE_URL"
	EnvStoreDriver = "LARDER_STORE_DRIVER"
	EnvPort        = "LARDER_PORT"
	EnvPhotoDriver = "LARDER_PHOTO_DRIVER"
	EnvS3Bucket    = "LARDER_S3_BUCKET"
)

// Config represents the application configuration
type Config struct {
	LogLevel string `yaml:"log_level"`
	Server   struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Port    int    `yaml:"port"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Store struct {
		Driver      string `yaml:"driver"`
		DatabaseURL string `yaml:"database_url"`
	} `yaml:"store"`
	Photos struct {
		Driver string `yaml:"driver"`
		Dir    string `yaml:"dir"`
		S3     struct {
			Bucket    string `yaml:"bucket"`
			Region    string `yaml:"region"`
			Endpoint  string `yaml:"endpoint"`
			PathStyle bool   `yaml:"path_style"`
		} `yaml:"s3"`
	} `yaml:"photos"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	Taxonomy struct {
		Defaults  map[string][]string `yaml:"defaults"`
		MaxLength int                 `yaml:"max_length"`
	} `yaml:"taxonomy"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	cfg := &Config{LogLevel: "info"}
	cfg.Server.Port = 8080
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = 9090
	cfg.Metrics.Path = "/metrics"
	cfg.Store.Driver = "sqlite3"
	cfg.Store.DatabaseURL = "larder.db"
	cfg.Photos.Driver = "fs"
	cfg.Photos.Dir = "photos"
	return cfg
}

// Load reads path over the defaults, then applies .env and environment
// overrides. A missing file or .env is not an error.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// godotenv never overrides variables already set in the process
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvJWTSecret); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv(EnvDatabaseURL); v != "" {
		c.Store.DatabaseURL = v
	}
	if v := os.Getenv(EnvStoreDriver); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv(EnvPhotoDriver); v != "" {
		c.Photos.Driver = v
	}
	if v := os.Getenv(EnvS3Bucket); v != "" {
		c.Photos.S3.Bucket = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPort, err)
		}
		c.Server.Port = port
	}
	return nil
}

// Validate checks driver names and required secrets
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory":
	case "sqlite3", "postgres":
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("store.database_url required for %s", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Photos.Driver {
	case "fs", "s3":
	default:
		return fmt.Errorf("unknown photo driver %q", c.Photos.Driver)
	}
	if c.Photos.Driver == "s3" && c.Photos.S3.Bucket == "" {
		return errors.New("photos.s3.bucket required for s3 driver")
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("auth.jwt_secret (or %s) required", EnvJWTSecret)
	}
	if _, err := c.TaxonomyDefaults(); err != nil {
		return err
	}
	return nil
}

// TaxonomyDefaults converts the configured default overrides to option kinds
func (c *Config) TaxonomyDefaults() (map[models.OptionKind][]string, error) {
	if len(c.Taxonomy.Defaults) == 0 {
		return nil, nil
	}
	out := make(map[models.OptionKind][]string, len(c.Taxonomy.Defaults))
	for name, values := range c.Taxonomy.Defaults {
		kind, err := models.ParseOptionKind(name)
		if err != nil {
			return nil, fmt.Errorf("taxonomy.defaults: %w", err)
		}
		out[kind] = values
	}
	return out, nil
}
