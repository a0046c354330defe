// Package config loads the server configuration from an optional YAML file
// and environment variables, the environment taking precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the server's runtime configuration.
type Config struct {
	HTTPAddr string `yaml:"http_addr"`

	Database struct {
		Driver         string        `yaml:"driver"`
		DSN            string        `yaml:"dsn"`
		DefaultTimeout time.Duration `yaml:"default_timeout"`
		MaxOpenConns   int           `yaml:"max_open_conns"`
	} `yaml:"database"`

	Migrations struct {
		Dir   string `yaml:"dir"`
		Table string `yaml:"table"`
	} `yaml:"migrations"`

	Redis struct {
		Addr     string        `yaml:"addr"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		LockTTL  time.Duration `yaml:"lock_ttl"`
	} `yaml:"redis"`
}

// ErrMissingDSN is returned when no database DSN is configured.
var ErrMissingDSN = &configError{"DB_DSN is required, example: user:password@tcp(127.0.0.1:3306)/app?parseTime=true"}

type configError struct {
	msg string
}

func (e *configError) Error() string {
	return e.msg
}

// Load reads the file named by CONFIG_FILE, if set, then applies environment
// overrides and defaults.
func Load() (*Config, error) {
	return LoadFile(os.Getenv("CONFIG_FILE"))
}

// LoadFile is Load with an explicit file; an empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if cfg.Database.DSN == "" {
		return nil, ErrMissingDSN
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.HTTPAddr, "HTTP_ADDR")
	setString(&c.Database.Driver, "DB_DRIVER")
	setString(&c.Database.DSN, "DB_DSN")
	setString(&c.Migrations.Dir, "MIGRATIONS_DIR")
	setString(&c.Migrations.Table, "MIGRATIONS_TABLE")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")

	return errors.Join(
		setDuration(&c.Database.DefaultTimeout, "DB_DEFAULT_TIMEOUT"),
		setInt(&c.Database.MaxOpenConns, "DB_MAX_OPEN_CONNS"),
		setInt(&c.Redis.DB, "REDIS_DB"),
		setDuration(&c.Redis.LockTTL, "REDIS_LOCK_TTL"),
	)
}

func (c *Config) applyDefaults() {
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.DefaultTimeout == 0 {
		c.Database.DefaultTimeout = 30 * time.Second
	}
	if c.Migrations.Table == "" {
		c.Migrations.Table = "schema_migrations"
	}
	if c.Redis.LockTTL == 0 {
		c.Redis.LockTTL = time.Minute
	}
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return &configError{fmt.Sprintf("%s must be an integer, got %q", key, v)}
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return &configError{fmt.Sprintf("%s must be a duration such as 5s, got %q", key, v)}
	}
	*dst = d
	return nil
}
