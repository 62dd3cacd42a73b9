package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "EVENTBOARD_"

// AdminConfig holds the credentials guarding administrative operations.
// PasswordHash is a bcrypt hash; an empty hash disables admin access.
type AdminConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// RedisConfig configures the page cache. An empty Addr disables caching.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
	Prefix   string        `yaml:"prefix"`
}

type Config struct {
	Port      string `yaml:"port"`
	DBPath    string `yaml:"db_path"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Timezone is the IANA zone used to interpret dates and hours of day.
	Timezone  string `yaml:"timezone"`
	SiteTitle string `yaml:"site_title"`
	BaseURL   string `yaml:"base_url"`

	Admin AdminConfig `yaml:"admin"`
	Redis RedisConfig `yaml:"redis"`

	// BlacklistWords rejects submitted events containing any of them.
	BlacklistWords []string `yaml:"blacklist_words"`
	SearchLimit    int      `yaml:"search_limit"`
	// CreatesPerMinute caps event submissions per client address.
	CreatesPerMinute int `yaml:"creates_per_minute"`
	// AllowedOrigins are extra host patterns accepted on /ws.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

func Default() *Config {
	return &Config{
		Port:             "8080",
		DBPath:           "eventboard.db",
		LogLevel:         "info",
		LogFormat:        "text",
		Timezone:         "UTC",
		SiteTitle:        "Eventboard",
		Admin:            AdminConfig{Username: "admin"},
		Redis:            RedisConfig{TTL: 5 * time.Minute, Prefix: "eventboard"},
		SearchLimit:      50,
		CreatesPerMinute: 10,
	}
}

// Load builds the configuration from, in increasing precedence: defaults,
// the YAML file at path (optional), a .env file in the working directory
// (optional) and EVENTBOARD_* environment variables.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.Normalize()

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(envPrefix + key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid int for %s%s: %q", envPrefix, key, v)
		}
		*dst = n
		return nil
	}

	str("PORT", &c.Port)
	str("DB_PATH", &c.DBPath)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("TIMEZONE", &c.Timezone)
	str("SITE_TITLE", &c.SiteTitle)
	str("BASE_URL", &c.BaseURL)
	str("ADMIN_USERNAME", &c.Admin.Username)
	str("ADMIN_PASSWORD_HASH", &c.Admin.PasswordHash)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("REDIS_PREFIX", &c.Redis.Prefix)

	if err := num("REDIS_DB", &c.Redis.DB); err != nil {
		return err
	}
	if err := num("SEARCH_LIMIT", &c.SearchLimit); err != nil {
		return err
	}
	if err := num("CREATES_PER_MINUTE", &c.CreatesPerMinute); err != nil {
		return err
	}

	if v, ok := lookup(envPrefix + "REDIS_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration for %sREDIS_TTL: %q", envPrefix, v)
		}
		c.Redis.TTL = d
	}
	if v, ok := lookup(envPrefix + "BLACKLIST_WORDS"); ok && v != "" {
		c.BlacklistWords = splitList(v)
	}
	if v, ok := lookup(envPrefix + "ALLOWED_ORIGINS"); ok && v != "" {
		c.AllowedOrigins = splitList(v)
	}
	return nil
}

// Normalize fills zero values with defaults so partial files still work.
func (c *Config) Normalize() {
	d := Default()
	if c.Port == "" {
		c.Port = d.Port
	}
	if c.DBPath == "" {
		c.DBPath = d.DBPath
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		c.LogFormat = d.LogFormat
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if c.SiteTitle == "" {
		c.SiteTitle = d.SiteTitle
	}
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:" + c.Port
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Admin.Username == "" {
		c.Admin.Username = d.Admin.Username
	}
	if c.Redis.TTL <= 0 {
		c.Redis.TTL = d.Redis.TTL
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = d.Redis.Prefix
	}
	if c.SearchLimit <= 0 {
		c.SearchLimit = d.SearchLimit
	}
	if c.CreatesPerMinute <= 0 {
		c.CreatesPerMinute = d.CreatesPerMinute
	}
	c.BlacklistWords = splitList(strings.Join(c.BlacklistWords, ","))
}

// Location returns the configured time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
