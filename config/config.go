// Package config loads runtime settings from an optional .env file and the
// process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port string

	DBType string
	DBURI  string
	DBName string

	SecretKey       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	RedisURL string

	RateLimitRPS   float64
	RateLimitBurst int

	LogLevel    string
	CORSOrigins []string
}

var defaults = map[string]any{
	"port":              "8080",
	"db_type":           "sqlite",
	"db_uri":            "./recipebox.db",
	"db_name":           "recipebox",
	"secret_key":        "",
	"access_token_ttl":  "1h",
	"refresh_token_ttl": "720h",
	"redis_url":         "",
	"rate_limit_rps":    5.0,
	"rate_limit_burst":  10,
	"log_level":         "info",
	"cors_origins":      "*",
}

// Load reads envFile if it exists, then the environment. Environment
// variables are the upper-case keys above (PORT, DB_URI, SECRET_KEY, ...).
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	accessTTL, err := parseDuration(v, "access_token_ttl")
	if err != nil {
		return nil, err
	}
	refreshTTL, err := parseDuration(v, "refresh_token_ttl")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:            normalizePort(v.GetString("port")),
		DBType:          strings.ToLower(v.GetString("db_type")),
		DBURI:           v.GetString("db_uri"),
		DBName:          v.GetString("db_name"),
		SecretKey:       v.GetString("secret_key"),
		AccessTokenTTL:  accessTTL,
		RefreshTokenTTL: refreshTTL,
		RedisURL:        v.GetString("redis_url"),
		RateLimitRPS:    v.GetFloat64("rate_limit_rps"),
		RateLimitBurst:  v.GetInt("rate_limit_burst"),
		LogLevel:        v.GetString("log_level"),
		CORSOrigins:     splitList(v.GetString("cors_origins")),
	}
	return cfg, nil
}

// Validate checks the settings needed to serve requests.
func (c *Config) Validate() error {
	if c.SecretKey == "" {
		return errors.New("SECRET_KEY must be set")
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.RefreshTokenTTL < c.AccessTokenTTL {
		return errors.New("REFRESH_TOKEN_TTL must not be shorter than ACCESS_TOKEN_TTL")
	}
	switch c.DBType {
	case "sqlite", "postgres", "mysql", "mongo", "mongodb":
	default:
		return fmt.Errorf("unsupported DB_TYPE %q", c.DBType)
	}
	return nil
}

// parseDuration accepts Go durations ("15m") and plain seconds ("3600").
func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if d, err := time.ParseDuration(raw); err == nil {
		return d, nil
	}
	if secs := v.GetInt64(key); secs > 0 {
		return time.Duration(secs) * time.Second, nil
	}
	return 0, fmt.Errorf("invalid %s: %q", strings.ToUpper(key), raw)
}

func normalizePort(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] != ':' {
		return ":" + port
	}
	return port
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
