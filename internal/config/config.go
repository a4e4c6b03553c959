package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath    = "config.toml"
	DefaultHTTPAddr      = ":8080"
	DefaultJWTExpiresIn  = "24h"
	DefaultPGHost        = "127.0.0.1"
	DefaultPGPort        = 5432
	DefaultPGUser        = "postgres"
	DefaultPGDatabase    = "omnigate"
	DefaultPGSSLMode     = "disable"
	DefaultCacheTTL      = "1m"
	DefaultCacheMaxSize  = 10000
	DefaultCacheSweep    = "1m"
	DefaultEventExchange = "omnigate.events"
	DefaultFlushSchedule = "@every 1m"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Auth     AuthConfig     `toml:"auth"`
	Postgres PostgresConfig `toml:"postgres"`
	Cache    CacheConfig    `toml:"cache"`
	Events   EventsConfig   `toml:"events"`
	APIKeys  APIKeysConfig  `toml:"api_keys"`
}

type LogConfig struct {
	Level  string `toml:"level" validate:"oneof=debug info warn error"`
	Format string `toml:"format" validate:"oneof=text json"`
}

type ServerConfig struct {
	Addr string `toml:"addr" validate:"required"`
}

type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

type PostgresConfig struct {
	Host     string `toml:"host" validate:"required"`
	Port     int    `toml:"port" validate:"min=1,max=65535"`
	User     string `toml:"user" validate:"required"`
	Password string `toml:"password"`
	Database string `toml:"database" validate:"required"`
	SSLMode  string `toml:"sslmode"`
}

type CacheConfig struct {
	DefaultTTL    string `toml:"default_ttl"`
	MaxSize       int    `toml:"max_size" validate:"min=0"`
	SweepInterval string `toml:"sweep_interval"`
}

// TTL returns the parsed default TTL, falling back to the package
// default when unset or malformed.
func (c CacheConfig) TTL() time.Duration {
	return parseDuration(c.DefaultTTL, DefaultCacheTTL)
}

// Sweep returns the parsed sweep interval; zero disables the sweep.
func (c CacheConfig) Sweep() time.Duration {
	if c.SweepInterval == "0" {
		return 0
	}
	return parseDuration(c.SweepInterval, DefaultCacheSweep)
}

type EventsConfig struct {
	URL      string `toml:"url"`
	Exchange string `toml:"exchange"`
	Producer string `toml:"producer"`
}

type APIKeysConfig struct {
	PrimaryKey    string `toml:"primary_key"`
	FlushSchedule string `toml:"flush_schedule"`
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Cache: CacheConfig{
			DefaultTTL:    DefaultCacheTTL,
			MaxSize:       DefaultCacheMaxSize,
			SweepInterval: DefaultCacheSweep,
		},
		Events: EventsConfig{
			Exchange: DefaultEventExchange,
			Producer: "omnigate",
		},
		APIKeys: APIKeysConfig{
			FlushSchedule: DefaultFlushSchedule,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func parseDuration(raw, fallback string) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}
