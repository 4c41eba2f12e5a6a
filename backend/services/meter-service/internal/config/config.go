package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	libconfig "meterflow/backend/libs/config"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"

	defaultPort     = "8085"
	defaultTimezone = "Europe/Zurich"
)

// Config defines meter service configuration.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"METER_HTTP_PORT"`
	} `yaml:"http"`
	Timezone string `yaml:"timezone" env:"METER_TIMEZONE"`
	Store    struct {
		Backend string `yaml:"backend" env:"METER_STORE"`
		Redis   struct {
			Addr     string        `yaml:"addr" env:"METER_REDIS_ADDR"`
			Password string        `yaml:"password" env:"METER_REDIS_PASSWORD"`
			DB       int           `yaml:"db" env:"METER_REDIS_DB"`
			Key      string        `yaml:"key" env:"METER_REDIS_KEY"`
			TTL      time.Duration `yaml:"ttl" env:"METER_REDIS_TTL"`
		} `yaml:"redis"`
	} `yaml:"store"`
	Backend struct {
		URL            string `yaml:"url" env:"METER_BACKEND_URL"`
		MetersPath     string `yaml:"metersPath" env:"METER_BACKEND_PATH"`
		TimeoutSeconds int    `yaml:"timeoutSeconds" env:"METER_BACKEND_TIMEOUT"`
	} `yaml:"backend"`
	Inbox struct {
		Dir  string        `yaml:"dir" env:"METER_INBOX_DIR"`
		Poll time.Duration `yaml:"poll" env:"METER_INBOX_POLL"`
	} `yaml:"inbox"`
	Ingest struct {
		Encoding string   `yaml:"encoding" env:"METER_INPUT_ENCODING"`
		MeterIDs []string `yaml:"meterIds" env:"METER_IDS"`
	} `yaml:"ingest"`
	Upload struct {
		MaxBytes int64 `yaml:"maxBytes" env:"METER_UPLOAD_MAX_BYTES"`
	} `yaml:"upload"`
	WebSocket struct {
		WriteTimeoutSeconds int `yaml:"writeTimeoutSeconds" env:"METER_WS_WRITE_TIMEOUT"`
	} `yaml:"websocket"`
}

// Load uses shared config loader and validates required fields.
func Load() (*Config, error) {
	cfg := &Config{Timezone: defaultTimezone}
	cfg.HTTP.Port = defaultPort
	cfg.Store.Backend = StoreMemory
	cfg.Ingest.Encoding = "utf-8"
	cfg.Upload.MaxBytes = 32 << 20
	cfg.Inbox.Poll = 5 * time.Second

	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Store.Backend)) {
	case StoreMemory:
	case StoreRedis:
		if strings.TrimSpace(c.Store.Redis.Addr) == "" {
			return errors.New("config: redis addr is required for redis store")
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// HTTPAddress returns :port style address.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = defaultPort
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Timezone)
	if name == "" {
		name = defaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", name, err)
	}
	return loc, nil
}

// StoreBackend returns the normalized store kind.
func (c *Config) StoreBackend() string {
	return strings.ToLower(strings.TrimSpace(c.Store.Backend))
}

// BackendTimeout returns upstream request timeout.
func (c *Config) BackendTimeout() time.Duration {
	if c.Backend.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

// WriteTimeout returns websocket write timeout.
func (c *Config) WriteTimeout() time.Duration {
	if c.WebSocket.WriteTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.WebSocket.WriteTimeoutSeconds) * time.Second
}
