// Package config loads and validates service configuration.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Bridge   BridgeConfig
	Redeem   RedeemConfig
	Forward  ForwardConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

// BridgeConfig covers inbound HMAC authentication for bridge endpoints.
type BridgeConfig struct {
	APIKeys       []APIKey
	TimestampSkew time.Duration
	RateLimitMax  int
	RateLimitWin  time.Duration
}

// APIKey is one shared key/secret pair a partner store may sign with.
type APIKey struct {
	Key    string `json:"key"`
	Secret string `json:"secret"`
	Label  string `json:"label,omitempty"`
}

// RedeemConfig covers the redemption engine's per-user limits and code expiry
// defaults.
type RedeemConfig struct {
	RateLimitMax      int
	RateLimitWin      time.Duration
	DefaultExpiryDays int
	Currency          string
}

// ForwardConfig covers the outbound dispatch client.
type ForwardConfig struct {
	Destinations []Destination
	Timeout      time.Duration
	SweepEvery   time.Duration
}

// Auth modes a destination may require on outbound dispatches.
const (
	AuthModeHMAC   = "hmac"
	AuthModeAPIKey = "api_key"
	AuthModeBasic  = "basic"
)

// Destination is a partner store the forwarder may dispatch codes to.
type Destination struct {
	Name     string  `json:"name"`
	URL      string  `json:"url"`
	Key      string  `json:"key"`
	Secret   string  `json:"secret"`
	AuthMode string  `json:"auth_mode,omitempty"` // hmac (default), api_key, or basic
	Timeout  float64 `json:"timeout,omitempty"`   // seconds; falls back to ForwardConfig.Timeout
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:      normalizeRedisURL(getEnv("REDIS_URL", "localhost:6379")),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", "change-this-secret"),
			Expiration: getDurationEnv("JWT_EXPIRATION", 15*time.Minute),
		},
		Bridge: BridgeConfig{
			APIKeys:       getKeysEnv("BRIDGE_API_KEYS"),
			TimestampSkew: getDurationEnv("BRIDGE_TIMESTAMP_SKEW", 300*time.Second),
			RateLimitMax:  getIntEnv("BRIDGE_RATE_LIMIT_MAX", 120),
			RateLimitWin:  getDurationEnv("BRIDGE_RATE_LIMIT_WINDOW", 300*time.Second),
		},
		Redeem: RedeemConfig{
			RateLimitMax:      getIntEnv("REDEEM_RATE_LIMIT_MAX", 5),
			RateLimitWin:      getDurationEnv("REDEEM_RATE_LIMIT_WINDOW", 300*time.Second),
			DefaultExpiryDays: getIntEnv("CODE_DEFAULT_EXPIRY_DAYS", 0),
			Currency:          getEnv("WALLET_CURRENCY", "IRR"),
		},
		Forward: ForwardConfig{
			Destinations: getDestinationsEnv("BRIDGE_DESTINATIONS"),
			Timeout:      getDurationEnv("FORWARD_TIMEOUT", 20*time.Second),
			SweepEvery:   getDurationEnv("CODE_EXPIRY_SWEEP_INTERVAL", time.Hour),
		},
	}
}

// DestinationByName returns the named destination, or nil when unknown.
func (c *Config) DestinationByName(name string) *Destination {
	for i := range c.Forward.Destinations {
		if c.Forward.Destinations[i].Name == name {
			return &c.Forward.Destinations[i]
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func normalizeRedisURL(url string) string {
	// Strip redis:// or redis+tls:// scheme if present
	if strings.HasPrefix(url, "redis+tls://") {
		return url[len("redis+tls://"):]
	}
	if strings.HasPrefix(url, "redis://") {
		return url[len("redis://"):]
	}
	return url
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getKeysEnv parses a JSON array of {key, secret, label} entries. Entries
// missing a key or secret are skipped.
func getKeysEnv(key string) []APIKey {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}

	var entries []APIKey
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil
	}

	out := entries[:0]
	for _, e := range entries {
		e.Key = strings.TrimSpace(e.Key)
		e.Secret = strings.TrimSpace(e.Secret)
		if e.Key == "" || e.Secret == "" {
			continue
		}
		out = append(out, e)
	}
	return out
}

// getDestinationsEnv parses a JSON array of destination stores.
func getDestinationsEnv(key string) []Destination {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}

	var entries []Destination
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil
	}

	out := entries[:0]
	for _, d := range entries {
		d.Name = strings.TrimSpace(d.Name)
		d.URL = strings.TrimRight(strings.TrimSpace(d.URL), "/")
		d.AuthMode = strings.ToLower(strings.TrimSpace(d.AuthMode))
		if d.AuthMode == "" {
			d.AuthMode = AuthModeHMAC
		}
		if d.Name == "" || d.URL == "" || d.Key == "" || d.Secret == "" {
			continue
		}
		out = append(out, d)
	}
	return out
}
