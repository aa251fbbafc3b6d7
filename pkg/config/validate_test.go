package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{Port: "8080"},
		Database: DatabaseConfig{URL: "postgres://localhost/bridge"},
		Redis:    RedisConfig{URL: "localhost:6379"},
		JWT:      JWTConfig{Secret: "long-random-secret", Expiration: 15 * time.Minute},
		Bridge: BridgeConfig{
			APIKeys: []APIKey{{Key: "store-a", Secret: "s3cret"}},
		},
		Forward: ForwardConfig{
			Destinations: []Destination{
				{Name: "partner", URL: "https://partner.example.com/wp-json/ucb/v1/receive", Key: "store-a", Secret: "s3cret"},
			},
		},
	}
}

func TestValidateCore_AcceptsCompleteConfig(t *testing.T) {
	require.NoError(t, validConfig().ValidateCore())
}

func TestValidateCore_ReportsMissingVariables(t *testing.T) {
	cfg := validConfig()
	cfg.Database.URL = ""
	cfg.Bridge.APIKeys = nil

	err := cfg.ValidateCore()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "BRIDGE_API_KEYS")
}

func TestValidateCore_RejectsDefaultJWTSecret(t *testing.T) {
	cfg := validConfig()
	cfg.JWT.Secret = "change-this-secret"

	err := cfg.ValidateCore()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestValidateCore_RejectsPlainHTTPDestination(t *testing.T) {
	cfg := validConfig()
	cfg.Forward.Destinations[0].URL = "http://partner.example.com/receive"

	err := cfg.ValidateCore()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must use https")
}

func TestValidateCore_RejectsUnknownAuthMode(t *testing.T) {
	cfg := validConfig()
	cfg.Forward.Destinations[0].AuthMode = "jwt"

	err := cfg.ValidateCore()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown auth mode "jwt"`)
}

func TestValidateCore_AcceptsEveryAuthMode(t *testing.T) {
	for _, mode := range []string{"", AuthModeHMAC, AuthModeAPIKey, AuthModeBasic} {
		cfg := validConfig()
		cfg.Forward.Destinations[0].AuthMode = mode
		assert.NoError(t, cfg.ValidateCore(), "mode %q", mode)
	}
}
