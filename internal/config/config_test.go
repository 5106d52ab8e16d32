package config

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3*time.Second, cfg.StepDelay)
	assert.Equal(t, zerolog.InfoLevel, cfg.Level())
}

func TestFromEnv(t *testing.T) {
	t.Setenv(envProvider, "Anthropic")
	t.Setenv(envAddr, "127.0.0.1:9000")
	t.Setenv(envMaxSteps, "5")
	t.Setenv(envStepDelay, "250ms")
	t.Setenv(envPollTimeout, "0s")
	t.Setenv(envHeadless, "false")
	t.Setenv(envViewport, "MOBILE")
	t.Setenv(envPersonas, "/etc/personas.yaml")
	t.Setenv(envOracleRPS, "0.5")
	t.Setenv(envLogLevel, "debug")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, Config{
		Provider:     "anthropic",
		Addr:         "127.0.0.1:9000",
		MaxSteps:     5,
		StepDelay:    250 * time.Millisecond,
		PollTimeout:  0,
		Headless:     false,
		Viewport:     "mobile",
		PersonasFile: "/etc/personas.yaml",
		OracleRPS:    0.5,
		LogLevel:     "debug",
	}, cfg)
	assert.Equal(t, zerolog.DebugLevel, cfg.Level())
}

func TestFromEnvMalformed(t *testing.T) {
	t.Setenv(envMaxSteps, "many")
	t.Setenv(envStepDelay, "3")
	_, err := FromEnv()
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), envMaxSteps)
	assert.Contains(t, err.Error(), envStepDelay)
}

func TestValidate(t *testing.T) {
	tests := map[string]func(*Config){
		"zero steps":     func(c *Config) { c.MaxSteps = 0 },
		"negative delay": func(c *Config) { c.StepDelay = -time.Second },
		"negative poll":  func(c *Config) { c.PollTimeout = -time.Millisecond },
		"viewport":       func(c *Config) { c.Viewport = "tablet" },
		"rate":           func(c *Config) { c.OracleRPS = 0 },
		"provider":       func(c *Config) { c.Provider = "llama" },
		"log level":      func(c *Config) { c.LogLevel = "loud" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}
