// Package config reads navigator settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/polzovatel/persona-navigator/internal/agent"
	"github.com/polzovatel/persona-navigator/internal/browser"
	"github.com/polzovatel/persona-navigator/internal/llm"
)

const (
	envProvider    = "LLM_PROVIDER"
	envAddr        = "NAVIGATOR_ADDR"
	envMaxSteps    = "NAVIGATOR_MAX_STEPS"
	envStepDelay   = "NAVIGATOR_STEP_DELAY"
	envPollTimeout = "NAVIGATOR_POLL_TIMEOUT"
	envHeadless    = "AGENT_HEADLESS"
	envViewport    = "NAVIGATOR_VIEWPORT"
	envPersonas    = "NAVIGATOR_PERSONAS"
	envOracleRPS   = "NAVIGATOR_ORACLE_RPS"
	envLogLevel    = "NAVIGATOR_LOG_LEVEL"

	DefaultAddr      = ":8080"
	DefaultMaxSteps  = 10
	DefaultOracleRPS = 1.0
	DefaultLogLevel  = "info"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Provider     string
	Addr         string
	MaxSteps     int
	StepDelay    time.Duration
	PollTimeout  time.Duration
	Headless     bool
	Viewport     string
	// PersonasFile overrides the embedded persona set when set.
	PersonasFile string
	// OracleRPS caps model calls per session.
	OracleRPS    float64
	LogLevel     string
}

func Default() Config {
	return Config{
		Provider:    llm.ProviderGemini,
		Addr:        DefaultAddr,
		MaxSteps:    DefaultMaxSteps,
		StepDelay:   agent.DefaultStepDelay,
		PollTimeout: agent.DefaultPollTimeout,
		Headless:    true,
		Viewport:    browser.Desktop.Name,
		OracleRPS:   DefaultOracleRPS,
		LogLevel:    DefaultLogLevel,
	}
}

// FromEnv starts from Default and applies every variable that is set.
// Malformed values are errors rather than silently ignored.
func FromEnv() (Config, error) {
	cfg := Default()
	cfg.Provider = llm.ProviderFromEnv()
	if v := lookup(envAddr); v != "" {
		cfg.Addr = v
	}
	if v := lookup(envViewport); v != "" {
		cfg.Viewport = strings.ToLower(v)
	}
	cfg.PersonasFile = lookup(envPersonas)
	if v := lookup(envLogLevel); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	cfg.Headless = browser.HeadlessFromEnv(cfg.Headless)

	var errs []error
	if v := lookup(envMaxSteps); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", envMaxSteps, err))
		}
		cfg.MaxSteps = n
	}
	if v := lookup(envStepDelay); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", envStepDelay, err))
		}
		cfg.StepDelay = d
	}
	if v := lookup(envPollTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", envPollTimeout, err))
		}
		cfg.PollTimeout = d
	}
	if v := lookup(envOracleRPS); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", envOracleRPS, err))
		}
		cfg.OracleRPS = f
	}
	if err := errors.Join(errs...); err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.MaxSteps < 1 {
		errs = append(errs, fmt.Errorf("max steps must be at least 1, got %d", c.MaxSteps))
	}
	if c.StepDelay < 0 {
		errs = append(errs, fmt.Errorf("step delay must not be negative, got %s", c.StepDelay))
	}
	if c.PollTimeout < 0 {
		errs = append(errs, fmt.Errorf("poll timeout must not be negative, got %s", c.PollTimeout))
	}
	if _, ok := browser.ViewportByName(c.Viewport); !ok {
		errs = append(errs, fmt.Errorf("unknown viewport %q", c.Viewport))
	}
	if c.OracleRPS <= 0 {
		errs = append(errs, fmt.Errorf("oracle rate must be positive, got %g", c.OracleRPS))
	}
	switch c.Provider {
	case llm.ProviderGemini, llm.ProviderAnthropic, llm.ProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("unknown LLM provider %q", c.Provider))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// Level is the parsed log level, info when unparseable.
func (c Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

func lookup(name string) string {
	return strings.TrimSpace(os.Getenv(name))
}
