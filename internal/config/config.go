package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/DoyleJ11/kostky-backend/internal/engine"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Addr           string
	Env            string // "development" | "production"
	LogLevel       string
	DatabaseURL    string // empty means in-memory storage
	RulesFile      string
	RollAnimation  time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
	Rules          engine.Rules
}

// Load reads an optional .env file, then the environment, then the optional
// rules file. Variables already set in the environment win over .env.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		Addr:          envOr(getenv, "KOSTKY_ADDR", ":8080"),
		Env:           envOr(getenv, "KOSTKY_ENV", "development"),
		LogLevel:      envOr(getenv, "KOSTKY_LOG_LEVEL", "info"),
		DatabaseURL:   getenv("DATABASE_URL"),
		RulesFile:     getenv("KOSTKY_RULES_FILE"),
		RollAnimation: 1200 * time.Millisecond,
		IdleTimeout:   10 * time.Minute,
		Rules:         engine.DefaultRules(),
	}

	var err error
	if cfg.RollAnimation, err = durationOr(getenv, "KOSTKY_ROLL_ANIMATION", cfg.RollAnimation); err != nil {
		return Config{}, err
	}
	if cfg.IdleTimeout, err = durationOr(getenv, "KOSTKY_IDLE_TIMEOUT", cfg.IdleTimeout); err != nil {
		return Config{}, err
	}
	if raw := getenv("KOSTKY_ALLOWED_ORIGINS"); raw != "" {
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	if cfg.RulesFile != "" {
		if cfg.Rules, err = LoadRules(cfg.RulesFile); err != nil {
			return Config{}, err
		}
	}
	return cfg, cfg.Validate()
}

// LoadRules overlays a YAML rules file on the defaults.
func LoadRules(path string) (engine.Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return engine.Rules{}, fmt.Errorf("read rules file: %w", err)
	}
	rules := engine.DefaultRules()
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return engine.Rules{}, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	if err := rules.Validate(); err != nil {
		return engine.Rules{}, err
	}
	return rules, nil
}

func (c Config) Validate() error {
	switch c.Env {
	case "development", "production":
	default:
		return fmt.Errorf("%w: KOSTKY_ENV must be development or production, got %q", ErrInvalidConfig, c.Env)
	}
	if c.Addr == "" {
		return fmt.Errorf("%w: empty listen address", ErrInvalidConfig)
	}
	if c.RollAnimation < 0 || c.IdleTimeout < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	}
	return c.Rules.Validate()
}

func envOr(getenv func(string) string, key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

func durationOr(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	raw := getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
	}
	return d, nil
}
