package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	SessionID string // conversation to open on start, empty for a new one
	Debug     bool
	LogDir    string

	API    APIConfig
	Reveal RevealConfig
	Server ServerConfig
}

// APIConfig describes how the client reaches the conversation service
type APIConfig struct {
	BaseURL   string
	Token     string
	TokenFile string // re-read on every call when set
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 disables limiting
}

// RevealConfig tunes the progressive reveal of assistant answers
type RevealConfig struct {
	Interval time.Duration
	Step     int // runes revealed per tick
}

// ServerConfig holds settings of the reference conversation service
type ServerConfig struct {
	Addr        string
	DBPath      string
	JWTSecret   string
	CacheTTL    time.Duration
	OllamaURL   string // answers are canned when empty
	OllamaModel string // format "model:version"
}

// Load reads configuration from the environment. Callers load .env first.
func Load() (*Config, error) {
	debug, err := parseBoolEnv("ASSISTCHAT_DEBUG", false)
	if err != nil {
		return nil, err
	}

	timeout, err := parseIntEnv("ASSISTCHAT_TIMEOUT", 60)
	if err != nil {
		return nil, err
	}

	rateLimit, err := parseFloatEnv("ASSISTCHAT_RATE_LIMIT", 5)
	if err != nil {
		return nil, err
	}

	intervalMS, err := parseIntEnv("ASSISTCHAT_REVEAL_INTERVAL_MS", 20)
	if err != nil {
		return nil, err
	}

	step, err := parseIntEnv("ASSISTCHAT_REVEAL_STEP", 1)
	if err != nil {
		return nil, err
	}

	cacheTTL, err := parseIntEnv("ASSISTCHAT_CACHE_TTL", 3600)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		SessionID: strings.TrimSpace(os.Getenv("ASSISTCHAT_SESSION_ID")),
		Debug:     debug,
		LogDir:    getEnvOrDefault("ASSISTCHAT_LOG_DIR", "logs"),
		API: APIConfig{
			BaseURL:   strings.TrimRight(getEnvOrDefault("ASSISTCHAT_API_URL", "http://localhost:8000"), "/"),
			Token:     strings.TrimSpace(os.Getenv("ASSISTCHAT_TOKEN")),
			TokenFile: strings.TrimSpace(os.Getenv("ASSISTCHAT_TOKEN_FILE")),
			Timeout:   time.Duration(timeout) * time.Second,
			RateLimit: rateLimit,
		},
		Reveal: RevealConfig{
			Interval: time.Duration(intervalMS) * time.Millisecond,
			Step:     step,
		},
		Server: ServerConfig{
			Addr:        getEnvOrDefault("ASSISTCHAT_ADDR", ":8000"),
			DBPath:      getEnvOrDefault("ASSISTCHAT_DB", "assistchat.db"),
			JWTSecret:   strings.TrimSpace(os.Getenv("ASSISTCHAT_JWT_SECRET")),
			CacheTTL:    time.Duration(cacheTTL) * time.Second,
			OllamaURL:   strings.TrimRight(strings.TrimSpace(os.Getenv("ASSISTCHAT_OLLAMA_URL")), "/"),
			OllamaModel: getEnvOrDefault("ASSISTCHAT_OLLAMA_MODEL", "llama3:latest"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the client cannot run with.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api base url is required")
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("invalid timeout %s", c.API.Timeout)
	}
	if c.API.RateLimit < 0 {
		return fmt.Errorf("invalid rate limit %v", c.API.RateLimit)
	}
	if c.Reveal.Interval <= 0 {
		return fmt.Errorf("reveal interval must be positive, got %s", c.Reveal.Interval)
	}
	if c.Reveal.Step < 1 {
		return fmt.Errorf("reveal step must be at least 1, got %d", c.Reveal.Step)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseFloatEnv(key string, defaultValue float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}
