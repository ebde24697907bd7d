// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string

	Vision     ProviderConfig
	Search     SearchConfig
	Compositor CompositorConfig
	WhatsApp   ProviderConfig

	FreeAnalyses  int
	FreeTryOns    int
	FeedQueueSize int
}

// ProviderConfig is the endpoint and credential for one capability API.
type ProviderConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// SearchConfig configures the shopping search provider.
type SearchConfig struct {
	URL     string
	Token   string
	TopN    int
	Timeout time.Duration
}

// CompositorConfig configures the garment compositing provider. Compositing
// runs as an async job on the provider side; the poll settings bound how
// long one synchronous Compose call may take.
type CompositorConfig struct {
	URL          string
	Token        string
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/stylebot.db"),
		Vision: ProviderConfig{
			URL:     getEnv("VISION_API_URL", ""),
			Token:   getEnv("VISION_API_KEY", ""),
			Timeout: getEnvDuration("VISION_TIMEOUT", 30*time.Second),
		},
		Search: SearchConfig{
			URL:     getEnv("SEARCH_API_URL", ""),
			Token:   getEnv("SEARCH_API_KEY", ""),
			TopN:    getEnvInt("SEARCH_TOP_N", 5),
			Timeout: getEnvDuration("SEARCH_TIMEOUT", 15*time.Second),
		},
		Compositor: CompositorConfig{
			URL:          getEnv("COMPOSE_API_URL", ""),
			Token:        getEnv("COMPOSE_API_KEY", ""),
			PollInterval: getEnvDuration("COMPOSE_POLL_INTERVAL", 2*time.Second),
			PollTimeout:  getEnvDuration("COMPOSE_POLL_TIMEOUT", 90*time.Second),
		},
		WhatsApp: ProviderConfig{
			URL:     getEnv("WHATSAPP_API_URL", ""),
			Token:   getEnv("WHATSAPP_TOKEN", ""),
			Timeout: getEnvDuration("WHATSAPP_TIMEOUT", 15*time.Second),
		},
		FreeAnalyses:  getEnvInt("FREE_ANALYSIS_LIMIT", 3),
		FreeTryOns:    getEnvInt("FREE_TRYON_LIMIT", 3),
		FeedQueueSize: getEnvInt("FEED_QUEUE_SIZE", 256),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Vision.URL == "" {
		return fmt.Errorf("VISION_API_URL cannot be empty")
	}
	if c.Search.URL == "" {
		return fmt.Errorf("SEARCH_API_URL cannot be empty")
	}
	if c.Compositor.URL == "" {
		return fmt.Errorf("COMPOSE_API_URL cannot be empty")
	}
	if c.WhatsApp.URL == "" {
		return fmt.Errorf("WHATSAPP_API_URL cannot be empty")
	}
	if c.Search.TopN <= 0 {
		return fmt.Errorf("SEARCH_TOP_N must be > 0")
	}
	if c.FreeAnalyses < 0 || c.FreeTryOns < 0 {
		return fmt.Errorf("free-tier limits cannot be negative")
	}
	if c.FeedQueueSize <= 0 {
		return fmt.Errorf("FEED_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
