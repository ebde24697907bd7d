package config

import (
	"testing"
	"time"
)

// setRequiredEnv fills in the provider URLs Load insists on.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("VISION_API_URL", "http://vision.local")
	t.Setenv("SEARCH_API_URL", "http://search.local")
	t.Setenv("COMPOSE_API_URL", "http://compose.local")
	t.Setenv("WHATSAPP_API_URL", "http://whatsapp.local")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.DBPath != "./data/stylebot.db" {
		t.Errorf("unexpected default db path %s", cfg.DBPath)
	}
	if cfg.Search.TopN != 5 {
		t.Errorf("expected default top n 5, got %d", cfg.Search.TopN)
	}
	if cfg.Compositor.PollInterval != 2*time.Second || cfg.Compositor.PollTimeout != 90*time.Second {
		t.Errorf("unexpected compositor poll defaults: %v / %v", cfg.Compositor.PollInterval, cfg.Compositor.PollTimeout)
	}
	if cfg.FreeAnalyses != 3 || cfg.FreeTryOns != 3 {
		t.Errorf("unexpected free-tier defaults: %d / %d", cfg.FreeAnalyses, cfg.FreeTryOns)
	}
	if cfg.FeedQueueSize != 256 {
		t.Errorf("expected default feed queue size 256, got %d", cfg.FeedQueueSize)
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "9999")
	t.Setenv("SEARCH_TOP_N", "3")
	t.Setenv("COMPOSE_POLL_INTERVAL", "500ms")
	t.Setenv("FREE_ANALYSIS_LIMIT", "10")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9999" {
		t.Errorf("port override ignored: %s", cfg.Port)
	}
	if cfg.Search.TopN != 3 {
		t.Errorf("top n override ignored: %d", cfg.Search.TopN)
	}
	if cfg.Compositor.PollInterval != 500*time.Millisecond {
		t.Errorf("poll interval override ignored: %v", cfg.Compositor.PollInterval)
	}
	if cfg.FreeAnalyses != 10 {
		t.Errorf("free analysis override ignored: %d", cfg.FreeAnalyses)
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SEARCH_TOP_N", "not-a-number")
	t.Setenv("COMPOSE_POLL_TIMEOUT", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Search.TopN != 5 {
		t.Errorf("expected fallback top n, got %d", cfg.Search.TopN)
	}
	if cfg.Compositor.PollTimeout != 90*time.Second {
		t.Errorf("expected fallback poll timeout, got %v", cfg.Compositor.PollTimeout)
	}
}

func TestLoadRequiresProviderURLs(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("VISION_API_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when VISION_API_URL is empty")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Port:          "8080",
			DBPath:        "/tmp/x.db",
			Vision:        ProviderConfig{URL: "http://v"},
			Search:        SearchConfig{URL: "http://s", TopN: 5},
			Compositor:    CompositorConfig{URL: "http://c"},
			WhatsApp:      ProviderConfig{URL: "http://w"},
			FreeAnalyses:  3,
			FreeTryOns:    3,
			FeedQueueSize: 16,
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty port", func(c *Config) { c.Port = "" }},
		{"empty db path", func(c *Config) { c.DBPath = "" }},
		{"missing whatsapp url", func(c *Config) { c.WhatsApp.URL = "" }},
		{"zero top n", func(c *Config) { c.Search.TopN = 0 }},
		{"negative free limit", func(c *Config) { c.FreeTryOns = -1 }},
		{"zero feed queue", func(c *Config) { c.FeedQueueSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestIsDevelopment(t *testing.T) {
	tests := []struct {
		frontendURL string
		want        bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"http://127.0.0.1:3000", true},
		{"https://stylebot.example.com", false},
	}

	for _, tt := range tests {
		cfg := &Config{FrontendURL: tt.frontendURL}
		if got := cfg.IsDevelopment(); got != tt.want {
			t.Errorf("IsDevelopment(%q) = %v, want %v", tt.frontendURL, got, tt.want)
		}
	}
}
