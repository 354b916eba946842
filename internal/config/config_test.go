package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

// unset clears keys for the duration of the test.
func unset(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("unset %s: %v", key, err)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	unset(t, "PORT", "DB_PATH", "FRONTEND_URL", "GRPC_ADDR", "DIALOGUE_SESSION_TTL",
		"OPENAI_API_KEY", "OPENAI_MODEL", "ESTIMATOR_TIMEOUT", "TELEGRAM_BOT_TOKEN",
		"RATE_LIMIT_REQUESTS", "RATE_LIMIT_WINDOW", "CONVERSATION_LOG_QUEUE_SIZE")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8080" || cfg.DBPath != "./data/nutribot.db" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Fatalf("SessionTTL = %v", cfg.SessionTTL)
	}
	if cfg.Estimator.Model != "gpt-4o-mini" || cfg.Estimator.Timeout != 30*time.Second || cfg.Estimator.Enabled() {
		t.Fatalf("unexpected estimator config: %+v", cfg.Estimator)
	}
	if cfg.Telegram.Enabled() {
		t.Fatal("telegram should be disabled without a token")
	}
	if cfg.RateLimit.Requests != 20 || cfg.RateLimit.Window != time.Minute {
		t.Fatalf("unexpected rate limit: %+v", cfg.RateLimit)
	}
	if cfg.ConversationLog.QueueSize != 1000 {
		t.Fatalf("QueueSize = %d", cfg.ConversationLog.QueueSize)
	}
	if !cfg.IsDevelopment() {
		t.Fatal("empty FRONTEND_URL should mean development")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ESTIMATOR_TIMEOUT", "45")
	t.Setenv("DIALOGUE_SESSION_TTL", "2h")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("CONVERSATION_LOG_ENABLED", "off")
	t.Setenv("CONVERSATION_LOG_QUEUE_SIZE", "-5")
	t.Setenv("FRONTEND_URL", "https://nutribot.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9090" || !cfg.Estimator.Enabled() || !cfg.Telegram.Enabled() {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Estimator.Timeout != 45*time.Second {
		t.Fatalf("Timeout = %v", cfg.Estimator.Timeout)
	}
	if cfg.SessionTTL != 2*time.Hour {
		t.Fatalf("SessionTTL = %v", cfg.SessionTTL)
	}
	if cfg.ConversationLog.Enabled {
		t.Fatal("conversation log should be disabled")
	}
	if cfg.ConversationLog.QueueSize != 1000 {
		t.Fatalf("negative queue size should fall back, got %d", cfg.ConversationLog.QueueSize)
	}
	if cfg.IsDevelopment() {
		t.Fatal("public FRONTEND_URL should not be development")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:       "8080",
			DBPath:     "db",
			Estimator:  EstimatorConfig{Model: "m", Timeout: time.Second},
			RateLimit:  RateLimitConfig{Requests: 1, Window: time.Second},
			SessionTTL: time.Hour,
			ConversationLog: ConversationLogConfig{
				Dir: "d", GlobalPath: "g", QueueSize: 1,
			},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"empty port", func(c *Config) { c.Port = "" }, "PORT"},
		{"empty db", func(c *Config) { c.DBPath = "" }, "DB_PATH"},
		{"zero timeout", func(c *Config) { c.Estimator.Timeout = 0 }, "ESTIMATOR_TIMEOUT"},
		{"negative poll", func(c *Config) { c.Telegram.PollTimeout = -1 }, "TELEGRAM_POLL_TIMEOUT"},
		{"zero rate", func(c *Config) { c.RateLimit.Requests = 0 }, "RATE_LIMIT_REQUESTS"},
		{"empty log dir", func(c *Config) { c.ConversationLog.Dir = "" }, "CONVERSATION_LOG_DIR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("X_DURATION", "1m30s")
	if got := getEnvDuration("X_DURATION", time.Second); got != 90*time.Second {
		t.Fatalf("got %v", got)
	}
	t.Setenv("X_DURATION", "12")
	if got := getEnvDuration("X_DURATION", time.Second); got != 12*time.Second {
		t.Fatalf("got %v", got)
	}
	t.Setenv("X_DURATION", "soon")
	if got := getEnvDuration("X_DURATION", time.Second); got != time.Second {
		t.Fatalf("got %v", got)
	}
}
