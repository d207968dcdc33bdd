package config

import (
	"testing"
	"time"
)

func TestLoadMemoryStore(t *testing.T) {
	t.Setenv("APP_PORT", "8080")
	t.Setenv("APP_STORE", "Memory")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("ACCESS_TOKEN_TTL_MIN", "15")
	t.Setenv("REFRESH_TOKEN_TTL_DAYS", "7")
	t.Setenv("AMQP_URL", "off")
	t.Setenv("RABBITMQ_URL", "")
	t.Setenv("LOG_DEBUG", "yes")
	t.Setenv("BCRYPT_COST", "")

	cfg := Load()
	if cfg.Store != StoreMemory {
		t.Errorf("Store = %q", cfg.Store)
	}
	if cfg.AMQPURL != "" {
		t.Errorf("AMQPURL = %q, want disabled", cfg.AMQPURL)
	}
	if !cfg.LogDebug || cfg.BcryptCost != 10 || cfg.AccessTTLMin != 15 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.DB.Host != "" {
		t.Errorf("DB loaded for memory store: %+v", cfg.DB)
	}
}

func TestRateLimitNormalized(t *testing.T) {
	tests := []struct {
		name string
		in   RateLimitConfig
		want RateLimitConfig
	}{
		{
			"zero values",
			RateLimitConfig{},
			RateLimitConfig{Capacity: 1, RefillTokens: 1, RefillInterval: time.Second, TTL: 5 * time.Second},
		},
		{
			"ttl below refill window",
			RateLimitConfig{Capacity: 10, RefillTokens: 2, RefillInterval: time.Minute, TTL: time.Minute},
			RateLimitConfig{Capacity: 10, RefillTokens: 2, RefillInterval: time.Minute, TTL: 5 * time.Minute},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.normalized(); got != tt.want {
				t.Errorf("normalized() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseMethods(t *testing.T) {
	got := parseMethods(" get, head ,,")
	if len(got) != 2 || !got["GET"] || !got["HEAD"] {
		t.Errorf("parseMethods() = %v", got)
	}
}
