package config_test

import (
	"testing"
	"time"

	"github.com/drjliddy-max/sales-tax-platform-sub001/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConfig(t *testing.T) {
	t.Run("success - defaults without a config file", func(t *testing.T) {
		cfg, err := config.GetConfig()
		require.NoError(t, err)

		assert.Equal(t, "8080", cfg.Port)
		assert.Equal(t, "memory", cfg.Storage)
		assert.False(t, cfg.UsesRedis())
		assert.Equal(t, "localhost:6379", cfg.RedisAddr)
		assert.Equal(t, "1s,5s,30s,5m,1h", cfg.WebhookRetrySchedule)
		assert.Equal(t, 5, cfg.GetWebhookMaxAttempts())
		assert.Equal(t, 10, cfg.GetEndpointFailureThreshold())
		assert.Equal(t, time.Hour, cfg.GetDeliveredTTL())
		assert.Equal(t, 24*time.Hour, cfg.GetFailedTTL())
	})

	t.Run("success - environment overrides defaults", func(t *testing.T) {
		t.Setenv("PORT", "9090")
		t.Setenv("STORAGE", "redis")
		t.Setenv("REDIS_DB", "3")
		t.Setenv("WEBHOOK_MAX_ATTEMPTS", "7")
		t.Setenv("WEBHOOK_SWEEP_RATE", "12.5")
		t.Setenv("FAILED_TTL_HOURS", "48")

		cfg, err := config.GetConfig()
		require.NoError(t, err)

		assert.Equal(t, "9090", cfg.Port)
		assert.True(t, cfg.UsesRedis())
		assert.Equal(t, 3, cfg.RedisDB)
		assert.Equal(t, 7, cfg.GetWebhookMaxAttempts())
		assert.Equal(t, 12.5, cfg.GetSweepRate())
		assert.Equal(t, 48*time.Hour, cfg.GetFailedTTL())
	})
}

func TestConfig_Getters(t *testing.T) {
	t.Run("zero values fall back to defaults", func(t *testing.T) {
		cfg := &config.Config{}

		assert.Equal(t, 1, cfg.GetWebhookDeliveredTTLHours())
		assert.Equal(t, 24, cfg.GetWebhookFailedTTLHours())
		assert.Equal(t, 30*time.Second, cfg.GetWebhookTimeout())
		assert.Equal(t, 5, cfg.GetWebhookMaxAttempts())
		assert.Equal(t, 10*time.Second, cfg.GetSweepInterval())
		assert.Equal(t, 50.0, cfg.GetSweepRate())
		assert.Equal(t, 10, cfg.GetEndpointFailureThreshold())
		assert.Equal(t, 5, cfg.GetBreakerFailureThreshold())
		assert.Equal(t, time.Minute, cfg.GetBreakerRecovery())
		assert.Equal(t, 30*time.Second, cfg.GetOperationTimeout())
		assert.Equal(t, 1000, cfg.GetCacheSize())
	})

	t.Run("explicit values win", func(t *testing.T) {
		cfg := &config.Config{
			DeliveredTTLHours:           6,
			WebhookTimeoutSeconds:       5,
			WebhookSweepIntervalSeconds: 2,
			BreakerRecoverySeconds:      15,
			CacheSize:                   64,
		}

		assert.Equal(t, 6*time.Hour, cfg.GetDeliveredTTL())
		assert.Equal(t, 5*time.Second, cfg.GetWebhookTimeout())
		assert.Equal(t, 2*time.Second, cfg.GetSweepInterval())
		assert.Equal(t, 15*time.Second, cfg.GetBreakerRecovery())
		assert.Equal(t, 64, cfg.GetCacheSize())
	})
}
