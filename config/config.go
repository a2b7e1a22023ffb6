package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

/* Config holds the service settings read from .env (TOML) and the environment
 * Every key has a default so the service boots without a config file
 */

type Config struct {
	Port           string `mapstructure:"PORT"`
	Storage        string `mapstructure:"STORAGE"`
	RedisAddr      string `mapstructure:"REDIS_ADDR"`
	RedisPassword  string `mapstructure:"REDIS_PASSWORD"`
	RedisDB        int    `mapstructure:"REDIS_DB"`
	EndpointsFile  string `mapstructure:"ENDPOINTS_FILE"`
	LogLevel       string `mapstructure:"LOG_LEVEL"`
	ProductName    string `mapstructure:"PRODUCT_NAME"`
	ProductVersion string `mapstructure:"PRODUCT_VERSION"`

	WebhookSecret               string  `mapstructure:"WEBHOOK_SECRET"`
	WebhookTimeoutSeconds       int     `mapstructure:"WEBHOOK_TIMEOUT_SECONDS"`
	WebhookMaxAttempts          int     `mapstructure:"WEBHOOK_MAX_ATTEMPTS"`
	WebhookRetrySchedule        string  `mapstructure:"WEBHOOK_RETRY_SCHEDULE"`
	WebhookSweepIntervalSeconds int     `mapstructure:"WEBHOOK_SWEEP_INTERVAL_SECONDS"`
	WebhookSweepRate            float64 `mapstructure:"WEBHOOK_SWEEP_RATE"`
	EndpointFailureThreshold    int     `mapstructure:"ENDPOINT_FAILURE_THRESHOLD"`
	DeliveredTTLHours           int     `mapstructure:"DELIVERED_TTL_HOURS"`
	FailedTTLHours              int     `mapstructure:"FAILED_TTL_HOURS"`

	BreakerFailureThreshold int `mapstructure:"BREAKER_FAILURE_THRESHOLD"`
	BreakerRecoverySeconds  int `mapstructure:"BREAKER_RECOVERY_SECONDS"`
	OperationTimeoutSeconds int `mapstructure:"OPERATION_TIMEOUT_SECONDS"`
	CacheSize               int `mapstructure:"CACHE_SIZE"`
}

var defaults = map[string]any{
	"PORT":                           "8080",
	"STORAGE":                        "memory",
	"REDIS_ADDR":                     "localhost:6379",
	"REDIS_PASSWORD":                 "",
	"REDIS_DB":                       0,
	"ENDPOINTS_FILE":                 "",
	"LOG_LEVEL":                      "info",
	"PRODUCT_NAME":                   "SalesTax",
	"PRODUCT_VERSION":                "1.0",
	"WEBHOOK_SECRET":                 "",
	"WEBHOOK_TIMEOUT_SECONDS":        30,
	"WEBHOOK_MAX_ATTEMPTS":           5,
	"WEBHOOK_RETRY_SCHEDULE":         "1s,5s,30s,5m,1h",
	"WEBHOOK_SWEEP_INTERVAL_SECONDS": 10,
	"WEBHOOK_SWEEP_RATE":             50.0,
	"ENDPOINT_FAILURE_THRESHOLD":     10,
	"DELIVERED_TTL_HOURS":            1,
	"FAILED_TTL_HOURS":               24,
	"BREAKER_FAILURE_THRESHOLD":      5,
	"BREAKER_RECOVERY_SECONDS":       60,
	"OPERATION_TIMEOUT_SECONDS":      30,
	"CACHE_SIZE":                     1000,
}

func GetConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err != nil && !errors.As(err, &notFound) {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	err = v.Unmarshal(&config)
	if err != nil {
		return nil, fmt.Errorf("parsing config data: %w", err)
	}
	return &config, nil
}

// UsesRedis reports whether deliveries are persisted in Redis
func (c *Config) UsesRedis() bool {
	return c.Storage == "redis"
}

// GetWebhookDeliveredTTLHours returns how long delivered webhooks are kept (default: 1 hour)
func (c *Config) GetWebhookDeliveredTTLHours() int {
	if c.DeliveredTTLHours <= 0 {
		return 1
	}
	return c.DeliveredTTLHours
}

// GetWebhookFailedTTLHours returns how long failed webhooks are kept (default: 24 hours)
func (c *Config) GetWebhookFailedTTLHours() int {
	if c.FailedTTLHours <= 0 {
		return 24
	}
	return c.FailedTTLHours
}

func (c *Config) GetDeliveredTTL() time.Duration {
	return time.Duration(c.GetWebhookDeliveredTTLHours()) * time.Hour
}

func (c *Config) GetFailedTTL() time.Duration {
	return time.Duration(c.GetWebhookFailedTTLHours()) * time.Hour
}

// GetWebhookTimeout bounds a single delivery attempt (default: 30s)
func (c *Config) GetWebhookTimeout() time.Duration {
	return seconds(c.WebhookTimeoutSeconds, 30)
}

// GetWebhookMaxAttempts returns the attempt budget per delivery (default: 5)
func (c *Config) GetWebhookMaxAttempts() int {
	if c.WebhookMaxAttempts <= 0 {
		return 5
	}
	return c.WebhookMaxAttempts
}

func (c *Config) GetSweepInterval() time.Duration {
	return seconds(c.WebhookSweepIntervalSeconds, 10)
}

func (c *Config) GetSweepRate() float64 {
	if c.WebhookSweepRate <= 0 {
		return 50
	}
	return c.WebhookSweepRate
}

// GetEndpointFailureThreshold returns the consecutive failures that disable an endpoint (default: 10)
func (c *Config) GetEndpointFailureThreshold() int {
	if c.EndpointFailureThreshold <= 0 {
		return 10
	}
	return c.EndpointFailureThreshold
}

// GetBreakerFailureThreshold returns the failures that open an adapter circuit (default: 5)
func (c *Config) GetBreakerFailureThreshold() int {
	if c.BreakerFailureThreshold <= 0 {
		return 5
	}
	return c.BreakerFailureThreshold
}

func (c *Config) GetBreakerRecovery() time.Duration {
	return seconds(c.BreakerRecoverySeconds, 60)
}

func (c *Config) GetOperationTimeout() time.Duration {
	return seconds(c.OperationTimeoutSeconds, 30)
}

func (c *Config) GetCacheSize() int {
	if c.CacheSize <= 0 {
		return 1000
	}
	return c.CacheSize
}

func seconds(n, def int) time.Duration {
	if n <= 0 {
		n = def
	}
	return time.Duration(n) * time.Second
}
