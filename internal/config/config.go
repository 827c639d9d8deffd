// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/marketbots/marketcore/pkg/utils/zaplogger"
)

// Config represents the application configuration
type Config struct {
	APIName              string        `env:"MC_API_APP_NAME" default:"Marketcore API"`
	APIVersion           string        `env:"MC_API_APP_VERSION" default:"1.0.0"`
	APIKey               string        `env:"MC_API_KEY" default:""`
	ServerPort           string        `env:"MC_API_SERVER_PORT" default:"3009"`
	ServerLogLevel       string        `env:"MC_API_SERVER_LOG_LEVEL" default:"info"`
	PostgresDsn          string        `env:"MC_API_PG_DSN"`
	PostgresLogLevel     string        `env:"MC_API_PG_LOG_LEVEL" default:"warn"`
	RedisHost            string        `env:"MC_API_REDIS_HOST" default:"localhost"`
	RedisPort            string        `env:"MC_API_REDIS_PORT" default:"6379"`
	RedisPassword        string        `env:"MC_API_REDIS_PASSWORD" default:""`
	MasterURL            string        `env:"MC_API_MASTER_URL"`
	IndexThreshold       int           `env:"MC_API_INDEX_THRESHOLD" default:"20000"`
	GreeksMinInterval    time.Duration `env:"MC_API_GREEKS_MIN_INTERVAL" default:"1s"`
	GreeksMinPriceDelta  float64       `env:"MC_API_GREEKS_MIN_PRICE_DELTA" default:"0.05"`
	GreeksWorkers        int           `env:"MC_API_GREEKS_WORKERS" default:"4"`
	GreeksRiskFreeRate   float64       `env:"MC_API_GREEKS_RISK_FREE_RATE" default:"0.07"`
	ArchiveBatchSize     int           `env:"MC_API_ARCHIVE_BATCH_SIZE" default:"1000"`
	ArchiveFlushInterval time.Duration `env:"MC_API_ARCHIVE_FLUSH_INTERVAL" default:"1s"`
}

var (
	SingleLine string = "--------------------------------------------------"
)

var (
	instance *Config
	once     sync.Once
	err      error
)

// Get returns the application configuration
func Get() (*Config, error) {
	zaplogger.Info(SingleLine)
	zaplogger.Info("Loading Configuration")

	once.Do(func() {
		instance, err = loadConfig()
	})
	return instance, err
}

// loadConfig loads configuration from environment variables
func loadConfig() (*Config, error) {
	cfg := &Config{}
	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromEnv loads configuration from environment variables, falling back
// to the default tag where one is declared.
func (c *Config) loadFromEnv() error {
	t := reflect.TypeOf(*c)
	v := reflect.ValueOf(c).Elem()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		envTag := field.Tag.Get("env")
		if envTag == "" {
			return fmt.Errorf("missing env tag for field %s", field.Name)
		}

		value, ok := os.LookupEnv(envTag)
		if !ok {
			defaultValue, hasDefault := field.Tag.Lookup("default")
			if !hasDefault {
				return fmt.Errorf("env variable %s is required but not set", envTag)
			}
			value = defaultValue
		}

		if err := setField(v.Field(i), value); err != nil {
			return fmt.Errorf("env variable %s: %v", envTag, err)
		}
	}

	return nil
}

func setField(field reflect.Value, value string) error {
	switch field.Interface().(type) {
	case string:
		field.SetString(value)
	case int:
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		field.SetInt(int64(parsed))
	case float64:
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(parsed)
	case time.Duration:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		field.SetInt(int64(parsed))
	default:
		return fmt.Errorf("unsupported config field type %s", field.Type())
	}
	return nil
}

// String returns the configuration as a string
func (c *Config) String() string {
	var sb strings.Builder
	sb.WriteString("\n--------------------------------------\n")
	sb.WriteString("Configuration:\n")
	sb.WriteString("--------------------------------------\n")

	t := reflect.TypeOf(*c)
	v := reflect.ValueOf(*c)

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		value := fmt.Sprintf("%v", v.Field(i).Interface())

		// Mask sensitive fields
		value = maskSensitiveField(field.Name, value)
		sb.WriteString(fmt.Sprintf("  %s:  %s\n", field.Name, value))
	}

	sb.WriteString("--------------------------------------\n")

	return sb.String()
}

func maskSensitiveField(fieldName, value string) string {
	sensitiveFields := []string{"key", "dsn", "secret", "password"}

	fieldNameLower := strings.ToLower(fieldName)
	for _, sensitive := range sensitiveFields {
		if strings.Contains(fieldNameLower, sensitive) {
			return maskValue(value)
		}
	}

	return value
}

func maskValue(value string) string {
	if len(value) <= 3 {
		return strings.Repeat("*", 7)
	}
	return value[:3] + strings.Repeat("*", 7)
}
