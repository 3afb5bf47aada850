// Package config reads server settings from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mmynk/settleup/pkg/logging"
)

const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

type Config struct {
	// HTTP Server
	Port string

	// Storage
	DataBackend string
	DBPath      string

	// Ledger
	LockTimeout time.Duration

	// Logging
	LogLevel string

	// AMQP (empty URL disables event publishing)
	AMQPURL      string
	AMQPExchange string

	MetricsEnabled bool

	// malformed values seen by Load, reported by Validate
	parseErrors []string
}

// Load reads the environment, first filling it from a .env file in the
// working directory when one exists. Variables already set win.
func Load() *Config {
	_ = godotenv.Load()

	c := &Config{
		Port: getEnv("PORT", "8080"),

		DataBackend: getEnv("DATA_BACKEND", BackendSQLite),
		DBPath:      getEnv("DB_PATH", "./data/settleup.db"),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "settleup.ledger"),
	}
	c.LockTimeout = c.getEnvDuration("LOCK_TIMEOUT", 2*time.Second)
	c.MetricsEnabled = c.getEnvBool("METRICS_ENABLED", true)
	return c
}

// Validate returns every problem with the configuration in one error.
func (c *Config) Validate() error {
	errors := append([]string(nil), c.parseErrors...)

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.DataBackend {
	case BackendSQLite:
		if c.DBPath == "" {
			errors = append(errors, "database path cannot be empty when using sqlite backend")
		}
	case BackendMemory:
	default:
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of [%s %s]", c.DataBackend, BackendSQLite, BackendMemory))
	}

	if c.LockTimeout < time.Millisecond {
		errors = append(errors, fmt.Sprintf("invalid lock timeout %v: must be at least 1ms", c.LockTimeout))
	} else if c.LockTimeout > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid lock timeout %v: must be at most 1 minute", c.LockTimeout))
	}

	if _, ok := logging.LookupLevel(c.LogLevel); !ok {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (c *Config) getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		c.parseErrors = append(c.parseErrors, fmt.Sprintf("invalid %s '%s': must be a duration like 2s or 500ms", key, value))
		return defaultValue
	}
	return d
}

func (c *Config) getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		c.parseErrors = append(c.parseErrors, fmt.Sprintf("invalid %s '%s': must be true or false", key, value))
		return defaultValue
	}
	return b
}
