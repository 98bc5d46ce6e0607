package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures all runtime configuration for the tracker orchestration
// core. Upstream timeouts are mandatory and independently tunable per
// service because connect failures and slow responses are distinct failure
// classes on the validation path.
type Config struct {
	App       AppConfig
	Upstreams UpstreamsConfig
	Broker    BrokerConfig
	Kafka     KafkaConfig
	Publisher PublisherConfig
	Service   ServiceConfig
	Auth      AuthConfig
}

// AppConfig contains generic application level settings.
type AppConfig struct {
	Env      string
	LogLevel string
	Port     int
}

// UpstreamConfig describes how to reach one upstream entity service.
type UpstreamConfig struct {
	BaseURL         string
	ConnectTimeout  time.Duration
	ResponseTimeout time.Duration
}

// UpstreamsConfig enumerates the upstream services consulted during
// validation.
type UpstreamsConfig struct {
	User    UpstreamConfig
	Project UpstreamConfig
}

// BrokerConfig controls the in-process event broker. Capacity zero selects
// the unbounded default; a positive capacity enables the drop-oldest policy
// for slow subscribers.
type BrokerConfig struct {
	Capacity int
}

// KafkaConfig defines broker addresses and the integration events topic.
type KafkaConfig struct {
	Brokers     []string
	EventsTopic string
}

// PublisherConfig controls the integration publisher's bounded retry.
type PublisherConfig struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// ServiceConfig bounds concurrent write handling.
type ServiceConfig struct {
	WriteConcurrency int
}

// AuthConfig carries the static bearer-token table used by the verifier.
// Entries have the form token:principal:role.
type AuthConfig struct {
	Tokens []string
}

// Load reads environment variables, applies defaults, validates required
// values and returns a populated Config instance.
func Load() (*Config, error) {
	_ = godotenv.Load()

	ldr := &envLoader{}

	cfg := &Config{}
	cfg.App.Env = ldr.getString("APP_ENV", "development", false)
	cfg.App.LogLevel = ldr.getString("LOG_LEVEL", "info", false)
	cfg.App.Port = ldr.getInt("APP_PORT", 9090, false)

	cfg.Upstreams.User = UpstreamConfig{
		BaseURL:         ldr.getString("USER_SERVICE_URL", "", true),
		ConnectTimeout:  ldr.getDurationMs("USER_SERVICE_CONNECT_TIMEOUT_MS", 500),
		ResponseTimeout: ldr.getDurationMs("USER_SERVICE_RESPONSE_TIMEOUT_MS", 2000),
	}
	cfg.Upstreams.Project = UpstreamConfig{
		BaseURL:         ldr.getString("PROJECT_SERVICE_URL", "", true),
		ConnectTimeout:  ldr.getDurationMs("PROJECT_SERVICE_CONNECT_TIMEOUT_MS", 500),
		ResponseTimeout: ldr.getDurationMs("PROJECT_SERVICE_RESPONSE_TIMEOUT_MS", 2000),
	}

	cfg.Broker.Capacity = ldr.getInt("BROKER_CAPACITY", 0, false)

	cfg.Kafka.Brokers = ldr.getStringSlice("KAFKA_BROKERS", true)
	cfg.Kafka.EventsTopic = ldr.getString("KAFKA_EVENTS_TOPIC", "", true)

	cfg.Publisher.MaxAttempts = ldr.getInt("PUBLISHER_MAX_ATTEMPTS", 3, false)
	cfg.Publisher.BaseBackoff = ldr.getDurationMs("PUBLISHER_BASE_BACKOFF_MS", 250)
	cfg.Publisher.MaxBackoff = ldr.getDurationMs("PUBLISHER_MAX_BACKOFF_MS", 5000)

	cfg.Service.WriteConcurrency = ldr.getInt("WRITE_CONCURRENCY", 32, false)

	cfg.Auth.Tokens = ldr.getStringSlice("AUTH_TOKENS", false)

	if cfg.App.Port < 1 || cfg.App.Port > 65535 {
		ldr.addError("APP_PORT must be a valid port number")
	}
	if cfg.Broker.Capacity < 0 {
		ldr.addError("BROKER_CAPACITY must not be negative")
	}
	if cfg.Publisher.MaxAttempts < 1 {
		ldr.addError("PUBLISHER_MAX_ATTEMPTS must be >= 1")
	}
	if cfg.Service.WriteConcurrency < 1 {
		ldr.addError("WRITE_CONCURRENCY must be >= 1")
	}

	if err := ldr.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

type envLoader struct {
	errs []string
}

func (l *envLoader) validate() error {
	if len(l.errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(l.errs, "; "))
}

func (l *envLoader) getString(key, def string, required bool) string {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		return val
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getInt(key string, def int, required bool) int {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		i, err := strconv.Atoi(val)
		if err != nil {
			l.addError(fmt.Sprintf("%s must be a valid integer", key))
			return def
		}
		return i
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getDurationMs(key string, defMs int) time.Duration {
	ms := l.getInt(key, defMs, false)
	if ms <= 0 {
		l.addError(fmt.Sprintf("%s must be a positive number of milliseconds", key))
		ms = defMs
	}
	return time.Duration(ms) * time.Millisecond
}

func (l *envLoader) getStringSlice(key string, required bool) []string {
	raw := l.getString(key, "", required)
	if raw == "" {
		if required {
			return nil
		}
		return []string{}
	}
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if required && len(out) == 0 {
		l.addError(fmt.Sprintf("%s must contain at least one entry", key))
	}
	return out
}

func (l *envLoader) addError(err string) {
	l.errs = append(l.errs, err)
}
