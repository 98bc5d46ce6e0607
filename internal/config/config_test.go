package config_test

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/example/issue-tracker/internal/config"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("USER_SERVICE_URL", "http://user.internal:8080")
	t.Setenv("PROJECT_SERVICE_URL", "http://project.internal:8080")
	t.Setenv("KAFKA_BROKERS", "broker-a:9092")
	t.Setenv("KAFKA_EVENTS_TOPIC", "tracker.events")
}

func TestLoadSuccess(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("KAFKA_BROKERS", "broker-a:9092, broker-b:9093")
	t.Setenv("USER_SERVICE_CONNECT_TIMEOUT_MS", "250")
	t.Setenv("USER_SERVICE_RESPONSE_TIMEOUT_MS", "1500")
	t.Setenv("APP_PORT", "8088")
	t.Setenv("BROKER_CAPACITY", "1024")
	t.Setenv("PUBLISHER_MAX_ATTEMPTS", "5")
	t.Setenv("AUTH_TOKENS", "tok-1:alice:admin, tok-2:bob:writer")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantBrokers := []string{"broker-a:9092", "broker-b:9093"}
	if !reflect.DeepEqual(cfg.Kafka.Brokers, wantBrokers) {
		t.Fatalf("brokers = %v, want %v", cfg.Kafka.Brokers, wantBrokers)
	}
	if cfg.App.Env != "production" || cfg.App.LogLevel != "warn" {
		t.Fatalf("unexpected app config: %+v", cfg.App)
	}
	if cfg.Upstreams.User.ConnectTimeout != 250*time.Millisecond {
		t.Fatalf("user connect timeout = %v", cfg.Upstreams.User.ConnectTimeout)
	}
	if cfg.Upstreams.User.ResponseTimeout != 1500*time.Millisecond {
		t.Fatalf("user response timeout = %v", cfg.Upstreams.User.ResponseTimeout)
	}
	if cfg.Upstreams.Project.ConnectTimeout != 500*time.Millisecond {
		t.Fatalf("project connect timeout default = %v", cfg.Upstreams.Project.ConnectTimeout)
	}
	if cfg.App.Port != 8088 {
		t.Fatalf("app port = %d", cfg.App.Port)
	}
	if cfg.Broker.Capacity != 1024 {
		t.Fatalf("broker capacity = %d", cfg.Broker.Capacity)
	}
	if cfg.Publisher.MaxAttempts != 5 {
		t.Fatalf("publisher attempts = %d", cfg.Publisher.MaxAttempts)
	}
	wantTokens := []string{"tok-1:alice:admin", "tok-2:bob:writer"}
	if !reflect.DeepEqual(cfg.Auth.Tokens, wantTokens) {
		t.Fatalf("auth tokens = %v, want %v", cfg.Auth.Tokens, wantTokens)
	}
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.App.Env != "development" {
		t.Fatalf("env default = %q", cfg.App.Env)
	}
	if cfg.App.Port != 9090 {
		t.Fatalf("app port default = %d", cfg.App.Port)
	}
	if cfg.Broker.Capacity != 0 {
		t.Fatalf("broker capacity default = %d, want unbounded (0)", cfg.Broker.Capacity)
	}
	if cfg.Publisher.MaxAttempts != 3 {
		t.Fatalf("publisher attempts default = %d", cfg.Publisher.MaxAttempts)
	}
	if cfg.Publisher.BaseBackoff != 250*time.Millisecond {
		t.Fatalf("base backoff default = %v", cfg.Publisher.BaseBackoff)
	}
	if cfg.Service.WriteConcurrency != 32 {
		t.Fatalf("write concurrency default = %d", cfg.Service.WriteConcurrency)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("USER_SERVICE_URL", "http://user.internal:8080")
	t.Setenv("PROJECT_SERVICE_URL", "")
	t.Setenv("KAFKA_BROKERS", "broker-a:9092")
	t.Setenv("KAFKA_EVENTS_TOPIC", "")

	_, err := config.Load()
	if err == nil {
		t.Fatal("expected error for missing required values")
	}
	if !strings.Contains(err.Error(), "PROJECT_SERVICE_URL") {
		t.Fatalf("error should name PROJECT_SERVICE_URL: %v", err)
	}
	if !strings.Contains(err.Error(), "KAFKA_EVENTS_TOPIC") {
		t.Fatalf("error should name KAFKA_EVENTS_TOPIC: %v", err)
	}
}

func TestLoadRejectsInvalidNumbers(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_PORT", "70000")
	t.Setenv("PUBLISHER_MAX_ATTEMPTS", "0")
	t.Setenv("USER_SERVICE_CONNECT_TIMEOUT_MS", "-1")

	_, err := config.Load()
	if err == nil {
		t.Fatal("expected error for invalid numeric values")
	}
}
