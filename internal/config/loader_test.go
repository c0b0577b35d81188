package config

import (
	"flag"
	"os"
	"reflect"
	"testing"
	"time"
)

const (
	testRedisAddr  = "localhost:6379"
	testMQTTBroker = "tcp://localhost:1883"
)

func TestLoad_Defaults(t *testing.T) {
	// Clear environment and reset flags
	clearTestEnv(t)
	resetTestFlags(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Redis.Address != testRedisAddr {
		t.Errorf("Redis.Address = %s; want %s", cfg.Redis.Address, testRedisAddr)
	}
	if cfg.Redis.KeyPrefix != "queuebus" {
		t.Errorf("Redis.KeyPrefix = %s; want queuebus", cfg.Redis.KeyPrefix)
	}
	if cfg.MQTT.Broker != testMQTTBroker {
		t.Errorf("MQTT.Broker = %s; want %s", cfg.MQTT.Broker, testMQTTBroker)
	}
	if cfg.MQTT.Enabled {
		t.Error("MQTT.Enabled = true; want false")
	}
	if cfg.Bus.SendAttempts != 3 {
		t.Errorf("Bus.SendAttempts = %d; want 3", cfg.Bus.SendAttempts)
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	clearTestEnv(t)
	resetTestFlags(t)

	t.Setenv("REDIS_ADDRESS", "redis-env:6379")
	t.Setenv("REDIS_KEY_PREFIX", "env")
	t.Setenv("MQTT_BROKER", "tcp://mqtt-env:1883")
	t.Setenv("BUS_RESPONSE_TIMEOUT", "12s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Redis.Address != "redis-env:6379" {
		t.Errorf("Redis.Address = %s; want redis-env:6379", cfg.Redis.Address)
	}
	if cfg.Redis.KeyPrefix != "env" {
		t.Errorf("Redis.KeyPrefix = %s; want env", cfg.Redis.KeyPrefix)
	}
	if cfg.MQTT.Broker != "tcp://mqtt-env:1883" {
		t.Errorf("MQTT.Broker = %s; want tcp://mqtt-env:1883", cfg.MQTT.Broker)
	}
	if cfg.Bus.ResponseTimeout != 12*time.Second {
		t.Errorf("Bus.ResponseTimeout = %v; want 12s", cfg.Bus.ResponseTimeout)
	}
}

func TestLoad_FlagsPrecedence(t *testing.T) {
	clearTestEnv(t)
	t.Setenv("REDIS_ADDRESS", "redis-env:6379")
	t.Setenv("BUS_SEND_ATTEMPTS", "7")

	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	os.Args = []string{
		"test",
		"-redis-address=redis-flag:6379",
		"-bus-send-attempts=9",
	}

	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	resetFlags()
	flag.Parse()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Flags should override environment variables
	if cfg.Redis.Address != "redis-flag:6379" {
		t.Errorf("Redis.Address = %s; want redis-flag:6379", cfg.Redis.Address)
	}
	if cfg.Bus.SendAttempts != 9 {
		t.Errorf("Bus.SendAttempts = %d; want 9", cfg.Bus.SendAttempts)
	}
}

func TestLoad_ValidationError(t *testing.T) {
	clearTestEnv(t)
	resetTestFlags(t)

	// Negative attempts are applied and fail validation
	t.Setenv("BUS_SEND_ATTEMPTS", "-1")

	_, err := Load()
	if err == nil {
		t.Error("Load() error = nil; want validation error")
	}
}

func TestLoad_MQTTValidatedOnlyWhenEnabled(t *testing.T) {
	clearTestEnv(t)
	resetTestFlags(t)
	t.Setenv("MQTT_POOL_SIZE", "-2")

	if _, err := Load(); err != nil {
		t.Fatalf("Load() with disabled MQTT failed: %v", err)
	}

	t.Setenv("MQTT_ENABLED", "true")
	if _, err := Load(); err == nil {
		t.Error("Load() error = nil; want mqtt pool size error")
	}
}

func TestLoad_CompleteConfiguration(t *testing.T) {
	clearTestEnv(t)
	resetTestFlags(t)
	setCompleteEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	verifyRedisConfig(t, cfg)
	verifyMQTTConfig(t, cfg)
	verifyBusConfig(t, cfg)
}

func setCompleteEnv(t *testing.T) {
	t.Helper()
	t.Setenv("REDIS_ADDRESS", "redis:6379")
	t.Setenv("REDIS_DB", "1")
	t.Setenv("REDIS_POLL_INTERVAL", "10ms")

	t.Setenv("MQTT_ENABLED", "true")
	t.Setenv("MQTT_BROKER", "tcp://mqtt:1883")
	t.Setenv("MQTT_CLIENT_ID", "test-client")
	t.Setenv("MQTT_EVENT_TOPIC", "test/events")
	t.Setenv("MQTT_COMMAND_TOPIC", "test/commands")
	t.Setenv("MQTT_RELAY_TOPIC", "test/relay")
	t.Setenv("MQTT_QOS", "1")
	t.Setenv("MQTT_POOL_SIZE", "5")

	t.Setenv("BUS_MIN_RETRY_TIMEOUT", "500ms")
	t.Setenv("BUS_RELAY_TYPES", "OrderPlaced")
	t.Setenv("BUS_SHUTDOWN_TIMEOUT", "30s")
}

func verifyRedisConfig(t *testing.T, cfg *Config) {
	t.Helper()
	if cfg.Redis.Address != "redis:6379" {
		t.Errorf("Redis.Address = %s; want redis:6379", cfg.Redis.Address)
	}
	if cfg.Redis.DB != 1 {
		t.Errorf("Redis.DB = %d; want 1", cfg.Redis.DB)
	}
	if cfg.Redis.PollInterval != 10*time.Millisecond {
		t.Errorf("Redis.PollInterval = %v; want 10ms", cfg.Redis.PollInterval)
	}
}

func verifyMQTTConfig(t *testing.T, cfg *Config) {
	t.Helper()
	if !cfg.MQTT.Enabled {
		t.Error("MQTT.Enabled = false; want true")
	}
	if cfg.MQTT.EventTopic != "test/events" {
		t.Errorf("MQTT.EventTopic = %s; want test/events", cfg.MQTT.EventTopic)
	}
	if cfg.MQTT.QoS != 1 {
		t.Errorf("MQTT.QoS = %d; want 1", cfg.MQTT.QoS)
	}
	if cfg.MQTT.PoolSize != 5 {
		t.Errorf("MQTT.PoolSize = %d; want 5", cfg.MQTT.PoolSize)
	}
}

func verifyBusConfig(t *testing.T, cfg *Config) {
	t.Helper()
	if cfg.Bus.MinRetryTimeout != 500*time.Millisecond {
		t.Errorf("Bus.MinRetryTimeout = %v; want 500ms", cfg.Bus.MinRetryTimeout)
	}
	if !reflect.DeepEqual(cfg.Bus.RelayTypes, []string{"OrderPlaced"}) {
		t.Errorf("Bus.RelayTypes = %v; want [OrderPlaced]", cfg.Bus.RelayTypes)
	}
	if cfg.Bus.ShutdownTimeout != 30*time.Second {
		t.Errorf("Bus.ShutdownTimeout = %v; want 30s", cfg.Bus.ShutdownTimeout)
	}
}

// Helper functions for tests

func clearTestEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"REDIS_ADDRESS", "REDIS_PASSWORD", "REDIS_DB", "REDIS_KEY_PREFIX", "REDIS_POLL_INTERVAL",
		"REDIS_DIAL_TIMEOUT", "REDIS_READ_TIMEOUT", "REDIS_WRITE_TIMEOUT", "REDIS_PING_TIMEOUT",
		"MQTT_ENABLED", "MQTT_BROKER", "MQTT_CLIENT_ID",
		"MQTT_EVENT_TOPIC", "MQTT_COMMAND_TOPIC", "MQTT_RELAY_TOPIC",
		"MQTT_QOS", "MQTT_CONNECT_TIMEOUT", "MQTT_WRITE_TIMEOUT", "MQTT_POOL_SIZE",
		"MQTT_MAX_RECONNECT_INTERVAL", "MQTT_SUBSCRIBE_TIMEOUT", "MQTT_DISCONNECT_TIMEOUT",
		"MQTT_TLS_ENABLED", "MQTT_CA_CERT", "MQTT_CLIENT_CERT", "MQTT_CLIENT_KEY",
		"MQTT_TLS_INSECURE_SKIP", "MQTT_USE_CERT_CN_PREFIX",
		"BUS_MIN_RETRY_TIMEOUT", "BUS_RESPONSE_TIMEOUT", "BUS_RESPONSE_POLL_INTERVAL",
		"BUS_SEND_ATTEMPT_TIMEOUT", "BUS_SEND_ATTEMPTS", "BUS_ERROR_BACKOFF",
		"BUS_SHUTDOWN_TIMEOUT", "BUS_QUEUE_PREFIX", "BUS_RELAY_TYPES", "BUS_EVENT_WORKERS",
	}
	for _, v := range envVars {
		t.Setenv(v, "")
	}
}

func resetTestFlags(t *testing.T) {
	t.Helper()
	oldArgs := os.Args
	t.Cleanup(func() { os.Args = oldArgs })

	os.Args = []string{"test"}
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	resetFlags()
}
