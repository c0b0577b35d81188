package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// loadRedisFromEnv loads Redis configuration from environment variables
func loadRedisFromEnv(cfg *RedisConfig) {
	loadRedisStrings(cfg)
	loadRedisInts(cfg)
	loadRedisTimeouts(cfg)
}

func loadRedisStrings(cfg *RedisConfig) {
	if v := getEnvString("REDIS_ADDRESS"); v != "" {
		cfg.Address = v
	}
	if v := getEnvString("REDIS_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := getEnvString("REDIS_KEY_PREFIX"); v != "" {
		cfg.KeyPrefix = v
	}
}

func loadRedisInts(cfg *RedisConfig) {
	if v := getEnvInt("REDIS_DB"); v != 0 {
		cfg.DB = v
	}
}

func loadRedisTimeouts(cfg *RedisConfig) {
	if v := getEnvDuration("REDIS_POLL_INTERVAL"); v != 0 {
		cfg.PollInterval = v
	}
	if v := getEnvDuration("REDIS_DIAL_TIMEOUT"); v != 0 {
		cfg.DialTimeout = v
	}
	if v := getEnvDuration("REDIS_READ_TIMEOUT"); v != 0 {
		cfg.ReadTimeout = v
	}
	if v := getEnvDuration("REDIS_WRITE_TIMEOUT"); v != 0 {
		cfg.WriteTimeout = v
	}
	if v := getEnvDuration("REDIS_PING_TIMEOUT"); v != 0 {
		cfg.PingTimeout = v
	}
}

// loadMQTTFromEnv loads MQTT configuration from environment variables
func loadMQTTFromEnv(cfg *MQTTConfig) {
	loadMQTTStrings(cfg)
	loadMQTTInts(cfg)
	loadMQTTTimeouts(cfg)
	loadMQTTTLS(cfg)
	loadMQTTBools(cfg)
}

func loadMQTTStrings(cfg *MQTTConfig) {
	if v := getEnvString("MQTT_BROKER"); v != "" {
		cfg.Broker = v
	}
	if v := getEnvString("MQTT_CLIENT_ID"); v != "" {
		cfg.ClientID = v
	}
	if v := getEnvString("MQTT_EVENT_TOPIC"); v != "" {
		cfg.EventTopic = v
	}
	if v := getEnvString("MQTT_COMMAND_TOPIC"); v != "" {
		cfg.CommandTopic = v
	}
	if v := getEnvString("MQTT_RELAY_TOPIC"); v != "" {
		cfg.RelayTopic = v
	}
}

func loadMQTTInts(cfg *MQTTConfig) {
	if v := getEnvInt("MQTT_QOS"); v != 0 && v >= 0 && v <= 2 {
		cfg.QoS = byte(v) // #nosec G115 - validated range 0-2
	}
	if v := getEnvInt("MQTT_POOL_SIZE"); v != 0 {
		cfg.PoolSize = v
	}
	if v := getEnvInt("MQTT_DISCONNECT_TIMEOUT"); v != 0 {
		cfg.DisconnectTimeout = uint(v) // #nosec G115 - config values are non-negative
	}
}

func loadMQTTTimeouts(cfg *MQTTConfig) {
	if v := getEnvDuration("MQTT_CONNECT_TIMEOUT"); v != 0 {
		cfg.ConnectTimeout = v
	}
	if v := getEnvDuration("MQTT_WRITE_TIMEOUT"); v != 0 {
		cfg.WriteTimeout = v
	}
	if v := getEnvDuration("MQTT_MAX_RECONNECT_INTERVAL"); v != 0 {
		cfg.MaxReconnectInterval = v
	}
	if v := getEnvDuration("MQTT_SUBSCRIBE_TIMEOUT"); v != 0 {
		cfg.SubscribeTimeout = v
	}
}

func loadMQTTTLS(cfg *MQTTConfig) {
	if v := getEnvString("MQTT_CA_CERT"); v != "" {
		cfg.CACert = v
	}
	if v := getEnvString("MQTT_CLIENT_CERT"); v != "" {
		cfg.ClientCert = v
	}
	if v := getEnvString("MQTT_CLIENT_KEY"); v != "" {
		cfg.ClientKey = v
	}
}

func loadMQTTBools(cfg *MQTTConfig) {
	if v := getEnvBool("MQTT_ENABLED"); v {
		cfg.Enabled = v
	}
	if v := getEnvBool("MQTT_TLS_ENABLED"); v {
		cfg.TLSEnabled = v
	}
	if v := getEnvBool("MQTT_TLS_INSECURE_SKIP"); v {
		cfg.InsecureSkip = v
	}
	if v := getEnvBool("MQTT_USE_CERT_CN_PREFIX"); v {
		cfg.UseCertCNPrefix = v
	}
}

// loadBusFromEnv loads Bus configuration from environment variables
func loadBusFromEnv(cfg *BusConfig) {
	loadBusTimeouts(cfg)

	if v := getEnvInt("BUS_SEND_ATTEMPTS"); v != 0 {
		cfg.SendAttempts = v
	}
	if v := getEnvInt("BUS_EVENT_WORKERS"); v != 0 {
		cfg.EventWorkers = v
	}
	if v := getEnvString("BUS_QUEUE_PREFIX"); v != "" {
		cfg.QueuePrefix = v
	}
	if v := getEnvList("BUS_RELAY_TYPES"); len(v) > 0 {
		cfg.RelayTypes = v
	}
}

func loadBusTimeouts(cfg *BusConfig) {
	if v := getEnvDuration("BUS_MIN_RETRY_TIMEOUT"); v != 0 {
		cfg.MinRetryTimeout = v
	}
	if v := getEnvDuration("BUS_RESPONSE_TIMEOUT"); v != 0 {
		cfg.ResponseTimeout = v
	}
	if v := getEnvDuration("BUS_RESPONSE_POLL_INTERVAL"); v != 0 {
		cfg.ResponsePollInterval = v
	}
	if v := getEnvDuration("BUS_SEND_ATTEMPT_TIMEOUT"); v != 0 {
		cfg.SendAttemptTimeout = v
	}
	if v := getEnvDuration("BUS_ERROR_BACKOFF"); v != 0 {
		cfg.ErrorBackoff = v
	}
	if v := getEnvDuration("BUS_SHUTDOWN_TIMEOUT"); v != 0 {
		cfg.ShutdownTimeout = v
	}
}

// Helper functions for reading environment variables

func getEnvString(key string) string {
	return os.Getenv(key)
}

func getEnvInt(key string) int {
	value := os.Getenv(key)
	if value == "" {
		return 0
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return intValue
}

func getEnvDuration(key string) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return 0
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return duration
}

func getEnvBool(key string) bool {
	value := os.Getenv(key)
	return value == "true"
}

func getEnvList(key string) []string {
	return splitList(os.Getenv(key))
}

// splitList splits a comma separated list, dropping blanks.
func splitList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
