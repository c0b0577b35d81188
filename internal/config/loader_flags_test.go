package config

import (
	"flag"
	"os"
	"reflect"
	"testing"
	"time"
)

func parseTestFlags(t *testing.T, args ...string) {
	t.Helper()
	oldArgs := os.Args
	t.Cleanup(func() { os.Args = oldArgs })

	os.Args = append([]string{"test"}, args...)
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	resetFlags()
	flag.Parse()
}

func TestApplyRedisFlags(t *testing.T) {
	parseTestFlags(t,
		"-redis-address=flag-redis:6379",
		"-redis-key-prefix=flag-prefix",
		"-redis-db=2",
		"-redis-poll-interval=75ms",
	)

	cfg := defaultRedisConfig()
	applyRedisFlags(&cfg)

	if cfg.Address != "flag-redis:6379" {
		t.Errorf("Address = %s; want flag-redis:6379", cfg.Address)
	}
	if cfg.KeyPrefix != "flag-prefix" {
		t.Errorf("KeyPrefix = %s; want flag-prefix", cfg.KeyPrefix)
	}
	if cfg.DB != 2 {
		t.Errorf("DB = %d; want 2", cfg.DB)
	}
	if cfg.PollInterval != 75*time.Millisecond {
		t.Errorf("PollInterval = %v; want 75ms", cfg.PollInterval)
	}
}

func TestApplyRedisFlags_DBUnsetKeepsValue(t *testing.T) {
	parseTestFlags(t)

	cfg := defaultRedisConfig()
	cfg.DB = 4
	applyRedisFlags(&cfg)

	if cfg.DB != 4 {
		t.Errorf("DB = %d; want 4", cfg.DB)
	}
}

func TestApplyMQTTFlags(t *testing.T) {
	parseTestFlags(t,
		"-mqtt-enabled",
		"-mqtt-broker=tcp://flag-mqtt:1883",
		"-mqtt-client-id=flag-client",
		"-mqtt-event-topic=flag/events",
		"-mqtt-qos=2",
		"-mqtt-pool-size=15",
		"-mqtt-tls-enabled=true",
	)

	cfg := defaultMQTTConfig()
	applyMQTTFlags(&cfg)

	if !cfg.Enabled {
		t.Error("Enabled = false; want true")
	}
	if cfg.Broker != "tcp://flag-mqtt:1883" {
		t.Errorf("Broker = %s; want tcp://flag-mqtt:1883", cfg.Broker)
	}
	if cfg.ClientID != "flag-client" {
		t.Errorf("ClientID = %s; want flag-client", cfg.ClientID)
	}
	if cfg.EventTopic != "flag/events" {
		t.Errorf("EventTopic = %s; want flag/events", cfg.EventTopic)
	}
	if cfg.QoS != 2 {
		t.Errorf("QoS = %d; want 2", cfg.QoS)
	}
	if cfg.PoolSize != 15 {
		t.Errorf("PoolSize = %d; want 15", cfg.PoolSize)
	}
	if !cfg.TLSEnabled {
		t.Error("TLSEnabled = false; want true")
	}
}

func TestApplyBusFlags(t *testing.T) {
	parseTestFlags(t,
		"-bus-min-retry-timeout=2s",
		"-bus-response-timeout=45s",
		"-bus-send-attempts=4",
		"-bus-queue-prefix=svc.",
		"-bus-relay-types=A,B",
		"-bus-event-workers=3",
	)

	cfg := defaultBusConfig()
	applyBusFlags(&cfg)

	if cfg.MinRetryTimeout != 2*time.Second {
		t.Errorf("MinRetryTimeout = %v; want 2s", cfg.MinRetryTimeout)
	}
	if cfg.ResponseTimeout != 45*time.Second {
		t.Errorf("ResponseTimeout = %v; want 45s", cfg.ResponseTimeout)
	}
	if cfg.SendAttempts != 4 {
		t.Errorf("SendAttempts = %d; want 4", cfg.SendAttempts)
	}
	if cfg.QueuePrefix != "svc." {
		t.Errorf("QueuePrefix = %s; want svc.", cfg.QueuePrefix)
	}
	if !reflect.DeepEqual(cfg.RelayTypes, []string{"A", "B"}) {
		t.Errorf("RelayTypes = %v; want [A B]", cfg.RelayTypes)
	}
	if cfg.EventWorkers != 3 {
		t.Errorf("EventWorkers = %d; want 3", cfg.EventWorkers)
	}
}

func TestIsFlagSet(t *testing.T) {
	parseTestFlags(t, "-mqtt-tls-enabled=true")

	if !isFlagSet("mqtt-tls-enabled") {
		t.Error("isFlagSet(mqtt-tls-enabled) = false; want true")
	}
	if isFlagSet("mqtt-tls-insecure-skip") {
		t.Error("isFlagSet(mqtt-tls-insecure-skip) = true; want false")
	}
}

// resetFlags re-initializes all flag variables for testing
func resetFlags() {
	// Redis flags
	flagRedisAddress = flag.String("redis-address", "", "Redis address")
	flagRedisPassword = flag.String("redis-password", "", "Redis password")
	flagRedisDB = flag.Int("redis-db", -1, "Redis database index")
	flagRedisKeyPrefix = flag.String("redis-key-prefix", "", "Prefix for every queue key")
	flagRedisPollInterval = flag.Duration("redis-poll-interval", 0, "Interval between queue head checks")
	flagRedisDialTimeout = flag.Duration("redis-dial-timeout", 0, "Redis dial timeout")
	flagRedisReadTimeout = flag.Duration("redis-read-timeout", 0, "Redis read timeout")
	flagRedisWriteTimeout = flag.Duration("redis-write-timeout", 0, "Redis write timeout")
	flagRedisPingTimeout = flag.Duration("redis-ping-timeout", 0, "Redis ping timeout")

	// MQTT flags
	flagMQTTEnabled = flag.Bool("mqtt-enabled", false, "Enable MQTT events, commands and relay")
	flagMQTTBroker = flag.String("mqtt-broker", "", "MQTT broker URL")
	flagMQTTClientID = flag.String("mqtt-client-id", "", "MQTT client ID")
	flagMQTTEventTopic = flag.String("mqtt-event-topic", "", "MQTT topic prefix for bus events")
	flagMQTTCommandTopic = flag.String("mqtt-command-topic", "", "MQTT topic for operator commands")
	flagMQTTRelayTopic = flag.String("mqtt-relay-topic", "", "MQTT topic prefix for relayed messages")
	flagMQTTQoS = flag.Int("mqtt-qos", -1, "MQTT QoS (0, 1, or 2)")
	flagMQTTConnectTimeout = flag.Duration("mqtt-connect-timeout", 0, "MQTT connect timeout")
	flagMQTTWriteTimeout = flag.Duration("mqtt-write-timeout", 0, "MQTT write timeout")
	flagMQTTPoolSize = flag.Int("mqtt-pool-size", 0, "MQTT connection pool size")
	flagMQTTMaxReconnect = flag.Duration("mqtt-max-reconnect-interval", 0, "MQTT max reconnect interval")
	flagMQTTSubscribeTimeout = flag.Duration("mqtt-subscribe-timeout", 0, "MQTT subscribe timeout")
	flagMQTTDisconnectTimeout = flag.Int("mqtt-disconnect-timeout", 0, "MQTT disconnect timeout (ms)")
	flagMQTTTLSEnabled = flag.Bool("mqtt-tls-enabled", false, "Enable MQTT TLS")
	flagMQTTCACert = flag.String("mqtt-ca-cert", "", "MQTT CA certificate path")
	flagMQTTClientCert = flag.String("mqtt-client-cert", "", "MQTT client certificate path")
	flagMQTTClientKey = flag.String("mqtt-client-key", "", "MQTT client key path")
	flagMQTTTLSInsecureSkip = flag.Bool("mqtt-tls-insecure-skip", false, "Skip MQTT TLS verification")
	flagMQTTUseCertCNPrefix = flag.Bool("mqtt-use-cert-cn-prefix", false, "Prefix topics with client cert CN")

	// Bus flags
	flagBusMinRetryTimeout = flag.Duration("bus-min-retry-timeout", 0, "Delay before a declined message is retried")
	flagBusResponseTimeout = flag.Duration("bus-response-timeout", 0, "Default reply wait for request/reply")
	flagBusResponsePollInterval = flag.Duration("bus-response-poll-interval", 0, "Interval between reply scans")
	flagBusSendAttemptTimeout = flag.Duration("bus-send-attempt-timeout", 0, "Timeout of a single send attempt")
	flagBusSendAttempts = flag.Int("bus-send-attempts", 0, "Send attempts before giving up")
	flagBusErrorBackoff = flag.Duration("bus-error-backoff", 0, "Backoff after a failed queue peek")
	flagBusShutdownTimeout = flag.Duration("bus-shutdown-timeout", 0, "Graceful shutdown timeout")
	flagBusQueuePrefix = flag.String("bus-queue-prefix", "", "Prefix for default queue names")
	flagBusRelayTypes = flag.String("bus-relay-types", "", "Comma separated message types relayed to MQTT")
	flagBusEventWorkers = flag.Int("bus-event-workers", 0, "Number of event delivery workers")
}
