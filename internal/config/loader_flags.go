package config

import (
	"flag"
)

// Command line flags (have precedence over environment variables)
var (
	// Redis flags
	flagRedisAddress      = flag.String("redis-address", "", "Redis address")
	flagRedisPassword     = flag.String("redis-password", "", "Redis password")
	flagRedisDB           = flag.Int("redis-db", -1, "Redis database index")
	flagRedisKeyPrefix    = flag.String("redis-key-prefix", "", "Prefix for every queue key")
	flagRedisPollInterval = flag.Duration("redis-poll-interval", 0, "Interval between queue head checks")
	flagRedisDialTimeout  = flag.Duration("redis-dial-timeout", 0, "Redis dial timeout")
	flagRedisReadTimeout  = flag.Duration("redis-read-timeout", 0, "Redis read timeout")
	flagRedisWriteTimeout = flag.Duration("redis-write-timeout", 0, "Redis write timeout")
	flagRedisPingTimeout  = flag.Duration("redis-ping-timeout", 0, "Redis ping timeout")

	// MQTT flags
	flagMQTTEnabled           = flag.Bool("mqtt-enabled", false, "Enable MQTT events, commands and relay")
	flagMQTTBroker            = flag.String("mqtt-broker", "", "MQTT broker URL")
	flagMQTTClientID          = flag.String("mqtt-client-id", "", "MQTT client ID")
	flagMQTTEventTopic        = flag.String("mqtt-event-topic", "", "MQTT topic prefix for bus events")
	flagMQTTCommandTopic      = flag.String("mqtt-command-topic", "", "MQTT topic for operator commands")
	flagMQTTRelayTopic        = flag.String("mqtt-relay-topic", "", "MQTT topic prefix for relayed messages")
	flagMQTTQoS               = flag.Int("mqtt-qos", -1, "MQTT QoS (0, 1, or 2)")
	flagMQTTConnectTimeout    = flag.Duration("mqtt-connect-timeout", 0, "MQTT connect timeout")
	flagMQTTWriteTimeout      = flag.Duration("mqtt-write-timeout", 0, "MQTT write timeout")
	flagMQTTPoolSize          = flag.Int("mqtt-pool-size", 0, "MQTT connection pool size")
	flagMQTTMaxReconnect      = flag.Duration("mqtt-max-reconnect-interval", 0, "MQTT max reconnect interval")
	flagMQTTSubscribeTimeout  = flag.Duration("mqtt-subscribe-timeout", 0, "MQTT subscribe timeout")
	flagMQTTDisconnectTimeout = flag.Int("mqtt-disconnect-timeout", 0, "MQTT disconnect timeout (ms)")
	flagMQTTTLSEnabled        = flag.Bool("mqtt-tls-enabled", false, "Enable MQTT TLS")
	flagMQTTCACert            = flag.String("mqtt-ca-cert", "", "MQTT CA certificate path")
	flagMQTTClientCert        = flag.String("mqtt-client-cert", "", "MQTT client certificate path")
	flagMQTTClientKey         = flag.String("mqtt-client-key", "", "MQTT client key path")
	flagMQTTTLSInsecureSkip   = flag.Bool("mqtt-tls-insecure-skip", false, "Skip MQTT TLS verification")
	// Prefix topics with client cert CN (for ACL constraints)
	flagMQTTUseCertCNPrefix = flag.Bool("mqtt-use-cert-cn-prefix", false, "Prefix topics with client cert CN")

	// Bus flags
	flagBusMinRetryTimeout      = flag.Duration("bus-min-retry-timeout", 0, "Delay before a declined message is retried")
	flagBusResponseTimeout      = flag.Duration("bus-response-timeout", 0, "Default reply wait for request/reply")
	flagBusResponsePollInterval = flag.Duration("bus-response-poll-interval", 0, "Interval between reply scans")
	flagBusSendAttemptTimeout   = flag.Duration("bus-send-attempt-timeout", 0, "Timeout of a single send attempt")
	flagBusSendAttempts         = flag.Int("bus-send-attempts", 0, "Send attempts before giving up")
	flagBusErrorBackoff         = flag.Duration("bus-error-backoff", 0, "Backoff after a failed queue peek")
	flagBusShutdownTimeout      = flag.Duration("bus-shutdown-timeout", 0, "Graceful shutdown timeout")
	flagBusQueuePrefix          = flag.String("bus-queue-prefix", "", "Prefix for default queue names")
	flagBusRelayTypes           = flag.String("bus-relay-types", "", "Comma separated message types relayed to MQTT")
	flagBusEventWorkers         = flag.Int("bus-event-workers", 0, "Number of event delivery workers")
)

// applyRedisFlags applies command line flags to Redis configuration
func applyRedisFlags(cfg *RedisConfig) {
	applyRedisFlagStrings(cfg)
	applyRedisFlagInts(cfg)
	applyRedisFlagTimeouts(cfg)
}

func applyRedisFlagStrings(cfg *RedisConfig) {
	if *flagRedisAddress != "" {
		cfg.Address = *flagRedisAddress
	}
	if *flagRedisPassword != "" {
		cfg.Password = *flagRedisPassword
	}
	if *flagRedisKeyPrefix != "" {
		cfg.KeyPrefix = *flagRedisKeyPrefix
	}
}

func applyRedisFlagInts(cfg *RedisConfig) {
	if *flagRedisDB >= 0 {
		cfg.DB = *flagRedisDB
	}
}

func applyRedisFlagTimeouts(cfg *RedisConfig) {
	if *flagRedisPollInterval != 0 {
		cfg.PollInterval = *flagRedisPollInterval
	}
	if *flagRedisDialTimeout != 0 {
		cfg.DialTimeout = *flagRedisDialTimeout
	}
	if *flagRedisReadTimeout != 0 {
		cfg.ReadTimeout = *flagRedisReadTimeout
	}
	if *flagRedisWriteTimeout != 0 {
		cfg.WriteTimeout = *flagRedisWriteTimeout
	}
	if *flagRedisPingTimeout != 0 {
		cfg.PingTimeout = *flagRedisPingTimeout
	}
}

// applyMQTTFlags applies command line flags to MQTT configuration
func applyMQTTFlags(cfg *MQTTConfig) {
	applyMQTTFlagStrings(cfg)
	applyMQTTFlagInts(cfg)
	applyMQTTFlagTimeouts(cfg)
	applyMQTTFlagTLS(cfg)
	applyMQTTFlagBools(cfg)
}

func applyMQTTFlagStrings(cfg *MQTTConfig) {
	if *flagMQTTBroker != "" {
		cfg.Broker = *flagMQTTBroker
	}
	if *flagMQTTClientID != "" {
		cfg.ClientID = *flagMQTTClientID
	}
	if *flagMQTTEventTopic != "" {
		cfg.EventTopic = *flagMQTTEventTopic
	}
	if *flagMQTTCommandTopic != "" {
		cfg.CommandTopic = *flagMQTTCommandTopic
	}
	if *flagMQTTRelayTopic != "" {
		cfg.RelayTopic = *flagMQTTRelayTopic
	}
}

func applyMQTTFlagInts(cfg *MQTTConfig) {
	if *flagMQTTQoS != -1 && *flagMQTTQoS >= 0 && *flagMQTTQoS <= 2 {
		cfg.QoS = byte(*flagMQTTQoS) // #nosec G115 - validated range 0-2
	}
	if *flagMQTTPoolSize != 0 {
		cfg.PoolSize = *flagMQTTPoolSize
	}
	if *flagMQTTDisconnectTimeout != 0 {
		cfg.DisconnectTimeout = uint(*flagMQTTDisconnectTimeout) // #nosec G115 - config values are non-negative
	}
}

func applyMQTTFlagTimeouts(cfg *MQTTConfig) {
	if *flagMQTTConnectTimeout != 0 {
		cfg.ConnectTimeout = *flagMQTTConnectTimeout
	}
	if *flagMQTTWriteTimeout != 0 {
		cfg.WriteTimeout = *flagMQTTWriteTimeout
	}
	if *flagMQTTMaxReconnect != 0 {
		cfg.MaxReconnectInterval = *flagMQTTMaxReconnect
	}
	if *flagMQTTSubscribeTimeout != 0 {
		cfg.SubscribeTimeout = *flagMQTTSubscribeTimeout
	}
}

func applyMQTTFlagTLS(cfg *MQTTConfig) {
	if *flagMQTTCACert != "" {
		cfg.CACert = *flagMQTTCACert
	}
	if *flagMQTTClientCert != "" {
		cfg.ClientCert = *flagMQTTClientCert
	}
	if *flagMQTTClientKey != "" {
		cfg.ClientKey = *flagMQTTClientKey
	}
}

func applyMQTTFlagBools(cfg *MQTTConfig) {
	// Handle bool flags - check if explicitly set
	if isFlagSet("mqtt-enabled") {
		cfg.Enabled = *flagMQTTEnabled
	}
	if isFlagSet("mqtt-tls-enabled") {
		cfg.TLSEnabled = *flagMQTTTLSEnabled
	}
	if isFlagSet("mqtt-tls-insecure-skip") {
		cfg.InsecureSkip = *flagMQTTTLSInsecureSkip
	}
	if isFlagSet("mqtt-use-cert-cn-prefix") {
		cfg.UseCertCNPrefix = *flagMQTTUseCertCNPrefix
	}
}

// applyBusFlags applies command line flags to Bus configuration
func applyBusFlags(cfg *BusConfig) {
	applyBusFlagTimeouts(cfg)

	if *flagBusSendAttempts != 0 {
		cfg.SendAttempts = *flagBusSendAttempts
	}
	if *flagBusEventWorkers != 0 {
		cfg.EventWorkers = *flagBusEventWorkers
	}
	if *flagBusQueuePrefix != "" {
		cfg.QueuePrefix = *flagBusQueuePrefix
	}
	if v := splitList(*flagBusRelayTypes); len(v) > 0 {
		cfg.RelayTypes = v
	}
}

func applyBusFlagTimeouts(cfg *BusConfig) {
	if *flagBusMinRetryTimeout != 0 {
		cfg.MinRetryTimeout = *flagBusMinRetryTimeout
	}
	if *flagBusResponseTimeout != 0 {
		cfg.ResponseTimeout = *flagBusResponseTimeout
	}
	if *flagBusResponsePollInterval != 0 {
		cfg.ResponsePollInterval = *flagBusResponsePollInterval
	}
	if *flagBusSendAttemptTimeout != 0 {
		cfg.SendAttemptTimeout = *flagBusSendAttemptTimeout
	}
	if *flagBusErrorBackoff != 0 {
		cfg.ErrorBackoff = *flagBusErrorBackoff
	}
	if *flagBusShutdownTimeout != 0 {
		cfg.ShutdownTimeout = *flagBusShutdownTimeout
	}
}

// isFlagSet checks if a flag was explicitly set on the command line
func isFlagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
