// Package config provides configuration loading and validation from environment variables and command line flags.
package config

import "time"

// Config holds the complete configuration
type Config struct {
	Redis RedisConfig
	MQTT  MQTTConfig
	Bus   BusConfig
}

// RedisConfig holds the Redis queue provider configuration
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	KeyPrefix    string        // Namespace for every key the provider writes
	PollInterval time.Duration // Interval between head checks while a peek waits
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PingTimeout  time.Duration
}

// MQTTConfig holds MQTT client configuration
type MQTTConfig struct {
	Enabled              bool
	Broker               string
	ClientID             string
	EventTopic           string // Prefix for bus event alerts
	CommandTopic         string // Operator commands are received here
	RelayTopic           string // Prefix for relayed message types
	QoS                  byte
	ConnectTimeout       time.Duration
	WriteTimeout         time.Duration
	PoolSize             int // Number of connections for high throughput
	MaxReconnectInterval time.Duration
	SubscribeTimeout     time.Duration
	DisconnectTimeout    uint // Milliseconds for graceful disconnect
	// TLS Configuration
	TLSEnabled      bool
	CACert          string
	ClientCert      string
	ClientKey       string
	InsecureSkip    bool
	UseCertCNPrefix bool // If true, prefix topics with cert CN for ACL constraints
}

// BusConfig holds dispatch, retry and request/reply settings
type BusConfig struct {
	MinRetryTimeout      time.Duration // Delay before a declined message is retried
	ResponseTimeout      time.Duration // Default reply wait for SendAndReceive
	ResponsePollInterval time.Duration
	SendAttemptTimeout   time.Duration
	SendAttempts         int
	ErrorBackoff         time.Duration // Backoff after a failed peek
	ShutdownTimeout      time.Duration
	QueuePrefix          string
	RelayTypes           []string // Message types relayed to MQTT by the binary
	EventWorkers         int      // Goroutines delivering events to slow sinks
}
