package config

import "time"

// defaultRedisConfig returns the default Redis configuration
func defaultRedisConfig() RedisConfig {
	return RedisConfig{
		Address:      "localhost:6379",
		Password:     "",
		DB:           0,
		KeyPrefix:    "queuebus",
		PollInterval: 50 * time.Millisecond,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Second,
		PingTimeout:  5 * time.Second,
	}
}

// defaultMQTTConfig returns the default MQTT configuration
func defaultMQTTConfig() MQTTConfig {
	return MQTTConfig{
		Enabled:              false,
		Broker:               "tcp://localhost:1883",
		ClientID:             "queuebus",
		EventTopic:           "queuebus/events",
		CommandTopic:         "queuebus/commands",
		RelayTopic:           "queuebus/relay",
		QoS:                  0,
		ConnectTimeout:       10 * time.Second,
		WriteTimeout:         30 * time.Second,
		PoolSize:             4,
		MaxReconnectInterval: 10 * time.Second,
		SubscribeTimeout:     10 * time.Second,
		DisconnectTimeout:    1000,
		TLSEnabled:           false,
		CACert:               "",
		ClientCert:           "",
		ClientKey:            "",
		InsecureSkip:         false,
		UseCertCNPrefix:      false,
	}
}

// defaultBusConfig returns the default bus configuration
func defaultBusConfig() BusConfig {
	return BusConfig{
		MinRetryTimeout:      1 * time.Second,
		ResponseTimeout:      30 * time.Second,
		ResponsePollInterval: 100 * time.Millisecond,
		SendAttemptTimeout:   5 * time.Second,
		SendAttempts:         3,
		ErrorBackoff:         1 * time.Second,
		ShutdownTimeout:      30 * time.Second,
		QueuePrefix:          "",
		RelayTypes:           nil,
		EventWorkers:         8,
	}
}

// defaultConfig returns a complete configuration with all default values
func defaultConfig() *Config {
	return &Config{
		Redis: defaultRedisConfig(),
		MQTT:  defaultMQTTConfig(),
		Bus:   defaultBusConfig(),
	}
}
