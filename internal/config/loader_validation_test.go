package config

import (
	"testing"
	"time"
)

func TestValidate_Success(t *testing.T) {
	cfg := defaultConfig()
	cfg.MQTT.Enabled = true

	if err := Validate(cfg); err != nil {
		t.Errorf("Validate() failed for valid config: %v", err)
	}
}

type redisTestCase struct {
	name      string
	mutate    func(*RedisConfig)
	wantError string
}

type mqttTestCase struct {
	name      string
	mutate    func(*MQTTConfig)
	wantError string
}

type busTestCase struct {
	name      string
	mutate    func(*BusConfig)
	wantError string
}

func checkValidationError(t *testing.T, err error, wantError string) {
	t.Helper()
	if wantError == "" {
		if err != nil {
			t.Errorf("validation error = %v; want nil", err)
		}
	} else {
		if err == nil {
			t.Errorf("validation error = nil; want %s", wantError)
		} else if err.Error() != wantError {
			t.Errorf("validation error = %s; want %s", err.Error(), wantError)
		}
	}
}

func TestValidateRedis(t *testing.T) {
	tests := []redisTestCase{
		{name: "valid config", mutate: func(*RedisConfig) {}},
		{
			name:      "empty address",
			mutate:    func(c *RedisConfig) { c.Address = "" },
			wantError: "redis address cannot be empty",
		},
		{
			name:      "empty key prefix",
			mutate:    func(c *RedisConfig) { c.KeyPrefix = "" },
			wantError: "redis key prefix cannot be empty",
		},
		{
			name:      "negative db",
			mutate:    func(c *RedisConfig) { c.DB = -1 },
			wantError: "redis db cannot be negative",
		},
		{
			name:      "zero poll interval",
			mutate:    func(c *RedisConfig) { c.PollInterval = 0 },
			wantError: "redis poll interval must be positive",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultRedisConfig()
			tt.mutate(&cfg)
			checkValidationError(t, validateRedis(&cfg), tt.wantError)
		})
	}
}

func TestValidateMQTT(t *testing.T) {
	tests := []mqttTestCase{
		{name: "valid config", mutate: func(*MQTTConfig) {}},
		{
			name:   "disabled skips checks",
			mutate: func(c *MQTTConfig) { c.Enabled = false; c.Broker = "" },
		},
		{
			name:      "empty broker",
			mutate:    func(c *MQTTConfig) { c.Broker = "" },
			wantError: "mqtt broker cannot be empty",
		},
		{
			name:      "empty client ID",
			mutate:    func(c *MQTTConfig) { c.ClientID = "" },
			wantError: "mqtt client ID cannot be empty",
		},
		{
			name:      "zero pool size",
			mutate:    func(c *MQTTConfig) { c.PoolSize = 0 },
			wantError: "mqtt pool size must be positive",
		},
		{
			name:      "empty event topic",
			mutate:    func(c *MQTTConfig) { c.EventTopic = "" },
			wantError: "mqtt event topic cannot be empty",
		},
		{
			name:      "empty command topic",
			mutate:    func(c *MQTTConfig) { c.CommandTopic = "" },
			wantError: "mqtt command topic cannot be empty",
		},
		{
			name:      "empty relay topic",
			mutate:    func(c *MQTTConfig) { c.RelayTopic = "" },
			wantError: "mqtt relay topic cannot be empty",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultMQTTConfig()
			cfg.Enabled = true
			tt.mutate(&cfg)
			checkValidationError(t, validateMQTT(&cfg), tt.wantError)
		})
	}
}

func TestValidateBus(t *testing.T) {
	tests := []busTestCase{
		{name: "valid config", mutate: func(*BusConfig) {}},
		{
			name:      "zero min retry timeout",
			mutate:    func(c *BusConfig) { c.MinRetryTimeout = 0 },
			wantError: "bus min retry timeout must be positive",
		},
		{
			name:      "negative response timeout",
			mutate:    func(c *BusConfig) { c.ResponseTimeout = -time.Second },
			wantError: "bus response timeout must be positive",
		},
		{
			name:      "zero response poll interval",
			mutate:    func(c *BusConfig) { c.ResponsePollInterval = 0 },
			wantError: "bus response poll interval must be positive",
		},
		{
			name:      "zero send attempt timeout",
			mutate:    func(c *BusConfig) { c.SendAttemptTimeout = 0 },
			wantError: "bus send attempt timeout must be positive",
		},
		{
			name:      "zero send attempts",
			mutate:    func(c *BusConfig) { c.SendAttempts = 0 },
			wantError: "bus send attempts must be positive",
		},
		{
			name:      "zero error backoff",
			mutate:    func(c *BusConfig) { c.ErrorBackoff = 0 },
			wantError: "bus error backoff must be positive",
		},
		{
			name:      "zero event workers",
			mutate:    func(c *BusConfig) { c.EventWorkers = 0 },
			wantError: "bus event workers must be positive",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultBusConfig()
			tt.mutate(&cfg)
			checkValidationError(t, validateBus(&cfg), tt.wantError)
		})
	}
}
