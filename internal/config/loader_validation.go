package config

import "fmt"

// Validate checks configuration constraints
func Validate(cfg *Config) error {
	if err := validateRedis(&cfg.Redis); err != nil {
		return err
	}
	if err := validateMQTT(&cfg.MQTT); err != nil {
		return err
	}
	return validateBus(&cfg.Bus)
}

// validateRedis validates Redis configuration
func validateRedis(cfg *RedisConfig) error {
	if cfg.Address == "" {
		return fmt.Errorf("redis address cannot be empty")
	}
	if cfg.KeyPrefix == "" {
		return fmt.Errorf("redis key prefix cannot be empty")
	}
	if cfg.DB < 0 {
		return fmt.Errorf("redis db cannot be negative")
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("redis poll interval must be positive")
	}
	return nil
}

// validateMQTT validates MQTT configuration; a disabled client is not checked
func validateMQTT(cfg *MQTTConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Broker == "" {
		return fmt.Errorf("mqtt broker cannot be empty")
	}
	if cfg.ClientID == "" {
		return fmt.Errorf("mqtt client ID cannot be empty")
	}
	if cfg.PoolSize < 1 {
		return fmt.Errorf("mqtt pool size must be positive")
	}
	if cfg.EventTopic == "" {
		return fmt.Errorf("mqtt event topic cannot be empty")
	}
	if cfg.CommandTopic == "" {
		return fmt.Errorf("mqtt command topic cannot be empty")
	}
	if cfg.RelayTopic == "" {
		return fmt.Errorf("mqtt relay topic cannot be empty")
	}
	return nil
}

// validateBus validates Bus configuration
func validateBus(cfg *BusConfig) error {
	if cfg.MinRetryTimeout <= 0 {
		return fmt.Errorf("bus min retry timeout must be positive")
	}
	if cfg.ResponseTimeout <= 0 {
		return fmt.Errorf("bus response timeout must be positive")
	}
	if cfg.ResponsePollInterval <= 0 {
		return fmt.Errorf("bus response poll interval must be positive")
	}
	if cfg.SendAttemptTimeout <= 0 {
		return fmt.Errorf("bus send attempt timeout must be positive")
	}
	if cfg.SendAttempts < 1 {
		return fmt.Errorf("bus send attempts must be positive")
	}
	if cfg.ErrorBackoff <= 0 {
		return fmt.Errorf("bus error backoff must be positive")
	}
	if cfg.EventWorkers < 1 {
		return fmt.Errorf("bus event workers must be positive")
	}
	return nil
}
