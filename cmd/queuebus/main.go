// Package main starts the queuebus binary.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ibs-source/queuebus/internal/bus"
	"github.com/ibs-source/queuebus/internal/config"
	"github.com/ibs-source/queuebus/internal/events"
	"github.com/ibs-source/queuebus/internal/log"
	"github.com/ibs-source/queuebus/internal/mqtt"
	"github.com/ibs-source/queuebus/internal/redis"
)

// services holds everything that must be closed on shutdown, in reverse
// start order.
type services struct {
	provider *redis.Provider
	pool     *mqtt.Pool
	async    *events.Async
	bus      *bus.Bus
}

func run() int {
	logger := log.New()
	logger.Info("Starting queuebus")

	cfg := loadAndLogConfig(logger)

	svc, err := initializeServices(cfg, logger)
	if err != nil {
		logger.Error("Startup failed: %v", err)
		return 1
	}
	defer closeServices(svc, cfg, logger)

	if err := subscribeRelays(svc.bus, cfg, logger); err != nil {
		logger.Error("Failed to subscribe: %v", err)
		return 1
	}

	return waitForSignal(logger)
}

func loadAndLogConfig(logger *log.Logger) *config.Config {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration: %v", err)
	}

	logger.Info("Configuration loaded successfully")
	logger.Info("Redis: %s, Prefix: %s", cfg.Redis.Address, cfg.Redis.KeyPrefix)
	if cfg.MQTT.Enabled {
		logger.Info("MQTT: %s, Events: %s, Commands: %s, Relay: %s",
			cfg.MQTT.Broker, cfg.MQTT.EventTopic, cfg.MQTT.CommandTopic, cfg.MQTT.RelayTopic)
	} else {
		logger.Info("MQTT: disabled")
	}
	logger.Info("Bus: MinRetry=%s, ResponseTimeout=%s, SendAttempts=%d",
		cfg.Bus.MinRetryTimeout, cfg.Bus.ResponseTimeout, cfg.Bus.SendAttempts)
	return cfg
}

func initializeServices(cfg *config.Config, logger *log.Logger) (*services, error) {
	svc := &services{}

	provider, err := redis.NewProvider(&cfg.Redis, logger)
	if err != nil {
		return nil, err
	}
	svc.provider = provider
	logger.Info("Connected to Redis")

	handlers := bus.NewHandlers(cfg.Bus.QueuePrefix)
	sink := events.Events(events.NewLog(logger))

	var eventSink *mqtt.EventSink
	if cfg.MQTT.Enabled {
		pool, err := mqtt.NewPool(&cfg.MQTT, cfg.MQTT.PoolSize, logger)
		if err != nil {
			closeServices(svc, cfg, logger)
			return nil, err
		}
		svc.pool = pool
		logger.Info("Connected to MQTT broker with %d connections", cfg.MQTT.PoolSize)

		eventSink = mqtt.NewEventSink(pool, cfg.MQTT.EventTopic, cfg.MQTT.WriteTimeout, logger)
		async, err := events.NewAsync(eventSink, cfg.Bus.EventWorkers, logger)
		if err != nil {
			closeServices(svc, cfg, logger)
			return nil, err
		}
		svc.async = async
		sink = events.Multi{sink, async}

		relay := mqtt.NewRelay(pool, cfg.MQTT.RelayTopic, logger)
		for _, t := range cfg.Bus.RelayTypes {
			if err := handlers.Register(t, relay); err != nil {
				closeServices(svc, cfg, logger)
				return nil, err
			}
		}
	} else if len(cfg.Bus.RelayTypes) > 0 {
		logger.Warn("Relay types configured but MQTT is disabled; they will not be subscribed")
	}

	if types := handlers.Types(); len(types) > 0 {
		logger.Info("Registered handlers: %v", types)
	}
	svc.bus = bus.New(provider, handlers, sink, cfg.Bus, logger)

	if svc.pool != nil {
		commands := mqtt.NewCommands(svc.pool, cfg.MQTT.CommandTopic, svc.bus, eventSink, cfg.Bus.ShutdownTimeout, logger)
		if err := commands.Start(); err != nil {
			closeServices(svc, cfg, logger)
			return nil, err
		}
	}
	return svc, nil
}

func subscribeRelays(b *bus.Bus, cfg *config.Config, logger *log.Logger) error {
	if !cfg.MQTT.Enabled {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Redis.PingTimeout)
	defer cancel()

	for _, t := range cfg.Bus.RelayTypes {
		if err := b.Subscribe(ctx, t); err != nil {
			return err
		}
		logger.Info("Relaying %s to %s/%s", t, cfg.MQTT.RelayTopic, t)
	}
	return nil
}

func waitForSignal(logger *log.Logger) int {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Received signal %v, initiating graceful shutdown", sig)
	return 0
}

func closeServices(svc *services, cfg *config.Config, logger *log.Logger) {
	if svc.bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Bus.ShutdownTimeout)
		if err := svc.bus.Close(ctx); err != nil {
			logger.Error("Shutdown timeout exceeded: %v", err)
		} else {
			logger.Info("Listeners stopped")
		}
		cancel()
	}
	if svc.async != nil {
		if err := svc.async.Close(cfg.Bus.ShutdownTimeout); err != nil {
			logger.Error("Error draining event pool: %v", err)
		}
	}
	if svc.pool != nil {
		if err := svc.pool.Close(); err != nil {
			logger.Error("Error closing MQTT pool: %v", err)
		}
	}
	if svc.provider != nil {
		if err := svc.provider.Close(); err != nil {
			logger.Error("Error closing Redis provider: %v", err)
		}
	}
	logger.Info("Queuebus stopped")
}

func main() {
	// Keep main minimal to ensure defers in run() execute correctly.
	os.Exit(run())
}
