// Package mqtt carries bus traffic to and from an MQTT broker: event alerts,
// operator commands and relayed messages.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ibs-source/queuebus/internal/config"
	"github.com/ibs-source/queuebus/internal/log"
)

// ErrNotConnected is returned by Publish while the broker link is down.
// The relay treats it as a soft failure so the message is retried.
var ErrNotConnected = errors.New("mqtt: not connected")

// Handler receives messages for a subscribed topic.
type Handler func(topic string, payload []byte)

// Client wraps one broker connection. Subscriptions made through it are
// remembered and restored after every reconnect, since clean sessions drop
// them on the broker side.
type Client struct {
	client            mqtt.Client
	qos               byte
	writeTimeout      time.Duration
	subscribeTimeout  time.Duration
	disconnectTimeout uint
	log               *log.Logger

	mu   sync.Mutex
	subs map[string]Handler
}

var pahoLogs sync.Once

// routePahoLogs sends paho's internal error output through the bus logger.
// paho keeps its loggers in package globals, so this runs once per process.
func routePahoLogs(logger *log.Logger) {
	pahoLogs.Do(func() {
		entry := logger.Logrus().WithField("component", "paho")
		mqtt.ERROR = entry
		mqtt.CRITICAL = entry
	})
}

// NewClient connects to the broker and returns once the first connection
// succeeds or ConnectTimeout expires.
func NewClient(cfg *config.MQTTConfig, logger *log.Logger) (*Client, error) {
	routePahoLogs(logger)
	c := &Client{
		qos:               cfg.QoS,
		writeTimeout:      cfg.WriteTimeout,
		subscribeTimeout:  cfg.SubscribeTimeout,
		disconnectTimeout: cfg.DisconnectTimeout,
		log:               logger,
		subs:              make(map[string]Handler),
	}

	opts, err := c.options(cfg)
	if err != nil {
		return nil, err
	}

	c.client = mqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("mqtt connection to %s timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT %s: %w", cfg.Broker, err)
	}
	return c, nil
}

func (c *Client) options(cfg *config.MQTTConfig) (*mqtt.ClientOptions, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetWriteTimeout(cfg.WriteTimeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(cfg.MaxReconnectInterval)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(true)
	// Commands are applied one at a time in arrival order
	opts.SetOrderMatters(true)

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		if err != nil {
			c.log.Error("MQTT connection %s lost: %v", cfg.ClientID, err)
		}
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		c.log.Info("MQTT %s reconnecting...", cfg.ClientID)
	})
	opts.SetOnConnectHandler(func(mqtt.Client) {
		c.log.Info("MQTT %s connected", cfg.ClientID)
		// Handlers run on paho's goroutine; waiting on tokens here would block it.
		go c.restoreSubscriptions()
	})

	if cfg.TLSEnabled {
		tlsConfig, err := newTLSConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}
	return opts, nil
}

// restoreSubscriptions re-issues every remembered subscription.
func (c *Client) restoreSubscriptions() {
	c.mu.Lock()
	subs := make(map[string]Handler, len(c.subs))
	for topic, h := range c.subs {
		subs[topic] = h
	}
	c.mu.Unlock()

	for topic, h := range subs {
		if err := c.subscribe(topic, h); err != nil {
			c.log.Error("Failed to restore subscription to %s: %v", topic, err)
		}
	}
}

// newTLSConfig creates a TLS configuration from MQTT config
func newTLSConfig(cfg *config.MQTTConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkip, // #nosec G402 - configurable for testing environments
		MinVersion:         tls.VersionTLS12,
	}

	if cfg.CACert != "" {
		caCert, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA cert: %w", err)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA cert")
		}
		tlsConfig.RootCAs = caCertPool
	}

	if cfg.ClientCert != "" && cfg.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load client cert/key: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// Connected reports whether the broker link is currently up.
func (c *Client) Connected() bool {
	return c.client != nil && c.client.IsConnectionOpen()
}

// Publish sends payload to topic, bounded by ctx and the write timeout. It
// fails fast with ErrNotConnected while the client is reconnecting.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	if !c.Connected() {
		return fmt.Errorf("publish to %s: %w", topic, ErrNotConnected)
	}
	token := c.client.Publish(topic, c.qos, false, payload)

	timer := time.NewTimer(c.writeTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt publish to %s failed: %w", topic, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("mqtt publish to %s timeout", topic)
	}
}

// Subscribe registers handler for messages arriving on topic. The
// subscription survives reconnects.
func (c *Client) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	if err := c.subscribe(topic, handler); err != nil {
		return err
	}
	c.mu.Lock()
	c.subs[topic] = handler
	c.mu.Unlock()
	return nil
}

func (c *Client) subscribe(topic string, handler Handler) error {
	token := c.client.Subscribe(topic, c.qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})

	if !token.WaitTimeout(c.subscribeTimeout) {
		return fmt.Errorf("mqtt subscription to %s timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (c *Client) Close() error {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(c.disconnectTimeout)
	}
	return nil
}
