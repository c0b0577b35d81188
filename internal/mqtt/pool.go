package mqtt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/ibs-source/queuebus/internal/config"
	"github.com/ibs-source/queuebus/internal/log"
)

// Pool spreads publishes over several connections, skipping any that are
// reconnecting. Subscriptions live on the first connection only so that
// each command is delivered once.
type Pool struct {
	clients []*Client
	next    atomic.Uint64
	log     *log.Logger
}

// NewPool connects size clients. Client ids get a host and pid suffix so
// several instances can share one configuration.
func NewPool(cfg *config.MQTTConfig, size int, logger *log.Logger) (*Pool, error) {
	if size < 1 {
		size = 1
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	baseClientID := fmt.Sprintf("%s-%s-%d", cfg.ClientID, hostname, os.Getpid())

	p := &Pool{clients: make([]*Client, 0, size), log: logger}
	for i := 0; i < size; i++ {
		clientCfg := *cfg
		clientCfg.ClientID = fmt.Sprintf("%s-%d", baseClientID, i)

		client, err := NewClient(&clientCfg, logger)
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("failed to create client %d: %w", i, err)
		}
		p.clients = append(p.clients, client)
	}

	logger.Info("MQTT pool ready with %d connections to %s", size, cfg.Broker)
	return p, nil
}

// Publish sends on the next connected client in round-robin order.
func (p *Pool) Publish(ctx context.Context, topic string, payload []byte) error {
	n := uint64(len(p.clients))
	start := p.next.Add(1)
	for i := uint64(0); i < n; i++ {
		c := p.clients[(start+i)%n]
		if c.Connected() {
			return c.Publish(ctx, topic, payload)
		}
	}
	return fmt.Errorf("publish to %s: no live connection in pool: %w", topic, ErrNotConnected)
}

// Subscribe subscribes on the first connection.
func (p *Pool) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	return p.clients[0].Subscribe(topic, handler)
}

// Connected reports how many connections are currently up.
func (p *Pool) Connected() int {
	up := 0
	for _, c := range p.clients {
		if c.Connected() {
			up++
		}
	}
	return up
}

// Close closes every connection and joins their errors.
func (p *Pool) Close() error {
	var errs []error
	for i, client := range p.clients {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close client %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
