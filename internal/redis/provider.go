// Package redis provides a durable queue.Provider on Redis lists and hashes.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ibs-source/queuebus/internal/config"
	"github.com/ibs-source/queuebus/internal/log"
	"github.com/ibs-source/queuebus/internal/message"
	"github.com/ibs-source/queuebus/internal/queue"
	"github.com/redis/go-redis/v9"
)

// Provider stores each partition as a list of ids in FIFO order and the
// message bodies of a queue in one hash.
type Provider struct {
	rdb          *redis.Client
	prefix       string
	pollInterval time.Duration
	log          *log.Logger
}

var _ queue.Provider = (*Provider)(nil)

// NewProvider connects to Redis and verifies the connection.
func NewProvider(cfg *config.RedisConfig, logger *log.Logger) (*Provider, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), cfg.PingTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis at %s (prefix %q)", cfg.Address, cfg.KeyPrefix)

	return &Provider{
		rdb:          rdb,
		prefix:       cfg.KeyPrefix,
		pollInterval: cfg.PollInterval,
		log:          logger,
	}, nil
}

func (p *Provider) queuesKey() string {
	return p.prefix + ":queues"
}

func (p *Provider) listKey(name string, r queue.Role) string {
	return p.prefix + ":" + queue.PartitionName(name, r)
}

func (p *Provider) bodyKey(name string) string {
	return p.prefix + ":" + name + ":messages"
}

// EnsureQueue registers the queue in the known-queue set.
func (p *Provider) EnsureQueue(ctx context.Context, name string) (bool, error) {
	added, err := p.rdb.SAdd(ctx, p.queuesKey(), name).Result()
	if err != nil {
		return false, fmt.Errorf("sadd queue %s failed: %w", name, err)
	}
	if added > 0 {
		p.log.Info("Created queue '%s'", name)
	}
	return added > 0, nil
}

// Send stores the body and appends the id in one transaction.
func (p *Provider) Send(ctx context.Context, name string, r queue.Role, msg *message.Message) (string, error) {
	if msg == nil {
		return "", fmt.Errorf("send to %s: nil message", queue.PartitionName(name, r))
	}

	stored := msg.Clone()
	stored.ID = uuid.NewString()

	data, err := stored.Encode()
	if err != nil {
		return "", fmt.Errorf("encode message for %s: %w", queue.PartitionName(name, r), err)
	}

	_, err = p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, p.bodyKey(name), stored.ID, data)
		pipe.RPush(ctx, p.listKey(name, r), stored.ID)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("send to %s failed: %w", queue.PartitionName(name, r), err)
	}

	return stored.ID, nil
}

// Peek polls the Input head every poll interval until a message shows up,
// the timeout expires or ctx is done.
func (p *Provider) Peek(ctx context.Context, name string, timeout time.Duration) (*message.Message, error) {
	var expired <-chan time.Time
	if timeout >= 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		msg, err := p.head(ctx, name)
		if err != nil || msg != nil {
			return msg, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-expired:
			return nil, nil
		case <-ticker.C:
		}
	}
}

func (p *Provider) head(ctx context.Context, name string) (*message.Message, error) {
	id, err := p.rdb.LIndex(ctx, p.listKey(name, queue.Input), 0).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lindex %s failed: %w", name, err)
	}

	msg, err := p.load(ctx, name, id)
	if errors.Is(err, queue.ErrNotFound) {
		// taken between the two reads
		return nil, nil
	}
	return msg, err
}

func (p *Provider) load(ctx context.Context, name, id string) (*message.Message, error) {
	data, err := p.rdb.HGet(ctx, p.bodyKey(name), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("load %s from %s: %w", id, name, queue.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("hget %s from %s failed: %w", id, name, err)
	}
	return decode(id, data)
}

func decode(id string, data []byte) (*message.Message, error) {
	msg, err := message.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", id, err)
	}
	msg.ID = id
	return msg, nil
}

// PeekByID returns a message if its id is listed in the partition.
func (p *Provider) PeekByID(ctx context.Context, name string, r queue.Role, id string) (*message.Message, error) {
	_, err := p.rdb.LPos(ctx, p.listKey(name, r), id, redis.LPosArgs{}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("peek %s in %s: %w", id, queue.PartitionName(name, r), queue.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lpos %s in %s failed: %w", id, queue.PartitionName(name, r), err)
	}
	return p.load(ctx, name, id)
}

// ReceiveByID removes the id from the partition and deletes its body.
func (p *Provider) ReceiveByID(ctx context.Context, name string, r queue.Role, id string) (*message.Message, error) {
	keys := []string{p.listKey(name, r), p.bodyKey(name)}
	data, err := receiveScript.Run(ctx, p.rdb, keys, id).Text()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("receive %s from %s: %w", id, queue.PartitionName(name, r), queue.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("receive %s from %s failed: %w", id, queue.PartitionName(name, r), err)
	}
	return decode(id, []byte(data))
}

// Move relocates an id to the tail of another partition of the same queue.
func (p *Provider) Move(ctx context.Context, name, id string, from, to queue.Role) error {
	keys := []string{p.listKey(name, from), p.listKey(name, to)}
	moved, err := moveScript.Run(ctx, p.rdb, keys, id).Int()
	if err != nil {
		return fmt.Errorf("move %s from %s failed: %w", id, queue.PartitionName(name, from), err)
	}
	if moved == 0 {
		return fmt.Errorf("move %s from %s: %w", id, queue.PartitionName(name, from), queue.ErrNotFound)
	}
	return nil
}

// Enumerate lists a partition in FIFO order, skipping ids whose body vanished
// between the two reads.
func (p *Provider) Enumerate(ctx context.Context, name string, r queue.Role) ([]*message.Message, error) {
	ids, err := p.rdb.LRange(ctx, p.listKey(name, r), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s failed: %w", queue.PartitionName(name, r), err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	bodies, err := p.rdb.HMGet(ctx, p.bodyKey(name), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("hmget %s failed: %w", name, err)
	}

	out := make([]*message.Message, 0, len(ids))
	for i, raw := range bodies {
		data, ok := raw.(string)
		if !ok {
			continue
		}
		msg, err := decode(ids[i], []byte(data))
		if err != nil {
			p.log.Warn("Skipping undecodable message %s in %s: %v", ids[i], queue.PartitionName(name, r), err)
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// Purge empties a partition and deletes the bodies it referenced.
func (p *Provider) Purge(ctx context.Context, name string, r queue.Role) (int, error) {
	keys := []string{p.listKey(name, r), p.bodyKey(name)}
	n, err := purgeScript.Run(ctx, p.rdb, keys).Int()
	if err != nil {
		return 0, fmt.Errorf("purge %s failed: %w", queue.PartitionName(name, r), err)
	}
	return n, nil
}

// Close closes the Redis client connection
func (p *Provider) Close() error {
	if p.rdb != nil {
		return p.rdb.Close()
	}
	return nil
}
