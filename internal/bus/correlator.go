package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ibs-source/queuebus/internal/log"
	"github.com/ibs-source/queuebus/internal/message"
	"github.com/ibs-source/queuebus/internal/queue"
)

// correlator matches replies to requests. Only one wait runs per bus at a
// time.
type correlator struct {
	provider queue.Provider
	poll     time.Duration
	sem      chan struct{}
	done     <-chan struct{}
	log      *log.Logger
}

func newCorrelator(provider queue.Provider, poll time.Duration, done <-chan struct{}, logger *log.Logger) *correlator {
	return &correlator{
		provider: provider,
		poll:     poll,
		sem:      make(chan struct{}, 1),
		done:     done,
		log:      logger,
	}
}

func (c *correlator) acquire(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *correlator) release() {
	<-c.sem
}

// wait polls the Response partition of queueName for a reply to requestID.
// On expiry the request is withdrawn from Pending and Input.
func (c *correlator) wait(
	ctx context.Context, queueName, requestID string, timeout time.Duration,
) (*message.Envelope, error) {
	expired := time.NewTimer(timeout)
	defer expired.Stop()
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		reply, err := c.scan(ctx, queueName, requestID)
		if err != nil || reply != nil {
			return reply, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.done:
			return nil, ErrClosed
		case <-expired.C:
			c.withdraw(ctx, queueName, requestID)
			return nil, fmt.Errorf("reply to %s after %s: %w", requestID, timeout, ErrResponseTimeout)
		case <-ticker.C:
		}
	}
}

func (c *correlator) scan(ctx context.Context, queueName, requestID string) (*message.Envelope, error) {
	responses, err := c.provider.Enumerate(ctx, queueName, queue.Response)
	if err != nil {
		return nil, fmt.Errorf("scan responses for %s: %w", requestID, err)
	}

	for _, m := range responses {
		if m.Headers()[message.HeaderMessageID] != requestID {
			continue
		}
		taken, err := c.provider.ReceiveByID(ctx, queueName, queue.Response, m.ID)
		if errors.Is(err, queue.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("take response %s: %w", m.ID, err)
		}
		if len(taken.Body) == 0 || taken.Body[0] == nil {
			return nil, fmt.Errorf("response %s has no body", m.ID)
		}
		return taken.Body[0], nil
	}
	return nil, nil
}

// withdraw removes an expired request and any reply written while it was
// expiring.
func (c *correlator) withdraw(ctx context.Context, queueName, requestID string) {
	logger := c.log.WithField("id", requestID)
	for _, r := range []queue.Role{queue.Pending, queue.Input} {
		_, err := c.provider.ReceiveByID(ctx, queueName, r, requestID)
		if err != nil && !errors.Is(err, queue.ErrNotFound) {
			logger.Warnf("Withdrawing expired request from %s: %v", r, err)
		}
	}

	responses, err := c.provider.Enumerate(ctx, queueName, queue.Response)
	if err != nil {
		logger.Warnf("Sweeping late replies: %v", err)
		return
	}
	for _, m := range responses {
		if m.Headers()[message.HeaderMessageID] != requestID {
			continue
		}
		if _, err := c.provider.ReceiveByID(ctx, queueName, queue.Response, m.ID); err != nil &&
			!errors.Is(err, queue.ErrNotFound) {
			logger.Warnf("Removing late reply %s: %v", m.ID, err)
		}
	}
}
