// Package bus dispatches queued messages to handlers. Each subscribed type
// gets its own listener loop; failures are retried or quarantined, and a
// synchronous request/reply mode is layered on the same queues.
package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ibs-source/queuebus/internal/config"
	"github.com/ibs-source/queuebus/internal/events"
	"github.com/ibs-source/queuebus/internal/log"
	"github.com/ibs-source/queuebus/internal/message"
	"github.com/ibs-source/queuebus/internal/queue"
)

// Bus is the public facade over a queue provider.
type Bus struct {
	provider   queue.Provider
	handlers   *Handlers
	events     events.Events
	cfg        config.BusConfig
	log        *log.Logger
	processor  *processor
	registry   *registry
	correlator *correlator
	now        func() time.Time

	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a bus. A nil handlers table resolves every type through the
// default naming policy; nil ev discards events.
func New(
	provider queue.Provider, handlers *Handlers, ev events.Events, cfg config.BusConfig, logger *log.Logger,
) *Bus {
	if handlers == nil {
		handlers = NewHandlers(cfg.QueuePrefix)
	}
	if ev == nil {
		ev = events.Nop{}
	}
	if cfg.SendAttempts < 1 {
		cfg.SendAttempts = 1
	}

	b := &Bus{
		provider: provider,
		handlers: handlers,
		events:   ev,
		cfg:      cfg,
		log:      logger,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	b.processor = &processor{
		provider: provider,
		handlers: handlers,
		events:   ev,
		minRetry: cfg.MinRetryTimeout,
		log:      logger,
	}
	b.registry = newRegistry(provider, handlers, ev, b.listen)
	b.correlator = newCorrelator(provider, cfg.ResponsePollInterval, b.done, logger)
	return b
}

// Handlers returns the handler table.
func (b *Bus) Handlers() *Handlers {
	return b.handlers
}

// Subscribe starts a listener for messageType.
func (b *Bus) Subscribe(ctx context.Context, messageType string) error {
	if b.closed.Load() {
		return ErrClosed
	}
	return b.registry.start(ctx, messageType)
}

// Unsubscribe stops the listener for messageType. A dispatch in progress
// finishes first; a message peeked afterwards stays queued.
func (b *Bus) Unsubscribe(messageType string) error {
	return b.registry.stop(messageType)
}

// UnsubscribeAll stops every listener.
func (b *Bus) UnsubscribeAll() {
	b.registry.stopAll()
}

// Subscribed reports whether a listener is active for messageType.
func (b *Bus) Subscribed(messageType string) bool {
	return b.registry.subscribed(messageType)
}

// Subscriptions lists active types in sorted order.
func (b *Bus) Subscriptions() []string {
	return b.registry.subscriptions()
}

// Send enqueues one item and returns the message id.
func (b *Bus) Send(ctx context.Context, messageType string, env *message.Envelope) (string, error) {
	if env == nil {
		return "", fmt.Errorf("send %s: nil message: %w", messageType, ErrInvalidArgument)
	}
	return b.SendBatch(ctx, messageType, []*message.Envelope{env})
}

// SendBatch enqueues several items as one message. Handlers see each item
// separately.
func (b *Bus) SendBatch(ctx context.Context, messageType string, envs []*message.Envelope) (string, error) {
	if len(envs) == 0 {
		return "", fmt.Errorf("send %s: empty batch: %w", messageType, ErrInvalidArgument)
	}
	for _, env := range envs {
		if env == nil {
			return "", fmt.Errorf("send %s: nil item: %w", messageType, ErrInvalidArgument)
		}
		env.SetHeader(message.HeaderRequestResponse, message.False)
	}
	msg := message.Single(envs[0])
	if len(envs) > 1 {
		msg = message.NewBatch(envs)
	}
	return b.enqueue(ctx, messageType, msg)
}

// enqueue fills in the type, stamps Sent and writes msg to Input.
func (b *Bus) enqueue(ctx context.Context, messageType string, msg *message.Message) (string, error) {
	if b.closed.Load() {
		return "", ErrClosed
	}
	queueName, err := b.handlers.QueueName(messageType)
	if err != nil {
		return "", fmt.Errorf("send: %w", err)
	}

	now := b.now()
	for _, env := range msg.Body {
		if env.Type == "" {
			env.Type = messageType
		}
		env.StampSent(now)
	}
	return b.send(ctx, queueName, queue.Input, msg)
}

// send writes msg with bounded retries.
func (b *Bus) send(ctx context.Context, queueName string, r queue.Role, msg *message.Message) (string, error) {
	var last error
	for attempt := 1; attempt <= b.cfg.SendAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, b.cfg.SendAttemptTimeout)
		id, err := b.provider.Send(attemptCtx, queueName, r, msg)
		cancel()
		if err == nil {
			return id, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		last = err
		b.log.WithField("queue", queue.PartitionName(queueName, r)).
			Warnf("Send attempt %d/%d failed: %v", attempt, b.cfg.SendAttempts, err)
	}
	return "", errors.Join(
		fmt.Errorf("send to %s after %d attempts: %w", queue.PartitionName(queueName, r), b.cfg.SendAttempts, ErrSendFailed),
		last,
	)
}

// SendAndReceive sends env as a request and waits for the handler's Reply,
// decoded into R. Only one request/reply wait runs per bus at a time.
//
// Timeouts, cancellation and a closed bus are returned. Any other failure
// while waiting is reported through FaultOccurred and yields the zero value
// of R with a nil error.
func SendAndReceive[R any](ctx context.Context, b *Bus, messageType string, env *message.Envelope) (R, error) {
	var zero R
	if env == nil {
		return zero, fmt.Errorf("send and receive %s: nil message: %w", messageType, ErrInvalidArgument)
	}
	queueName, err := b.handlers.QueueName(messageType)
	if err != nil {
		return zero, fmt.Errorf("send and receive: %w", err)
	}

	if err := b.correlator.acquire(ctx); err != nil {
		return zero, err
	}
	defer b.correlator.release()

	env.SetHeader(message.HeaderRequestResponse, message.True)
	env.SetHeader(message.HeaderMessageID, uuid.NewString())
	id, err := b.enqueue(ctx, messageType, message.Single(env))
	if err != nil {
		return zero, err
	}

	timeout := b.cfg.ResponseTimeout
	if d, ok := env.SagaTimeout(); ok {
		timeout = d
	}

	reply, err := b.correlator.wait(ctx, queueName, id, timeout)
	if err == nil {
		var out R
		if err = reply.Decode(&out); err == nil {
			return out, nil
		}
	}
	if ctx.Err() != nil {
		return zero, ctx.Err()
	}
	if errors.Is(err, ErrResponseTimeout) || errors.Is(err, ErrClosed) {
		return zero, err
	}

	b.log.ForMessage(messageType, id).Errorf("Request/reply failed: %v", err)
	b.events.FaultOccurred(id, []*message.Envelope{env}, err)
	return zero, nil
}

// Reply answers a request received by a handler. It succeeds at most once
// per request, and fails with ErrResponseTimeout when the waiter already
// gave up.
func (b *Bus) Reply(ctx context.Context, env *message.Envelope, value any) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if env == nil {
		return fmt.Errorf("reply: nil message: %w", ErrInvalidArgument)
	}

	requestID := env.Header(message.HeaderMessageID)
	switch {
	case !env.Flag(message.HeaderRequestResponse):
		return fmt.Errorf("reply to %s: not a request: %w", env.Type, ErrReplyNotAllowed)
	case env.Flag(message.HeaderResponded):
		return fmt.Errorf("reply to %s %s: already responded: %w", env.Type, requestID, ErrReplyNotAllowed)
	case requestID == "":
		return fmt.Errorf("reply to %s: missing %s: %w", env.Type, message.HeaderMessageID, ErrReplyNotAllowed)
	case env.Type == "":
		return fmt.Errorf("reply to %s: missing type: %w", requestID, ErrReplyNotAllowed)
	}

	queueName, err := b.handlers.QueueName(env.Type)
	if err != nil {
		return fmt.Errorf("reply: %w", err)
	}
	resp, err := message.New(env.Type, value)
	if err != nil {
		return fmt.Errorf("reply to %s: %w", requestID, err)
	}
	resp.SetHeader(message.HeaderMessageID, requestID)
	resp.StampSent(b.now())

	// The request stays in Pending while its handler runs. Once the waiter
	// has expired it is withdrawn, and a reply would never be collected.
	if err := b.requestPending(ctx, queueName, requestID); err != nil {
		return fmt.Errorf("reply to %s: %w", requestID, err)
	}
	respID, err := b.send(ctx, queueName, queue.Response, message.Single(resp))
	if err != nil {
		return fmt.Errorf("reply to %s: %w", requestID, err)
	}
	if err := b.requestPending(ctx, queueName, requestID); err != nil {
		if _, rerr := b.provider.ReceiveByID(ctx, queueName, queue.Response, respID); rerr != nil &&
			!errors.Is(rerr, queue.ErrNotFound) {
			b.log.ForMessage(env.Type, requestID).Warnf("Dropping late reply: %v", rerr)
		}
		return fmt.Errorf("reply to %s: %w", requestID, err)
	}
	env.SetHeader(message.HeaderResponded, message.True)
	return nil
}

// requestPending returns ErrResponseTimeout once a request has left Pending.
func (b *Bus) requestPending(ctx context.Context, queueName, requestID string) error {
	_, err := b.provider.PeekByID(ctx, queueName, queue.Pending, requestID)
	if errors.Is(err, queue.ErrNotFound) {
		return fmt.Errorf("request withdrawn: %w", ErrResponseTimeout)
	}
	return err
}

// ForwardTo writes msg unchanged to the Input of another queue.
func (b *Bus) ForwardTo(ctx context.Context, destination string, msg *message.Message) (string, error) {
	if b.closed.Load() {
		return "", ErrClosed
	}
	destination = strings.TrimSpace(destination)
	if destination == "" || strings.Contains(destination, ";") {
		return "", fmt.Errorf("forward: invalid destination %q: %w", destination, ErrInvalidArgument)
	}
	if msg == nil || len(msg.Body) == 0 {
		return "", fmt.Errorf("forward to %s: empty message: %w", destination, ErrInvalidArgument)
	}
	return b.send(ctx, destination, queue.Input, msg)
}

// Invalidate quarantines a Pending message by id and reports whether it was
// found.
func (b *Bus) Invalidate(ctx context.Context, messageType, id string) (bool, error) {
	queueName, err := b.target(messageType, id)
	if err != nil {
		return false, fmt.Errorf("invalidate: %w", err)
	}

	msg, err := b.provider.PeekByID(ctx, queueName, queue.Pending, id)
	if errors.Is(err, queue.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("invalidate %s: %w", id, err)
	}

	if err := b.provider.Move(ctx, queueName, id, queue.Pending, queue.Fault); err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("invalidate %s: %w", id, err)
	}
	b.events.FaultOccurred(id, msg.Body, fmt.Errorf("invalidate %s: %w", id, ErrInvalidated))
	return true, nil
}

// Purge empties the given partitions of a type's queue and returns how many
// messages were removed.
func (b *Bus) Purge(ctx context.Context, messageType string, roles ...queue.Role) (int, error) {
	if b.closed.Load() {
		return 0, ErrClosed
	}
	if len(roles) == 0 {
		return 0, fmt.Errorf("purge %s: no partitions: %w", messageType, ErrInvalidArgument)
	}
	queueName, err := b.handlers.QueueName(messageType)
	if err != nil {
		return 0, fmt.Errorf("purge: %w", err)
	}

	total := 0
	for _, r := range roles {
		n, err := b.provider.Purge(ctx, queueName, r)
		total += n
		if err != nil {
			return total, fmt.Errorf("purge %s: %w", queue.PartitionName(queueName, r), err)
		}
	}
	b.log.WithField("queue", queueName).Infof("Purged %d messages", total)
	return total, nil
}

// Remove deletes a Pending message by id.
func (b *Bus) Remove(ctx context.Context, messageType, id string) error {
	queueName, err := b.target(messageType, id)
	if err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	if _, err := b.provider.ReceiveByID(ctx, queueName, queue.Pending, id); err != nil {
		return fmt.Errorf("remove %s: %w", id, err)
	}
	return nil
}

// Resend re-stamps msg and enqueues it again under a new id.
func (b *Bus) Resend(ctx context.Context, messageType string, msg *message.Message) (string, error) {
	if msg == nil || len(msg.Body) == 0 {
		return "", fmt.Errorf("resend %s: empty message: %w", messageType, ErrInvalidArgument)
	}
	c := msg.Clone()
	c.ID = ""
	return b.enqueue(ctx, messageType, c)
}

// ResendFaulted resends every quarantined message of a type and then clears
// every entry it enumerated, including those whose resend failed. Failures
// are reported through FaultOccurred. It returns the number resent.
func (b *Bus) ResendFaulted(ctx context.Context, messageType string) (int, error) {
	if b.closed.Load() {
		return 0, ErrClosed
	}
	queueName, err := b.handlers.QueueName(messageType)
	if err != nil {
		return 0, fmt.Errorf("resend faulted: %w", err)
	}

	faulted, err := b.provider.Enumerate(ctx, queueName, queue.Fault)
	if err != nil {
		return 0, fmt.Errorf("resend faulted %s: %w", messageType, err)
	}

	resent := 0
	for _, m := range faulted {
		if _, err := b.Resend(ctx, messageType, m); err != nil {
			b.events.FaultOccurred(m.ID, m.Body, err)
			continue
		}
		resent++
	}

	for _, m := range faulted {
		_, err := b.provider.ReceiveByID(ctx, queueName, queue.Fault, m.ID)
		if err != nil && !errors.Is(err, queue.ErrNotFound) {
			b.log.ForMessage(messageType, m.ID).Warnf("Clearing faulted message: %v", err)
		}
	}
	b.log.WithField("queue", queueName).Infof("Resent %d of %d faulted messages", resent, len(faulted))
	return resent, nil
}

func (b *Bus) target(messageType, id string) (string, error) {
	if b.closed.Load() {
		return "", ErrClosed
	}
	if strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("message id is required: %w", ErrInvalidArgument)
	}
	return b.handlers.QueueName(messageType)
}

// Close stops every listener and waits for them, bounded by ctx. Pending
// request/reply waits return ErrClosed. The provider is left open.
func (b *Bus) Close(ctx context.Context) error {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		close(b.done)
	})
	return b.registry.close(ctx)
}
