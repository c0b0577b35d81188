package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ibs-source/queuebus/internal/events"
	"github.com/ibs-source/queuebus/internal/log"
	"github.com/ibs-source/queuebus/internal/message"
	"github.com/ibs-source/queuebus/internal/queue"
)

// processor stages dequeued messages, invokes handlers and routes the
// outcome: delete on success, delayed return to Input on a decline,
// quarantine on error.
type processor struct {
	provider queue.Provider
	handlers *Handlers
	events   events.Events
	minRetry time.Duration
	log      *log.Logger
}

// ProcessMessage runs one staging cycle. A *HandlerError means the caller
// should quarantine the message; any other error is transient.
func (p *processor) ProcessMessage(ctx context.Context, messageType string, msg *message.Message) error {
	if msg.Empty() {
		return nil
	}
	queueName, err := p.handlers.QueueName(messageType)
	if err != nil {
		return err
	}

	// Once in Pending a second peek can no longer pick it up.
	if err := p.provider.Move(ctx, queueName, msg.ID, queue.Input, queue.Pending); err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			p.log.ForMessage(messageType, msg.ID).Debug("Message already taken")
			return nil
		}
		return fmt.Errorf("stage %s: %w", msg.ID, err)
	}

	handled, err := p.invoke(ctx, messageType, msg)
	if err != nil {
		return &HandlerError{Type: messageType, ID: msg.ID, Err: err}
	}

	if handled {
		_, err := p.provider.ReceiveByID(ctx, queueName, queue.Pending, msg.ID)
		if err != nil && !errors.Is(err, queue.ErrNotFound) {
			return fmt.Errorf("complete %s: %w", msg.ID, err)
		}
		return nil
	}

	p.log.ForMessage(messageType, msg.ID).Debugf("Message declined, retrying in %s", p.minRetry)
	if err := sleep(ctx, p.minRetry); err != nil {
		return err
	}
	if err := p.provider.Move(ctx, queueName, msg.ID, queue.Pending, queue.Input); err != nil &&
		!errors.Is(err, queue.ErrNotFound) {
		return fmt.Errorf("requeue %s: %w", msg.ID, err)
	}
	return nil
}

// invoke calls the handler once per item. The batch is handled when any item
// is; the first error stops the batch.
func (p *processor) invoke(ctx context.Context, messageType string, msg *message.Message) (bool, error) {
	h, ok := p.handlers.Lookup(messageType)
	if !ok {
		p.log.ForMessage(messageType, msg.ID).Warn("No handler registered")
		return false, nil
	}

	handled := false
	for _, item := range msg.Body {
		if item == nil {
			continue
		}
		item.SetHeader(message.HeaderMessageID, msg.ID)
		ok, err := safeHandle(ctx, h, item)
		if err != nil {
			return false, err
		}
		handled = handled || ok
	}
	return handled, nil
}

func safeHandle(ctx context.Context, h Handler, env *message.Envelope) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, &PanicError{Value: r}
		}
	}()
	return h.Handle(ctx, env)
}

// ProcessFault quarantines a staged message and reports cause.
func (p *processor) ProcessFault(ctx context.Context, messageType string, msg *message.Message, cause error) error {
	if msg.Empty() {
		return nil
	}
	queueName, err := p.handlers.QueueName(messageType)
	if err != nil {
		return err
	}

	if err := p.provider.Move(ctx, queueName, msg.ID, queue.Pending, queue.Fault); err != nil {
		return fmt.Errorf("quarantine %s: %w", msg.ID, err)
	}
	p.events.FaultOccurred(msg.ID, msg.Body, cause)
	return nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
