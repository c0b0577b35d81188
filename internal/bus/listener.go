package bus

import (
	"context"
	"errors"
	"time"

	"github.com/ibs-source/queuebus/internal/message"
	"github.com/ibs-source/queuebus/internal/queue"
	"github.com/sirupsen/logrus"
)

// listen is the per-type loop: peek, stage, dispatch, repeat. It returns
// only when ctx is cancelled.
func (b *Bus) listen(ctx context.Context, messageType, queueName string) {
	logger := b.log.WithFields(logrus.Fields{"type": messageType, "queue": queueName})
	logger.Debug("Listener started")
	defer logger.Debug("Listener stopped")

	for {
		if ctx.Err() != nil {
			return
		}

		msg, err := b.provider.Peek(ctx, queueName, queue.Infinite)
		if ctx.Err() != nil {
			if !msg.Empty() {
				logger.WithField("id", msg.ID).Debug("Discarding message peeked after stop")
			}
			return
		}
		if err != nil {
			logger.Warnf("Peek failed: %v", err)
			_ = sleep(ctx, b.cfg.ErrorBackoff)
			continue
		}

		if backoff := b.dispatch(context.WithoutCancel(ctx), messageType, msg); backoff > 0 {
			_ = sleep(ctx, backoff)
		}
	}
}

// dispatch hands one message to the processor and returns how long the loop
// should back off before the next peek. Nothing escapes it.
func (b *Bus) dispatch(ctx context.Context, messageType string, msg *message.Message) (backoff time.Duration) {
	if msg.Empty() {
		return 0
	}
	logger := b.log.ForMessage(messageType, msg.ID)

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Dispatch panic: %v", r)
			backoff = b.cfg.MinRetryTimeout
		}
	}()

	err := b.processor.ProcessMessage(ctx, messageType, msg)
	if err == nil {
		return 0
	}

	var he *HandlerError
	if !errors.As(err, &he) {
		logger.Warnf("Transient queue error: %v", err)
		return b.cfg.ErrorBackoff
	}

	logger.Warnf("Handler failed, quarantining: %v", he.Err)
	if err := b.processor.ProcessFault(ctx, messageType, msg, he.Err); err != nil {
		logger.Errorf("Quarantine failed: %v", err)
		return b.cfg.MinRetryTimeout
	}
	return 0
}
