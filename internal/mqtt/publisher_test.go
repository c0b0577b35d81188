package mqtt

import (
	"context"
	"errors"
	"sync"
)

type published struct {
	topic   string
	payload []byte
}

// fakePublisher records publishes and lets tests deliver subscribed messages.
type fakePublisher struct {
	mu       sync.Mutex
	sent     []published
	handlers map[string]func(string, []byte)
	failWith error
	closed   bool
}

var _ Publisher = (*fakePublisher)(nil)

func newFakePublisher() *fakePublisher {
	return &fakePublisher{handlers: make(map[string]func(string, []byte))}
}

func (f *fakePublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.sent = append(f.sent, published{topic: topic, payload: append([]byte(nil), payload...)})
	return nil
}

func (f *fakePublisher) Subscribe(topic string, handler func(string, []byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("closed")
	}
	f.handlers[topic] = handler
	return nil
}

func (f *fakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakePublisher) deliver(topic string, payload []byte) bool {
	f.mu.Lock()
	h := f.handlers[topic]
	f.mu.Unlock()
	if h == nil {
		return false
	}
	h(topic, payload)
	return true
}

func (f *fakePublisher) messages() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.sent...)
}
