package bus

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ibs-source/queuebus/internal/events"
	"github.com/ibs-source/queuebus/internal/queue"
)

type subscription struct {
	queueName string
	cancel    context.CancelFunc
}

// registry tracks active listeners. It enforces one subscription per type
// and one type per queue name (case-insensitive).
type registry struct {
	mu       sync.Mutex
	active   map[string]*subscription
	reserved map[string]string // lower(queue name) -> message type
	closing  bool
	wg       sync.WaitGroup

	provider queue.Provider
	handlers *Handlers
	events   events.Events
	listen   func(ctx context.Context, messageType, queueName string)
}

func newRegistry(
	provider queue.Provider,
	handlers *Handlers,
	ev events.Events,
	listen func(ctx context.Context, messageType, queueName string),
) *registry {
	return &registry{
		active:   make(map[string]*subscription),
		reserved: make(map[string]string),
		provider: provider,
		handlers: handlers,
		events:   ev,
		listen:   listen,
	}
}

func (r *registry) start(ctx context.Context, messageType string) error {
	queueName, err := r.handlers.QueueName(messageType)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	key := strings.ToLower(queueName)

	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		return ErrClosed
	}
	if _, ok := r.active[messageType]; ok {
		r.mu.Unlock()
		return fmt.Errorf("subscribe %s: %w", messageType, ErrAlreadySubscribed)
	}
	if owner, ok := r.reserved[key]; ok {
		r.mu.Unlock()
		return fmt.Errorf("subscribe %s: queue %s held by %s: %w", messageType, queueName, owner, ErrQueueNameInUse)
	}
	listenCtx, cancel := context.WithCancel(context.Background())
	sub := &subscription{queueName: queueName, cancel: cancel}
	r.active[messageType] = sub
	r.reserved[key] = messageType
	r.mu.Unlock()

	created, err := r.provider.EnsureQueue(ctx, queueName)
	if err != nil {
		r.release(messageType, sub)
		return fmt.Errorf("subscribe %s: ensure queue %s: %w", messageType, queueName, err)
	}
	if created {
		r.events.QueueCreated(queueName)
	}

	// A stop or close may have released sub while the queue was ensured.
	r.mu.Lock()
	if r.closing || r.active[messageType] != sub {
		closing := r.closing
		r.mu.Unlock()
		r.release(messageType, sub)
		if closing {
			return ErrClosed
		}
		return fmt.Errorf("subscribe %s: stopped while starting: %w", messageType, ErrNotSubscribed)
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		r.listen(listenCtx, messageType, queueName)
	}()
	r.events.Listening(messageType)
	return nil
}

func (r *registry) stop(messageType string) error {
	r.mu.Lock()
	sub, ok := r.active[messageType]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("unsubscribe %s: %w", messageType, ErrNotSubscribed)
	}
	r.release(messageType, sub)
	return nil
}

// release cancels sub and frees its name, unless it was already replaced.
func (r *registry) release(messageType string, sub *subscription) {
	sub.cancel()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active[messageType] == sub {
		delete(r.active, messageType)
		delete(r.reserved, strings.ToLower(sub.queueName))
	}
}

func (r *registry) stopAll() {
	for _, t := range r.subscriptions() {
		// A concurrent stop may have won; that is fine.
		_ = r.stop(t)
	}
}

func (r *registry) subscribed(messageType string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[messageType]
	return ok
}

func (r *registry) subscriptions() []string {
	r.mu.Lock()
	out := make([]string, 0, len(r.active))
	for t := range r.active {
		out = append(out, t)
	}
	r.mu.Unlock()
	sort.Strings(out)
	return out
}

// close stops every listener and waits for the loops to return.
func (r *registry) close(ctx context.Context) error {
	r.mu.Lock()
	r.closing = true
	r.mu.Unlock()
	r.stopAll()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for listeners: %w", ctx.Err())
	}
}
