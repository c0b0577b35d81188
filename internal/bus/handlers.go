package bus

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ibs-source/queuebus/internal/message"
)

// Handler processes one item. Returning false leaves the message queued for
// a later retry; returning an error quarantines it.
type Handler interface {
	Handle(ctx context.Context, env *message.Envelope) (bool, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, env *message.Envelope) (bool, error)

func (f HandlerFunc) Handle(ctx context.Context, env *message.Envelope) (bool, error) {
	return f(ctx, env)
}

type registration struct {
	handler   Handler
	queueName string
}

// Option customizes a registration.
type Option func(*registration)

// WithQueueName overrides the default queue naming policy for one type.
func WithQueueName(name string) Option {
	return func(r *registration) {
		r.queueName = strings.TrimSpace(name)
	}
}

// Handlers maps message types to handlers and queue names. It is normally
// built once at startup.
type Handlers struct {
	mu     sync.RWMutex
	prefix string
	byType map[string]registration
}

// NewHandlers creates an empty table. Types without an explicit queue name
// resolve to prefix + lower(type).
func NewHandlers(queuePrefix string) *Handlers {
	return &Handlers{
		prefix: queuePrefix,
		byType: make(map[string]registration),
	}
}

// Register binds a handler to a message type, replacing any previous one.
func (h *Handlers) Register(messageType string, handler Handler, opts ...Option) error {
	if err := validateType(messageType); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("register %s: nil handler: %w", messageType, ErrInvalidArgument)
	}

	reg := registration{handler: handler}
	for _, opt := range opts {
		opt(&reg)
	}
	if strings.Contains(reg.queueName, ";") {
		return fmt.Errorf("register %s: queue name %q contains ';': %w", messageType, reg.queueName, ErrInvalidArgument)
	}

	h.mu.Lock()
	h.byType[messageType] = reg
	h.mu.Unlock()
	return nil
}

// Lookup returns the handler for a type, if any.
func (h *Handlers) Lookup(messageType string) (Handler, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	reg, ok := h.byType[messageType]
	if !ok {
		return nil, false
	}
	return reg.handler, true
}

// QueueName resolves the physical queue of a type.
func (h *Handlers) QueueName(messageType string) (string, error) {
	if err := validateType(messageType); err != nil {
		return "", err
	}

	h.mu.RLock()
	reg, ok := h.byType[messageType]
	h.mu.RUnlock()
	if ok && reg.queueName != "" {
		return reg.queueName, nil
	}
	return h.prefix + strings.ToLower(messageType), nil
}

// Types lists the registered message types in sorted order.
func (h *Handlers) Types() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.byType))
	for t := range h.byType {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func validateType(messageType string) error {
	switch {
	case strings.TrimSpace(messageType) == "":
		return fmt.Errorf("message type is required: %w", ErrInvalidArgument)
	case strings.Contains(messageType, ";"):
		return fmt.Errorf("message type %q contains ';': %w", messageType, ErrInvalidArgument)
	}
	return nil
}
