// Package memory provides a process-local queue.Provider. It keeps the same
// partition semantics as the durable providers and is used by tests and
// single-process deployments.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ibs-source/queuebus/internal/message"
	"github.com/ibs-source/queuebus/internal/queue"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("memory provider closed")

type store struct {
	declared bool
	parts    map[queue.Role][]string
	msgs     map[string]*message.Message
	// closed and replaced whenever Input grows, waking blocked peeks
	signal chan struct{}
}

func newStore() *store {
	return &store{
		parts:  make(map[queue.Role][]string),
		msgs:   make(map[string]*message.Message),
		signal: make(chan struct{}),
	}
}

func (s *store) push(r queue.Role, id string) {
	s.parts[r] = append(s.parts[r], id)
	if r == queue.Input {
		close(s.signal)
		s.signal = make(chan struct{})
	}
}

func (s *store) remove(r queue.Role, id string) bool {
	ids := s.parts[r]
	for i, v := range ids {
		if v == id {
			s.parts[r] = append(ids[:i:i], ids[i+1:]...)
			return true
		}
	}
	return false
}

func (s *store) contains(r queue.Role, id string) bool {
	for _, v := range s.parts[r] {
		if v == id {
			return true
		}
	}
	return false
}

// Provider is a thread-safe in-memory implementation of queue.Provider.
type Provider struct {
	mu     sync.Mutex
	queues map[string]*store
	closed bool
	done   chan struct{}
}

var _ queue.Provider = (*Provider)(nil)

// New creates an empty provider.
func New() *Provider {
	return &Provider{
		queues: make(map[string]*store),
		done:   make(chan struct{}),
	}
}

// get returns the queue store, creating it on first use. Caller holds mu.
func (p *Provider) get(name string) *store {
	s, ok := p.queues[name]
	if !ok {
		s = newStore()
		p.queues[name] = s
	}
	return s
}

func (p *Provider) EnsureQueue(_ context.Context, name string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false, ErrClosed
	}

	s := p.get(name)
	if s.declared {
		return false, nil
	}
	s.declared = true
	return true, nil
}

func (p *Provider) Send(ctx context.Context, name string, r queue.Role, msg *message.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if msg == nil {
		return "", fmt.Errorf("memory send to %s: nil message", queue.PartitionName(name, r))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", ErrClosed
	}

	stored := msg.Clone()
	stored.ID = uuid.NewString()

	s := p.get(name)
	s.msgs[stored.ID] = stored
	s.push(r, stored.ID)

	return stored.ID, nil
}

func (p *Provider) Peek(ctx context.Context, name string, timeout time.Duration) (*message.Message, error) {
	var expired <-chan time.Time
	if timeout >= 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrClosed
		}
		s := p.get(name)
		if ids := s.parts[queue.Input]; len(ids) > 0 {
			m := s.msgs[ids[0]].Clone()
			p.mu.Unlock()
			return m, nil
		}
		wake := s.signal
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.done:
			return nil, ErrClosed
		case <-expired:
			return nil, nil
		case <-wake:
		}
	}
}

func (p *Provider) PeekByID(_ context.Context, name string, r queue.Role, id string) (*message.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}

	s := p.get(name)
	if !s.contains(r, id) {
		return nil, fmt.Errorf("peek %s in %s: %w", id, queue.PartitionName(name, r), queue.ErrNotFound)
	}
	return s.msgs[id].Clone(), nil
}

func (p *Provider) ReceiveByID(_ context.Context, name string, r queue.Role, id string) (*message.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}

	s := p.get(name)
	if !s.remove(r, id) {
		return nil, fmt.Errorf("receive %s from %s: %w", id, queue.PartitionName(name, r), queue.ErrNotFound)
	}
	m := s.msgs[id]
	delete(s.msgs, id)
	return m, nil
}

func (p *Provider) Move(_ context.Context, name, id string, from, to queue.Role) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	s := p.get(name)
	if !s.remove(from, id) {
		return fmt.Errorf("move %s from %s: %w", id, queue.PartitionName(name, from), queue.ErrNotFound)
	}
	s.push(to, id)
	return nil
}

func (p *Provider) Enumerate(_ context.Context, name string, r queue.Role) ([]*message.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}

	s := p.get(name)
	out := make([]*message.Message, 0, len(s.parts[r]))
	for _, id := range s.parts[r] {
		out = append(out, s.msgs[id].Clone())
	}
	return out, nil
}

func (p *Provider) Purge(_ context.Context, name string, r queue.Role) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrClosed
	}

	s := p.get(name)
	ids := s.parts[r]
	for _, id := range ids {
		delete(s.msgs, id)
	}
	delete(s.parts, r)
	return len(ids), nil
}

// Len reports how many messages a partition holds.
func (p *Provider) Len(name string, r queue.Role) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.queues[name]; ok {
		return len(s.parts[r])
	}
	return 0
}

// Close wakes blocked peeks and rejects further calls.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.done)
	}
	return nil
}
