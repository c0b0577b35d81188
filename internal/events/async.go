package events

import (
	"fmt"
	"time"

	"github.com/ibs-source/queuebus/internal/log"
	"github.com/ibs-source/queuebus/internal/message"
	"github.com/panjf2000/ants/v2"
)

// Async delivers events to a slow sink on a bounded worker pool so that
// listener loops never wait on network I/O. Submission blocks while every
// worker is busy; after Close events are delivered inline.
type Async struct {
	next Events
	pool *ants.Pool
	log  *log.Logger
}

// NewAsync starts a pool of size workers in front of next.
func NewAsync(next Events, size int, logger *log.Logger) (*Async, error) {
	pool, err := ants.NewPool(size, ants.WithPreAlloc(true), ants.WithPanicHandler(func(p any) {
		logger.Error("Event sink panicked: %v", p)
	}))
	if err != nil {
		return nil, fmt.Errorf("new event pool: %w", err)
	}
	return &Async{next: next, pool: pool, log: logger}, nil
}

func (a *Async) submit(task func()) {
	if err := a.pool.Submit(task); err != nil {
		a.log.Debug("Event pool unavailable (%v), delivering inline", err)
		task()
	}
}

func (a *Async) FaultOccurred(id string, body []*message.Envelope, err error) {
	a.submit(func() { a.next.FaultOccurred(id, body, err) })
}

func (a *Async) QueueCreated(queue string) {
	a.submit(func() { a.next.QueueCreated(queue) })
}

func (a *Async) Listening(messageType string) {
	a.submit(func() { a.next.Listening(messageType) })
}

// Close waits up to timeout for queued deliveries and stops the workers.
func (a *Async) Close(timeout time.Duration) error {
	return a.pool.ReleaseTimeout(timeout)
}
