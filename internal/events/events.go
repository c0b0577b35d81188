// Package events defines the notifications the bus raises and the sinks that
// deliver them: logging, fan-out, and asynchronous delivery on a worker pool.
package events

import (
	"errors"
	"sync"

	"github.com/ibs-source/queuebus/internal/log"
	"github.com/ibs-source/queuebus/internal/message"
)

// Events receives bus notifications. Implementations must be safe for
// concurrent use and must not block for long: listener loops call them inline.
type Events interface {
	// FaultOccurred reports a message quarantined, invalidated or lost.
	FaultOccurred(id string, body []*message.Envelope, err error)
	// QueueCreated reports a queue created on first subscription.
	QueueCreated(queue string)
	// Listening reports a listener loop started for a message type.
	Listening(messageType string)
}

// Nop discards every event.
type Nop struct{}

func (Nop) FaultOccurred(string, []*message.Envelope, error) {}
func (Nop) QueueCreated(string)                              {}
func (Nop) Listening(string)                                 {}

// Log writes events to a logger.
type Log struct {
	log *log.Logger
}

// NewLog creates a logging sink.
func NewLog(logger *log.Logger) *Log {
	return &Log{log: logger}
}

func (l *Log) FaultOccurred(id string, body []*message.Envelope, err error) {
	messageType := ""
	if len(body) > 0 && body[0] != nil {
		messageType = body[0].Type
	}
	l.log.ForMessage(messageType, id).
		WithField("items", len(body)).
		Errorf("Message faulted: %v", err)
}

func (l *Log) QueueCreated(queue string) {
	l.log.WithField("queue", queue).Info("Queue created")
}

func (l *Log) Listening(messageType string) {
	l.log.WithField("type", messageType).Info("Listening")
}

// Multi fans every event out to several sinks in order.
type Multi []Events

func (m Multi) FaultOccurred(id string, body []*message.Envelope, err error) {
	for _, e := range m {
		e.FaultOccurred(id, body, err)
	}
}

func (m Multi) QueueCreated(queue string) {
	for _, e := range m {
		e.QueueCreated(queue)
	}
}

func (m Multi) Listening(messageType string) {
	for _, e := range m {
		e.Listening(messageType)
	}
}

// Fault is one recorded FaultOccurred call.
type Fault struct {
	ID   string
	Body []*message.Envelope
	Err  error
}

// Recorder keeps every event in memory. It is meant for tests and for
// inspection endpoints.
type Recorder struct {
	mu        sync.Mutex
	faults    []Fault
	created   []string
	listening []string
}

func (r *Recorder) FaultOccurred(id string, body []*message.Envelope, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faults = append(r.faults, Fault{ID: id, Body: body, Err: err})
}

func (r *Recorder) QueueCreated(queue string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, queue)
}

func (r *Recorder) Listening(messageType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listening = append(r.listening, messageType)
}

// Faults returns a snapshot of recorded faults.
func (r *Recorder) Faults() []Fault {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Fault(nil), r.faults...)
}

// FaultsMatching returns the recorded faults whose error matches target.
func (r *Recorder) FaultsMatching(target error) []Fault {
	var out []Fault
	for _, f := range r.Faults() {
		if errors.Is(f.Err, target) {
			out = append(out, f)
		}
	}
	return out
}

// Created returns a snapshot of created queue names.
func (r *Recorder) Created() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.created...)
}

// Listened returns a snapshot of types that started listening.
func (r *Recorder) Listened() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.listening...)
}
