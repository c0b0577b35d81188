package mqtt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ibs-source/queuebus/internal/events"
	"github.com/ibs-source/queuebus/internal/log"
	"github.com/ibs-source/queuebus/internal/message"
	"github.com/ibs-source/queuebus/pkg/jsonfast"
)

// Event names, appended to the event topic.
const (
	EventFault        = "fault"
	EventQueueCreated = "queue_created"
	EventListening    = "listening"
	EventCommand      = "command"
)

// coder is implemented by errors that carry a stable machine-readable code.
type coder interface {
	Code() string
}

// EventSink publishes bus events as JSON alerts under a topic prefix.
type EventSink struct {
	pub     Publisher
	topic   string
	timeout time.Duration
	log     *log.Logger
	now     func() time.Time
}

var _ events.Events = (*EventSink)(nil)

// NewEventSink creates a sink publishing to "<topic>/<event>".
func NewEventSink(pub Publisher, topic string, timeout time.Duration, logger *log.Logger) *EventSink {
	return &EventSink{
		pub:     pub,
		topic:   topic,
		timeout: timeout,
		log:     logger,
		now:     time.Now,
	}
}

func (s *EventSink) publish(event string, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	topic := s.topic + "/" + event
	if err := s.pub.Publish(ctx, topic, payload); err != nil {
		s.log.Warn("Failed to publish %s event to %s: %v", event, topic, err)
	}
}

func (s *EventSink) FaultOccurred(id string, body []*message.Envelope, err error) {
	s.publish(EventFault, encodeFault(id, body, err, s.now()))
}

func (s *EventSink) QueueCreated(queue string) {
	b := jsonfast.New(128)
	b.AddStringField("event", EventQueueCreated)
	b.AddStringField("queue", queue)
	b.AddTimeRFC3339Field("time", s.now())
	b.EndObject()
	s.publish(EventQueueCreated, b.Copy())
}

func (s *EventSink) Listening(messageType string) {
	b := jsonfast.New(128)
	b.AddStringField("event", EventListening)
	b.AddStringField("type", messageType)
	b.AddTimeRFC3339Field("time", s.now())
	b.EndObject()
	s.publish(EventListening, b.Copy())
}

// CommandResult reports the outcome of an operator command.
func (s *EventSink) CommandResult(cmd message.Command, affected int, err error) {
	b := jsonfast.New(256)
	b.AddStringField("event", EventCommand)
	b.AddStringField("action", cmd.Action)
	b.AddStringField("type", cmd.Type)
	if cmd.ID != "" {
		b.AddStringField("id", cmd.ID)
	}
	if len(cmd.Targets) > 0 {
		b.AddStringArrayField("targets", cmd.Targets)
	}
	b.AddIntField("affected", affected)
	b.AddBoolField("ok", err == nil)
	if err != nil {
		b.AddStringField("error", err.Error())
	}
	b.AddTimeRFC3339Field("time", s.now())
	b.EndObject()
	s.publish(EventCommand, b.Copy())
}

func encodeFault(id string, body []*message.Envelope, err error, now time.Time) []byte {
	b := jsonfast.New(512)
	b.AddStringField("event", EventFault)
	b.AddStringField("id", id)
	if len(body) > 0 && body[0] != nil {
		b.AddStringField("type", body[0].Type)
	}
	if err != nil {
		b.AddStringField("error", err.Error())
		b.AddStringField("errorType", errorType(err))
	}
	b.AddIntField("items", len(body))
	if len(body) > 0 && body[0] != nil {
		b.AddStringMapField("headers", body[0].Headers)
	}
	b.AddTimeRFC3339Field("time", now)
	b.EndObject()
	return b.Copy()
}

// errorType prefers an error code anywhere in the chain, then the dynamic
// type of the innermost error.
func errorType(err error) string {
	var c coder
	if errors.As(err, &c) {
		return c.Code()
	}
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return fmt.Sprintf("%T", err)
		}
		err = next
	}
}
