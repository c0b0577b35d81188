package mqtt

import (
	"context"
	"sync"

	"github.com/ibs-source/queuebus/internal/log"
	"github.com/ibs-source/queuebus/internal/message"
	"github.com/ibs-source/queuebus/pkg/jsonfast"
)

// Relay is a message handler that forwards items to "<topic>/<type>".
// A failed publish declines the item so the bus retries it later.
type Relay struct {
	pub   Publisher
	topic string
	log   *log.Logger
}

// NewRelay creates a relay handler.
func NewRelay(pub Publisher, topic string, logger *log.Logger) *Relay {
	return &Relay{pub: pub, topic: topic, log: logger}
}

// Topic returns the relay topic of a message type.
func (r *Relay) Topic(messageType string) string {
	return r.topic + "/" + messageType
}

// Handle publishes the item. It never faults: broker outages are retried.
func (r *Relay) Handle(ctx context.Context, env *message.Envelope) (bool, error) {
	if err := r.pub.Publish(ctx, r.Topic(env.Type), encodeEnvelope(env)); err != nil {
		r.log.ForMessage(env.Type, env.Header(message.HeaderMessageID)).
			Warnf("Relay publish failed, will retry: %v", err)
		return false, nil
	}
	return true, nil
}

// builders are reused across relayed items; the payload is copied out.
var builders = sync.Pool{
	New: func() any { return jsonfast.New(512) },
}

func encodeEnvelope(env *message.Envelope) []byte {
	b := builders.Get().(*jsonfast.Builder)
	defer builders.Put(b)
	b.Reset()

	b.AddStringField("type", env.Type)
	b.AddStringMapField("headers", env.Headers)
	b.AddRawJSONField("payload", env.Payload)
	b.EndObject()
	return b.Copy()
}
