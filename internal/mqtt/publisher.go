package mqtt

import "context"

// Publisher is the broker surface used by the event sink, command listener
// and relay. Implemented by a single Client or a Pool.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(topic string, handler func(topic string, payload []byte)) error
	Close() error
}

var (
	_ Publisher = (*Client)(nil)
	_ Publisher = (*Pool)(nil)
)
