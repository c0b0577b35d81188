// Package queue defines the staging protocol the bus consumes: a named queue
// split into Input, Pending, Fault and Response partitions, with atomic
// identity-preserving moves between them.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ibs-source/queuebus/internal/message"
)

// Infinite makes Peek block until a message arrives or ctx is done.
const Infinite time.Duration = -1

// ErrNotFound is returned when an id is not present in the addressed partition.
var ErrNotFound = errors.New("queue: message not found")

// Role names a partition of a physical queue.
type Role uint8

const (
	Input Role = iota
	Pending
	Fault
	Response
)

// Roles lists every partition in lifecycle order.
var Roles = []Role{Input, Pending, Fault, Response}

func (r Role) String() string {
	switch r {
	case Input:
		return "input"
	case Pending:
		return "pending"
	case Fault:
		return "fault"
	case Response:
		return "response"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// ParseRole accepts the names produced by String, case-insensitively.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "input":
		return Input, nil
	case "pending":
		return Pending, nil
	case "fault":
		return Fault, nil
	case "response":
		return Response, nil
	default:
		return 0, fmt.Errorf("queue: unknown partition %q", s)
	}
}

// PartitionName returns the addressable name of a partition: the queue name
// itself for Input, "<queue>;<role>" otherwise.
func PartitionName(queueName string, r Role) string {
	if r == Input {
		return queueName
	}
	return queueName + ";" + r.String()
}

// Provider is the durable substrate. Implementations must be safe for
// concurrent use and must return copies, never shared state.
type Provider interface {
	// EnsureQueue creates the queue when missing and reports whether it did.
	EnsureQueue(ctx context.Context, queueName string) (bool, error)
	// Send appends msg to the partition and returns the assigned id.
	Send(ctx context.Context, queueName string, r Role, msg *message.Message) (string, error)
	// Peek returns the head of Input without removing it. It waits up to
	// timeout (Infinite for no limit) and returns nil, nil when it expires.
	Peek(ctx context.Context, queueName string, timeout time.Duration) (*message.Message, error)
	// PeekByID returns a message by id without removing it.
	PeekByID(ctx context.Context, queueName string, r Role, id string) (*message.Message, error)
	// ReceiveByID removes and returns a message by id.
	ReceiveByID(ctx context.Context, queueName string, r Role, id string) (*message.Message, error)
	// Move relocates a message between partitions of the same queue,
	// appending it to the tail of the destination and keeping its id.
	Move(ctx context.Context, queueName, id string, from, to Role) error
	// Enumerate lists a partition in FIFO order.
	Enumerate(ctx context.Context, queueName string, r Role) ([]*message.Message, error)
	// Purge deletes every message in a partition and reports how many.
	Purge(ctx context.Context, queueName string, r Role) (int, error)
	Close() error
}
