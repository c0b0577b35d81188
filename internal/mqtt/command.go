package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ibs-source/queuebus/internal/log"
	"github.com/ibs-source/queuebus/internal/message"
	"github.com/ibs-source/queuebus/internal/queue"
)

// Executor applies operator commands and reports how many messages were affected.
type Executor interface {
	Execute(ctx context.Context, cmd message.Command) (int, error)
}

// Commands applies operator commands received on a topic.
type Commands struct {
	pub     Publisher
	topic   string
	exec    Executor
	sink    *EventSink
	timeout time.Duration
	log     *log.Logger
}

// NewCommands wires a command listener. sink may be nil, in which case
// results are only logged.
func NewCommands(
	pub Publisher, topic string, exec Executor, sink *EventSink, timeout time.Duration, logger *log.Logger,
) *Commands {
	return &Commands{
		pub:     pub,
		topic:   topic,
		exec:    exec,
		sink:    sink,
		timeout: timeout,
		log:     logger,
	}
}

// Start subscribes to the command topic.
func (c *Commands) Start() error {
	if err := c.pub.Subscribe(c.topic, c.handle); err != nil {
		return err
	}
	c.log.Info("Listening for operator commands on %s", c.topic)
	return nil
}

func (c *Commands) handle(_ string, payload []byte) {
	cmd, err := parseCommand(payload)
	if err != nil {
		c.log.Warn("Ignoring malformed command: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	n, err := c.exec.Execute(ctx, cmd)
	if err != nil {
		c.log.Error("Command %s on %s failed: %v", cmd.Action, cmd.Type, err)
	} else {
		c.log.Info("Command %s on %s affected %d messages", cmd.Action, cmd.Type, n)
	}

	if c.sink != nil {
		c.sink.CommandResult(cmd, n, err)
	}
}

// parseCommand parses and validates an operator command from JSON payload
func parseCommand(payload []byte) (message.Command, error) {
	var cmd message.Command

	if err := json.Unmarshal(payload, &cmd); err != nil {
		return message.Command{}, fmt.Errorf("failed to parse command: %w", err)
	}

	cmd.Action = strings.ToLower(strings.TrimSpace(cmd.Action))
	cmd.Type = strings.TrimSpace(cmd.Type)
	cmd.ID = strings.TrimSpace(cmd.ID)

	if cmd.Type == "" {
		return message.Command{}, fmt.Errorf("command missing required field: type")
	}

	switch cmd.Action {
	case message.ActionResendFaulted:
	case message.ActionInvalidate, message.ActionRemove:
		if cmd.ID == "" {
			return message.Command{}, fmt.Errorf("%s command missing required field: id", cmd.Action)
		}
	case message.ActionPurge:
		if len(cmd.Targets) == 0 {
			return message.Command{}, fmt.Errorf("purge command missing required field: targets")
		}
		for _, target := range cmd.Targets {
			if _, err := queue.ParseRole(target); err != nil {
				return message.Command{}, err
			}
		}
	case "":
		return message.Command{}, fmt.Errorf("command missing required field: action")
	default:
		return message.Command{}, fmt.Errorf("unknown command action %q", cmd.Action)
	}

	return cmd, nil
}
