package bus

import (
	"context"
	"fmt"
	"strings"

	"github.com/ibs-source/queuebus/internal/message"
	"github.com/ibs-source/queuebus/internal/queue"
)

// Execute applies an operator command and reports how many messages it
// affected.
func (b *Bus) Execute(ctx context.Context, cmd message.Command) (int, error) {
	switch strings.ToLower(cmd.Action) {
	case message.ActionResendFaulted:
		return b.ResendFaulted(ctx, cmd.Type)

	case message.ActionPurge:
		roles := make([]queue.Role, 0, len(cmd.Targets))
		for _, t := range cmd.Targets {
			r, err := queue.ParseRole(t)
			if err != nil {
				return 0, fmt.Errorf("purge %s: %w: %w", cmd.Type, err, ErrInvalidArgument)
			}
			roles = append(roles, r)
		}
		return b.Purge(ctx, cmd.Type, roles...)

	case message.ActionInvalidate:
		found, err := b.Invalidate(ctx, cmd.Type, cmd.ID)
		if err != nil || !found {
			return 0, err
		}
		return 1, nil

	case message.ActionRemove:
		if err := b.Remove(ctx, cmd.Type, cmd.ID); err != nil {
			return 0, err
		}
		return 1, nil

	default:
		return 0, fmt.Errorf("unknown command action %q: %w", cmd.Action, ErrInvalidArgument)
	}
}
