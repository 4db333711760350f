package ports

import (
	"context"

	"github.com/tokenfund/mintd/internal/core/domain"
)

type EventBus interface {
	Publish(ctx context.Context, events ...domain.Event) error
	// Subscribe delivers every event published after the call until ctx is done.
	Subscribe(ctx context.Context) (<-chan domain.Event, error)
	Close() error
}
