package ports

import (
	"context"
	"encoding/json"

	"github.com/samirrijal/studyspot/internal/core/domain"
)

// LocationProvider is the platform location API.
type LocationProvider interface {
	// RequestPermission asks for foreground location access.
	RequestPermission(ctx context.Context) (bool, error)
	// CurrentPosition returns a single fix at the requested accuracy.
	CurrentPosition(ctx context.Context, accuracy domain.Accuracy) (domain.PositionSample, error)
	// Subscribe streams raw fixes until the returned cancel func is called.
	Subscribe(ctx context.Context, accuracy domain.Accuracy, onFix func(domain.PositionSample)) (cancel func(), err error)
}

// Connectivity is the platform online/offline signal.
type Connectivity interface {
	Online() bool
	// Subscribe registers fn for connectivity transitions and returns a remove func.
	Subscribe(fn func(online bool)) (remove func())
}

// ChangeFeed is the realtime row-change feed of the backend.
type ChangeFeed interface {
	Subscribe(ctx context.Context, table, filter string, onChange func(domain.RowChange)) (unsubscribe func(), err error)
}

// ActionDispatcher delivers one queued action to the backend.
type ActionDispatcher interface {
	Dispatch(ctx context.Context, action domain.QueuedAction) error
}

// ActionDispatcherFunc adapts a function to ActionDispatcher.
type ActionDispatcherFunc func(ctx context.Context, action domain.QueuedAction) error

func (f ActionDispatcherFunc) Dispatch(ctx context.Context, action domain.QueuedAction) error {
	return f(ctx, action)
}

// ActionEnqueuer accepts mutations for durable, ordered delivery.
type ActionEnqueuer interface {
	Enqueue(ctx context.Context, kind domain.ActionKind, payload json.RawMessage) (int64, error)
}

// ChangePublisher emits row changes onto the realtime feed. filter selects
// the partition subscribers may narrow on; empty publishes to "all".
type ChangePublisher interface {
	Publish(ctx context.Context, change domain.RowChange, filter string) error
}
