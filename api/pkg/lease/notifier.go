package lease

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/floorlinehq/floorline/api/pkg/pubsub"
	"github.com/floorlinehq/floorline/api/pkg/types"
)

// Notifier watches the lease change feed for one resource key and turns
// competing claims into conflict events on a channel, so a session's
// control loop can select on them instead of being re-entered by
// callbacks.
type Notifier struct {
	resourceKey string
	holderID    string
	events      chan types.ConflictEvent
	sub         pubsub.Subscription
}

func NewNotifier(ctx context.Context, ps pubsub.PubSub, resourceKey, holderID string) (*Notifier, error) {
	n := &Notifier{
		resourceKey: resourceKey,
		holderID:    holderID,
		events:      make(chan types.ConflictEvent, 8),
	}

	sub, err := ps.Subscribe(ctx, pubsub.GetLeaseFeedTopic(resourceKey), func(payload []byte) error {
		event, err := pubsub.ParseLeaseEvent(payload)
		if err != nil {
			return err
		}
		n.handle(event)
		return nil
	})
	if err != nil {
		return nil, err
	}
	n.sub = sub

	return n, nil
}

// Events delivers at most one conflict per feed observation. The channel
// is buffered; when the consumer is slow newer conflicts are dropped,
// the first warning being the one that matters to an operator.
func (n *Notifier) Events() <-chan types.ConflictEvent {
	return n.events
}

func (n *Notifier) handle(event *types.LeaseEvent) {
	// Subject tokens can collide after sanitisation, so match on the
	// payload's resource key, never the subject.
	if event.ResourceKey != n.resourceKey {
		return
	}
	if event.HolderID == n.holderID {
		return
	}
	// A competitor letting go is not a takeover.
	if event.Type != types.LeaseEventAcquired {
		return
	}

	conflict := types.ConflictEvent{
		ResourceKey: event.ResourceKey,
		HolderID:    event.HolderID,
		HolderLabel: event.HolderLabel,
		Observed:    time.Now(),
	}

	select {
	case n.events <- conflict:
	default:
		log.Warn().
			Str("resource_key", n.resourceKey).
			Str("holder_id", event.HolderID).
			Msg("conflict channel full, dropping event")
	}
}

func (n *Notifier) Close() error {
	return n.sub.Unsubscribe()
}
