package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/floorlinehq/floorline/api/pkg/types"
)

// Typed wrappers around the raw byte-level PubSub for the two event
// kinds this agent exchanges: lease feed entries (cross-device) and
// session events (agent to UI).

func PublishLeaseEvent(ctx context.Context, publisher Publisher, event *types.LeaseEvent) error {
	if event.ResourceKey == "" {
		return fmt.Errorf("lease event requires a resource key")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal lease event: %w", err)
	}

	return publisher.Publish(ctx, GetLeaseFeedTopic(event.ResourceKey), payload)
}

func ParseLeaseEvent(payload []byte) (*types.LeaseEvent, error) {
	var event types.LeaseEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to parse lease event: %w", err)
	}
	if event.ResourceKey == "" {
		return nil, fmt.Errorf("lease event missing resource key")
	}
	return &event, nil
}

func PublishSessionEvent(ctx context.Context, publisher Publisher, resourceKey string, event *types.SessionEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal session event: %w", err)
	}

	return publisher.Publish(ctx, GetSessionEventsTopic(resourceKey), payload)
}

func ParseSessionEvent(payload []byte) (*types.SessionEvent, error) {
	var event types.SessionEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to parse session event: %w", err)
	}
	return &event, nil
}
