package pubsub

import (
	"context"
	"strings"
)

type Publisher interface {
	// Publish topic to message broker with payload.
	Publish(ctx context.Context, topic string, payload []byte) error
}

type PubSub interface {
	Publisher
	Subscribe(ctx context.Context, topic string, handler func(payload []byte) error) (Subscription, error)

	Close() error
}

type Subscription interface {
	Unsubscribe() error
}

// GetLeaseFeedTopic is the change feed subject for one resource key.
// Every lease write (acquire, release) for the key is published here so
// other devices can spot competing claims.
func GetLeaseFeedTopic(resourceKey string) string {
	return "leases.feed." + subjectToken(resourceKey)
}

// GetLeaseFeedWildcard matches the lease feed across all resource keys.
func GetLeaseFeedWildcard() string {
	return "leases.feed.*"
}

// GetSessionEventsTopic carries UI-facing events (timer ticks, state
// changes, conflict warnings) for one capture session on this agent.
func GetSessionEventsTopic(resourceKey string) string {
	return "sessions.events." + subjectToken(resourceKey)
}

var subjectReplacer = strings.NewReplacer(
	" ", "-",
	".", "-",
	"*", "-",
	">", "-",
)

// subjectToken makes a resource key safe to embed as a NATS subject
// token. Machine names can contain spaces ("Extruder 1"). A collision
// only widens a subscription; consumers always filter on the resource
// key carried in the payload.
func subjectToken(key string) string {
	return subjectReplacer.Replace(key)
}
