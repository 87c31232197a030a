package pubsub

import (
	"context"
)

// NoopPubSub is a no-op implementation of PubSub for testing.
// All publishes are silently discarded. All subscriptions return
// immediately with a no-op subscription that can be safely unsubscribed.
type NoopPubSub struct{}

var _ PubSub = &NoopPubSub{}

func NewNoop() *NoopPubSub {
	return &NoopPubSub{}
}

func (n *NoopPubSub) Publish(_ context.Context, _ string, _ []byte) error {
	return nil
}

func (n *NoopPubSub) Subscribe(_ context.Context, _ string, _ func(payload []byte) error) (Subscription, error) {
	return &noopSubscription{}, nil
}

func (n *NoopPubSub) Close() error { return nil }

type noopSubscription struct{}

func (s *noopSubscription) Unsubscribe() error { return nil }
