package pubsub

import (
	"fmt"

	"github.com/floorlinehq/floorline/api/pkg/config"
)

type Provider string

const (
	ProviderNats   Provider = "nats"
	ProviderMemory Provider = "inmemory"
)

// New builds the configured pubsub provider. "nats" is the default;
// "inmemory" runs a random-port embedded server with no persistence,
// for tests and single-process development.
func New(cfg *config.PubSub) (PubSub, error) {
	switch Provider(cfg.Provider) {
	case ProviderNats, "":
		return NewNats(cfg)
	case ProviderMemory:
		return NewInMemoryNats()
	default:
		return nil, fmt.Errorf("unknown pubsub provider: %s", cfg.Provider)
	}
}
