package system

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// CleanupManager collects teardown callbacks so the process can free
// resources in reverse registration order before exiting. Register what
// you open; Cleanup runs once, from a deferred call in the command.
type CleanupManager struct {
	mu        sync.Mutex
	callbacks []func(ctx context.Context) error
	done      bool
}

func NewCleanupManager() *CleanupManager {
	return &CleanupManager{}
}

// RegisterCallback adds a teardown that does not care about the
// shutdown context.
func (cm *CleanupManager) RegisterCallback(fn func() error) {
	cm.RegisterCallbackWithContext(func(context.Context) error {
		return fn()
	})
}

func (cm *CleanupManager) RegisterCallbackWithContext(fn func(ctx context.Context) error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// Cleanup runs the registered callbacks last-in first-out. Errors are
// logged, never propagated - shutdown keeps going.
func (cm *CleanupManager) Cleanup(ctx context.Context) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.done {
		return
	}
	cm.done = true

	for i := len(cm.callbacks) - 1; i >= 0; i-- {
		if err := cm.callbacks[i](ctx); err != nil {
			log.Error().Err(err).Msg("error during cleanup")
		}
	}
}
