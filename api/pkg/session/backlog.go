package session

import (
	"sync"

	"github.com/floorlinehq/floorline/api/pkg/types"
)

const defaultBacklogSize = 256

// Backlog keeps the most recent events of one capture session so a
// client connecting mid-shift can catch up before live streaming takes
// over. Elapsed ticks are transient and are never recorded here.
type Backlog struct {
	mu     sync.RWMutex
	events []types.SessionEvent
	max    int
}

func NewBacklog(max int) *Backlog {
	if max <= 0 {
		max = defaultBacklogSize
	}
	return &Backlog{
		events: make([]types.SessionEvent, 0, max),
		max:    max,
	}
}

func (b *Backlog) Append(event types.SessionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, event)
	if len(b.events) > b.max {
		b.events = b.events[len(b.events)-b.max:]
	}
}

// Snapshot returns a copy of the buffered events, oldest first.
func (b *Backlog) Snapshot() []types.SessionEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()

	snapshot := make([]types.SessionEvent, len(b.events))
	copy(snapshot, b.events)
	return snapshot
}

func (b *Backlog) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}
