package session

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floorlinehq/floorline/api/pkg/types"
)

func backlogEvent(message string) types.SessionEvent {
	return types.SessionEvent{Type: types.SessionEventTimerPaused, Message: message}
}

func TestBacklogTrimsToCapacity(t *testing.T) {
	backlog := NewBacklog(4)

	for i := 0; i < 10; i++ {
		backlog.Append(backlogEvent(fmt.Sprintf("event-%d", i)))
	}

	events := backlog.Snapshot()
	require.Len(t, events, 4)
	assert.Equal(t, "event-6", events[0].Message)
	assert.Equal(t, "event-9", events[3].Message)
}

func TestBacklogSnapshotIsACopy(t *testing.T) {
	backlog := NewBacklog(4)
	backlog.Append(backlogEvent("original"))

	events := backlog.Snapshot()
	events[0].Message = "mutated"

	assert.Equal(t, "original", backlog.Snapshot()[0].Message)
}

func TestBacklogDefaultCapacity(t *testing.T) {
	backlog := NewBacklog(0)

	for i := 0; i < defaultBacklogSize+10; i++ {
		backlog.Append(backlogEvent("e"))
	}

	assert.Equal(t, defaultBacklogSize, backlog.Len())
}
