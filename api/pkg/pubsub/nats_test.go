package pubsub

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floorlinehq/floorline/api/pkg/types"
)

func setupTestNats(t *testing.T) (*Nats, func()) {
	nats, err := NewInMemoryNats()
	require.NoError(t, err)

	cleanup := func() {
		_ = nats.Close()
	}

	return nats, cleanup
}

func TestNatsPubsub(t *testing.T) {
	t.Run("Subscribe", func(t *testing.T) {
		pubsub, cleanup := setupTestNats(t)
		defer cleanup()

		ctx := context.Background()

		receivedCh := make(chan string, 1)

		consumer, err := pubsub.Subscribe(ctx, "test", func(payload []byte) error {
			receivedCh <- string(payload)
			return nil
		})
		require.NoError(t, err)
		defer func() {
			err := consumer.Unsubscribe()
			require.NoError(t, err)
		}()

		err = pubsub.Publish(ctx, "test", []byte("hello"))
		require.NoError(t, err)

		select {
		case result := <-receivedCh:
			require.Equal(t, "hello", result)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for message")
		}
	})

	t.Run("Subscribe_Wildcard", func(t *testing.T) {
		pubsub, cleanup := setupTestNats(t)
		defer cleanup()

		ctx := context.Background()

		receivedCh := make(chan string, 1)

		consumer, err := pubsub.Subscribe(ctx, GetLeaseFeedWildcard(), func(payload []byte) error {
			receivedCh <- string(payload)
			return nil
		})
		require.NoError(t, err)
		defer func() {
			err := consumer.Unsubscribe()
			require.NoError(t, err)
		}()

		err = pubsub.Publish(ctx, GetLeaseFeedTopic("M1_Day_2024-01-01"), []byte("hello"))
		require.NoError(t, err)

		select {
		case result := <-receivedCh:
			require.Equal(t, "hello", result)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for message")
		}
	})

	t.Run("Subscribe_Resubscribe", func(t *testing.T) {
		pubsub, cleanup := setupTestNats(t)
		defer cleanup()

		ctx := context.Background()

		receivedCh := make(chan string, 1)

		consumer, err := pubsub.Subscribe(ctx, "test", func(payload []byte) error {
			receivedCh <- string(payload)
			return nil
		})
		require.NoError(t, err)

		err = pubsub.Publish(ctx, "test", []byte("hello"))
		require.NoError(t, err)

		select {
		case result := <-receivedCh:
			require.Equal(t, "hello", result)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for message")
		}

		// Unsubscribe
		err = consumer.Unsubscribe()
		require.NoError(t, err)

		// Subscribe again
		receivedCh2 := make(chan string, 1)
		consumer, err = pubsub.Subscribe(ctx, "test", func(payload []byte) error {
			receivedCh2 <- string(payload)
			return nil
		})
		require.NoError(t, err)
		defer func() {
			err := consumer.Unsubscribe()
			require.NoError(t, err)
		}()

		err = pubsub.Publish(ctx, "test", []byte("hello"))
		require.NoError(t, err)

		select {
		case result := <-receivedCh2:
			require.Equal(t, "hello", result)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for message")
		}
	})
}

func TestLeaseEventRoundTrip(t *testing.T) {
	pubsub, cleanup := setupTestNats(t)
	defer cleanup()

	ctx := context.Background()

	// Machine names with spaces must still produce a subscribable
	// subject; the payload carries the authoritative resource key.
	resourceKey := "Extruder 1_Day_2024-01-01"

	receivedCh := make(chan *types.LeaseEvent, 1)

	consumer, err := pubsub.Subscribe(ctx, GetLeaseFeedTopic(resourceKey), func(payload []byte) error {
		event, err := ParseLeaseEvent(payload)
		if err != nil {
			return err
		}
		receivedCh <- event
		return nil
	})
	require.NoError(t, err)
	defer func() {
		err := consumer.Unsubscribe()
		require.NoError(t, err)
	}()

	err = PublishLeaseEvent(ctx, pubsub, &types.LeaseEvent{
		Type:        types.LeaseEventAcquired,
		ResourceKey: resourceKey,
		HolderID:    "holder-1",
		HolderLabel: "amber-kiosk-100",
	})
	require.NoError(t, err)

	select {
	case event := <-receivedCh:
		assert.Equal(t, types.LeaseEventAcquired, event.Type)
		assert.Equal(t, resourceKey, event.ResourceKey)
		assert.Equal(t, "holder-1", event.HolderID)
		assert.False(t, event.Timestamp.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for lease event")
	}
}

func TestConcurrentPublish(t *testing.T) {
	pubsub, cleanup := setupTestNats(t)
	defer cleanup()

	ctx := context.Background()

	var received atomic.Int32

	consumer, err := pubsub.Subscribe(ctx, "test.concurrent", func(payload []byte) error {
		received.Add(1)
		return nil
	})
	require.NoError(t, err)
	defer func() {
		err := consumer.Unsubscribe()
		require.NoError(t, err)
	}()

	wg := conc.NewWaitGroup()
	for i := 0; i < 50; i++ {
		i := i
		wg.Go(func() {
			err := pubsub.Publish(ctx, "test.concurrent", []byte(fmt.Sprintf("msg-%d", i)))
			require.NoError(t, err)
		})
	}
	wg.Wait()

	deadline, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	for {
		select {
		case <-deadline.Done():
			require.Fail(t, "timeout", "received %d/50", received.Load())
		default:
			if received.Load() < 50 {
				time.Sleep(100 * time.Millisecond)
			} else {
				return
			}
		}
	}
}

func TestSubjectToken(t *testing.T) {
	assert.Equal(t, "Extruder-1_Day_2024-01-01", subjectToken("Extruder 1_Day_2024-01-01"))
	assert.Equal(t, "M1_Night_2024-02-03", subjectToken("M1_Night_2024-02-03"))
	assert.NotContains(t, subjectToken("a.b*c>d e"), ".")
	assert.NotContains(t, subjectToken("a.b*c>d e"), " ")
}
