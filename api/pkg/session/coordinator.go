// Package session ties the coordination pieces together: one Coordinator
// per locked (machine, shift, date) key owning the lease, the conflict
// subscription, the run timer and the event backlog, and a Manager that
// creates, restores and tears them down as a unit.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/floorlinehq/floorline/api/pkg/lease"
	"github.com/floorlinehq/floorline/api/pkg/pubsub"
	"github.com/floorlinehq/floorline/api/pkg/timer"
	"github.com/floorlinehq/floorline/api/pkg/types"
)

// ErrSessionClosed is returned for actions on a session that has already
// been submitted, abandoned or shut down.
var ErrSessionClosed = errors.New("session is closed")

type actionKind int

const (
	actionSnapshot actionKind = iota
	actionStartTimer
	actionPauseTimer
	actionResumeTimer
	actionSubmit
	actionAbandon
)

type action struct {
	kind   actionKind
	reason string
	reply  chan actionResult
}

type actionResult struct {
	session types.CaptureSession
	err     error
}

// Coordinator owns everything one capture session holds. A single
// control loop serialises operator actions, conflict events and elapsed
// ticks, so session state never needs locking and nothing leaks across
// sessions: the lease, notifier, timer and backlog are created together
// and torn down together.
type Coordinator struct {
	id          string
	resourceKey string
	machineName string
	shift       types.Shift
	date        string
	holderID    string
	holderLabel string

	acquisition *lease.Acquisition
	notifier    *lease.Notifier
	tracker     *timer.Tracker
	publisher   pubsub.Publisher
	backlog     *Backlog

	elapsedTick time.Duration

	// loop-confined, read only via snapshot actions
	contested   bool
	contestedBy string

	actions      chan action
	cancel       context.CancelFunc
	done         chan struct{}
	stopOnce     sync.Once
	teardownOnce sync.Once
}

type coordinatorParams struct {
	id          string
	resourceKey string
	machineName string
	shift       types.Shift
	date        string
	holderID    string
	holderLabel string
	acquisition *lease.Acquisition
	notifier    *lease.Notifier
	tracker     *timer.Tracker
	publisher   pubsub.Publisher
	elapsedTick time.Duration
}

func newCoordinator(params coordinatorParams) *Coordinator {
	elapsedTick := params.elapsedTick
	if elapsedTick <= 0 {
		elapsedTick = time.Second
	}

	c := &Coordinator{
		id:          params.id,
		resourceKey: params.resourceKey,
		machineName: params.machineName,
		shift:       params.shift,
		date:        params.date,
		holderID:    params.holderID,
		holderLabel: params.holderLabel,
		acquisition: params.acquisition,
		notifier:    params.notifier,
		tracker:     params.tracker,
		publisher:   params.publisher,
		backlog:     NewBacklog(defaultBacklogSize),
		elapsedTick: elapsedTick,
		actions:     make(chan action),
		done:        make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	// Announce before the loop starts so session_started is always the
	// first backlog entry.
	c.emit(ctx, types.SessionEventStarted, "", nil)

	go c.run(ctx)

	return c
}

func (c *Coordinator) ResourceKey() string {
	return c.resourceKey
}

// Backlog exposes the event history for websocket replay.
func (c *Coordinator) Backlog() *Backlog {
	return c.backlog
}

// Done is closed once the control loop has exited.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

func (c *Coordinator) Snapshot(ctx context.Context) (types.CaptureSession, error) {
	return c.do(ctx, action{kind: actionSnapshot})
}

func (c *Coordinator) StartTimer(ctx context.Context) (types.CaptureSession, error) {
	return c.do(ctx, action{kind: actionStartTimer})
}

func (c *Coordinator) PauseTimer(ctx context.Context) (types.CaptureSession, error) {
	return c.do(ctx, action{kind: actionPauseTimer})
}

// ResumeTimer restarts a paused timer. The reason is mandatory and ends
// up on the downtime record covering the pause.
func (c *Coordinator) ResumeTimer(ctx context.Context, reason string) (types.CaptureSession, error) {
	return c.do(ctx, action{kind: actionResumeTimer, reason: reason})
}

// Submit completes the session: the lease is released, the timer state
// is cleared everywhere and the control loop exits.
func (c *Coordinator) Submit(ctx context.Context) (types.CaptureSession, error) {
	return c.do(ctx, action{kind: actionSubmit})
}

// Abandon clears the session without a submission. Like Submit it
// releases the lease and wipes timer state; it emits session_released
// instead of session_submitted.
func (c *Coordinator) Abandon(ctx context.Context) (types.CaptureSession, error) {
	return c.do(ctx, action{kind: actionAbandon})
}

// Close stops the control loop and the lease renewals without touching
// the remote lease row or the local timer state. This is the shutdown
// path: the lease expires via staleness and the session is restored on
// the next boot.
func (c *Coordinator) Close() {
	c.stopOnce.Do(func() {
		c.acquisition.Stop()
		c.teardown()
		c.cancel()
	})
}

func (c *Coordinator) do(ctx context.Context, act action) (types.CaptureSession, error) {
	act.reply = make(chan actionResult, 1)

	select {
	case c.actions <- act:
	case <-c.done:
		return types.CaptureSession{}, ErrSessionClosed
	case <-ctx.Done():
		return types.CaptureSession{}, ctx.Err()
	}

	select {
	case result := <-act.reply:
		return result.session, result.err
	case <-ctx.Done():
		return types.CaptureSession{}, ctx.Err()
	}
}

func (c *Coordinator) run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.elapsedTick)
	defer ticker.Stop()

	// A nil notifier leaves conflicts as a nil channel, which simply
	// never fires: the session runs without conflict detection.
	var conflicts <-chan types.ConflictEvent
	if c.notifier != nil {
		conflicts = c.notifier.Events()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case conflict := <-conflicts:
			c.handleConflict(ctx, conflict)
		case act := <-c.actions:
			result, terminal := c.handleAction(ctx, act)
			act.reply <- result
			if terminal {
				return
			}
		case <-ticker.C:
			c.publishTick(ctx)
		}
	}
}

func (c *Coordinator) handleAction(ctx context.Context, act action) (actionResult, bool) {
	switch act.kind {
	case actionStartTimer:
		if _, err := c.tracker.Start(ctx); err != nil {
			return actionResult{session: c.snapshot(), err: err}, false
		}
		c.emit(ctx, types.SessionEventTimerStarted, "", nil)

	case actionPauseTimer:
		if _, err := c.tracker.Pause(ctx); err != nil {
			return actionResult{session: c.snapshot(), err: err}, false
		}
		c.emit(ctx, types.SessionEventTimerPaused, "", nil)

	case actionResumeTimer:
		_, record, err := c.tracker.Resume(ctx, act.reason)
		if err != nil {
			return actionResult{session: c.snapshot(), err: err}, false
		}
		c.emit(ctx, types.SessionEventTimerResumed, "", nil)
		if record != nil {
			c.emit(ctx, types.SessionEventDowntimeAdded, "", record)
		}

	case actionSubmit:
		c.finish(ctx, types.SessionEventSubmitted)
		return actionResult{session: c.snapshot()}, true

	case actionAbandon:
		c.finish(ctx, types.SessionEventReleased)
		return actionResult{session: c.snapshot()}, true
	}

	return actionResult{session: c.snapshot()}, false
}

// finish releases the lease and clears timer state for both terminal
// actions. Cleanup failures are logged and swallowed: the lease row
// self-expires and the reaper sweeps leftover timer state.
func (c *Coordinator) finish(ctx context.Context, eventType types.SessionEventType) {
	c.acquisition.Release(ctx)

	if err := c.tracker.Clear(ctx); err != nil {
		log.Warn().
			Err(err).
			Str("resource_key", c.resourceKey).
			Msg("failed to clear timer state, the reaper will collect it")
	}

	c.emit(ctx, eventType, "", nil)
	c.teardown()
}

func (c *Coordinator) teardown() {
	c.teardownOnce.Do(func() {
		if c.notifier == nil {
			return
		}
		if err := c.notifier.Close(); err != nil {
			log.Warn().
				Err(err).
				Str("resource_key", c.resourceKey).
				Msg("failed to close conflict notifier")
		}
	})
}

func (c *Coordinator) handleConflict(ctx context.Context, conflict types.ConflictEvent) {
	label := conflict.HolderLabel
	if label == "" {
		label = conflict.HolderID
	}
	c.contested = true
	c.contestedBy = label

	log.Warn().
		Str("resource_key", c.resourceKey).
		Str("holder_id", conflict.HolderID).
		Str("holder_label", conflict.HolderLabel).
		Msg("another device claimed this session's resource")

	// Surface the conflict and keep going: whether to back off or take
	// over is the operator's call, not ours.
	c.emit(ctx, types.SessionEventConflict,
		fmt.Sprintf("%s is now also being captured by %s", c.resourceKey, label), nil)
}

func (c *Coordinator) publishTick(ctx context.Context) {
	if !c.tracker.State().IsRunning {
		return
	}

	snapshot := c.snapshot()
	c.publish(ctx, &types.SessionEvent{
		Type:      types.SessionEventElapsedTick,
		Session:   &snapshot,
		Timestamp: time.Now(),
	})
}

// emit records an event in the backlog and publishes it. Elapsed ticks
// bypass this and go straight to publish so they never crowd out real
// events from the replay history.
func (c *Coordinator) emit(ctx context.Context, eventType types.SessionEventType, message string, downtime *types.DowntimeRecord) {
	snapshot := c.snapshot()
	event := types.SessionEvent{
		Type:      eventType,
		Session:   &snapshot,
		Downtime:  downtime,
		Message:   message,
		Timestamp: time.Now(),
	}

	c.backlog.Append(event)
	c.publish(ctx, &event)
}

func (c *Coordinator) publish(ctx context.Context, event *types.SessionEvent) {
	if c.publisher == nil {
		return
	}
	if err := pubsub.PublishSessionEvent(ctx, c.publisher, c.resourceKey, event); err != nil {
		log.Warn().
			Err(err).
			Str("resource_key", c.resourceKey).
			Str("event_type", string(event.Type)).
			Msg("failed to publish session event")
	}
}

func (c *Coordinator) snapshot() types.CaptureSession {
	return types.CaptureSession{
		ID:          c.id,
		ResourceKey: c.resourceKey,
		MachineName: c.machineName,
		Shift:       c.shift,
		Date:        c.date,
		HolderID:    c.holderID,
		HolderLabel: c.holderLabel,
		StartedAt:   c.acquisition.StartedAt,
		Contested:   c.contested,
		ContestedBy: c.contestedBy,
		Timer:       c.tracker.State(),
		ElapsedMs:   c.tracker.ElapsedMs(),
	}
}
