// Package timer tracks production run time for a capture session. The
// device-local copy is authoritative: every transition is written
// synchronously to the local durable cache so a crash mid-shift restores
// exact state, and mirrored to the backing store best-effort for
// cross-device display only.
package timer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"

	"github.com/floorlinehq/floorline/api/pkg/config"
	"github.com/floorlinehq/floorline/api/pkg/localstore"
	"github.com/floorlinehq/floorline/api/pkg/shift"
	"github.com/floorlinehq/floorline/api/pkg/types"
)

// LocalKeyPrefix namespaces timer entries inside the local store.
const LocalKeyPrefix = "timer/"

func LocalKey(resourceKey string) string {
	return LocalKeyPrefix + resourceKey
}

var (
	ErrAlreadyStarted = errors.New("timer already started")
	ErrNotRunning     = errors.New("timer is not running")
	ErrNotPaused      = errors.New("timer is not paused")
)

// LocalStore is the slice of the device-local cache the tracker writes
// through. Writes here are synchronous with transitions.
type LocalStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// MirrorStore receives advisory timer copies for other devices to
// display. It is never read back to drive local transitions.
type MirrorStore interface {
	UpsertTimerMirror(ctx context.Context, mirror *types.TimerMirror) (*types.TimerMirror, error)
	DeleteTimerMirror(ctx context.Context, resourceKey string) error
}

// DowntimeSink receives the downtime records derived from pauses.
type DowntimeSink interface {
	CreateDowntimeRecord(ctx context.Context, record *types.DowntimeRecord) (*types.DowntimeRecord, error)
}

// TrackerConfig wires one tracker to its stores. Now is a test hook and
// defaults to time.Now.
type TrackerConfig struct {
	ResourceKey  string
	HolderID     string
	Local        LocalStore
	Mirror       MirrorStore
	Downtime     DowntimeSink
	Coordination *config.Coordination
	Now          func() time.Time
}

// Tracker is the run-timer state machine for one session key:
// NeverStarted, then Running and Paused alternating, until cleared.
type Tracker struct {
	resourceKey string
	holderID    string
	local       LocalStore
	mirror      MirrorStore
	downtime    DowntimeSink
	cfg         *config.Coordination
	now         func() time.Time

	mu    sync.Mutex
	state types.TimerState
}

func NewTracker(cfg TrackerConfig) *Tracker {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Tracker{
		resourceKey: cfg.ResourceKey,
		holderID:    cfg.HolderID,
		local:       cfg.Local,
		mirror:      cfg.Mirror,
		downtime:    cfg.Downtime,
		cfg:         cfg.Coordination,
		now:         now,
		state: types.TimerState{
			ResourceKey: cfg.ResourceKey,
		},
	}
}

// LoadTracker restores a tracker from the local store. A missing entry
// means a fresh session; a corrupt one is logged and treated as fresh,
// the reaper removes it later.
func LoadTracker(ctx context.Context, cfg TrackerConfig) (*Tracker, error) {
	t := NewTracker(cfg)

	value, err := cfg.Local.Get(ctx, LocalKey(cfg.ResourceKey))
	if err != nil {
		if errors.Is(err, localstore.ErrNotFound) {
			return t, nil
		}
		return nil, fmt.Errorf("failed to read timer state for %s: %w", cfg.ResourceKey, err)
	}

	var state types.TimerState
	if err := json.Unmarshal([]byte(value), &state); err != nil {
		log.Warn().
			Err(err).
			Str("resource_key", cfg.ResourceKey).
			Msg("local timer state is corrupt, starting fresh")
		return t, nil
	}

	state.ResourceKey = cfg.ResourceKey
	t.state = state

	return t, nil
}

// State returns a copy of the current timer state.
func (t *Tracker) State() types.TimerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// ElapsedMs returns cumulative production time as of now. It is a pure
// read recomputed from the stored state, never accumulated by ticks, so
// missed ticks cost nothing.
func (t *Tracker) ElapsedMs() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.ElapsedMs(t.now())
}

// Start begins production for a session that has never run.
func (t *Tracker) Start(ctx context.Context) (types.TimerState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Started() {
		return t.state, ErrAlreadyStarted
	}

	started := t.now()
	resumed := started
	t.state = types.TimerState{
		ResourceKey:   t.resourceKey,
		IsRunning:     true,
		StartTime:     &started,
		LastResumedAt: &resumed,
		UpdatedAt:     started,
	}

	t.persistLocked(ctx)

	return t.state, nil
}

// Pause closes the current running segment, folding its duration into
// the accumulated total.
func (t *Tracker) Pause(ctx context.Context) (types.TimerState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.state.IsRunning || t.state.LastResumedAt == nil {
		return t.state, ErrNotRunning
	}

	now := t.now()
	t.state.TotalRunTimeMs += now.Sub(*t.state.LastResumedAt).Milliseconds()
	t.state.IsRunning = false
	t.state.PausedAt = &now
	t.state.LastResumedAt = nil
	t.state.UpdatedAt = now

	t.persistLocked(ctx)

	return t.state, nil
}

// Resume restarts production after a pause. The completed pause is
// appended to the history and converted into an accountable downtime
// record of ceil(pause/1m) minutes tagged with reason.
func (t *Tracker) Resume(ctx context.Context, reason string) (types.TimerState, *types.DowntimeRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.IsRunning || t.state.PausedAt == nil {
		return t.state, nil, ErrNotPaused
	}
	if reason == "" {
		return t.state, nil, errors.New("downtime reason is required")
	}

	now := t.now()
	pausedAt := *t.state.PausedAt

	interval := types.PauseInterval{
		PausedAt:   pausedAt,
		ResumedAt:  now,
		DurationMs: now.Sub(pausedAt).Milliseconds(),
		Reason:     reason,
	}

	t.state.PauseHistory = append(t.state.PauseHistory, interval)
	t.state.IsRunning = true
	t.state.LastResumedAt = &now
	t.state.PausedAt = nil
	t.state.UpdatedAt = now

	t.persistLocked(ctx)

	record := t.downtimeFromPause(ctx, interval)

	return t.state, record, nil
}

// Clear removes all persisted state for this session key. Terminal.
func (t *Tracker) Clear(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.local.Delete(ctx, LocalKey(t.resourceKey)); err != nil {
		return fmt.Errorf("failed to clear local timer state for %s: %w", t.resourceKey, err)
	}

	t.state = types.TimerState{ResourceKey: t.resourceKey}

	if t.mirror != nil {
		if err := t.mirror.DeleteTimerMirror(ctx, t.resourceKey); err != nil {
			log.Warn().
				Err(err).
				Str("resource_key", t.resourceKey).
				Msg("failed to delete timer mirror, it is advisory only")
		}
	}

	return nil
}

// persistLocked writes the state through. The local write is synchronous
// and its failure is swallowed: elapsed time is recomputed from the last
// stored state, so a lost tick costs nothing unless the process also
// dies before the next successful write. The mirror push happens in the
// background.
func (t *Tracker) persistLocked(ctx context.Context) {
	payload, err := json.Marshal(t.state)
	if err != nil {
		log.Error().
			Err(err).
			Str("resource_key", t.resourceKey).
			Msg("failed to encode timer state")
		return
	}

	if err := t.local.Set(ctx, LocalKey(t.resourceKey), string(payload)); err != nil {
		log.Warn().
			Err(err).
			Str("resource_key", t.resourceKey).
			Msg("failed to persist timer state locally")
	}

	t.pushMirror(t.state)
}

// pushMirror replicates state to the backing store for other devices to
// display. Advisory only: retried a few times, then dropped.
func (t *Tracker) pushMirror(state types.TimerState) {
	if t.mirror == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		err := retry.Do(func() error {
			_, err := t.mirror.UpsertTimerMirror(ctx, &types.TimerMirror{
				ResourceKey: t.resourceKey,
				HolderID:    t.holderID,
				State:       state,
			})
			return err
		},
			retry.Attempts(t.cfg.MirrorPushAttempts),
			retry.Delay(t.cfg.MirrorPushDelay),
			retry.Context(ctx),
			retry.LastErrorOnly(true),
		)
		if err != nil {
			log.Debug().
				Err(err).
				Str("resource_key", t.resourceKey).
				Msg("timer mirror push failed, mirror is advisory only")
		}
	}()
}

// downtimeFromPause turns a completed pause into a downtime record and
// hands it to the sink. Sink failures are logged and swallowed: the
// pause itself is already durable in the local pause history.
func (t *Tracker) downtimeFromPause(ctx context.Context, interval types.PauseInterval) *types.DowntimeRecord {
	machineName, s, date, err := shift.SplitResourceKey(t.resourceKey)
	if err != nil {
		log.Error().
			Err(err).
			Str("resource_key", t.resourceKey).
			Msg("cannot derive downtime from pause")
		return nil
	}

	record := &types.DowntimeRecord{
		ResourceKey: t.resourceKey,
		MachineName: machineName,
		Shift:       s,
		Date:        date,
		Reason:      interval.Reason,
		Minutes:     ceilMinutes(interval.DurationMs),
		Source:      types.DowntimeSourceTimerPause,
		PausedAt:    interval.PausedAt,
		ResumedAt:   interval.ResumedAt,
	}

	if t.downtime == nil || record.Minutes == 0 {
		return record
	}

	created, err := t.downtime.CreateDowntimeRecord(ctx, record)
	if err != nil {
		log.Warn().
			Err(err).
			Str("resource_key", t.resourceKey).
			Str("reason", interval.Reason).
			Msg("failed to record downtime for pause")
		return record
	}

	return created
}

func ceilMinutes(durationMs int64) int {
	if durationMs <= 0 {
		return 0
	}
	return int((durationMs + 59999) / 60000)
}
