package timer

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floorlinehq/floorline/api/pkg/config"
	"github.com/floorlinehq/floorline/api/pkg/localstore"
	"github.com/floorlinehq/floorline/api/pkg/types"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{t: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type memLocal struct {
	mu      sync.Mutex
	entries map[string]string
	setErr  error
}

func newMemLocal() *memLocal {
	return &memLocal{entries: map[string]string{}}
}

func (m *memLocal) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.entries[key]
	if !ok {
		return "", localstore.ErrNotFound
	}
	return value, nil
}

func (m *memLocal) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.entries[key] = value
	return nil
}

func (m *memLocal) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *memLocal) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}

type fakeMirror struct {
	mu        sync.Mutex
	upserts   []types.TimerMirror
	deletes   []string
	failFirst int
}

func (f *fakeMirror) UpsertTimerMirror(_ context.Context, mirror *types.TimerMirror) (*types.TimerMirror, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFirst > 0 {
		f.failFirst--
		return nil, errors.New("mirror unreachable")
	}
	f.upserts = append(f.upserts, *mirror)
	return mirror, nil
}

func (f *fakeMirror) DeleteTimerMirror(_ context.Context, resourceKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, resourceKey)
	return nil
}

func (f *fakeMirror) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts)
}

func (f *fakeMirror) lastUpsert() types.TimerMirror {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upserts[len(f.upserts)-1]
}

func (f *fakeMirror) deleteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deletes)
}

type fakeSink struct {
	mu      sync.Mutex
	records []*types.DowntimeRecord
	err     error
}

func (f *fakeSink) CreateDowntimeRecord(_ context.Context, record *types.DowntimeRecord) (*types.DowntimeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.records = append(f.records, record)
	return record, nil
}

func (f *fakeSink) list() []*types.DowntimeRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*types.DowntimeRecord{}, f.records...)
}

func testCoordination() *config.Coordination {
	return &config.Coordination{
		MirrorPushAttempts: 3,
		MirrorPushDelay:    time.Millisecond,
	}
}

func newTestTracker(clock *fakeClock) (*Tracker, *memLocal, *fakeMirror, *fakeSink) {
	local := newMemLocal()
	mirror := &fakeMirror{}
	sink := &fakeSink{}

	tracker := NewTracker(TrackerConfig{
		ResourceKey:  "M1_Day_2024-03-01",
		HolderID:     "holder-a",
		Local:        local,
		Mirror:       mirror,
		Downtime:     sink,
		Coordination: testCoordination(),
		Now:          clock.Now,
	})

	return tracker, local, mirror, sink
}

func TestPauseResumeScenario(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	tracker, _, _, sink := newTestTracker(clock)

	state, err := tracker.Start(ctx)
	require.NoError(t, err)
	assert.True(t, state.IsRunning)
	require.NotNil(t, state.StartTime)
	assert.Equal(t, int64(0), state.TotalRunTimeMs)

	clock.Advance(100 * time.Second)
	state, err = tracker.Pause(ctx)
	require.NoError(t, err)
	assert.False(t, state.IsRunning)
	assert.Equal(t, int64(100000), state.TotalRunTimeMs)
	assert.Equal(t, int64(100000), tracker.ElapsedMs())

	clock.Advance(60 * time.Second)
	state, record, err := tracker.Resume(ctx, "Mechanical")
	require.NoError(t, err)
	assert.True(t, state.IsRunning)
	require.Len(t, state.PauseHistory, 1)
	assert.Equal(t, int64(60000), state.PauseHistory[0].DurationMs)
	assert.Equal(t, "Mechanical", state.PauseHistory[0].Reason)

	require.NotNil(t, record)
	assert.Equal(t, 1, record.Minutes)
	assert.Equal(t, "Mechanical", record.Reason)
	assert.Equal(t, "M1", record.MachineName)
	assert.Equal(t, types.ShiftDay, record.Shift)
	assert.Equal(t, "2024-03-01", record.Date)
	assert.Equal(t, types.DowntimeSourceTimerPause, record.Source)

	// the running segment restarts at zero
	assert.Equal(t, int64(100000), tracker.ElapsedMs())

	require.Len(t, sink.list(), 1)
}

func TestInvalidTransitions(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	tracker, _, _, _ := newTestTracker(clock)

	// nothing is valid before start except start
	_, err := tracker.Pause(ctx)
	require.ErrorIs(t, err, ErrNotRunning)
	_, _, err = tracker.Resume(ctx, "x")
	require.ErrorIs(t, err, ErrNotPaused)

	_, err = tracker.Start(ctx)
	require.NoError(t, err)

	// start is single-shot
	_, err = tracker.Start(ctx)
	require.ErrorIs(t, err, ErrAlreadyStarted)

	// resume while running
	_, _, err = tracker.Resume(ctx, "x")
	require.ErrorIs(t, err, ErrNotPaused)

	_, err = tracker.Pause(ctx)
	require.NoError(t, err)

	// pause while paused
	_, err = tracker.Pause(ctx)
	require.ErrorIs(t, err, ErrNotRunning)

	// the downtime reason is mandatory
	_, _, err = tracker.Resume(ctx, "")
	require.Error(t, err)
	assert.NotNil(t, tracker.State().PausedAt)

	// a failed transition must not corrupt state
	assert.Equal(t, int64(0), tracker.State().TotalRunTimeMs)
	assert.NotNil(t, tracker.State().PausedAt)
}

func TestElapsedInvariantRandomized(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 20; run++ {
		clock := newFakeClock(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
		tracker, _, _, _ := newTestTracker(clock)

		var completedMs int64
		var runningSince time.Time
		started := false
		running := false

		for op := 0; op < 60; op++ {
			clock.Advance(time.Duration(rng.Intn(300000)) * time.Millisecond)

			switch rng.Intn(3) {
			case 0:
				_, err := tracker.Start(ctx)
				if !started {
					require.NoError(t, err)
					started = true
					running = true
					runningSince = clock.Now()
				} else {
					require.ErrorIs(t, err, ErrAlreadyStarted)
				}
			case 1:
				_, err := tracker.Pause(ctx)
				if started && running {
					require.NoError(t, err)
					completedMs += clock.Now().Sub(runningSince).Milliseconds()
					running = false
				} else {
					require.ErrorIs(t, err, ErrNotRunning)
				}
			case 2:
				_, _, err := tracker.Resume(ctx, "reason")
				if started && !running {
					require.NoError(t, err)
					running = true
					runningSince = clock.Now()
				} else {
					require.ErrorIs(t, err, ErrNotPaused)
				}
			}

			want := completedMs
			if running {
				want += clock.Now().Sub(runningSince).Milliseconds()
			}
			require.Equal(t, want, tracker.ElapsedMs(), "run %d op %d", run, op)

			state := tracker.State()
			switch {
			case !started:
				require.Nil(t, state.PausedAt)
				require.Nil(t, state.LastResumedAt)
			case state.IsRunning:
				require.NotNil(t, state.LastResumedAt)
				require.Nil(t, state.PausedAt)
			default:
				require.NotNil(t, state.PausedAt)
				require.Nil(t, state.LastResumedAt)
			}
		}
	}
}

func TestDowntimeMinutesCeiling(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		pause time.Duration
		want  int
	}{
		{time.Millisecond, 1},
		{59 * time.Second, 1},
		{60 * time.Second, 1},
		{60*time.Second + time.Millisecond, 2},
		{3 * time.Minute, 3},
	}

	for _, tt := range tests {
		clock := newFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
		tracker, _, _, _ := newTestTracker(clock)

		_, err := tracker.Start(ctx)
		require.NoError(t, err)
		clock.Advance(10 * time.Second)
		_, err = tracker.Pause(ctx)
		require.NoError(t, err)

		clock.Advance(tt.pause)
		_, record, err := tracker.Resume(ctx, "changeover")
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, tt.want, record.Minutes, "pause of %s", tt.pause)
	}
}

func TestTrackerRestoresAfterReload(t *testing.T) {
	ctx := context.Background()

	local, err := localstore.Open(filepath.Join(t.TempDir(), "floorline.db"))
	require.NoError(t, err)
	defer func() {
		_ = local.Close()
	}()

	clock := newFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))

	cfg := TrackerConfig{
		ResourceKey:  "Extruder 1_Day_2024-03-01",
		HolderID:     "holder-a",
		Local:        local,
		Coordination: testCoordination(),
		Now:          clock.Now,
	}

	tracker := NewTracker(cfg)
	_, err = tracker.Start(ctx)
	require.NoError(t, err)
	clock.Advance(90 * time.Second)
	_, err = tracker.Pause(ctx)
	require.NoError(t, err)

	// crash: a fresh process loads the same local store
	restored, err := LoadTracker(ctx, cfg)
	require.NoError(t, err)

	state := restored.State()
	assert.False(t, state.IsRunning)
	assert.NotNil(t, state.PausedAt)
	assert.Equal(t, int64(90000), state.TotalRunTimeMs)
	assert.Equal(t, int64(90000), restored.ElapsedMs())

	// the pause survives the reload and still derives downtime
	clock.Advance(2 * time.Minute)
	_, record, err := restored.Resume(ctx, "Power outage")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, 2, record.Minutes)
	assert.Equal(t, "Extruder 1", record.MachineName)
}

func TestLoadTrackerFreshAndCorrupt(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))

	local := newMemLocal()
	cfg := TrackerConfig{
		ResourceKey:  "M1_Day_2024-03-01",
		HolderID:     "holder-a",
		Local:        local,
		Coordination: testCoordination(),
		Now:          clock.Now,
	}

	// nothing stored: fresh tracker
	tracker, err := LoadTracker(ctx, cfg)
	require.NoError(t, err)
	assert.False(t, tracker.State().Started())

	// corrupt state: logged and treated as fresh
	require.NoError(t, local.Set(ctx, LocalKey("M1_Day_2024-03-01"), "{not json"))
	tracker, err = LoadTracker(ctx, cfg)
	require.NoError(t, err)
	assert.False(t, tracker.State().Started())
}

func TestLocalPersistFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	tracker, local, _, _ := newTestTracker(clock)

	local.setErr = errors.New("disk full")

	// transitions keep working on the in-memory state
	_, err := tracker.Start(ctx)
	require.NoError(t, err)
	clock.Advance(30 * time.Second)
	_, err = tracker.Pause(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(30000), tracker.ElapsedMs())
}

func TestMirrorPushRetriesUntilSuccess(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	tracker, _, mirror, _ := newTestTracker(clock)

	mirror.mu.Lock()
	mirror.failFirst = 2
	mirror.mu.Unlock()

	_, err := tracker.Start(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return mirror.upsertCount() == 1
	}, 2*time.Second, 5*time.Millisecond, "mirror push never landed")

	last := mirror.lastUpsert()
	assert.Equal(t, "M1_Day_2024-03-01", last.ResourceKey)
	assert.Equal(t, "holder-a", last.HolderID)
	assert.True(t, last.State.IsRunning)
}

func TestMirrorFailureNeverBlocksTransitions(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	tracker, local, mirror, _ := newTestTracker(clock)

	mirror.mu.Lock()
	mirror.failFirst = 1 << 30
	mirror.mu.Unlock()

	_, err := tracker.Start(ctx)
	require.NoError(t, err)
	clock.Advance(10 * time.Second)
	_, err = tracker.Pause(ctx)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, _, err = tracker.Resume(ctx, "jam")
	require.NoError(t, err)

	// the local copy stayed authoritative throughout
	assert.True(t, local.has(LocalKey("M1_Day_2024-03-01")))
	assert.Equal(t, int64(10000), tracker.ElapsedMs())
}

func TestClearRemovesPersistedState(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	tracker, local, mirror, _ := newTestTracker(clock)

	_, err := tracker.Start(ctx)
	require.NoError(t, err)
	require.True(t, local.has(LocalKey("M1_Day_2024-03-01")))

	require.NoError(t, tracker.Clear(ctx))

	assert.False(t, local.has(LocalKey("M1_Day_2024-03-01")))
	assert.False(t, tracker.State().Started())
	require.Eventually(t, func() bool {
		return mirror.deleteCount() == 1
	}, 2*time.Second, 5*time.Millisecond)

	// cleared means never-started again
	_, err = tracker.Start(ctx)
	require.NoError(t, err)
}

func TestDowntimeSinkFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	tracker, _, _, sink := newTestTracker(clock)

	sink.mu.Lock()
	sink.err = errors.New("store unreachable")
	sink.mu.Unlock()

	_, err := tracker.Start(ctx)
	require.NoError(t, err)
	clock.Advance(10 * time.Second)
	_, err = tracker.Pause(ctx)
	require.NoError(t, err)
	clock.Advance(time.Minute)

	state, record, err := tracker.Resume(ctx, "jam")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, 1, record.Minutes)

	// the pause itself is still durable in the history
	require.Len(t, state.PauseHistory, 1)
}
