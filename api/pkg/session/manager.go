package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"

	"github.com/floorlinehq/floorline/api/pkg/config"
	"github.com/floorlinehq/floorline/api/pkg/lease"
	"github.com/floorlinehq/floorline/api/pkg/localstore"
	"github.com/floorlinehq/floorline/api/pkg/pubsub"
	"github.com/floorlinehq/floorline/api/pkg/shift"
	"github.com/floorlinehq/floorline/api/pkg/store"
	"github.com/floorlinehq/floorline/api/pkg/system"
	"github.com/floorlinehq/floorline/api/pkg/timer"
	"github.com/floorlinehq/floorline/api/pkg/types"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUnknownMachine  = errors.New("unknown machine")
)

// sessionRecordPrefix namespaces the local rows remembering which
// sessions this device held, so they survive a restart.
const sessionRecordPrefix = "session/"

type sessionRecord struct {
	ID          string      `json:"id"`
	ResourceKey string      `json:"resource_key"`
	MachineName string      `json:"machine_name"`
	Shift       types.Shift `json:"shift"`
	Date        string      `json:"date"`
	LockedAt    time.Time   `json:"locked_at"`
}

// Manager creates, restores and tears down capture sessions for this
// device. It owns the one lease manager all sessions share and a
// registry of live coordinators keyed by resource key.
type Manager struct {
	cfg      *config.ServerConfig
	facility *config.FacilityConfig

	store  store.Store
	local  *localstore.LocalStore
	ps     pubsub.PubSub
	leases *lease.Manager

	holderID    string
	holderLabel string

	// mu serialises Lock/Restore/Shutdown; reads go through the map.
	mu       sync.Mutex
	sessions *xsync.MapOf[string, *Coordinator]
}

type ManagerParams struct {
	Cfg         *config.ServerConfig
	Facility    *config.FacilityConfig
	Store       store.Store
	Local       *localstore.LocalStore
	PubSub      pubsub.PubSub
	HolderID    string
	HolderLabel string
}

func NewManager(params ManagerParams) *Manager {
	return &Manager{
		cfg:         params.Cfg,
		facility:    params.Facility,
		store:       params.Store,
		local:       params.Local,
		ps:          params.PubSub,
		leases:      lease.NewManager(&params.Cfg.Coordination, params.Store, params.PubSub, params.HolderID, params.HolderLabel),
		holderID:    params.HolderID,
		holderLabel: params.HolderLabel,
		sessions:    xsync.NewMapOf[string, *Coordinator](),
	}
}

// Facility exposes the resolved facility for request validation and the
// config endpoint.
func (m *Manager) Facility() *config.FacilityConfig {
	return m.facility
}

func (m *Manager) HolderID() string {
	return m.holderID
}

func (m *Manager) HolderLabel() string {
	return m.holderLabel
}

// CheckConflict probes a resource key for a live competing lease without
// acquiring anything.
func (m *Manager) CheckConflict(ctx context.Context, resourceKey string) types.ConflictCheck {
	return m.leases.CheckConflict(ctx, resourceKey)
}

// Lock claims a machine for capture and starts its session. Shift and
// date default to the facility's current shift window. Locking a key
// this device already holds returns the existing session unchanged.
func (m *Manager) Lock(ctx context.Context, req types.CreateSessionRequest) (types.CaptureSession, error) {
	if req.MachineName == "" {
		return types.CaptureSession{}, errors.New("machine name is required")
	}
	if !m.facility.KnownMachine(req.MachineName) {
		return types.CaptureSession{}, fmt.Errorf("%w: %s", ErrUnknownMachine, req.MachineName)
	}

	resolvedShift, resolvedDate := shift.ForTime(m.facility, time.Now())
	if req.Shift != "" {
		if !req.Shift.Valid() {
			return types.CaptureSession{}, fmt.Errorf("invalid shift %q", req.Shift)
		}
		resolvedShift = req.Shift
	}
	if req.Date != "" {
		if _, err := time.Parse("2006-01-02", req.Date); err != nil {
			return types.CaptureSession{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", req.Date)
		}
		resolvedDate = req.Date
	}

	resourceKey := shift.ResourceKey(req.MachineName, resolvedShift, resolvedDate)

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions.Load(resourceKey); ok {
		return existing.Snapshot(ctx)
	}

	record := sessionRecord{
		ID:          system.GenerateSessionID(),
		ResourceKey: resourceKey,
		MachineName: req.MachineName,
		Shift:       resolvedShift,
		Date:        resolvedDate,
		LockedAt:    time.Now(),
	}

	coordinator, err := m.startSession(ctx, record, req.TakeOver)
	if err != nil {
		return types.CaptureSession{}, err
	}
	m.sessions.Store(resourceKey, coordinator)

	log.Info().
		Str("resource_key", resourceKey).
		Str("machine_name", req.MachineName).
		Str("shift", resolvedShift.String()).
		Str("date", resolvedDate).
		Msg("capture session locked")

	return coordinator.Snapshot(ctx)
}

// startSession assembles one coordinator: lease first, then the timer
// restored from local state, then the conflict subscription. Callers
// hold m.mu.
func (m *Manager) startSession(ctx context.Context, record sessionRecord, takeOver bool) (*Coordinator, error) {
	resourceKey := record.ResourceKey

	acquisition, err := m.leases.Acquire(ctx, resourceKey)
	if err != nil {
		var held *lease.ErrResourceHeld
		if !errors.As(err, &held) || !takeOver {
			return nil, err
		}
		if evictErr := m.leases.Evict(ctx, resourceKey, held.HolderID); evictErr != nil {
			return nil, fmt.Errorf("takeover of %s failed: %w", resourceKey, evictErr)
		}
		acquisition, err = m.leases.Acquire(ctx, resourceKey)
		if err != nil {
			return nil, err
		}
	}

	trackerConfig := timer.TrackerConfig{
		ResourceKey:  resourceKey,
		HolderID:     m.holderID,
		Local:        m.local,
		Mirror:       m.store,
		Downtime:     m.store,
		Coordination: &m.cfg.Coordination,
	}
	tracker, err := timer.LoadTracker(ctx, trackerConfig)
	if err != nil {
		// Local store trouble must not block capture.
		log.Warn().
			Err(err).
			Str("resource_key", resourceKey).
			Msg("failed to load timer state, starting fresh")
		tracker = timer.NewTracker(trackerConfig)
	}

	notifier, err := lease.NewNotifier(ctx, m.ps, resourceKey, m.holderID)
	if err != nil {
		log.Warn().
			Err(err).
			Str("resource_key", resourceKey).
			Msg("conflict notifications unavailable for this session")
		notifier = nil
	}

	coordinator := newCoordinator(coordinatorParams{
		id:          record.ID,
		resourceKey: resourceKey,
		machineName: record.MachineName,
		shift:       record.Shift,
		date:        record.Date,
		holderID:    m.holderID,
		holderLabel: m.holderLabel,
		acquisition: acquisition,
		notifier:    notifier,
		tracker:     tracker,
		publisher:   m.ps,
		elapsedTick: m.cfg.Coordination.ElapsedTick,
	})

	m.persistSessionRecord(ctx, record)

	return coordinator, nil
}

func (m *Manager) persistSessionRecord(ctx context.Context, record sessionRecord) {
	payload, err := json.Marshal(record)
	if err != nil {
		log.Error().Err(err).Str("resource_key", record.ResourceKey).Msg("failed to encode session record")
		return
	}
	if err := m.local.Set(ctx, sessionRecordPrefix+record.ResourceKey, string(payload)); err != nil {
		log.Warn().
			Err(err).
			Str("resource_key", record.ResourceKey).
			Msg("failed to persist session record, session will not survive a restart")
	}
}

func (m *Manager) dropSessionRecord(ctx context.Context, resourceKey string) {
	if err := m.local.Delete(ctx, sessionRecordPrefix+resourceKey); err != nil {
		log.Warn().
			Err(err).
			Str("resource_key", resourceKey).
			Msg("failed to remove session record")
	}
}

func (m *Manager) Get(resourceKey string) (*Coordinator, bool) {
	return m.sessions.Load(resourceKey)
}

// List returns snapshots of every live session, ordered by resource key.
func (m *Manager) List(ctx context.Context) []types.CaptureSession {
	sessions := make([]types.CaptureSession, 0)
	m.sessions.Range(func(_ string, c *Coordinator) bool {
		snapshot, err := c.Snapshot(ctx)
		if err == nil {
			sessions = append(sessions, snapshot)
		}
		return true
	})
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].ResourceKey < sessions[j].ResourceKey
	})
	return sessions
}

// Submit completes a session and forgets it: after this the key can be
// locked again from scratch.
func (m *Manager) Submit(ctx context.Context, resourceKey string) (types.CaptureSession, error) {
	c, ok := m.sessions.Load(resourceKey)
	if !ok {
		return types.CaptureSession{}, ErrSessionNotFound
	}
	snapshot, err := c.Submit(ctx)
	if err != nil {
		return snapshot, err
	}
	m.sessions.Delete(resourceKey)
	m.dropSessionRecord(ctx, resourceKey)
	return snapshot, nil
}

// Abandon releases a session without submitting it.
func (m *Manager) Abandon(ctx context.Context, resourceKey string) (types.CaptureSession, error) {
	c, ok := m.sessions.Load(resourceKey)
	if !ok {
		return types.CaptureSession{}, ErrSessionNotFound
	}
	snapshot, err := c.Abandon(ctx)
	if err != nil {
		return snapshot, err
	}
	m.sessions.Delete(resourceKey)
	m.dropSessionRecord(ctx, resourceKey)
	return snapshot, nil
}

// Restore re-locks the sessions this device held before a restart. A
// session whose lease was taken while we were down is dropped; its local
// timer state stays put so the elapsed time is back the moment the
// operator locks the machine again.
func (m *Manager) Restore(ctx context.Context) error {
	entries, err := m.local.List(ctx, sessionRecordPrefix)
	if err != nil {
		return fmt.Errorf("failed to list restorable sessions: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, entry := range entries {
		var record sessionRecord
		if err := json.Unmarshal([]byte(entry.Value), &record); err != nil {
			log.Warn().Err(err).Str("key", entry.Key).Msg("dropping corrupt session record")
			_ = m.local.Delete(ctx, entry.Key)
			continue
		}

		if _, ok := m.sessions.Load(record.ResourceKey); ok {
			continue
		}

		coordinator, err := m.startSession(ctx, record, false)
		if err != nil {
			var held *lease.ErrResourceHeld
			if errors.As(err, &held) {
				log.Warn().
					Str("resource_key", record.ResourceKey).
					Str("holder_label", held.HolderLabel).
					Msg("resource was claimed by another device while we were down, not restoring")
				_ = m.local.Delete(ctx, entry.Key)
				continue
			}
			log.Error().Err(err).Str("resource_key", record.ResourceKey).Msg("failed to restore session")
			continue
		}

		m.sessions.Store(record.ResourceKey, coordinator)

		log.Info().
			Str("resource_key", record.ResourceKey).
			Time("locked_at", record.LockedAt).
			Msg("restored capture session")
	}

	return nil
}

// Shutdown stops every session's loops without releasing remote leases
// or local state: leases expire via staleness and sessions are restored
// on the next boot.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	coordinators := make([]*Coordinator, 0)
	m.sessions.Range(func(key string, c *Coordinator) bool {
		coordinators = append(coordinators, c)
		m.sessions.Delete(key)
		return true
	})

	// Close blocks until a session's loop exits.
	_ = system.ForEachConcurrently(coordinators, 4, func(c *Coordinator, _ int) error {
		c.Close()
		return nil
	})
}
