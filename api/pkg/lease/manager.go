// Package lease implements mutual exclusion for capture sessions. A
// lease is a row in the backing store claiming one (machine, shift,
// date) resource key, kept alive by heartbeats and presumed abandoned
// once it goes silent past the stale threshold.
//
// Coordination is deliberately best-effort: the store offers no
// compare-and-swap, so acquisition is check-then-act and two devices
// racing within one round trip can both succeed. The conflict notifier
// surfaces that case after the fact. Losing capture data is considered
// worse than rare double editing, so nothing in this package ever
// blocks a session on a store failure.
package lease

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/floorlinehq/floorline/api/pkg/config"
	"github.com/floorlinehq/floorline/api/pkg/pubsub"
	"github.com/floorlinehq/floorline/api/pkg/store"
	"github.com/floorlinehq/floorline/api/pkg/types"
)

// TimeoutFunc decides whether a lease with the given last heartbeat is
// presumed abandoned.
type TimeoutFunc func(resourceKey string, lastHeartbeat time.Time) bool

func NewTimeoutFunc(staleThreshold time.Duration) TimeoutFunc {
	return func(resourceKey string, lastHeartbeat time.Time) bool {
		elapsed := time.Since(lastHeartbeat)
		isStale := elapsed > staleThreshold
		if isStale {
			log.Debug().
				Str("resource_key", resourceKey).
				Dur("elapsed", elapsed).
				Dur("stale_threshold", staleThreshold).
				Time("last_heartbeat", lastHeartbeat).
				Msg("lease staleness evaluation")
		}
		return isStale
	}
}

// Store is the slice of the backing store the lease manager depends on.
type Store interface {
	QueryActiveLeases(ctx context.Context, resourceKey string) ([]*types.Lease, error)
	UpsertLease(ctx context.Context, lease *types.Lease) (*types.Lease, error)
	TouchLease(ctx context.Context, resourceKey, holderID string, at time.Time) error
	DeleteLease(ctx context.Context, resourceKey, holderID string) error
	DeleteStaleLeases(ctx context.Context, resourceKey string, olderThan time.Time) (int64, error)
}

// ErrResourceHeld is returned by Acquire when a live competing lease
// exists. It carries what a caller needs to render a takeover prompt.
type ErrResourceHeld struct {
	ResourceKey string
	HolderID    string
	HolderLabel string
	StartedAt   time.Time
}

func (e *ErrResourceHeld) Error() string {
	label := e.HolderLabel
	if label == "" {
		label = e.HolderID
	}
	return fmt.Sprintf("%s is already being captured by %s (since %s)",
		e.ResourceKey, label, e.StartedAt.Format(time.RFC3339))
}

type Manager struct {
	cfg         *config.Coordination
	store       Store
	publisher   pubsub.Publisher
	holderID    string
	holderLabel string
	isStale     TimeoutFunc
}

func NewManager(cfg *config.Coordination, s Store, publisher pubsub.Publisher, holderID, holderLabel string) *Manager {
	return &Manager{
		cfg:         cfg,
		store:       s,
		publisher:   publisher,
		holderID:    holderID,
		holderLabel: holderLabel,
		isStale:     NewTimeoutFunc(cfg.StaleThreshold),
	}
}

// CheckConflict probes resourceKey for a live competing lease. Our own
// lease is renewable and never a conflict; a lease past the stale
// threshold is treated as abandoned regardless of its active flag. When
// the store cannot be queried the check fails open.
func (m *Manager) CheckConflict(ctx context.Context, resourceKey string) types.ConflictCheck {
	leases, err := m.store.QueryActiveLeases(ctx, resourceKey)
	if err != nil {
		log.Warn().
			Err(err).
			Str("resource_key", resourceKey).
			Msg("conflict check could not reach the store, failing open")
		return types.ConflictCheck{Conflict: false}
	}

	for _, l := range leases {
		if l.HolderID == m.holderID {
			continue
		}
		if m.isStale(resourceKey, l.LastHeartbeat) {
			continue
		}
		return types.ConflictCheck{Conflict: true, HeldBy: l}
	}

	return types.ConflictCheck{Conflict: false}
}

// Acquire claims resourceKey for this device and starts the renewal
// loop. Only a confirmed conflict is an error; store failures during the
// write leave the session running uncoordinated and the renewal loop
// repairs the row when the store comes back.
//
// The check and the upsert are not atomic against the store, so two
// devices racing within one round trip can both succeed.
func (m *Manager) Acquire(ctx context.Context, resourceKey string) (*Acquisition, error) {
	check := m.CheckConflict(ctx, resourceKey)
	if check.Conflict {
		return nil, &ErrResourceHeld{
			ResourceKey: resourceKey,
			HolderID:    check.HeldBy.HolderID,
			HolderLabel: check.HeldBy.HolderLabel,
			StartedAt:   check.HeldBy.StartedAt,
		}
	}

	// Clear abandoned rows before writing ours, best effort.
	olderThan := time.Now().Add(-m.cfg.StaleThreshold)
	if _, err := m.store.DeleteStaleLeases(ctx, resourceKey, olderThan); err != nil {
		log.Warn().
			Err(err).
			Str("resource_key", resourceKey).
			Msg("failed to clear stale leases before acquiring")
	}

	now := time.Now()
	_, err := m.store.UpsertLease(ctx, &types.Lease{
		ResourceKey:   resourceKey,
		HolderID:      m.holderID,
		HolderLabel:   m.holderLabel,
		StartedAt:     now,
		LastHeartbeat: now,
		Active:        true,
	})
	if err != nil {
		log.Warn().
			Err(err).
			Str("resource_key", resourceKey).
			Msg("failed to write lease, session continues uncoordinated")
	} else {
		m.publishEvent(ctx, types.LeaseEventAcquired, resourceKey)
	}

	// The renewal loop outlives the request that triggered acquisition.
	hbCtx, cancel := context.WithCancel(context.Background())

	a := &Acquisition{
		ResourceKey: resourceKey,
		StartedAt:   now,
		manager:     m,
		cancel:      cancel,
	}

	go m.runHeartbeat(hbCtx, resourceKey)

	log.Info().
		Str("resource_key", resourceKey).
		Str("holder_id", m.holderID).
		Msg("lease acquired")

	return a, nil
}

func (m *Manager) runHeartbeat(ctx context.Context, resourceKey string) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.renew(ctx, resourceKey)
		}
	}
}

// renew touches our lease row. Plain renewals stay off the change feed;
// only insertions are published there.
func (m *Manager) renew(ctx context.Context, resourceKey string) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.HeartbeatInterval)
	defer cancel()

	now := time.Now()
	err := m.store.TouchLease(ctx, resourceKey, m.holderID, now)
	if err == nil {
		return
	}
	if !errors.Is(err, store.ErrNotFound) {
		log.Warn().
			Err(err).
			Str("resource_key", resourceKey).
			Msg("lease renewal failed, will retry on next tick")
		return
	}

	// Our row vanished (swept, or evicted by a takeover). Re-upsert: the
	// lease is self-healing for as long as it is held, and the reinsertion
	// goes on the feed so whoever claimed the key meanwhile hears of us.
	_, err = m.store.UpsertLease(ctx, &types.Lease{
		ResourceKey:   resourceKey,
		HolderID:      m.holderID,
		HolderLabel:   m.holderLabel,
		StartedAt:     now,
		LastHeartbeat: now,
		Active:        true,
	})
	if err != nil {
		log.Warn().
			Err(err).
			Str("resource_key", resourceKey).
			Msg("failed to restore vanished lease row, will retry on next tick")
		return
	}

	m.publishEvent(ctx, types.LeaseEventAcquired, resourceKey)
}

func (m *Manager) publishEvent(ctx context.Context, eventType types.LeaseEventType, resourceKey string) {
	if m.publisher == nil {
		return
	}
	err := pubsub.PublishLeaseEvent(ctx, m.publisher, &types.LeaseEvent{
		Type:        eventType,
		ResourceKey: resourceKey,
		HolderID:    m.holderID,
		HolderLabel: m.holderLabel,
	})
	if err != nil {
		log.Warn().
			Err(err).
			Str("resource_key", resourceKey).
			Str("event_type", string(eventType)).
			Msg("failed to publish lease event")
	}
}

// Evict deletes another holder's lease row as part of an explicit
// operator takeover. The ousted device hears about it on the feed once
// we acquire.
func (m *Manager) Evict(ctx context.Context, resourceKey, holderID string) error {
	if err := m.store.DeleteLease(ctx, resourceKey, holderID); err != nil {
		return fmt.Errorf("failed to evict lease holder: %w", err)
	}

	log.Info().
		Str("resource_key", resourceKey).
		Str("evicted_holder", holderID).
		Msg("evicted lease for takeover")

	return nil
}

// Acquisition is one held lease: the renewal loop plus the handle to
// stop or release it.
type Acquisition struct {
	ResourceKey string
	StartedAt   time.Time

	manager  *Manager
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// Release stops renewals and deletes our lease row. Deletion is best
// effort: on failure the row self-expires via staleness. An in-flight
// heartbeat is not awaited; a late write merely delays expiry.
func (a *Acquisition) Release(ctx context.Context) {
	a.stop()

	err := a.manager.store.DeleteLease(ctx, a.ResourceKey, a.manager.holderID)
	if err != nil {
		log.Warn().
			Err(err).
			Str("resource_key", a.ResourceKey).
			Msg("failed to delete lease on release, it will expire via staleness")
		return
	}

	a.manager.publishEvent(ctx, types.LeaseEventReleased, a.ResourceKey)

	log.Info().
		Str("resource_key", a.ResourceKey).
		Msg("lease released")
}

// Stop cancels the renewal loop without touching the remote row. Used on
// shutdown, where the row is left to expire by staleness so a dying
// process never blocks on the network.
func (a *Acquisition) Stop() {
	a.stop()
}

func (a *Acquisition) stop() {
	a.stopOnce.Do(a.cancel)
}
