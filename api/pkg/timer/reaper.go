package timer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/floorlinehq/floorline/api/pkg/localstore"
	"github.com/floorlinehq/floorline/api/pkg/types"
)

// Reaper removes local timer entries whose production day is long past.
// Pure local hygiene, run once per process start.
type Reaper struct {
	local     *localstore.LocalStore
	retention time.Duration
}

func NewReaper(local *localstore.LocalStore, retention time.Duration) *Reaper {
	return &Reaper{
		local:     local,
		retention: retention,
	}
}

// Sweep deletes every timer entry older than the retention window and
// returns how many were removed. Corrupt entries are removed outright.
// Age is judged by the session's start time; entries that never started
// fall back to the state's last update, then to the row write time.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	entries, err := r.local.List(ctx, LocalKeyPrefix)
	if err != nil {
		return 0, fmt.Errorf("failed to list local timer entries: %w", err)
	}

	cutoff := time.Now().Add(-r.retention)
	removed := 0

	for _, entry := range entries {
		var state types.TimerState
		if err := json.Unmarshal([]byte(entry.Value), &state); err != nil {
			log.Warn().
				Err(err).
				Str("key", entry.Key).
				Msg("removing corrupt local timer entry")
			if err := r.local.Delete(ctx, entry.Key); err != nil {
				log.Warn().Err(err).Str("key", entry.Key).Msg("failed to remove corrupt timer entry")
				continue
			}
			removed++
			continue
		}

		anchor := state.UpdatedAt
		if state.StartTime != nil {
			anchor = *state.StartTime
		}
		if anchor.IsZero() {
			anchor = entry.UpdatedAt
		}

		if !anchor.Before(cutoff) {
			continue
		}

		if err := r.local.Delete(ctx, entry.Key); err != nil {
			log.Warn().Err(err).Str("key", entry.Key).Msg("failed to remove expired timer entry")
			continue
		}

		log.Debug().
			Str("key", entry.Key).
			Time("anchor", anchor).
			Msg("removed expired local timer entry")
		removed++
	}

	if removed > 0 {
		log.Info().
			Int("removed", removed).
			Dur("retention", r.retention).
			Msg("swept expired local timer entries")
	}

	return removed, nil
}
