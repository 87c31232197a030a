package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"github.com/floorlinehq/floorline/api/pkg/config"
)

// GCStore is the slice of the backing store the sweeper needs.
type GCStore interface {
	DeleteAllStaleLeases(ctx context.Context, olderThan time.Time) (int64, error)
}

// GC periodically deletes stale lease rows across all resource keys.
// Conflict checks already ignore stale rows, so this is table hygiene
// rather than correctness.
type GC struct {
	cfg   *config.Coordination
	store GCStore
	cron  gocron.Scheduler
}

func NewGC(cfg *config.Coordination, store GCStore) (*GC, error) {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &GC{
		cfg:   cfg,
		store: store,
		cron:  cron,
	}, nil
}

// Run schedules the sweep and blocks until ctx is done.
func (g *GC) Run(ctx context.Context) error {
	_, err := g.cron.NewJob(
		gocron.DurationJob(g.cfg.GCInterval),
		gocron.NewTask(func() {
			g.Sweep(ctx)
		}),
		gocron.WithName("lease-gc"),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule lease sweep: %w", err)
	}

	g.cron.Start()

	<-ctx.Done()

	if err := g.cron.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown lease sweep scheduler: %w", err)
	}

	return nil
}

// Sweep removes every lease row whose heartbeat is past the stale
// threshold and returns how many were deleted.
func (g *GC) Sweep(ctx context.Context) int64 {
	olderThan := time.Now().Add(-g.cfg.StaleThreshold)

	removed, err := g.store.DeleteAllStaleLeases(ctx, olderThan)
	if err != nil {
		log.Error().Err(err).Msg("stale lease sweep failed")
		return 0
	}

	if removed > 0 {
		log.Info().
			Int64("removed", removed).
			Time("older_than", olderThan).
			Msg("swept stale leases")
	}

	return removed
}
