package floorline

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/floorlinehq/floorline/api/pkg/config"
	"github.com/floorlinehq/floorline/api/pkg/lease"
	"github.com/floorlinehq/floorline/api/pkg/localstore"
	"github.com/floorlinehq/floorline/api/pkg/pubsub"
	"github.com/floorlinehq/floorline/api/pkg/server"
	"github.com/floorlinehq/floorline/api/pkg/session"
	"github.com/floorlinehq/floorline/api/pkg/store"
	"github.com/floorlinehq/floorline/api/pkg/system"
	"github.com/floorlinehq/floorline/api/pkg/timer"
)

func NewServeConfig() (*config.ServerConfig, error) {
	serverConfig, err := config.LoadServerConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load server config: %v", err)
	}

	return &serverConfig, nil
}

func NewServeCmd() *cobra.Command {
	serveConfig, err := NewServeConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create serve options")
	}

	envHelpText := generateEnvHelpText(serveConfig, "")

	serveCmd := &cobra.Command{
		Use:     "serve",
		Short:   "Start the floorline capture agent.",
		Long:    "Start the floorline capture agent.",
		Example: "TBD",
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := serve(cmd, serveConfig)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to run agent")
			}
			return nil
		},
	}

	serveCmd.Long += "\n\nEnvironment Variables:\n\n" + envHelpText

	return serveCmd
}

func serve(cmd *cobra.Command, cfg *config.ServerConfig) error {
	system.SetupLogging()

	// Cleanup manager ensures that resources are freed before exiting:
	cm := system.NewCleanupManager()
	defer cm.Cleanup(cmd.Context())
	ctx := cmd.Context()

	// Context ensures main goroutine waits until killed with ctrl+c:
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	facility, err := config.LoadFacilityConfig(cfg.Facility)
	if err != nil {
		return fmt.Errorf("failed to load facility config: %v", err)
	}

	local, err := localstore.Open(cfg.LocalStore.Path)
	if err != nil {
		return fmt.Errorf("failed to open local store: %v", err)
	}
	cm.RegisterCallback(local.Close)

	holderID, err := localstore.EnsureHolderID(ctx, local)
	if err != nil {
		return fmt.Errorf("failed to establish device identity: %v", err)
	}

	deviceLabel, err := localstore.EnsureDeviceLabel(ctx, local, cfg.Coordination.DeviceLabel)
	if err != nil {
		return fmt.Errorf("failed to establish device label: %v", err)
	}

	backing, err := store.NewPostgresStore(cfg.Store)
	if err != nil {
		return err
	}
	cm.RegisterCallback(backing.Close)

	ps, err := pubsub.New(&cfg.PubSub)
	if err != nil {
		return err
	}
	cm.RegisterCallback(ps.Close)

	// Collect timer state left behind by sessions that never came back.
	removed, err := timer.NewReaper(local, cfg.LocalStore.Retention).Sweep(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("boot reap failed")
	} else if removed > 0 {
		log.Info().Int("removed", removed).Msg("reaped stale local timer state")
	}

	gc, err := lease.NewGC(&cfg.Coordination, backing)
	if err != nil {
		return err
	}

	go func() {
		if err := gc.Run(ctx); err != nil {
			log.Error().Err(err).Msg("lease gc stopped")
		}
	}()

	sessionManager := session.NewManager(session.ManagerParams{
		Cfg:         cfg,
		Facility:    facility,
		Store:       backing,
		Local:       local,
		PubSub:      ps,
		HolderID:    holderID,
		HolderLabel: deviceLabel,
	})

	// Re-lock whatever this device held before it went down. Losing a
	// session to another device here is fine, the operator re-locks.
	if err := sessionManager.Restore(ctx); err != nil {
		log.Error().Err(err).Msg("failed to restore sessions")
	}

	cm.RegisterCallback(func() error {
		sessionManager.Shutdown()
		return nil
	})

	apiServer := server.NewServer(cfg, backing, ps, sessionManager)

	log.Info().
		Str("device", deviceLabel).
		Str("holder_id", holderID).
		Msgf("Floorline agent listening on %s:%d", cfg.WebServer.Host, cfg.WebServer.Port)

	go func() {
		err := apiServer.ListenAndServe(ctx, cm)
		if err != nil {
			panic(err)
		}
	}()

	<-ctx.Done()
	return nil
}
