package floorline

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/floorlinehq/floorline/api/pkg/config"
	"github.com/floorlinehq/floorline/api/pkg/localstore"
	"github.com/floorlinehq/floorline/api/pkg/system"
	"github.com/floorlinehq/floorline/api/pkg/timer"
)

func newSweepCmd() *cobra.Command {
	var sweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired timer state from the local store and exit",
		Long:  "Remove expired timer state from the local store and exit. The serve command runs the same sweep at boot.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			system.SetupLogging()

			cfg, err := config.LoadServerConfig()
			if err != nil {
				return fmt.Errorf("failed to load server config: %v", err)
			}

			local, err := localstore.Open(cfg.LocalStore.Path)
			if err != nil {
				return fmt.Errorf("failed to open local store: %v", err)
			}
			defer local.Close()

			removed, err := timer.NewReaper(local, cfg.LocalStore.Retention).Sweep(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("removed %d expired entries\n", removed)

			return nil
		},
	}
	return sweepCmd
}
