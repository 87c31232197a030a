package sessions

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/floorlinehq/floorline/api/pkg/client"
)

func init() {
	mirrorCmd.Flags().String("shift", "", "Shift to read, day or night. Defaults to the current shift.")
	mirrorCmd.Flags().String("date", "", "Production date (YYYY-MM-DD). Defaults to today.")

	rootCmd.AddCommand(mirrorCmd)
}

// mirrorCmd reads the advisory timer mirror another device last pushed,
// useful when deciding whether to take a session over.
var mirrorCmd = &cobra.Command{
	Use:   "mirror [machine]",
	Short: "Show the last timer state mirrored by the holding device",
	Long:  ``,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return fmt.Errorf("machine name or resource key is required")
		}

		apiClient, err := client.NewClientFromEnv()
		if err != nil {
			return err
		}

		resourceKey, err := resolveResourceKey(cmd.Context(), apiClient, cmd, args[0])
		if err != nil {
			return err
		}

		mirror, err := apiClient.GetTimerMirror(cmd.Context(), resourceKey)
		if err != nil {
			return fmt.Errorf("failed to read timer mirror: %w", err)
		}

		fmt.Printf("holder:   %s\n", mirror.HolderID)
		fmt.Printf("updated:  %s\n", mirror.UpdatedAt.Format(time.RFC3339))
		fmt.Printf("elapsed:  %s\n", formatElapsed(mirror.State.ElapsedMs(mirror.UpdatedAt)))
		fmt.Printf("pauses:   %d\n", len(mirror.State.PauseHistory))

		return nil
	},
}
