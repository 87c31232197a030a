package sessions

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/floorlinehq/floorline/api/pkg/client"
)

func init() {
	conflictCmd.Flags().String("shift", "", "Shift to probe, day or night. Defaults to the current shift.")
	conflictCmd.Flags().String("date", "", "Production date (YYYY-MM-DD). Defaults to today.")

	rootCmd.AddCommand(conflictCmd)
}

// conflictCmd probes a resource before locking it, so an operator can
// see who holds a machine without evicting anyone.
var conflictCmd = &cobra.Command{
	Use:   "conflict [machine]",
	Short: "Check whether another device already holds a machine",
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

		check, err := apiClient.CheckConflict(cmd.Context(), resourceKey)
		if err != nil {
			return fmt.Errorf("failed to check conflict: %w", err)
		}

		if !check.Conflict {
			fmt.Printf("%s is free\n", resourceKey)
			return nil
		}

		holder := check.HeldBy.HolderLabel
		if holder == "" {
			holder = check.HeldBy.HolderID
		}
		fmt.Printf("%s is held by %s (last heartbeat %s)\n", resourceKey, holder, check.HeldBy.LastHeartbeat.Format("15:04:05"))

		return nil
	},
}
