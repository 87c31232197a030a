package sessions

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/floorlinehq/floorline/api/pkg/client"
	"github.com/floorlinehq/floorline/api/pkg/types"
)

func init() {
	lockCmd.Flags().String("shift", "", "Shift to lock, day or night. Defaults to the current shift.")
	lockCmd.Flags().String("date", "", "Production date (YYYY-MM-DD). Defaults to today.")
	lockCmd.Flags().Bool("take-over", false, "Evict the current holder and take the session over")

	rootCmd.AddCommand(lockCmd)
}

var lockCmd = &cobra.Command{
	Use:   "lock [machine]",
	Short: "Lock a machine for capture on this device",
	Long:  ``,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return fmt.Errorf("machine name is required")
		}

		apiClient, err := client.NewClientFromEnv()
		if err != nil {
			return err
		}

		shiftFlag, _ := cmd.Flags().GetString("shift")
		dateFlag, _ := cmd.Flags().GetString("date")
		takeOver, _ := cmd.Flags().GetBool("take-over")

		session, err := apiClient.CreateSession(cmd.Context(), types.CreateSessionRequest{
			MachineName: args[0],
			Shift:       types.Shift(shiftFlag),
			Date:        dateFlag,
			TakeOver:    takeOver,
		})
		if err != nil {
			return fmt.Errorf("failed to lock session: %w", err)
		}

		log.Info().Msgf("Session %s locked", session.ResourceKey)

		return nil
	},
}
