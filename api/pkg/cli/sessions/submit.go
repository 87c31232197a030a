package sessions

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/floorlinehq/floorline/api/pkg/client"
)

func init() {
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(abandonCmd)
}

var submitCmd = &cobra.Command{
	Use:   "submit [machine]",
	Short: "Complete a capture session and release the machine",
	Long:  ``,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return fmt.Errorf("machine name or resource key is required")
		}

		apiClient, err := client.NewClientFromEnv()
		if err != nil {
			return err
		}

		session, err := lookupSession(cmd.Context(), apiClient, args[0])
		if err != nil {
			return err
		}

		session, err = apiClient.SubmitSession(cmd.Context(), session.ResourceKey)
		if err != nil {
			return fmt.Errorf("failed to submit session: %w", err)
		}

		log.Info().Msgf("Session %s submitted after %s of production", session.ResourceKey, formatElapsed(session.ElapsedMs))

		return nil
	},
}

var abandonCmd = &cobra.Command{
	Use:   "abandon [machine]",
	Short: "Abandon a capture session without submitting it",
	Long:  ``,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return fmt.Errorf("machine name or resource key is required")
		}

		apiClient, err := client.NewClientFromEnv()
		if err != nil {
			return err
		}

		session, err := lookupSession(cmd.Context(), apiClient, args[0])
		if err != nil {
			return err
		}

		session, err = apiClient.AbandonSession(cmd.Context(), session.ResourceKey)
		if err != nil {
			return fmt.Errorf("failed to abandon session: %w", err)
		}

		log.Info().Msgf("Session %s abandoned", session.ResourceKey)

		return nil
	},
}
