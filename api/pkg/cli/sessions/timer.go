package sessions

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/floorlinehq/floorline/api/pkg/client"
)

func init() {
	resumeCmd.Flags().StringP("reason", "r", "", "Downtime reason, e.g. \"Die change\"")

	if err := resumeCmd.MarkFlagRequired("reason"); err != nil {
		return
	}

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
}

var startCmd = &cobra.Command{
	Use:   "start [machine]",
	Short: "Start the production timer",
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

		session, err = apiClient.StartTimer(cmd.Context(), session.ResourceKey)
		if err != nil {
			return fmt.Errorf("failed to start timer: %w", err)
		}

		log.Info().Msgf("Timer running on %s", session.ResourceKey)

		return nil
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause [machine]",
	Short: "Pause the production timer",
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

		session, err = apiClient.PauseTimer(cmd.Context(), session.ResourceKey)
		if err != nil {
			return fmt.Errorf("failed to pause timer: %w", err)
		}

		log.Info().Msgf("Timer paused on %s at %s elapsed", session.ResourceKey, formatElapsed(session.ElapsedMs))

		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume [machine]",
	Short: "Resume the production timer, recording the downtime reason",
	Long:  ``,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return fmt.Errorf("machine name or resource key is required")
		}

		apiClient, err := client.NewClientFromEnv()
		if err != nil {
			return err
		}

		reason, _ := cmd.Flags().GetString("reason")

		session, err := lookupSession(cmd.Context(), apiClient, args[0])
		if err != nil {
			return err
		}

		session, err = apiClient.ResumeTimer(cmd.Context(), session.ResourceKey, reason)
		if err != nil {
			return fmt.Errorf("failed to resume timer: %w", err)
		}

		log.Info().Msgf("Timer running on %s", session.ResourceKey)

		return nil
	},
}
