package floorline

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/floorlinehq/floorline/api/pkg/client"
)

func newStatusCommand() *cobra.Command {
	var statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the identity and health of the local agent",
		RunE: func(cmd *cobra.Command, _ []string) error {
			apiClient, err := client.NewClientFromEnv()
			if err != nil {
				return err
			}

			health, err := apiClient.Health(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to reach agent: %w", err)
			}

			agentConfig, err := apiClient.Config(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to read agent config: %w", err)
			}

			fmt.Printf("status:    %s\n", health.Status)
			fmt.Printf("version:   %s\n", health.Version)
			fmt.Printf("device:    %s (%s)\n", agentConfig.DeviceLabel, agentConfig.HolderID)
			fmt.Printf("facility:  %s\n", agentConfig.Facility)
			fmt.Printf("machines:  %s\n", strings.Join(agentConfig.Machines, ", "))
			fmt.Printf("shift:     %s %s\n", agentConfig.CurrentShift, agentConfig.CurrentDate)
			fmt.Printf("sessions:  %d\n", health.Sessions)

			return nil
		},
	}
	return statusCmd
}
