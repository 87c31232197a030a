package sessions

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/floorlinehq/floorline/api/pkg/client"
)

func init() {
	inspectCmd.Flags().String("output", "yaml", "Output format. One of: json|yaml")

	rootCmd.AddCommand(inspectCmd)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [machine]",
	Short: "Inspect a capture session",
	Long:  `Retrieve and display the full session snapshot, timer state included, in JSON or YAML format.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		apiClient, err := client.NewClientFromEnv()
		if err != nil {
			return err
		}

		session, err := lookupSession(cmd.Context(), apiClient, args[0])
		if err != nil {
			return err
		}

		session, err = apiClient.GetSession(cmd.Context(), session.ResourceKey)
		if err != nil {
			return fmt.Errorf("failed to get session: %w", err)
		}

		output, err := cmd.Flags().GetString("output")
		if err != nil {
			return err
		}

		switch output {
		case "json":
			bts, err := json.MarshalIndent(session, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal session: %w", err)
			}
			fmt.Println(string(bts))
		case "yaml":
			bts, err := yaml.Marshal(session)
			if err != nil {
				return fmt.Errorf("failed to marshal session: %w", err)
			}
			fmt.Println(string(bts))
		default:
			return fmt.Errorf("unknown output format: %s", output)
		}

		return nil
	},
}
