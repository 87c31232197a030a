package sessions

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/floorlinehq/floorline/api/pkg/cli"
	"github.com/floorlinehq/floorline/api/pkg/client"
)

func init() {
	rootCmd.AddCommand(listCmd)
}

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List capture sessions held by this agent",
	Long:    ``,
	RunE: func(cmd *cobra.Command, _ []string) error {
		apiClient, err := client.NewClientFromEnv()
		if err != nil {
			return err
		}

		sessions, err := apiClient.ListSessions(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}

		table := cli.NewSimpleTable(cmd.OutOrStdout(), []string{"Resource Key", "Machine", "Shift", "Date", "Timer", "Elapsed", "Contested"})

		for i := range sessions {
			s := &sessions[i]
			row := []string{
				s.ResourceKey,
				s.MachineName,
				string(s.Shift),
				s.Date,
				timerPhase(s),
				formatElapsed(s.ElapsedMs),
				strconv.FormatBool(s.Contested),
			}

			cli.AppendRow(table, row)
		}

		cli.RenderTable(table)

		return nil
	},
}
