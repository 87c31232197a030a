package sessions

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/floorlinehq/floorline/api/pkg/cli"
	"github.com/floorlinehq/floorline/api/pkg/client"
	"github.com/floorlinehq/floorline/api/pkg/types"
)

func init() {
	downtimeCmd.Flags().StringP("machine", "m", "", "Only downtime for this machine")
	downtimeCmd.Flags().String("shift", "", "Only downtime for this shift, day or night")
	downtimeCmd.Flags().String("date", "", "Only downtime for this production date (YYYY-MM-DD)")
	downtimeCmd.Flags().Duration("since", 0, "Only downtime recorded within this window, e.g. 24h")

	rootCmd.AddCommand(downtimeCmd)
}

var downtimeCmd = &cobra.Command{
	Use:   "downtime",
	Short: "List downtime records from the backing store",
	Long:  ``,
	RunE: func(cmd *cobra.Command, _ []string) error {
		apiClient, err := client.NewClientFromEnv()
		if err != nil {
			return err
		}

		machine, _ := cmd.Flags().GetString("machine")
		shiftFlag, _ := cmd.Flags().GetString("shift")
		dateFlag, _ := cmd.Flags().GetString("date")
		since, _ := cmd.Flags().GetDuration("since")

		filter := &client.DowntimeFilter{
			MachineName: machine,
			Shift:       types.Shift(shiftFlag),
			Date:        dateFlag,
		}
		if since > 0 {
			filter.Since = time.Now().Add(-since)
		}

		records, err := apiClient.ListDowntime(cmd.Context(), filter)
		if err != nil {
			return fmt.Errorf("failed to list downtime: %w", err)
		}

		table := cli.NewSimpleTable(cmd.OutOrStdout(), []string{"Machine", "Shift", "Date", "Reason", "Minutes", "Paused", "Resumed", "Source"})

		for _, record := range records {
			row := []string{
				record.MachineName,
				string(record.Shift),
				record.Date,
				record.Reason,
				strconv.Itoa(record.Minutes),
				record.PausedAt.Format(time.DateTime),
				record.ResumedAt.Format(time.DateTime),
				string(record.Source),
			}

			cli.AppendRow(table, row)
		}

		cli.RenderTable(table)

		return nil
	},
}
