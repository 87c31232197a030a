package floorline

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/floorlinehq/floorline/api/pkg/cli/sessions"
)

var Fatal = FatalErrorHandler

func init() { //nolint:gochecknoinits
	NewRootCmd()
}

func NewRootCmd() *cobra.Command {
	RootCmd := &cobra.Command{
		Use:   getCommandLineExecutable(),
		Short: "Floorline",
		Long:  `Factory floor capture agent`,
	}

	// CLI commands talking to a running agent
	RootCmd.AddCommand(sessions.New())
	RootCmd.AddCommand(newStatusCommand())

	// Agent lifecycle commands
	RootCmd.AddCommand(NewServeCmd())
	RootCmd.AddCommand(newSweepCmd())
	RootCmd.AddCommand(newVersionCommand())

	return RootCmd
}

func Execute() {
	RootCmd := NewRootCmd()
	RootCmd.SetContext(context.Background())
	RootCmd.SetOutput(os.Stdout)

	// Check for FLOORLINE_COMMAND environment variable to support air hot reloading
	if floorlineCmd := os.Getenv("FLOORLINE_COMMAND"); floorlineCmd != "" {
		// Split the command and inject it into os.Args
		cmdParts := strings.Fields(floorlineCmd)
		if len(cmdParts) > 0 {
			// Replace os.Args to include the subcommand
			newArgs := []string{os.Args[0]}
			newArgs = append(newArgs, cmdParts...)
			os.Args = newArgs
		}
	}

	if err := RootCmd.Execute(); err != nil {
		Fatal(RootCmd, err.Error(), 1)
	}
}
