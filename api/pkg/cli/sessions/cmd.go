package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/floorlinehq/floorline/api/pkg/client"
	"github.com/floorlinehq/floorline/api/pkg/shift"
	"github.com/floorlinehq/floorline/api/pkg/types"
)

var rootCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"session"},
	Short:   "Manage capture sessions on the local agent",
	Long:    ``,
}

func New() *cobra.Command {
	return rootCmd
}

// lookupSession resolves a machine name or full resource key to a
// session currently held by this agent.
func lookupSession(ctx context.Context, apiClient client.Client, ref string) (*types.CaptureSession, error) {
	sessions, err := apiClient.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	for i, s := range sessions {
		if s.ResourceKey == ref || s.MachineName == ref {
			return &sessions[i], nil
		}
	}

	return nil, fmt.Errorf("session not found: %s", ref)
}

// resolveResourceKey composes a resource key from a machine name and the
// shift/date flags, asking the agent for the current shift when the
// flags are unset. A ref that already looks like a resource key is
// passed through.
func resolveResourceKey(ctx context.Context, apiClient client.Client, cmd *cobra.Command, ref string) (string, error) {
	if _, _, _, err := shift.SplitResourceKey(ref); err == nil {
		return ref, nil
	}

	shiftFlag, _ := cmd.Flags().GetString("shift")
	dateFlag, _ := cmd.Flags().GetString("date")

	if shiftFlag == "" || dateFlag == "" {
		agentConfig, err := apiClient.Config(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to read agent config: %w", err)
		}
		if shiftFlag == "" {
			shiftFlag = string(agentConfig.CurrentShift)
		}
		if dateFlag == "" {
			dateFlag = agentConfig.CurrentDate
		}
	}

	return shift.ResourceKey(ref, types.Shift(shiftFlag), dateFlag), nil
}

func timerPhase(s *types.CaptureSession) string {
	switch {
	case s.Timer.LastResumedAt != nil:
		return "running"
	case s.Timer.PausedAt != nil:
		return "paused"
	default:
		return "idle"
	}
}

func formatElapsed(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).Round(time.Second).String()
}
