package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recent workflow events from the journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		sessionID, _ := cmd.Flags().GetString("session")

		jour, err := openJournal()
		if err != nil {
			return err
		}
		defer jour.Close()

		events, err := jour.RecentEvents(limit)
		if err != nil {
			return fmt.Errorf("reading events: %w", err)
		}

		out := cmd.OutOrStdout()
		shown := 0
		for _, ev := range events {
			if sessionID != "" && ev.SessionID != sessionID {
				continue
			}
			line := fmt.Sprintf("%s  %-12s %-22s", ev.Timestamp, ev.SessionID, ev.Event)
			if ev.Stage != "" {
				line += "  " + ev.Stage
			}
			if ev.Detail != "" {
				line += "  " + ev.Detail
			}
			fmt.Fprintln(out, line)
			shown++
		}
		if shown == 0 {
			fmt.Fprintln(out, "No events recorded.")
		}
		return nil
	},
}

func init() {
	eventsCmd.Flags().Int("limit", 50, "Maximum number of events to show")
	eventsCmd.Flags().String("session", "", "Only show events for this session")
}
