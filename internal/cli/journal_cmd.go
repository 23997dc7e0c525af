package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/explainforge/internal/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Journal database management",
}

var journalMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply journal schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		jour, err := openJournal()
		if err != nil {
			return err
		}
		defer jour.Close()
		cmd.Println("Journal schema is up to date.")
		return nil
	},
}

var journalResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the journal database (destructive!)",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirmed, _ := cmd.Flags().GetBool("yes")
		if !confirmed {
			return fmt.Errorf("refusing to reset without --yes")
		}

		path, err := journal.DefaultDBPath()
		if err != nil {
			return err
		}
		jour, err := journal.Open(path)
		if err != nil {
			return err
		}
		defer jour.Close()

		if err := jour.Reset(); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
		cmd.Println("Journal reset.")
		return nil
	},
}

func init() {
	journalResetCmd.Flags().Bool("yes", false, "Confirm the destructive reset")
	journalCmd.AddCommand(journalMigrateCmd)
	journalCmd.AddCommand(journalResetCmd)
}
