package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "explainforge",
	Short: "explainforge — an analogy-driven explanation pipeline",
	Long: `explainforge turns technical content into audience-fitted explanations by
running it through a staged analogy pipeline with human approval gates.

The serve command exposes the pipeline over an HTTP API with a live event
stream; run executes a one-shot pipeline locally. Workflow history is
journaled to ~/.explainforge/journal.db (SQLite).`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(repoCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(journalCmd)
	rootCmd.AddCommand(templatesCmd)
}
