package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/explainforge/internal/prompt"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Prompt template management",
}

var templatesInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the built-in prompt templates to ~/.explainforge/templates",
	Long: `Write the built-in stage prompt templates to ~/.explainforge/templates so
they can be customized. Existing files are never overwritten.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := prompt.InstallBuiltinTemplates(); err != nil {
			return fmt.Errorf("install templates: %w", err)
		}
		cmd.Println("Templates installed.")
		return nil
	},
}

func init() {
	templatesCmd.AddCommand(templatesInstallCmd)
}
