package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/lucasnoah/explainforge/internal/source"
)

var runCmd = &cobra.Command{
	Use:   "run [content]",
	Short: "Run a one-shot explanation pipeline locally",
	Long: `Run the full stage sequence once and print the result. Approval gates are
bypassed: every stage result is accepted as produced.

Input is taken from the positional argument, --input file, or --source-dir
(one markdown file per item under <dir>/<kind>/). With none of those, a small
built-in sample set is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		// One-shot runs have nobody to answer a gate.
		cfg.Approval.Mode = "none"

		input, err := runInput(cmd, args, cfg.Source.Kinds, cfg.Source.MaxResults)
		if err != nil {
			return err
		}
		if strings.TrimSpace(input) == "" {
			return fmt.Errorf("no input content")
		}

		eng, err := buildEngine(cfg, nil, nil)
		if err != nil {
			return err
		}

		st, err := eng.orch.RunWorkflow(cmd.Context(), input)
		if err != nil {
			return fmt.Errorf("workflow: %w", err)
		}

		out := cmd.OutOrStdout()
		history := eng.registry.History(st.ID)
		for _, step := range history {
			status := "ok"
			if !step.Succeeded() {
				status = "failed: " + step.Error
			}
			fmt.Fprintf(out, "%-22s %6dms  %s\n", step.Stage, step.DurationMs, status)
		}
		if len(history) > 0 {
			fmt.Fprintf(out, "\n%s\n", history[len(history)-1].Output)
		}
		return nil
	},
}

// runInput resolves the pipeline input from the command line or the
// configured source kinds.
func runInput(cmd *cobra.Command, args []string, kinds []string, maxResults int) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}

	if path, _ := cmd.Flags().GetString("input"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading input file: %w", err)
		}
		return string(data), nil
	}

	if dir, _ := cmd.Flags().GetString("source-dir"); dir != "" {
		fetcher := source.NewDir(afero.NewOsFs(), dir)
		var items []source.Item
		for _, kind := range kinds {
			fetched, err := fetcher.FetchItems(cmd.Context(), kind, maxResults)
			if err != nil {
				return "", fmt.Errorf("fetching %s items: %w", kind, err)
			}
			items = append(items, fetched...)
		}
		return source.Combine(items), nil
	}

	// No explicit input: fall back to the built-in samples, all kinds.
	items, err := source.NewStatic(source.Samples()).FetchItems(cmd.Context(), "", maxResults)
	if err != nil {
		return "", err
	}
	return source.Combine(items), nil
}

func init() {
	runCmd.Flags().String("input", "", "Read input content from a file")
	runCmd.Flags().String("source-dir", "", "Fetch input items from a directory")
}
