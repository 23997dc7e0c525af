package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/explainforge/internal/provision"
	"github.com/lucasnoah/explainforge/internal/repomon"
	"github.com/lucasnoah/explainforge/internal/scan"
)

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Test and scan monitored repositories",
}

var repoTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Test a repository connection, then disconnect",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, cfg, err := repoEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.jour.Close()
		defer eng.prov.WaitDeletions()

		if err := eng.monitor.Connect(cmd.Context(), cfg); err != nil {
			return fmt.Errorf("connection failed: %w", err)
		}
		eng.monitor.Disconnect()
		fmt.Fprintf(cmd.OutOrStdout(), "Connection OK: %s (branch %s)\n", cfg.RepoURL, cfg.Branch)
		return nil
	},
}

var repoScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Connect and run a baseline scan over the tracked tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, cfg, err := repoEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.jour.Close()
		defer eng.prov.WaitDeletions()

		if err := eng.monitor.Connect(cmd.Context(), cfg); err != nil {
			return fmt.Errorf("connection failed: %w", err)
		}

		cs, err := eng.monitor.CheckForChanges(cmd.Context(), true)
		if err != nil {
			return fmt.Errorf("change detection: %w", err)
		}
		issues := eng.monitor.Scan(cmd.Context(), cs.ChangedFiles)

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, repomon.FormatReport(cs, issues))

		counts := scan.CountBySeverity(issues)
		fmt.Fprintf(out, "\n%d files, %d issues (%d high, %d medium, %d low)\n",
			len(cs.ChangedFiles), len(issues),
			counts[scan.SeverityHigh], counts[scan.SeverityMedium], counts[scan.SeverityLow])

		if eng.jour != nil {
			if _, err := eng.jour.RecordScanRun(provision.DefaultSessionID, cs.CommitRange,
				len(cs.ChangedFiles), len(issues),
				counts[scan.SeverityHigh], counts[scan.SeverityMedium], counts[scan.SeverityLow],
				repomon.ChangeSummary(cs)); err != nil {
				eng.logger.Warn("recording scan run failed", "error", err)
			}
		}
		return nil
	},
}

// repoEngine builds the engine and resolves the repository config from
// flags over config-file defaults.
func repoEngine(cmd *cobra.Command) (*engine, provision.RepoConfig, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, provision.RepoConfig{}, err
	}

	jour, err := openJournal()
	if err != nil {
		return nil, provision.RepoConfig{}, err
	}

	eng, err := buildEngine(cfg, jour, nil)
	if err != nil {
		jour.Close()
		return nil, provision.RepoConfig{}, err
	}

	ov := provision.Overrides{}
	ov.RepoURL, _ = cmd.Flags().GetString("url")
	ov.Branch, _ = cmd.Flags().GetString("branch")
	ov.Username, _ = cmd.Flags().GetString("username")
	ov.Token, _ = cmd.Flags().GetString("token")

	rc, err := eng.prov.SetConfig(provision.DefaultSessionID, ov)
	if err != nil {
		jour.Close()
		return nil, provision.RepoConfig{}, err
	}
	if rc.RepoURL == "" {
		jour.Close()
		return nil, provision.RepoConfig{}, fmt.Errorf("no repository URL: pass --url or set repository.url in the config")
	}
	return eng, rc, nil
}

func init() {
	for _, c := range []*cobra.Command{repoTestCmd, repoScanCmd} {
		c.Flags().String("url", "", "Repository URL")
		c.Flags().String("branch", "", "Branch to monitor")
		c.Flags().String("username", "", "Username for https auth")
		c.Flags().String("token", "", "Access token for https auth")
	}
	repoCmd.AddCommand(repoTestCmd)
	repoCmd.AddCommand(repoScanCmd)
}
